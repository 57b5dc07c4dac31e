package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"channel-sense-bot/internal/adapters/insight"
	"channel-sense-bot/internal/adapters/repo"
	"channel-sense-bot/internal/domain"
	"channel-sense-bot/internal/infra/cache"
	"channel-sense-bot/internal/infra/config"
	"channel-sense-bot/internal/infra/db"
	"channel-sense-bot/internal/infra/metrics"
	openaiinfra "channel-sense-bot/internal/infra/openai"
	"channel-sense-bot/internal/usecase/analytics"
	"channel-sense-bot/internal/usecase/scoring"
)

func main() {
	cfg := config.Load()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	repoAdapter := repo.NewPostgres(pool)
	cacheAdapter := cache.NewRedis(redisClient)

	var insights domain.InsightGenerator
	if cfg.OpenAI.APIKey != "" {
		client := openaiinfra.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		insights = insight.NewOpenAI(client, cfg.OpenAI.Model, cfg.OpenAI.Timeout)
	} else {
		insights = insight.NewSimple()
	}

	scorer := scoring.NewService(repoAdapter, log.With().Str("component", "scoring").Logger())
	analyzer := analytics.NewService(repoAdapter, repoAdapter, scorer, insights, cacheAdapter, cfg.Rewards.TopUsersLimit, log.With().Str("component", "analytics").Logger())

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/channels/{chatID}/stats", func(w http.ResponseWriter, r *http.Request) {
			chatID, ok := parseID(w, chi.URLParam(r, "chatID"))
			if !ok {
				return
			}
			analysis, err := analyzer.AnalyzeAt(r.Context(), chatID, queryPeriod(r), time.Now().UTC().Truncate(time.Hour))
			if err != nil {
				writeError(w, http.StatusInternalServerError, "не удалось построить статистику")
				return
			}
			writeJSON(w, analysis)
		})

		api.Get("/channels/{chatID}/top", func(w http.ResponseWriter, r *http.Request) {
			chatID, ok := parseID(w, chi.URLParam(r, "chatID"))
			if !ok {
				return
			}
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			users, err := analyzer.TopUsers(r.Context(), chatID, queryPeriod(r), limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "не удалось построить рейтинг")
				return
			}
			writeJSON(w, users)
		})

		api.Get("/channels/{chatID}/sentiment", func(w http.ResponseWriter, r *http.Request) {
			chatID, ok := parseID(w, chi.URLParam(r, "chatID"))
			if !ok {
				return
			}
			breakdown, err := analyzer.Sentiment(r.Context(), chatID, queryPeriod(r))
			if err != nil {
				writeError(w, http.StatusInternalServerError, "анализ тональности недоступен")
				return
			}
			writeJSON(w, breakdown)
		})

		api.Get("/channels/{chatID}/growth", func(w http.ResponseWriter, r *http.Request) {
			chatID, ok := parseID(w, chi.URLParam(r, "chatID"))
			if !ok {
				return
			}
			days, _ := strconv.Atoi(r.URL.Query().Get("days"))
			stats, err := analyzer.GrowthStats(r.Context(), chatID, days)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "не удалось построить ряд роста")
				return
			}
			writeJSON(w, stats)
		})

		api.Get("/channels/{chatID}/reports", func(w http.ResponseWriter, r *http.Request) {
			chatID, ok := parseID(w, chi.URLParam(r, "chatID"))
			if !ok {
				return
			}
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			if limit <= 0 || limit > 50 {
				limit = 10
			}
			reports, err := repoAdapter.ListReports(r.Context(), chatID, limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "не удалось получить отчёты")
				return
			}
			writeJSON(w, reports)
		})

		api.Get("/users/{userID}/rewards", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := parseID(w, chi.URLParam(r, "userID"))
			if !ok {
				return
			}
			outcomes, err := repoAdapter.UserOutcomes(r.Context(), userID, 20)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "не удалось получить награды")
				return
			}
			writeJSON(w, outcomes)
		})
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		log.Info().Int("port", cfg.Port).Msg("api запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("api: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func queryPeriod(r *http.Request) domain.Period {
	switch r.URL.Query().Get("period") {
	case "day":
		return domain.PeriodDay
	case "month":
		return domain.PeriodMonth
	default:
		return domain.PeriodWeek
	}
}

func parseID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
