package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RewardRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reward_runs_total",
		Help: "Количество запущенных прогонов наград",
	})
	RewardRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reward_run_seconds",
		Help:    "Длительность прогона наград",
		Buckets: prometheus.DefBuckets,
	})
	RewardIssueTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reward_issue_total",
		Help: "Количество попыток выпуска наград",
	}, []string{"status"})
	ChannelAnalysisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channel_analysis_errors_total",
		Help: "Ошибки анализа каналов",
	})
	ChannelAnalysisSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "channel_analysis_seconds",
		Help:    "Время анализа канала",
		Buckets: prometheus.DefBuckets,
	})
	DegradedScores = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "degraded_scores_total",
		Help: "Оценки, посчитанные по базовому сигналу из-за сбоя запроса",
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
	MessagesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_ingested_total",
		Help: "Количество сохранённых сообщений по каналам",
	}, []string{"chat_id"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RewardRunsTotal,
		RewardRunSeconds,
		RewardIssueTotal,
		ChannelAnalysisErrors,
		ChannelAnalysisSeconds,
		DegradedScores,
		BotSendErrors,
		MessagesIngested,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// IncIssue увеличивает счётчик попыток выпуска награды.
func IncIssue(succeeded bool) {
	status := "success"
	if !succeeded {
		status = "error"
	}
	RewardIssueTotal.WithLabelValues(status).Inc()
}

// IncIngested увеличивает счётчик сохранённых сообщений канала.
func IncIngested(chatID int64) {
	MessagesIngested.WithLabelValues(strconv.FormatInt(chatID, 10)).Inc()
}
