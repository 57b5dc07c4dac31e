package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"channel-sense-bot/internal/adapters/bot"
	"channel-sense-bot/internal/adapters/insight"
	"channel-sense-bot/internal/adapters/repo"
	"channel-sense-bot/internal/adapters/ton"
	"channel-sense-bot/internal/domain"
	"channel-sense-bot/internal/infra/cache"
	"channel-sense-bot/internal/infra/config"
	"channel-sense-bot/internal/infra/db"
	loginfra "channel-sense-bot/internal/infra/log"
	"channel-sense-bot/internal/infra/metrics"
	openaiinfra "channel-sense-bot/internal/infra/openai"
	"channel-sense-bot/internal/infra/queue"
	"channel-sense-bot/internal/usecase/analytics"
	"channel-sense-bot/internal/usecase/rewards"
	"channel-sense-bot/internal/usecase/scoring"
)

func main() {
	cfg := config.Load()
	logger := loginfra.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger, fmt.Sprintf(":%d", cfg.Port))

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("rewarder: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	repoAdapter := repo.NewPostgres(pool)
	cacheAdapter := cache.NewRedis(redisClient)
	jobs := queue.NewRedisRewardQueue(redisClient, cfg.Queues.Rewards)

	var insights domain.InsightGenerator
	if cfg.OpenAI.APIKey != "" {
		client := openaiinfra.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		insights = insight.NewOpenAI(client, cfg.OpenAI.Model, cfg.OpenAI.Timeout)
	} else {
		insights = insight.NewSimple()
	}

	scorer := scoring.NewService(repoAdapter, logger.With().Str("component", "scoring").Logger())
	analyzer := analytics.NewService(repoAdapter, repoAdapter, scorer, insights, cacheAdapter, cfg.Rewards.TopUsersLimit, logger.With().Str("component", "analytics").Logger())

	minter := ton.NewMinter(cfg.TON.BaseURL, cfg.TON.APIKey, cfg.TON.Collection, cfg.TON.Timeout)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("rewarder: не удалось создать бота")
	}
	notifier := bot.NewNotifier(botAPI, logger.With().Str("component", "notifier").Logger())

	orchestrator, err := rewards.NewOrchestrator(
		repoAdapter, analyzer, repoAdapter, repoAdapter, minter, insights, notifier,
		rewards.Config{
			MinMessages:              cfg.Rewards.MinMessages,
			TopN:                     cfg.Rewards.TopN,
			ActiveChannelMinMessages: cfg.Rewards.ActiveChannelMin,
		},
		logger.With().Str("component", "rewards").Logger(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("rewarder: неполная конфигурация оркестратора")
	}

	// Внеплановые прогоны из очереди (/rewards_now).
	go func() {
		for {
			job, err := jobs.Pop(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error().Err(err).Msg("rewarder: ошибка чтения очереди")
				time.Sleep(time.Second)
				continue
			}
			logger.Info().Str("job", job.JobID).Int64("requested_by", job.RequestedBy).Msg("rewarder: внеплановый прогон")
			if _, err := orchestrator.Run(ctx); err != nil {
				logger.Error().Err(err).Str("job", job.JobID).Msg("rewarder: прогон не удался")
			}
		}
	}()

	// Недельное расписание: часовой тик, запуск в настроенные день и час.
	// Ключ в Redis защищает от повторного прогона при нескольких репликах.
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("rewarder: остановка")
			return
		case now := <-ticker.C:
			now = now.UTC()
			if int(now.Weekday()) != cfg.Rewards.RunWeekday || now.Hour() != cfg.Rewards.RunHourUTC {
				continue
			}
			year, week := now.ISOWeek()
			key := fmt.Sprintf("reward_run:%d-%02d", year, week)
			err := cacheAdapter.Once(key, 6*24*time.Hour, func() error {
				_, err := orchestrator.Run(ctx)
				return err
			})
			if err != nil {
				logger.Error().Err(err).Msg("rewarder: недельный прогон не удался")
			}
		}
	}
}
