package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"channel-sense-bot/internal/domain"
	"channel-sense-bot/internal/infra/metrics"
	"channel-sense-bot/internal/usecase/analytics"
)

// ErrMissingDependency возвращается конструктором при отсутствии обязательной
// зависимости. Это единственная ошибка конфигурации, останавливающая прогоны.
var ErrMissingDependency = errors.New("отсутствует обязательная зависимость")

const (
	activityLookback = 7 * 24 * time.Hour
	issueTimeout     = 45 * time.Second
	growthDays       = 7
)

// Config — параметры недельного прогона наград.
type Config struct {
	MinMessages              int
	TopN                     int
	ActiveChannelMinMessages int
}

// Orchestrator проводит недельный прогон: анализ активных каналов, отбор
// кандидатов, выпуск наград, журнал и отчёт.
type Orchestrator struct {
	activity domain.ActivityRepo
	analyzer domain.Analyzer
	ledger   domain.RewardLedger
	reports  domain.ReportRepo
	issuer   domain.RewardIssuer
	insights domain.InsightGenerator
	notifier domain.Notifier
	cfg      Config
	log      zerolog.Logger
}

// NewOrchestrator проверяет зависимости и создаёт оркестратор.
func NewOrchestrator(
	activity domain.ActivityRepo,
	analyzer domain.Analyzer,
	ledger domain.RewardLedger,
	reports domain.ReportRepo,
	issuer domain.RewardIssuer,
	insights domain.InsightGenerator,
	notifier domain.Notifier,
	cfg Config,
	log zerolog.Logger,
) (*Orchestrator, error) {
	switch {
	case activity == nil:
		return nil, fmt.Errorf("%w: activity", ErrMissingDependency)
	case analyzer == nil:
		return nil, fmt.Errorf("%w: analyzer", ErrMissingDependency)
	case ledger == nil:
		return nil, fmt.Errorf("%w: ledger", ErrMissingDependency)
	case reports == nil:
		return nil, fmt.Errorf("%w: reports", ErrMissingDependency)
	case issuer == nil:
		return nil, fmt.Errorf("%w: issuer", ErrMissingDependency)
	case notifier == nil:
		return nil, fmt.Errorf("%w: notifier", ErrMissingDependency)
	}
	if cfg.MinMessages <= 0 {
		cfg.MinMessages = 10
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 3
	}
	if cfg.ActiveChannelMinMessages <= 0 {
		cfg.ActiveChannelMinMessages = 10
	}
	return &Orchestrator{
		activity: activity,
		analyzer: analyzer,
		ledger:   ledger,
		reports:  reports,
		issuer:   issuer,
		insights: insights,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}, nil
}

// RunStats — итоги одного прогона.
type RunStats struct {
	RunID          string
	StartedAt      time.Time
	Channels       int
	ChannelsFailed int
	Candidates     int
	Issued         int
	Failed         int
}

// Run проводит прогон по всем активным каналам. Каналы обрабатываются
// последовательно, ошибка одного канала логируется и не прерывает остальные.
func (o *Orchestrator) Run(ctx context.Context) (RunStats, error) {
	stats := RunStats{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	metrics.RewardRunsTotal.Inc()
	defer func() {
		metrics.RewardRunSeconds.Observe(time.Since(stats.StartedAt).Seconds())
	}()

	log := o.log.With().Str("run", stats.RunID).Logger()
	log.Info().Msg("начинаем прогон наград")

	channels, err := o.activity.ActiveChannels(ctx, stats.StartedAt.Add(-activityLookback), o.cfg.ActiveChannelMinMessages)
	if err != nil {
		return stats, fmt.Errorf("активные каналы: %w", err)
	}
	if len(channels) == 0 {
		log.Info().Msg("активных каналов нет, прогон пустой")
		return stats, nil
	}

	for _, ch := range channels {
		stats.Channels++
		chStats, err := o.processChannel(ctx, stats.RunID, stats.StartedAt, ch)
		if err != nil {
			stats.ChannelsFailed++
			log.Error().Err(err).Int64("chat", ch.ChatID).Msg("канал пропущен")
			continue
		}
		stats.Candidates += chStats.Candidates
		stats.Issued += chStats.Issued
		stats.Failed += chStats.Failed
	}

	log.Info().
		Int("channels", stats.Channels).
		Int("channels_failed", stats.ChannelsFailed).
		Int("candidates", stats.Candidates).
		Int("issued", stats.Issued).
		Int("failed", stats.Failed).
		Msg("прогон наград завершён")
	return stats, nil
}

type channelStats struct {
	Candidates int
	Issued     int
	Failed     int
}

func (o *Orchestrator) processChannel(ctx context.Context, runID string, startedAt time.Time, ch domain.Channel) (channelStats, error) {
	var stats channelStats
	log := o.log.With().Str("run", runID).Int64("chat", ch.ChatID).Logger()

	analysis, err := o.analyzer.AnalyzeAt(ctx, ch.ChatID, domain.PeriodWeek, startedAt.Truncate(time.Hour))
	if err != nil {
		return stats, fmt.Errorf("анализ канала: %w", err)
	}

	sentiment, err := o.analyzer.Sentiment(ctx, ch.ChatID, domain.PeriodWeek)
	if err != nil {
		log.Warn().Err(err).Msg("тональность недоступна, используем нейтральную")
		sentiment = domain.SentimentBreakdown{
			Overall: "Neutral",
			Neutral: 100,
			Trend:   "Stable",
			Summary: "Анализ тональности временно недоступен.",
		}
	}

	insights := "Аналитика за неделю собрана, автоматические инсайты временно недоступны."
	if o.insights != nil {
		if text, err := o.insights.GenerateInsights(ctx, analysis, sentiment); err != nil {
			log.Warn().Err(err).Msg("инсайты недоступны, используем запасной текст")
		} else {
			insights = text
		}
	}

	growth, err := o.analyzer.GrowthStats(ctx, ch.ChatID, growthDays)
	if err != nil {
		log.Warn().Err(err).Msg("ряд роста недоступен")
		growth = nil
	}

	candidates := SelectCandidates(analysis.TopUsers, o.cfg.MinMessages, o.cfg.TopN)
	stats.Candidates = len(candidates)

	outcomes := o.issueAll(ctx, runID, ch.ChatID, candidates, log)
	for _, outcome := range outcomes {
		if outcome.Succeeded {
			stats.Issued++
		} else {
			stats.Failed++
		}
	}

	report := domain.WeeklyReport{
		RunID:       runID,
		ChatID:      ch.ChatID,
		GeneratedAt: time.Now().UTC(),
		Summary: domain.ReportSummary{
			TotalMessages: analysis.TotalMessages,
			ActiveUsers:   analysis.ActiveUsers,
			GrowthPercent: analysis.GrowthPercent,
			Sentiment:     sentiment.Overall,
		},
		TopUsers:        analysis.TopUsers,
		Candidates:      candidates,
		Outcomes:        outcomes,
		Sentiment:       sentiment,
		Insights:        insights,
		Recommendations: analytics.BuildRecommendations(analysis, sentiment),
		GrowthSeries:    growth,
	}
	if err := o.reports.AppendReport(ctx, report); err != nil {
		return stats, fmt.Errorf("сохранение отчёта: %w", err)
	}

	// Канал без кандидатов получает отчёт в хранилище, но не сводку в чат.
	if len(candidates) > 0 {
		if err := o.notifier.NotifyChannel(ctx, ch.ChatID, FormatChannelSummary(report)); err != nil {
			log.Warn().Err(err).Msg("не удалось отправить сводку в канал")
		}
	}
	return stats, nil
}

// issueAll выпускает награды последовательно. Сбой одного кандидата не влияет
// на остальных. Запись в журнал строго предшествует уведомлению: пользователь
// не узнаёт о награде, которой нет в журнале.
func (o *Orchestrator) issueAll(ctx context.Context, runID string, chatID int64, candidates []domain.RewardCandidate, log zerolog.Logger) []domain.RewardOutcome {
	outcomes := make([]domain.RewardOutcome, 0, len(candidates))
	for _, candidate := range candidates {
		outcome := domain.RewardOutcome{
			RunID:    runID,
			UserID:   candidate.UserID,
			ChatID:   chatID,
			IssuedAt: time.Now().UTC(),
		}

		issueCtx, cancel := context.WithTimeout(ctx, issueTimeout)
		result, err := o.issuer.IssueReward(issueCtx, candidate, chatID, runID)
		cancel()
		if err != nil {
			reason := err.Error()
			outcome.FailureReason = &reason
			log.Warn().Err(err).Int64("user", candidate.UserID).Msg("выпуск награды не удался")
		} else {
			outcome.Succeeded = true
			outcome.TokenAddress = &result.TokenAddress
			outcome.TxRef = &result.TxRef
		}
		metrics.IncIssue(outcome.Succeeded)

		if err := o.ledger.AppendOutcome(ctx, outcome); err != nil {
			log.Error().Err(err).Int64("user", candidate.UserID).Msg("запись в журнал не удалась, уведомление пропущено")
			outcomes = append(outcomes, outcome)
			continue
		}
		outcomes = append(outcomes, outcome)

		if outcome.Succeeded {
			if err := o.notifier.NotifyUser(ctx, candidate.UserID, FormatRewardNotification(candidate, result)); err != nil {
				log.Warn().Err(err).Int64("user", candidate.UserID).Msg("не удалось уведомить пользователя")
			}
		}
	}
	return outcomes
}
