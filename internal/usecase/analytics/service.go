package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"channel-sense-bot/internal/domain"
	"channel-sense-bot/internal/infra/metrics"
)

const (
	defaultTopLimit   = 10
	sentimentLimit    = 200
	sentimentPrevious = 100
	analysisCacheTTL  = 5 * time.Minute
)

// Service строит метрики канала, рейтинг пользователей и тональность.
type Service struct {
	activity domain.ActivityRepo
	wallets  domain.WalletRepo
	scorer   domain.Scorer
	insights domain.InsightGenerator
	cache    domain.Cache
	topLimit int
	log      zerolog.Logger
}

var _ domain.Analyzer = (*Service)(nil)

// NewService создаёт анализатор. cache может быть nil — тогда каждый вызов
// считает анализ заново.
func NewService(activity domain.ActivityRepo, wallets domain.WalletRepo, scorer domain.Scorer, insights domain.InsightGenerator, cache domain.Cache, topLimit int, log zerolog.Logger) *Service {
	if topLimit <= 0 {
		topLimit = defaultTopLimit
	}
	return &Service{activity: activity, wallets: wallets, scorer: scorer, insights: insights, cache: cache, topLimit: topLimit, log: log}
}

// Analyze считает анализ канала за скользящее окно, выровненное по часу.
// Выравнивание ограничивает устаревание кэша гранулярностью окна: кэшированный
// результат никогда не переживает границу окна.
func (s *Service) Analyze(ctx context.Context, chatID int64, period domain.Period) (domain.ChannelAnalysis, error) {
	end := time.Now().UTC().Truncate(time.Hour)
	return s.AnalyzeAt(ctx, chatID, period, end)
}

// AnalyzeAt считает анализ канала за окно, заканчивающееся в end.
func (s *Service) AnalyzeAt(ctx context.Context, chatID int64, period domain.Period, end time.Time) (domain.ChannelAnalysis, error) {
	window := domain.Window{Start: end.Add(-time.Duration(period.Hours()) * time.Hour), End: end}

	cacheKey := fmt.Sprintf("analysis:%d:%s:%d", chatID, period, end.Unix())
	if s.cache != nil {
		if raw, err := s.cache.Get(cacheKey); err == nil {
			var cached domain.ChannelAnalysis
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	start := time.Now()
	analysis, err := s.analyzeWindow(ctx, chatID, period, window)
	metrics.ChannelAnalysisSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ChannelAnalysisErrors.Inc()
		return domain.ChannelAnalysis{}, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(analysis); err == nil {
			_ = s.cache.Set(cacheKey, raw, analysisCacheTTL)
		}
	}
	return analysis, nil
}

func (s *Service) analyzeWindow(ctx context.Context, chatID int64, period domain.Period, window domain.Window) (domain.ChannelAnalysis, error) {
	current, err := s.activity.ChannelMetrics(ctx, chatID, window)
	if err != nil {
		return domain.ChannelAnalysis{}, fmt.Errorf("метрики канала: %w", err)
	}

	length := window.End.Sub(window.Start)
	previousWindow := domain.Window{Start: window.Start.Add(-length), End: window.Start}
	previous, err := s.activity.ChannelMetrics(ctx, chatID, previousWindow)
	if err != nil {
		return domain.ChannelAnalysis{}, fmt.Errorf("метрики предыдущего окна: %w", err)
	}

	hourly, err := s.activity.HourlyActivity(ctx, chatID, window)
	if err != nil {
		return domain.ChannelAnalysis{}, fmt.Errorf("почасовая активность: %w", err)
	}
	daily, err := s.activity.DailyActivity(ctx, chatID, window)
	if err != nil {
		return domain.ChannelAnalysis{}, fmt.Errorf("активность по дням: %w", err)
	}

	top, err := s.TopUsersWindow(ctx, chatID, window, s.topLimit)
	if err != nil {
		return domain.ChannelAnalysis{}, fmt.Errorf("рейтинг пользователей: %w", err)
	}

	avg := 0.0
	if current.ActiveUsers > 0 {
		avg = round1(float64(current.TotalMessages) / float64(current.ActiveUsers))
	}

	return domain.ChannelAnalysis{
		ChatID:             chatID,
		Period:             period,
		Window:             window,
		TotalMessages:      current.TotalMessages,
		ActiveUsers:        current.ActiveUsers,
		AvgMessagesPerUser: avg,
		GrowthPercent:      GrowthPercent(current.TotalMessages, previous.TotalMessages),
		PeakHour:           peakHour(hourly),
		MostActiveDay:      mostActiveDay(daily),
		TopUsers:           top,
	}, nil
}

// TopUsers возвращает рейтинг пользователей канала за период.
func (s *Service) TopUsers(ctx context.Context, chatID int64, period domain.Period, limit int) ([]domain.RankedUser, error) {
	end := time.Now().UTC().Truncate(time.Hour)
	window := domain.Window{Start: end.Add(-time.Duration(period.Hours()) * time.Hour), End: end}
	return s.TopUsersWindow(ctx, chatID, window, limit)
}

// TopUsersWindow строит детерминированный рейтинг: по убыванию оценки, при
// равенстве — по убыванию числа сообщений, затем по возрастанию ID.
func (s *Service) TopUsersWindow(ctx context.Context, chatID int64, window domain.Window, limit int) ([]domain.RankedUser, error) {
	if limit <= 0 {
		limit = s.topLimit
	}
	rows, err := s.activity.UserActivity(ctx, chatID, window, limit)
	if err != nil {
		return nil, fmt.Errorf("активность пользователей: %w", err)
	}

	ranked := make([]domain.RankedUser, 0, len(rows))
	for _, row := range rows {
		score, err := s.scorer.Score(ctx, row.UserID, chatID, window)
		if err != nil {
			// Скоринг недоступен — оставляем пользователя в рейтинге с базовой оценкой.
			s.log.Warn().Err(err).Int64("user", row.UserID).Int64("chat", chatID).Msg("скоринг недоступен, используем базовую оценку")
			score = domain.EngagementScore{
				UserID:     row.UserID,
				ChatID:     chatID,
				Window:     window,
				Score:      row.MessageCount * 10,
				Components: map[string]int{domain.SignalBase: row.MessageCount * 10},
			}
		}

		user := domain.RankedUser{
			EngagementScore: score,
			MessageCount:    row.MessageCount,
			Username:        row.Username,
			FirstName:       row.FirstName,
		}
		wallet, err := s.wallets.WalletForUser(ctx, row.UserID)
		switch {
		case err == nil:
			w := wallet
			user.Wallet = &w
		case errors.Is(err, domain.ErrNotFound):
		default:
			s.log.Warn().Err(err).Int64("user", row.UserID).Msg("кошелёк недоступен, считаем непривязанным")
		}
		ranked = append(ranked, user)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].MessageCount != ranked[j].MessageCount {
			return ranked[i].MessageCount > ranked[j].MessageCount
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked, nil
}

// Sentiment анализирует тональность сообщений канала за период. Ошибки
// генератора возвращаются вызывающему: запасной текст выбирает он.
func (s *Service) Sentiment(ctx context.Context, chatID int64, period domain.Period) (domain.SentimentBreakdown, error) {
	end := time.Now().UTC().Truncate(time.Hour)
	window := domain.Window{Start: end.Add(-time.Duration(period.Hours()) * time.Hour), End: end}

	messages, err := s.activity.RecentMessages(ctx, chatID, window, sentimentLimit)
	if err != nil {
		return domain.SentimentBreakdown{}, fmt.Errorf("сообщения для тональности: %w", err)
	}
	if len(messages) == 0 {
		return domain.SentimentBreakdown{
			Overall: "Neutral",
			Neutral: 100,
			Trend:   "Stable",
			Summary: "Нет сообщений за период.",
		}, nil
	}

	breakdown, err := s.insights.AnalyzeSentiment(ctx, messages)
	if err != nil {
		return domain.SentimentBreakdown{}, fmt.Errorf("анализ тональности: %w", err)
	}
	breakdown.TrendingTopics = ExtractTrendingTopics(messages, 5)
	breakdown.Trend = s.sentimentTrend(ctx, chatID, window, breakdown)
	return breakdown, nil
}

func (s *Service) sentimentTrend(ctx context.Context, chatID int64, window domain.Window, current domain.SentimentBreakdown) string {
	length := window.End.Sub(window.Start)
	previousWindow := domain.Window{Start: window.Start.Add(-length), End: window.Start}
	previousMessages, err := s.activity.RecentMessages(ctx, chatID, previousWindow, sentimentPrevious)
	if err != nil || len(previousMessages) == 0 {
		return "Stable"
	}
	previous, err := s.insights.AnalyzeSentiment(ctx, previousMessages)
	if err != nil {
		return "Stable"
	}
	switch {
	case current.Positive > previous.Positive+10:
		return "Improving"
	case current.Positive < previous.Positive-10:
		return "Declining"
	default:
		return "Stable"
	}
}

// GrowthStats возвращает посуточный ряд сообщений и активных пользователей.
func (s *Service) GrowthStats(ctx context.Context, chatID int64, days int) ([]domain.DayStat, error) {
	if days <= 0 {
		days = 7
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	stats := make([]domain.DayStat, 0, days)
	for i := days - 1; i >= 0; i-- {
		dayStart := today.AddDate(0, 0, -i)
		window := domain.Window{Start: dayStart, End: dayStart.AddDate(0, 0, 1)}
		dayMetrics, err := s.activity.ChannelMetrics(ctx, chatID, window)
		if err != nil {
			return nil, fmt.Errorf("метрики за %s: %w", dayStart.Format("2006-01-02"), err)
		}
		stats = append(stats, domain.DayStat{
			Date:        dayStart,
			Messages:    dayMetrics.TotalMessages,
			ActiveUsers: dayMetrics.ActiveUsers,
		})
	}
	return stats, nil
}

// GrowthPercent считает рост в процентах с одним знаком после запятой.
// При нулевом предыдущем периоде рост не определён и отображается как 0.
func GrowthPercent(current, previous int) float64 {
	if previous == 0 {
		return 0
	}
	return round1(float64(current-previous) / float64(previous) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func peakHour(hourly []domain.HourCount) *int {
	if len(hourly) == 0 {
		return nil
	}
	best := hourly[0]
	for _, h := range hourly[1:] {
		if h.Count > best.Count {
			best = h
		}
	}
	hour := best.Hour
	return &hour
}

func mostActiveDay(daily []domain.DayCount) string {
	if len(daily) == 0 {
		return ""
	}
	best := daily[0]
	for _, d := range daily[1:] {
		if d.Count > best.Count {
			best = d
		}
	}
	return best.Day
}
