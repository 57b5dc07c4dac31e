package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound возвращается хранилищем, когда запись отсутствует.
// Транзиентные ошибки хранилища возвращаются как есть и не совпадают с ним.
var ErrNotFound = errors.New("запись не найдена")

// ActivityRepo — типизированный доступ к сообщениям и активности каналов.
type ActivityRepo interface {
	UpsertChannel(ctx context.Context, ch Channel) error
	UpsertUser(ctx context.Context, profile UserProfile) error
	SaveMessage(ctx context.Context, msg Message) error
	ActiveChannels(ctx context.Context, since time.Time, minMessages int) ([]Channel, error)
	ChannelMetrics(ctx context.Context, chatID int64, window Window) (ChannelMetrics, error)
	UserActivity(ctx context.Context, chatID int64, window Window, limit int) ([]UserActivity, error)
	UserMessageCount(ctx context.Context, userID, chatID int64, window Window) (int, error)
	UserMessages(ctx context.Context, userID, chatID int64, window Window) ([]Message, error)
	MessageInteractions(ctx context.Context, userID, chatID int64, window Window) (MessageInteractions, error)
	UserActivityHours(ctx context.Context, userID, chatID int64, window Window) ([]int, error)
	HourlyActivity(ctx context.Context, chatID int64, window Window) ([]HourCount, error)
	DailyActivity(ctx context.Context, chatID int64, window Window) ([]DayCount, error)
	RecentMessages(ctx context.Context, chatID int64, window Window, limit int) ([]Message, error)
}

// WalletRepo отвечает за привязку кошельков к пользователям.
type WalletRepo interface {
	WalletForUser(ctx context.Context, userID int64) (Wallet, error)
	UpsertWallet(ctx context.Context, wallet Wallet) error
}

// RewardLedger — журнал попыток выдачи наград, только добавление.
type RewardLedger interface {
	AppendOutcome(ctx context.Context, outcome RewardOutcome) error
	UserOutcomes(ctx context.Context, userID int64, limit int) ([]RewardOutcome, error)
}

// ReportRepo сохраняет недельные отчёты как неизменяемые снимки.
type ReportRepo interface {
	AppendReport(ctx context.Context, report WeeklyReport) error
	ListReports(ctx context.Context, chatID int64, limit int) ([]WeeklyReport, error)
}

// Scorer считает оценку вовлечённости одного пользователя в одном канале.
type Scorer interface {
	Score(ctx context.Context, userID, chatID int64, window Window) (EngagementScore, error)
}

// RewardIssuer выпускает награду для одного кандидата. Повторный вызов для той
// же пары (пользователь, канал) внутри прогона не защищён от дублей на стороне
// коллаборатора — оркестратор обязан не вызывать его дважды.
type RewardIssuer interface {
	IssueReward(ctx context.Context, candidate RewardCandidate, chatID int64, runID string) (IssueResult, error)
}

// InsightGenerator строит текстовые инсайты по анализу и тональность по
// сообщениям. Ошибки возвращаются явно: выбор запасного текста остаётся
// за вызывающим.
type InsightGenerator interface {
	GenerateInsights(ctx context.Context, analysis ChannelAnalysis, sentiment SentimentBreakdown) (string, error)
	AnalyzeSentiment(ctx context.Context, messages []Message) (SentimentBreakdown, error)
}

// Analyzer строит аналитику канала за период.
type Analyzer interface {
	AnalyzeAt(ctx context.Context, chatID int64, period Period, end time.Time) (ChannelAnalysis, error)
	Sentiment(ctx context.Context, chatID int64, period Period) (SentimentBreakdown, error)
	GrowthStats(ctx context.Context, chatID int64, days int) ([]DayStat, error)
}

// Notifier доставляет уведомления. Ошибки логируются вызывающим и не влияют
// на состояние журнала наград.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, text string) error
	NotifyChannel(ctx context.Context, chatID int64, text string) error
}

// RewardQueue — очередь задач на внеплановый прогон наград.
type RewardQueue interface {
	Enqueue(ctx context.Context, job RewardRunJob) error
	Pop(ctx context.Context) (RewardRunJob, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
