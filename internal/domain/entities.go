package domain

import "time"

// Channel описывает группу или канал Telegram, где бот собирает активность.
type Channel struct {
	ChatID    int64
	Title     string
	Username  string
	CreatedAt time.Time
}

// UserProfile содержит данные автора сообщения из Telegram.
type UserProfile struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// Message представляет одно сообщение пользователя в канале.
// Запись неизменяема: ядро аналитики читает сообщения, но не правит их.
type Message struct {
	ID                int64
	ChatID            int64
	TGMsgID           int64
	UserID            int64
	Text              string
	SentAt            time.Time
	ReplyToMsgID      *int64
	ForwardFromChatID *int64
	CreatedAt         time.Time
}

// Window — полуоткрытый интервал [Start, End), по которому агрегируется активность.
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid проверяет, что окно непустое.
func (w Window) Valid() bool {
	return w.Start.Before(w.End)
}

// Period задаёт длину окна анализа.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Hours возвращает длину окна в часах. Неизвестный период трактуется как неделя.
func (p Period) Hours() int {
	switch p {
	case PeriodDay:
		return 24
	case PeriodMonth:
		return 720
	default:
		return 168
	}
}

// Имена сигналов в разбивке EngagementScore.Components.
const (
	SignalBase            = "base"
	SignalRepliesSent     = "replies_sent"
	SignalLongMessages    = "long_messages"
	SignalForwards        = "forwards"
	SignalRepliesReceived = "replies_received"
	SignalReactions       = "reactions"
	SignalConsistency     = "consistency"
)

// EngagementScore — аддитивная целочисленная оценка вовлечённости пользователя
// в одном канале за одно окно, с разбивкой по сигналам для аудита.
type EngagementScore struct {
	UserID     int64
	ChatID     int64
	Window     Window
	Score      int
	Components map[string]int
}

// UserActivity — строка активности пользователя из хранилища.
type UserActivity struct {
	UserID       int64
	Username     string
	FirstName    string
	MessageCount int
}

// MessageInteractions — отклики на сообщения пользователя (фактор влияния).
type MessageInteractions struct {
	Replies   int
	Reactions int
}

// RankedUser — оценённый пользователь с позицией в рейтинге канала.
type RankedUser struct {
	EngagementScore
	Rank         int
	MessageCount int
	Username     string
	FirstName    string
	Wallet       *Wallet
}

// Wallet — привязанный кошелёк для получения наград.
type Wallet struct {
	UserID      int64
	Address     string
	Chain       string
	ConnectedAt time.Time
}

// RewardCandidate — пользователь, прошедший фильтр допуска к награде.
type RewardCandidate struct {
	RankedUser
	RewardRank   int
	WalletLinked bool
}

// IssueResult — результат успешного выпуска награды внешним коллаборатором.
type IssueResult struct {
	TokenAddress string
	TxRef        string
}

// RewardOutcome — запись о попытке выдачи награды. Добавляется в журнал
// один раз и больше не изменяется.
type RewardOutcome struct {
	RunID         string
	UserID        int64
	ChatID        int64
	Succeeded     bool
	TokenAddress  *string
	TxRef         *string
	FailureReason *string
	IssuedAt      time.Time
}

// ChannelMetrics — базовые метрики канала за окно.
type ChannelMetrics struct {
	TotalMessages int
	ActiveUsers   int
}

// HourCount — количество сообщений за час суток.
type HourCount struct {
	Hour  int
	Count int
}

// DayCount — количество сообщений за день недели.
type DayCount struct {
	Day   string
	Count int
}

// DayStat — суточная точка ряда роста канала.
type DayStat struct {
	Date        time.Time
	Messages    int
	ActiveUsers int
}

// ChannelAnalysis — итог анализа канала за период.
type ChannelAnalysis struct {
	ChatID             int64
	Period             Period
	Window             Window
	TotalMessages      int
	ActiveUsers        int
	AvgMessagesPerUser float64
	GrowthPercent      float64
	PeakHour           *int
	MostActiveDay      string
	TopUsers           []RankedUser
}

// SentimentBreakdown — распределение тональности сообщений канала.
type SentimentBreakdown struct {
	Overall        string
	Positive       int
	Neutral        int
	Negative       int
	Trend          string
	TrendingTopics []string
	Summary        string
}

// Recommendation — рекомендация администратору канала по итогам анализа.
type Recommendation struct {
	Type        string
	Priority    string
	Title       string
	Description string
	Action      string
}

// ReportSummary — сводка недельного отчёта.
type ReportSummary struct {
	TotalMessages int
	ActiveUsers   int
	GrowthPercent float64
	Sentiment     string
}

// WeeklyReport — неизменяемый снимок одного прогона наград по каналу.
type WeeklyReport struct {
	RunID           string
	ChatID          int64
	GeneratedAt     time.Time
	Summary         ReportSummary
	TopUsers        []RankedUser
	Candidates      []RewardCandidate
	Outcomes        []RewardOutcome
	Sentiment       SentimentBreakdown
	Insights        string
	Recommendations []Recommendation
	GrowthSeries    []DayStat
}

// RewardRunJob — задача на внеплановый прогон наград.
type RewardRunJob struct {
	JobID       string    `json:"job_id"`
	RequestedBy int64     `json:"requested_by"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}
