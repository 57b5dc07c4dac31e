package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"channel-sense-bot/internal/domain"
)

type stubActivity struct {
	metrics        map[int64]domain.ChannelMetrics
	previous       domain.ChannelMetrics
	hourly         []domain.HourCount
	daily          []domain.DayCount
	users          []domain.UserActivity
	recent         []domain.Message
	previousRecent []domain.Message
	baseStart      time.Time
}

func (s *stubActivity) UpsertChannel(context.Context, domain.Channel) error  { return nil }
func (s *stubActivity) UpsertUser(context.Context, domain.UserProfile) error { return nil }
func (s *stubActivity) SaveMessage(context.Context, domain.Message) error    { return nil }
func (s *stubActivity) ActiveChannels(context.Context, time.Time, int) ([]domain.Channel, error) {
	return nil, nil
}
func (s *stubActivity) ChannelMetrics(_ context.Context, _ int64, window domain.Window) (domain.ChannelMetrics, error) {
	if !s.baseStart.IsZero() && window.End.Before(s.baseStart.Add(time.Hour)) {
		return s.previous, nil
	}
	if m, ok := s.metrics[window.Start.Unix()]; ok {
		return m, nil
	}
	return domain.ChannelMetrics{}, nil
}
func (s *stubActivity) UserActivity(context.Context, int64, domain.Window, int) ([]domain.UserActivity, error) {
	return s.users, nil
}
func (s *stubActivity) UserMessageCount(context.Context, int64, int64, domain.Window) (int, error) {
	return 0, nil
}
func (s *stubActivity) UserMessages(context.Context, int64, int64, domain.Window) ([]domain.Message, error) {
	return nil, nil
}
func (s *stubActivity) MessageInteractions(context.Context, int64, int64, domain.Window) (domain.MessageInteractions, error) {
	return domain.MessageInteractions{}, nil
}
func (s *stubActivity) UserActivityHours(context.Context, int64, int64, domain.Window) ([]int, error) {
	return nil, nil
}
func (s *stubActivity) HourlyActivity(context.Context, int64, domain.Window) ([]domain.HourCount, error) {
	return s.hourly, nil
}
func (s *stubActivity) DailyActivity(context.Context, int64, domain.Window) ([]domain.DayCount, error) {
	return s.daily, nil
}
func (s *stubActivity) RecentMessages(_ context.Context, _ int64, window domain.Window, _ int) ([]domain.Message, error) {
	if !s.baseStart.IsZero() && window.End.Before(s.baseStart.Add(time.Hour)) {
		return s.previousRecent, nil
	}
	return s.recent, nil
}

type stubWallets struct {
	wallets map[int64]domain.Wallet
}

func (s *stubWallets) WalletForUser(_ context.Context, userID int64) (domain.Wallet, error) {
	if w, ok := s.wallets[userID]; ok {
		return w, nil
	}
	return domain.Wallet{}, domain.ErrNotFound
}
func (s *stubWallets) UpsertWallet(context.Context, domain.Wallet) error { return nil }

type stubScorer struct {
	scores map[int64]int
}

func (s *stubScorer) Score(_ context.Context, userID, chatID int64, window domain.Window) (domain.EngagementScore, error) {
	return domain.EngagementScore{
		UserID: userID,
		ChatID: chatID,
		Window: window,
		Score:  s.scores[userID],
	}, nil
}

type stubInsights struct {
	sentiment domain.SentimentBreakdown
	previous  domain.SentimentBreakdown
	calls     int
	err       error
}

func (s *stubInsights) GenerateInsights(context.Context, domain.ChannelAnalysis, domain.SentimentBreakdown) (string, error) {
	return "", nil
}
func (s *stubInsights) AnalyzeSentiment(context.Context, []domain.Message) (domain.SentimentBreakdown, error) {
	s.calls++
	if s.err != nil {
		return domain.SentimentBreakdown{}, s.err
	}
	if s.calls > 1 {
		return s.previous, nil
	}
	return s.sentiment, nil
}

func newTestService(activity *stubActivity, wallets *stubWallets, scorer *stubScorer, insights *stubInsights) *Service {
	if wallets == nil {
		wallets = &stubWallets{}
	}
	if scorer == nil {
		scorer = &stubScorer{}
	}
	if insights == nil {
		insights = &stubInsights{}
	}
	return NewService(activity, wallets, scorer, insights, nil, 10, zerolog.Nop())
}

func TestAnalyzeAtBuildsAnalysis(t *testing.T) {
	end := time.Date(2024, 5, 13, 12, 0, 0, 0, time.UTC)
	start := end.Add(-168 * time.Hour)
	activity := &stubActivity{
		metrics: map[int64]domain.ChannelMetrics{
			start.Unix(): {TotalMessages: 150, ActiveUsers: 4},
		},
		previous:  domain.ChannelMetrics{TotalMessages: 100, ActiveUsers: 5},
		baseStart: start,
		hourly:    []domain.HourCount{{Hour: 9, Count: 40}, {Hour: 18, Count: 60}},
		daily:     []domain.DayCount{{Day: "Monday", Count: 50}, {Day: "Friday", Count: 30}},
	}
	service := newTestService(activity, nil, nil, nil)

	analysis, err := service.AnalyzeAt(context.Background(), 100, domain.PeriodWeek, end)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if analysis.TotalMessages != 150 || analysis.ActiveUsers != 4 {
		t.Fatalf("неверные итоги: %d сообщений, %d пользователей", analysis.TotalMessages, analysis.ActiveUsers)
	}
	if analysis.GrowthPercent != 50.0 {
		t.Fatalf("ожидали рост 50%%, получили %.1f", analysis.GrowthPercent)
	}
	if analysis.AvgMessagesPerUser != 37.5 {
		t.Fatalf("ожидали 37.5 сообщений на пользователя, получили %.1f", analysis.AvgMessagesPerUser)
	}
	if analysis.PeakHour == nil || *analysis.PeakHour != 18 {
		t.Fatalf("ожидали пиковый час 18, получили %v", analysis.PeakHour)
	}
	if analysis.MostActiveDay != "Monday" {
		t.Fatalf("ожидали Monday, получили %q", analysis.MostActiveDay)
	}
}

func TestAnalyzeAtEmptyChannel(t *testing.T) {
	end := time.Date(2024, 5, 13, 12, 0, 0, 0, time.UTC)
	activity := &stubActivity{}
	service := newTestService(activity, nil, nil, nil)

	analysis, err := service.AnalyzeAt(context.Background(), 100, domain.PeriodDay, end)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if analysis.TotalMessages != 0 || analysis.ActiveUsers != 0 {
		t.Fatalf("пустой канал должен давать нули")
	}
	if analysis.AvgMessagesPerUser != 0 {
		t.Fatalf("среднее без пользователей должно быть 0")
	}
	if analysis.GrowthPercent != 0 {
		t.Fatalf("рост без предыдущего периода должен быть 0")
	}
	if analysis.PeakHour != nil {
		t.Fatalf("пиковый час без сообщений должен отсутствовать")
	}
}

func TestGrowthPercent(t *testing.T) {
	cases := []struct {
		current, previous int
		want              float64
	}{
		{150, 100, 50.0},
		{80, 100, -20.0},
		{100, 100, 0},
		{10, 0, 0},
		{0, 0, 0},
		{100, 3, 3233.3},
	}
	for _, c := range cases {
		if got := GrowthPercent(c.current, c.previous); got != c.want {
			t.Fatalf("рост(%d, %d): ожидали %.1f, получили %.1f", c.current, c.previous, c.want, got)
		}
	}
}

func TestTopUsersOrderingAndTieBreaks(t *testing.T) {
	activity := &stubActivity{
		users: []domain.UserActivity{
			{UserID: 3, MessageCount: 5},
			{UserID: 1, MessageCount: 7},
			{UserID: 2, MessageCount: 7},
			{UserID: 4, MessageCount: 12},
		},
	}
	scorer := &stubScorer{scores: map[int64]int{1: 70, 2: 70, 3: 70, 4: 120}}
	wallets := &stubWallets{wallets: map[int64]domain.Wallet{2: {UserID: 2, Address: "EQxyz"}}}
	service := newTestService(activity, wallets, scorer, nil)

	window := domain.Window{
		Start: time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC),
	}
	ranked, err := service.TopUsersWindow(context.Background(), 100, window, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	wantOrder := []int64{4, 1, 2, 3}
	for i, want := range wantOrder {
		if ranked[i].UserID != want {
			t.Fatalf("позиция %d: ожидали пользователя %d, получили %d", i+1, want, ranked[i].UserID)
		}
		if ranked[i].Rank != i+1 {
			t.Fatalf("ранг должен быть %d, получили %d", i+1, ranked[i].Rank)
		}
	}
	if ranked[2].Wallet == nil || ranked[2].Wallet.Address != "EQxyz" {
		t.Fatalf("кошелёк пользователя 2 должен быть привязан")
	}
	if ranked[0].Wallet != nil {
		t.Fatalf("пользователь без кошелька должен остаться без привязки")
	}
}

func TestSentimentTrend(t *testing.T) {
	end := time.Now().UTC().Truncate(time.Hour)
	start := end.Add(-168 * time.Hour)
	activity := &stubActivity{
		recent:         []domain.Message{{Text: "отличный релиз"}},
		previousRecent: []domain.Message{{Text: "посмотрим"}},
		baseStart:      start,
	}
	insights := &stubInsights{
		sentiment: domain.SentimentBreakdown{Overall: "Positive", Positive: 70, Neutral: 20, Negative: 10},
		previous:  domain.SentimentBreakdown{Overall: "Neutral", Positive: 40, Neutral: 40, Negative: 20},
	}
	service := newTestService(activity, nil, nil, insights)

	breakdown, err := service.Sentiment(context.Background(), 100, domain.PeriodWeek)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if breakdown.Trend != "Improving" {
		t.Fatalf("ожидали Improving, получили %q", breakdown.Trend)
	}
}

func TestSentimentEmptyPeriod(t *testing.T) {
	service := newTestService(&stubActivity{}, nil, nil, nil)

	breakdown, err := service.Sentiment(context.Background(), 100, domain.PeriodDay)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if breakdown.Overall != "Neutral" || breakdown.Neutral != 100 {
		t.Fatalf("пустой период должен давать нейтральную тональность")
	}
}

func TestExtractTrendingTopics(t *testing.T) {
	messages := []domain.Message{
		{Text: "Запустили новый релиз, релиз вышел стабильным"},
		{Text: "релиз попробовал, баги есть"},
		{Text: "баги уже чинят @admin https://example.com"},
		{Text: "ок"},
	}
	topics := ExtractTrendingTopics(messages, 5)
	if len(topics) == 0 {
		t.Fatal("ожидали хотя бы одну тему")
	}
	if topics[0] != "релиз" {
		t.Fatalf("ожидали тему 'релиз', получили %q", topics[0])
	}
	for _, topic := range topics {
		if topic == "admin" || topic == "example" {
			t.Fatalf("упоминания и ссылки не должны попадать в темы: %q", topic)
		}
	}
}

func TestBuildRecommendations(t *testing.T) {
	hour := 18
	analysis := domain.ChannelAnalysis{
		GrowthPercent:      -35.0,
		ActiveUsers:        20,
		AvgMessagesPerUser: 1.5,
		PeakHour:           &hour,
		TopUsers: []domain.RankedUser{
			{EngagementScore: domain.EngagementScore{UserID: 1}},
			{EngagementScore: domain.EngagementScore{UserID: 2}},
		},
	}
	sentiment := domain.SentimentBreakdown{Negative: 45}

	recs := BuildRecommendations(analysis, sentiment)
	types := make(map[string]bool)
	for _, rec := range recs {
		types[rec.Type] = true
	}
	for _, want := range []string{"activity", "engagement", "timing", "rewards", "sentiment"} {
		if !types[want] {
			t.Fatalf("ожидали рекомендацию типа %q", want)
		}
	}

	quiet := BuildRecommendations(domain.ChannelAnalysis{}, domain.SentimentBreakdown{})
	if len(quiet) != 1 || quiet[0].Type != "general" {
		t.Fatalf("для спокойного канала ожидали одну общую рекомендацию")
	}
}
