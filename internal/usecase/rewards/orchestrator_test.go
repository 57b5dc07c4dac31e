package rewards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"channel-sense-bot/internal/domain"
)

type runActivity struct {
	channels    []domain.Channel
	channelsErr error
}

func (s *runActivity) UpsertChannel(context.Context, domain.Channel) error  { return nil }
func (s *runActivity) UpsertUser(context.Context, domain.UserProfile) error { return nil }
func (s *runActivity) SaveMessage(context.Context, domain.Message) error    { return nil }
func (s *runActivity) ActiveChannels(context.Context, time.Time, int) ([]domain.Channel, error) {
	return s.channels, s.channelsErr
}
func (s *runActivity) ChannelMetrics(context.Context, int64, domain.Window) (domain.ChannelMetrics, error) {
	return domain.ChannelMetrics{}, nil
}
func (s *runActivity) UserActivity(context.Context, int64, domain.Window, int) ([]domain.UserActivity, error) {
	return nil, nil
}
func (s *runActivity) UserMessageCount(context.Context, int64, int64, domain.Window) (int, error) {
	return 0, nil
}
func (s *runActivity) UserMessages(context.Context, int64, int64, domain.Window) ([]domain.Message, error) {
	return nil, nil
}
func (s *runActivity) MessageInteractions(context.Context, int64, int64, domain.Window) (domain.MessageInteractions, error) {
	return domain.MessageInteractions{}, nil
}
func (s *runActivity) UserActivityHours(context.Context, int64, int64, domain.Window) ([]int, error) {
	return nil, nil
}
func (s *runActivity) HourlyActivity(context.Context, int64, domain.Window) ([]domain.HourCount, error) {
	return nil, nil
}
func (s *runActivity) DailyActivity(context.Context, int64, domain.Window) ([]domain.DayCount, error) {
	return nil, nil
}
func (s *runActivity) RecentMessages(context.Context, int64, domain.Window, int) ([]domain.Message, error) {
	return nil, nil
}

type runAnalyzer struct {
	analyses map[int64]domain.ChannelAnalysis
	failFor  map[int64]error
}

func (s *runAnalyzer) AnalyzeAt(_ context.Context, chatID int64, period domain.Period, _ time.Time) (domain.ChannelAnalysis, error) {
	if err := s.failFor[chatID]; err != nil {
		return domain.ChannelAnalysis{}, err
	}
	a := s.analyses[chatID]
	a.ChatID = chatID
	a.Period = period
	return a, nil
}
func (s *runAnalyzer) Sentiment(context.Context, int64, domain.Period) (domain.SentimentBreakdown, error) {
	return domain.SentimentBreakdown{Overall: "Positive", Positive: 60, Neutral: 30, Negative: 10, Trend: "Stable"}, nil
}
func (s *runAnalyzer) GrowthStats(context.Context, int64, int) ([]domain.DayStat, error) {
	return nil, nil
}

type runLedger struct {
	events   *[]string
	outcomes []domain.RewardOutcome
	failFor  map[int64]error
}

func (s *runLedger) AppendOutcome(_ context.Context, outcome domain.RewardOutcome) error {
	if err := s.failFor[outcome.UserID]; err != nil {
		return err
	}
	*s.events = append(*s.events, fmt.Sprintf("ledger:%d", outcome.UserID))
	s.outcomes = append(s.outcomes, outcome)
	return nil
}
func (s *runLedger) UserOutcomes(context.Context, int64, int) ([]domain.RewardOutcome, error) {
	return nil, nil
}

type runReports struct {
	reports []domain.WeeklyReport
	err     error
}

func (s *runReports) AppendReport(_ context.Context, report domain.WeeklyReport) error {
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, report)
	return nil
}
func (s *runReports) ListReports(context.Context, int64, int) ([]domain.WeeklyReport, error) {
	return nil, nil
}

type runIssuer struct {
	failFor map[int64]error
	issued  []int64
}

func (s *runIssuer) IssueReward(_ context.Context, candidate domain.RewardCandidate, _ int64, runID string) (domain.IssueResult, error) {
	if err := s.failFor[candidate.UserID]; err != nil {
		return domain.IssueResult{}, err
	}
	s.issued = append(s.issued, candidate.UserID)
	return domain.IssueResult{
		TokenAddress: fmt.Sprintf("EQtoken%d", candidate.UserID),
		TxRef:        "tx-" + runID,
	}, nil
}

type runInsights struct{}

func (runInsights) GenerateInsights(context.Context, domain.ChannelAnalysis, domain.SentimentBreakdown) (string, error) {
	return "Неделя прошла активно.", nil
}
func (runInsights) AnalyzeSentiment(context.Context, []domain.Message) (domain.SentimentBreakdown, error) {
	return domain.SentimentBreakdown{}, nil
}

type runNotifier struct {
	events       *[]string
	userTexts    map[int64]string
	channelTexts map[int64]string
}

func (s *runNotifier) NotifyUser(_ context.Context, userID int64, text string) error {
	*s.events = append(*s.events, fmt.Sprintf("notify:%d", userID))
	if s.userTexts == nil {
		s.userTexts = map[int64]string{}
	}
	s.userTexts[userID] = text
	return nil
}
func (s *runNotifier) NotifyChannel(_ context.Context, chatID int64, text string) error {
	*s.events = append(*s.events, fmt.Sprintf("channel:%d", chatID))
	if s.channelTexts == nil {
		s.channelTexts = map[int64]string{}
	}
	s.channelTexts[chatID] = text
	return nil
}

func eligibleUser(id int64, score, count int) domain.RankedUser {
	return domain.RankedUser{
		EngagementScore: domain.EngagementScore{UserID: id, Score: score},
		MessageCount:    count,
		Wallet:          &domain.Wallet{UserID: id, Address: fmt.Sprintf("EQ%d", id), Chain: "ton"},
	}
}

type orchestratorParts struct {
	activity *runActivity
	analyzer *runAnalyzer
	ledger   *runLedger
	reports  *runReports
	issuer   *runIssuer
	notifier *runNotifier
	events   []string
}

func newTestOrchestrator(t *testing.T, parts *orchestratorParts) *Orchestrator {
	t.Helper()
	parts.ledger.events = &parts.events
	parts.notifier.events = &parts.events
	o, err := NewOrchestrator(
		parts.activity, parts.analyzer, parts.ledger, parts.reports,
		parts.issuer, runInsights{}, parts.notifier,
		Config{MinMessages: 10, TopN: 3, ActiveChannelMinMessages: 10},
		zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("не ожидали ошибку конструктора: %v", err)
	}
	return o
}

func TestRunSkipsFailedChannel(t *testing.T) {
	parts := &orchestratorParts{
		activity: &runActivity{channels: []domain.Channel{{ChatID: 100}, {ChatID: 200}}},
		analyzer: &runAnalyzer{
			analyses: map[int64]domain.ChannelAnalysis{
				200: {TopUsers: []domain.RankedUser{eligibleUser(1, 150, 15)}},
			},
			failFor: map[int64]error{100: errors.New("таймаут хранилища")},
		},
		ledger:   &runLedger{},
		reports:  &runReports{},
		issuer:   &runIssuer{},
		notifier: &runNotifier{},
	}
	o := newTestOrchestrator(t, parts)

	stats, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("ошибка канала не должна срывать прогон: %v", err)
	}
	if stats.Channels != 2 || stats.ChannelsFailed != 1 {
		t.Fatalf("ожидали 2 канала и 1 сбой, получили %d/%d", stats.Channels, stats.ChannelsFailed)
	}
	if stats.Issued != 1 {
		t.Fatalf("ожидали 1 выданную награду, получили %d", stats.Issued)
	}
	if len(parts.reports.reports) != 1 || parts.reports.reports[0].ChatID != 200 {
		t.Fatalf("отчёт должен быть только по уцелевшему каналу")
	}
}

func TestRunLedgerBeforeNotify(t *testing.T) {
	parts := &orchestratorParts{
		activity: &runActivity{channels: []domain.Channel{{ChatID: 100}}},
		analyzer: &runAnalyzer{
			analyses: map[int64]domain.ChannelAnalysis{
				100: {TopUsers: []domain.RankedUser{
					eligibleUser(1, 200, 20),
					eligibleUser(2, 150, 15),
				}},
			},
		},
		ledger:   &runLedger{},
		reports:  &runReports{},
		issuer:   &runIssuer{},
		notifier: &runNotifier{},
	}
	o := newTestOrchestrator(t, parts)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	// Для каждого получателя запись в журнал строго раньше уведомления.
	position := func(event string) int {
		for i, e := range parts.events {
			if e == event {
				return i
			}
		}
		t.Fatalf("событие %q не найдено: %v", event, parts.events)
		return -1
	}
	for _, id := range []int64{1, 2} {
		if position(fmt.Sprintf("ledger:%d", id)) > position(fmt.Sprintf("notify:%d", id)) {
			t.Fatalf("уведомление пользователя %d раньше записи в журнал: %v", id, parts.events)
		}
	}
	if !strings.Contains(parts.notifier.userTexts[1], "1 место") {
		t.Fatalf("в поздравлении должно быть место: %q", parts.notifier.userTexts[1])
	}
}

func TestRunNoNotifyWhenLedgerFails(t *testing.T) {
	parts := &orchestratorParts{
		activity: &runActivity{channels: []domain.Channel{{ChatID: 100}}},
		analyzer: &runAnalyzer{
			analyses: map[int64]domain.ChannelAnalysis{
				100: {TopUsers: []domain.RankedUser{eligibleUser(1, 200, 20)}},
			},
		},
		ledger:   &runLedger{failFor: map[int64]error{1: errors.New("журнал недоступен")}},
		reports:  &runReports{},
		issuer:   &runIssuer{},
		notifier: &runNotifier{},
	}
	o := newTestOrchestrator(t, parts)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for _, event := range parts.events {
		if event == "notify:1" {
			t.Fatalf("без записи в журнал уведомления быть не должно: %v", parts.events)
		}
	}
}

func TestRunIssueFailuresAreIndependent(t *testing.T) {
	parts := &orchestratorParts{
		activity: &runActivity{channels: []domain.Channel{{ChatID: 100}}},
		analyzer: &runAnalyzer{
			analyses: map[int64]domain.ChannelAnalysis{
				100: {TopUsers: []domain.RankedUser{
					eligibleUser(1, 300, 30),
					eligibleUser(2, 200, 20),
					eligibleUser(3, 100, 10),
				}},
			},
		},
		ledger:   &runLedger{},
		reports:  &runReports{},
		issuer:   &runIssuer{failFor: map[int64]error{2: errors.New("минт не прошёл")}},
		notifier: &runNotifier{},
	}
	o := newTestOrchestrator(t, parts)

	stats, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.Issued != 2 || stats.Failed != 1 {
		t.Fatalf("ожидали 2 выданных и 1 сбой, получили %d/%d", stats.Issued, stats.Failed)
	}
	if len(parts.ledger.outcomes) != 3 {
		t.Fatalf("каждая попытка должна попасть в журнал, записей %d", len(parts.ledger.outcomes))
	}
	for _, outcome := range parts.ledger.outcomes {
		if outcome.UserID == 2 {
			if outcome.Succeeded || outcome.FailureReason == nil {
				t.Fatalf("неудачная попытка должна хранить причину")
			}
		} else if !outcome.Succeeded {
			t.Fatalf("пользователь %d должен получить награду", outcome.UserID)
		}
	}
	if _, notified := parts.notifier.userTexts[2]; notified {
		t.Fatalf("пользователь со сбоем выпуска не должен получать поздравление")
	}
}

func TestRunZeroCandidatesStillReports(t *testing.T) {
	parts := &orchestratorParts{
		activity: &runActivity{channels: []domain.Channel{{ChatID: 100}}},
		analyzer: &runAnalyzer{
			analyses: map[int64]domain.ChannelAnalysis{
				// Активность есть, но никто не привязал кошелёк.
				100: {TotalMessages: 50, ActiveUsers: 5, TopUsers: []domain.RankedUser{
					{EngagementScore: domain.EngagementScore{UserID: 1, Score: 100}, MessageCount: 12},
				}},
			},
		},
		ledger:   &runLedger{},
		reports:  &runReports{},
		issuer:   &runIssuer{},
		notifier: &runNotifier{},
	}
	o := newTestOrchestrator(t, parts)

	stats, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.Candidates != 0 || stats.Issued != 0 {
		t.Fatalf("кандидатов быть не должно")
	}
	if len(parts.reports.reports) != 1 {
		t.Fatalf("отчёт должен сохраняться и без кандидатов")
	}
	if len(parts.issuer.issued) != 0 {
		t.Fatalf("выпуск наград без кандидатов не выполняется")
	}
	if len(parts.events) != 0 {
		t.Fatalf("сводка в чат без кандидатов не отправляется: %v", parts.events)
	}
}

func TestNewOrchestratorValidatesDependencies(t *testing.T) {
	_, err := NewOrchestrator(nil, nil, nil, nil, nil, nil, nil, Config{}, zerolog.Nop())
	if !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("ожидали ErrMissingDependency, получили %v", err)
	}
}
