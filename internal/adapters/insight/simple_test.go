package insight

import (
	"context"
	"strings"
	"testing"

	"channel-sense-bot/internal/domain"
)

func TestSimpleSentimentPositive(t *testing.T) {
	s := NewSimple()
	messages := []domain.Message{
		{Text: "Спасибо, отлично получилось"},
		{Text: "Круто, мне нравится"},
		{Text: "Обычное сообщение"},
	}
	breakdown, err := s.AnalyzeSentiment(context.Background(), messages)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if breakdown.Overall != "Positive" {
		t.Fatalf("ожидали Positive, получили %q", breakdown.Overall)
	}
	if breakdown.Positive+breakdown.Neutral+breakdown.Negative != 100 {
		t.Fatalf("проценты должны давать 100")
	}
}

func TestSimpleSentimentEmpty(t *testing.T) {
	s := NewSimple()
	breakdown, err := s.AnalyzeSentiment(context.Background(), nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if breakdown.Overall != "Neutral" || breakdown.Neutral != 100 {
		t.Fatalf("без сообщений тональность нейтральная")
	}
}

func TestSimpleInsights(t *testing.T) {
	s := NewSimple()
	hour := 18
	analysis := domain.ChannelAnalysis{
		TotalMessages: 150,
		ActiveUsers:   12,
		GrowthPercent: 25.0,
		PeakHour:      &hour,
	}
	text, err := s.GenerateInsights(context.Background(), analysis, domain.SentimentBreakdown{Overall: "Positive"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for _, want := range []string{"150", "12", "25.0", "18:00"} {
		if !strings.Contains(text, want) {
			t.Fatalf("в инсайтах нет %q:\n%s", want, text)
		}
	}
}
