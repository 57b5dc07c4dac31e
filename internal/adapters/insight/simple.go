package insight

import (
	"context"
	"fmt"
	"strings"

	"channel-sense-bot/internal/domain"
)

// SimpleInsights реализует доменный интерфейс InsightGenerator эвристикой.
// Используется без ключа OpenAI и в тестах.
type SimpleInsights struct{}

var _ domain.InsightGenerator = (*SimpleInsights)(nil)

// NewSimple создаёт генератор.
func NewSimple() *SimpleInsights {
	return &SimpleInsights{}
}

// GenerateInsights собирает выводы из готовых метрик.
func (s *SimpleInsights) GenerateInsights(_ context.Context, analysis domain.ChannelAnalysis, sentiment domain.SentimentBreakdown) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "За период участники отправили %d сообщений, активных было %d.", analysis.TotalMessages, analysis.ActiveUsers)
	switch {
	case analysis.GrowthPercent > 0:
		fmt.Fprintf(&b, " Активность выросла на %.1f%%.", analysis.GrowthPercent)
	case analysis.GrowthPercent < 0:
		fmt.Fprintf(&b, " Активность снизилась на %.1f%%.", -analysis.GrowthPercent)
	}
	if analysis.PeakHour != nil {
		fmt.Fprintf(&b, " Пик обсуждений приходится на %02d:00 UTC.", *analysis.PeakHour)
	}
	if sentiment.Overall != "" {
		fmt.Fprintf(&b, " Общий тон обсуждений: %s.", strings.ToLower(sentiment.Overall))
	}
	return b.String(), nil
}

var positiveMarkers = []string{
	"спасибо", "отлично", "круто", "супер", "здорово", "нравится", "класс",
	"молодц", "полезно", "люблю", "great", "good", "awesome", "thanks",
	"love", "nice", "cool", "👍", "🔥", "❤", "😂", "🎉",
}

var negativeMarkers = []string{
	"плохо", "ужас", "не работает", "сломал", "бесит", "раздража", "проблем",
	"ошибк", "баг", "жаль", "разочаров", "bad", "terrible", "hate", "broken",
	"bug", "issue", "👎", "😡", "😢",
}

// AnalyzeSentiment оценивает тональность подсчётом маркерных слов.
func (s *SimpleInsights) AnalyzeSentiment(_ context.Context, messages []domain.Message) (domain.SentimentBreakdown, error) {
	if len(messages) == 0 {
		return domain.SentimentBreakdown{Overall: "Neutral", Neutral: 100}, nil
	}

	var positive, negative int
	total := 0
	for _, msg := range messages {
		text := strings.ToLower(msg.Text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		total++
		if containsAny(text, positiveMarkers) {
			positive++
			continue
		}
		if containsAny(text, negativeMarkers) {
			negative++
		}
	}
	if total == 0 {
		return domain.SentimentBreakdown{Overall: "Neutral", Neutral: 100}, nil
	}

	posPct := positive * 100 / total
	negPct := negative * 100 / total
	breakdown := domain.SentimentBreakdown{
		Positive: posPct,
		Negative: negPct,
		Neutral:  100 - posPct - negPct,
	}
	switch {
	case posPct > negPct && posPct >= 25:
		breakdown.Overall = "Positive"
		breakdown.Summary = "В обсуждениях преобладает позитив."
	case negPct > posPct && negPct >= 25:
		breakdown.Overall = "Negative"
		breakdown.Summary = "В обсуждениях заметно недовольство."
	default:
		breakdown.Overall = "Neutral"
		breakdown.Summary = "Тон обсуждений ровный."
	}
	return breakdown, nil
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
