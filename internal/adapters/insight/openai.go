package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"channel-sense-bot/internal/domain"
	openai "channel-sense-bot/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI реализует генератор инсайтов через OpenAI Chat Completions.
type OpenAI struct {
	client  chatClient
	model   string
	timeout time.Duration
}

var _ domain.InsightGenerator = (*OpenAI)(nil)

// NewOpenAI создаёт провайдер инсайтов.
func NewOpenAI(client chatClient, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout}
}

// GenerateInsights строит короткий текст с выводами по активности канала.
func (o *OpenAI) GenerateInsights(ctx context.Context, analysis domain.ChannelAnalysis, sentiment domain.SentimentBreakdown) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	peak := "нет данных"
	if analysis.PeakHour != nil {
		peak = fmt.Sprintf("%02d:00 UTC", *analysis.PeakHour)
	}
	userPrompt := fmt.Sprintf(`Сделай 2-3 коротких вывода об активности телеграм-сообщества на русском языке.
Пиши обычным текстом без списков и без цифр, которых нет во входных данных.
Данные за период:
- сообщений: %d
- активных участников: %d
- рост к прошлому периоду: %.1f%%
- пик активности: %s
- самый активный день: %s
- тональность: %s (позитив %d%%, нейтрально %d%%, негатив %d%%)`,
		analysis.TotalMessages, analysis.ActiveUsers, analysis.GrowthPercent,
		peak, analysis.MostActiveDay,
		sentiment.Overall, sentiment.Positive, sentiment.Neutral, sentiment.Negative)

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.3,
		MaxTokens:   300,
		Messages: []openai.ChatMessage{
			{
				Role:    openai.RoleSystem,
				Content: "Ты аналитик телеграм-сообществ. Опирайся только на переданные данные.",
			},
			{
				Role:    openai.RoleUser,
				Content: userPrompt,
			},
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: пустой ответ")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai completion: пустой текст")
	}
	return text, nil
}

type sentimentPayload struct {
	Overall  string `json:"overall"`
	Positive int    `json:"positive"`
	Neutral  int    `json:"neutral"`
	Negative int    `json:"negative"`
	Summary  string `json:"summary"`
}

// AnalyzeSentiment классифицирует тональность выборки сообщений.
func (o *OpenAI) AnalyzeSentiment(ctx context.Context, messages []domain.Message) (domain.SentimentBreakdown, error) {
	if len(messages) == 0 {
		return domain.SentimentBreakdown{Overall: "Neutral", Neutral: 100}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var sample strings.Builder
	for i, msg := range messages {
		if i >= 100 {
			break
		}
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		sample.WriteString("- ")
		sample.WriteString(clipRunes(text, 200))
		sample.WriteString("\n")
	}

	userPrompt := fmt.Sprintf(`Оцени тональность сообщений телеграм-чата.
Верни JSON формата {"overall": "Positive|Neutral|Negative", "positive": 0-100, "neutral": 0-100, "negative": 0-100, "summary": "..."} без пояснений.
Проценты в сумме дают 100. Summary — одно предложение на русском.
Сообщения:
%s`, sample.String())

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.2,
		MaxTokens:   200,
		Messages: []openai.ChatMessage{
			{
				Role:    openai.RoleSystem,
				Content: "Ты аналитик тональности. Оценивай только переданные сообщения.",
			},
			{
				Role:    openai.RoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.SentimentBreakdown{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.SentimentBreakdown{}, fmt.Errorf("openai completion: пустой ответ")
	}
	var parsed sentimentPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &parsed); err != nil {
		return domain.SentimentBreakdown{}, fmt.Errorf("распаковка ответа LLM: %w", err)
	}
	return domain.SentimentBreakdown{
		Overall:  normalizeOverall(parsed.Overall),
		Positive: clampPercent(parsed.Positive),
		Neutral:  clampPercent(parsed.Neutral),
		Negative: clampPercent(parsed.Negative),
		Summary:  strings.TrimSpace(parsed.Summary),
	}, nil
}

func normalizeOverall(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "positive":
		return "Positive"
	case "negative":
		return "Negative"
	default:
		return "Neutral"
	}
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
