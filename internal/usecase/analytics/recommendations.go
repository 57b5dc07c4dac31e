package analytics

import (
	"fmt"

	"channel-sense-bot/internal/domain"
)

// BuildRecommendations составляет советы администратору по итогам анализа.
// Правила эвристические и детерминированные, порядок стабильный.
func BuildRecommendations(analysis domain.ChannelAnalysis, sentiment domain.SentimentBreakdown) []domain.Recommendation {
	var recs []domain.Recommendation

	if analysis.GrowthPercent < -20 {
		recs = append(recs, domain.Recommendation{
			Type:        "activity",
			Priority:    "high",
			Title:       "Активность резко падает",
			Description: fmt.Sprintf("Число сообщений снизилось на %.1f%% к прошлому периоду.", -analysis.GrowthPercent),
			Action:      "Запустите обсуждение или опрос, чтобы вернуть участников.",
		})
	} else if analysis.GrowthPercent > 20 {
		recs = append(recs, domain.Recommendation{
			Type:        "activity",
			Priority:    "low",
			Title:       "Активность растёт",
			Description: fmt.Sprintf("Число сообщений выросло на %.1f%% к прошлому периоду.", analysis.GrowthPercent),
			Action:      "Закрепите работающий формат контента.",
		})
	}

	if analysis.ActiveUsers > 0 && analysis.AvgMessagesPerUser < 3 {
		recs = append(recs, domain.Recommendation{
			Type:        "engagement",
			Priority:    "medium",
			Title:       "Низкая вовлечённость участников",
			Description: fmt.Sprintf("В среднем %.1f сообщения на пользователя.", analysis.AvgMessagesPerUser),
			Action:      "Задавайте открытые вопросы и отвечайте на сообщения участников.",
		})
	}

	if analysis.PeakHour != nil {
		recs = append(recs, domain.Recommendation{
			Type:        "timing",
			Priority:    "low",
			Title:       "Лучшее время для публикаций",
			Description: fmt.Sprintf("Пик активности приходится на %02d:00 UTC.", *analysis.PeakHour),
			Action:      fmt.Sprintf("Публикуйте важные анонсы около %02d:00 UTC.", *analysis.PeakHour),
		})
	}

	if len(analysis.TopUsers) > 0 {
		linked := 0
		for _, u := range analysis.TopUsers {
			if u.Wallet != nil {
				linked++
			}
		}
		if linked*2 < len(analysis.TopUsers) {
			recs = append(recs, domain.Recommendation{
				Type:        "rewards",
				Priority:    "medium",
				Title:       "Мало привязанных кошельков",
				Description: fmt.Sprintf("Кошелёк привязали %d из %d активных участников.", linked, len(analysis.TopUsers)),
				Action:      "Напомните участникам про команду /wallet, иначе награды пройдут мимо них.",
			})
		}
	}

	if sentiment.Negative > 30 {
		recs = append(recs, domain.Recommendation{
			Type:        "sentiment",
			Priority:    "high",
			Title:       "Много негатива в обсуждениях",
			Description: fmt.Sprintf("Доля негативных сообщений %d%%.", sentiment.Negative),
			Action:      "Разберите источники недовольства и ответьте публично.",
		})
	}

	if len(recs) == 0 {
		recs = append(recs, domain.Recommendation{
			Type:        "general",
			Priority:    "low",
			Title:       "Канал в хорошей форме",
			Description: "Заметных проблем за период не обнаружено.",
			Action:      "Продолжайте в том же духе.",
		})
	}
	return recs
}
