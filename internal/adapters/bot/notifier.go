package bot

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"channel-sense-bot/internal/adapters/telegram"
	"channel-sense-bot/internal/domain"
	"channel-sense-bot/internal/infra/metrics"
)

// Notifier доставляет уведомления через Bot API.
type Notifier struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var _ domain.Notifier = (*Notifier)(nil)

// NewNotifier создаёт нотификатор.
func NewNotifier(bot *tgbotapi.BotAPI, log zerolog.Logger) *Notifier {
	return &Notifier{bot: bot, log: log}
}

// NotifyUser отправляет личное сообщение. Пользователь должен хотя бы раз
// написать боту, иначе Bot API вернёт ошибку.
func (n *Notifier) NotifyUser(_ context.Context, userID int64, text string) error {
	return n.send(userID, text)
}

// NotifyChannel отправляет сообщение в группу.
func (n *Notifier) NotifyChannel(_ context.Context, chatID int64, text string) error {
	return n.send(chatID, text)
}

func (n *Notifier) send(chatID int64, text string) error {
	for _, part := range telegram.SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			n.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось доставить уведомление")
			return err
		}
	}
	return nil
}
