package scoring

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"channel-sense-bot/internal/domain"
	"channel-sense-bot/internal/infra/metrics"
)

// ErrBadIdentifier возвращается при пустом идентификаторе пользователя или канала.
var ErrBadIdentifier = errors.New("некорректный идентификатор")

// ErrBadWindow возвращается, если начало окна не раньше конца.
var ErrBadWindow = errors.New("некорректное окно анализа")

// Веса сигналов вовлечённости. Целочисленная арифметика, чтобы ранжирование
// наград не зависело от накопления ошибок с плавающей точкой.
const (
	pointsPerMessage       = 10
	pointsPerReplySent     = 5
	pointsPerLongMessage   = 3
	pointsPerForward       = 2
	pointsPerReplyReceived = 8
	pointsPerReaction      = 2
	consistencyBonus       = 15

	longMessageRunes    = 100
	consistencyMinHours = 5
)

// Service считает оценку вовлечённости пользователя по данным хранилища.
type Service struct {
	activity domain.ActivityRepo
	log      zerolog.Logger
}

var _ domain.Scorer = (*Service)(nil)

// NewService создаёт скорер.
func NewService(activity domain.ActivityRepo, log zerolog.Logger) *Service {
	return &Service{activity: activity, log: log}
}

// Score считает оценку пользователя в канале за окно. Если запрос какого-либо
// сигнала падает, оценка деградирует до базовой (messageCount × 10) вместо
// ошибки: частичные данные лучше, чем сорванный анализ канала.
func (s *Service) Score(ctx context.Context, userID, chatID int64, window domain.Window) (domain.EngagementScore, error) {
	if userID <= 0 || chatID <= 0 {
		return domain.EngagementScore{}, ErrBadIdentifier
	}
	if !window.Valid() {
		return domain.EngagementScore{}, ErrBadWindow
	}

	count, err := s.activity.UserMessageCount(ctx, userID, chatID, window)
	if err != nil {
		return domain.EngagementScore{}, fmt.Errorf("подсчёт сообщений: %w", err)
	}

	base := count * pointsPerMessage
	score := domain.EngagementScore{
		UserID:     userID,
		ChatID:     chatID,
		Window:     window,
		Score:      base,
		Components: map[string]int{domain.SignalBase: base},
	}

	extras, err := s.signalComponents(ctx, userID, chatID, window)
	if err != nil {
		s.log.Warn().Err(err).Int64("user", userID).Int64("chat", chatID).Msg("скоринг деградировал до базового сигнала")
		metrics.DegradedScores.Inc()
		return score, nil
	}

	for _, name := range []string{
		domain.SignalRepliesSent,
		domain.SignalLongMessages,
		domain.SignalForwards,
		domain.SignalRepliesReceived,
		domain.SignalReactions,
		domain.SignalConsistency,
	} {
		if pts := extras[name]; pts > 0 {
			score.Components[name] = pts
			score.Score += pts
		}
	}
	return score, nil
}

func (s *Service) signalComponents(ctx context.Context, userID, chatID int64, window domain.Window) (map[string]int, error) {
	extras := make(map[string]int)

	messages, err := s.activity.UserMessages(ctx, userID, chatID, window)
	if err != nil {
		return nil, fmt.Errorf("сообщения пользователя: %w", err)
	}
	for _, msg := range messages {
		if msg.ReplyToMsgID != nil {
			extras[domain.SignalRepliesSent] += pointsPerReplySent
		}
		if utf8.RuneCountInString(msg.Text) > longMessageRunes {
			extras[domain.SignalLongMessages] += pointsPerLongMessage
		}
		if msg.ForwardFromChatID != nil {
			extras[domain.SignalForwards] += pointsPerForward
		}
	}

	interactions, err := s.activity.MessageInteractions(ctx, userID, chatID, window)
	if err != nil {
		return nil, fmt.Errorf("отклики на сообщения: %w", err)
	}
	extras[domain.SignalRepliesReceived] = interactions.Replies * pointsPerReplyReceived
	extras[domain.SignalReactions] = interactions.Reactions * pointsPerReaction

	hours, err := s.activity.UserActivityHours(ctx, userID, chatID, window)
	if err != nil {
		return nil, fmt.Errorf("часы активности: %w", err)
	}
	if len(hours) > consistencyMinHours {
		extras[domain.SignalConsistency] = consistencyBonus
	}

	return extras, nil
}
