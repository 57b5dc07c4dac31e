package rewards

import "channel-sense-bot/internal/domain"

// SelectCandidates фильтрует рейтинг по допуску к награде: минимум сообщений
// и привязанный кошелёк. Порядок рейтинга сохраняется, берутся первые topN
// подходящих. Функция чистая, чтобы правила допуска проверялись без стораджа.
func SelectCandidates(ranked []domain.RankedUser, minMessages, topN int) []domain.RewardCandidate {
	if topN <= 0 {
		return nil
	}
	candidates := make([]domain.RewardCandidate, 0, topN)
	for _, user := range ranked {
		if user.MessageCount < minMessages {
			continue
		}
		if user.Wallet == nil || user.Wallet.Address == "" {
			continue
		}
		candidates = append(candidates, domain.RewardCandidate{
			RankedUser:   user,
			RewardRank:   len(candidates) + 1,
			WalletLinked: true,
		})
		if len(candidates) == topN {
			break
		}
	}
	return candidates
}
