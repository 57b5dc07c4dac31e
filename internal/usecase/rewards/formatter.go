package rewards

import (
	"fmt"
	"strings"

	"channel-sense-bot/internal/domain"
)

var medals = []string{"🥇", "🥈", "🥉"}

func medalFor(rank int) string {
	if rank >= 1 && rank <= len(medals) {
		return medals[rank-1]
	}
	return fmt.Sprintf("%d.", rank)
}

func displayName(user domain.RankedUser) string {
	if user.Username != "" {
		return "@" + user.Username
	}
	if user.FirstName != "" {
		return user.FirstName
	}
	return fmt.Sprintf("id%d", user.UserID)
}

// FormatChannelSummary собирает текст недельной сводки для публикации в чат.
func FormatChannelSummary(report domain.WeeklyReport) string {
	var b strings.Builder
	b.WriteString("🏆 Итоги недели\n\n")
	fmt.Fprintf(&b, "Сообщений: %d, активных участников: %d", report.Summary.TotalMessages, report.Summary.ActiveUsers)
	if report.Summary.GrowthPercent != 0 {
		fmt.Fprintf(&b, " (%+.1f%% к прошлой неделе)", report.Summary.GrowthPercent)
	}
	b.WriteString("\n\n")

	if len(report.Candidates) > 0 {
		b.WriteString("Награды получают:\n")
		for _, c := range report.Candidates {
			fmt.Fprintf(&b, "%s %s — %d баллов\n", medalFor(c.RewardRank), displayName(c.RankedUser), c.Score)
		}
		b.WriteString("\n")
	}

	if report.Insights != "" {
		b.WriteString(report.Insights)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatRewardNotification собирает личное поздравление получателю награды.
func FormatRewardNotification(candidate domain.RewardCandidate, result domain.IssueResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 Поздравляем! Вы заняли %d место по вовлечённости за неделю.\n", candidate.RewardRank)
	fmt.Fprintf(&b, "Ваша оценка: %d баллов (%d сообщений).\n\n", candidate.Score, candidate.MessageCount)
	b.WriteString("Вам выпущена NFT-награда.\n")
	if result.TokenAddress != "" {
		fmt.Fprintf(&b, "Адрес токена: %s\n", result.TokenAddress)
	}
	if result.TxRef != "" {
		fmt.Fprintf(&b, "Транзакция: %s", result.TxRef)
	}
	return strings.TrimRight(b.String(), "\n")
}
