package rewards

import (
	"testing"

	"channel-sense-bot/internal/domain"
)

func rankedUser(id int64, rank, score, count int, wallet string) domain.RankedUser {
	u := domain.RankedUser{
		EngagementScore: domain.EngagementScore{UserID: id, Score: score},
		Rank:            rank,
		MessageCount:    count,
	}
	if wallet != "" {
		u.Wallet = &domain.Wallet{UserID: id, Address: wallet, Chain: "ton"}
	}
	return u
}

func TestSelectCandidatesFiltersAndRanks(t *testing.T) {
	ranked := []domain.RankedUser{
		rankedUser(1, 1, 200, 20, "EQ1"),
		rankedUser(2, 2, 150, 5, "EQ2"),   // мало сообщений
		rankedUser(3, 3, 120, 15, ""),     // без кошелька
		rankedUser(4, 4, 100, 12, "EQ4"),
		rankedUser(5, 5, 90, 11, "EQ5"),
		rankedUser(6, 6, 80, 10, "EQ6"),
	}

	candidates := SelectCandidates(ranked, 10, 3)
	if len(candidates) != 3 {
		t.Fatalf("ожидали 3 кандидатов, получили %d", len(candidates))
	}
	wantIDs := []int64{1, 4, 5}
	for i, want := range wantIDs {
		if candidates[i].UserID != want {
			t.Fatalf("позиция %d: ожидали пользователя %d, получили %d", i+1, want, candidates[i].UserID)
		}
		if candidates[i].RewardRank != i+1 {
			t.Fatalf("ранг награды должен быть %d, получили %d", i+1, candidates[i].RewardRank)
		}
		if !candidates[i].WalletLinked {
			t.Fatalf("кандидат %d должен иметь привязанный кошелёк", want)
		}
	}
}

func TestSelectCandidatesThreshold(t *testing.T) {
	// Ровно minMessages сообщений достаточно для допуска.
	ranked := []domain.RankedUser{rankedUser(1, 1, 100, 10, "EQ1")}
	if got := SelectCandidates(ranked, 10, 3); len(got) != 1 {
		t.Fatalf("пользователь с ровно 10 сообщениями должен пройти фильтр")
	}
	ranked = []domain.RankedUser{rankedUser(1, 1, 100, 9, "EQ1")}
	if got := SelectCandidates(ranked, 10, 3); len(got) != 0 {
		t.Fatalf("пользователь с 9 сообщениями не должен пройти фильтр")
	}
}

func TestSelectCandidatesEmpty(t *testing.T) {
	if got := SelectCandidates(nil, 10, 3); len(got) != 0 {
		t.Fatalf("пустой рейтинг даёт пустой список кандидатов")
	}
	ranked := []domain.RankedUser{rankedUser(1, 1, 100, 50, "EQ1")}
	if got := SelectCandidates(ranked, 10, 0); got != nil {
		t.Fatalf("нулевой topN даёт пустой список кандидатов")
	}
}
