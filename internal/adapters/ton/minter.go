package ton

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"channel-sense-bot/internal/domain"
	"channel-sense-bot/internal/infra/metrics"
)

// Minter выпускает NFT-награды через HTTP API TON-провайдера.
type Minter struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	collection string
}

var _ domain.RewardIssuer = (*Minter)(nil)

// NewMinter создаёт минтер. collection — адрес коллекции, в которую
// выпускаются награды.
func NewMinter(baseURL, apiKey, collection string, timeout time.Duration) *Minter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Minter{
		http:       &http.Client{Timeout: timeout + 5*time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
	}
}

type mintRequest struct {
	Collection string       `json:"collection"`
	Owner      string       `json:"owner"`
	Metadata   mintMetadata `json:"metadata"`
}

type mintMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Rank        int    `json:"rank"`
	Score       int    `json:"score"`
	Messages    int    `json:"messages"`
	ChatID      int64  `json:"chat_id"`
	RunID       string `json:"run_id"`
}

type mintResponse struct {
	TokenAddress string `json:"token_address"`
	TxHash       string `json:"tx_hash"`
	Error        string `json:"error,omitempty"`
}

// IssueReward реализует domain.RewardIssuer: минтит NFT на кошелёк кандидата.
func (m *Minter) IssueReward(ctx context.Context, candidate domain.RewardCandidate, chatID int64, runID string) (domain.IssueResult, error) {
	if m.baseURL == "" {
		return domain.IssueResult{}, fmt.Errorf("ton: base url не задан")
	}
	if candidate.Wallet == nil || candidate.Wallet.Address == "" {
		return domain.IssueResult{}, fmt.Errorf("ton: у кандидата нет кошелька")
	}

	body, err := json.Marshal(mintRequest{
		Collection: m.collection,
		Owner:      candidate.Wallet.Address,
		Metadata: mintMetadata{
			Name:        fmt.Sprintf("Community Champion #%d", candidate.RewardRank),
			Description: fmt.Sprintf("Награда за %d место по вовлечённости за неделю", candidate.RewardRank),
			Rank:        candidate.RewardRank,
			Score:       candidate.Score,
			Messages:    candidate.MessageCount,
			ChatID:      chatID,
			RunID:       runID,
		},
	})
	if err != nil {
		return domain.IssueResult{}, fmt.Errorf("ton: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/nft/mint", bytes.NewReader(body))
	if err != nil {
		return domain.IssueResult{}, fmt.Errorf("ton: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("X-API-Key", m.apiKey)
	}

	start := time.Now()
	resp, err := m.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("ton", "nft_mint", m.collection, start, err)
		return domain.IssueResult{}, fmt.Errorf("ton: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("ton", "nft_mint", m.collection, start, err)
		return domain.IssueResult{}, fmt.Errorf("ton: read response: %w", err)
	}

	var parsed mintResponse
	if resp.StatusCode >= 400 {
		if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.Error != "" {
			err = fmt.Errorf("ton: %s", parsed.Error)
		} else {
			err = fmt.Errorf("ton: unexpected status %d", resp.StatusCode)
		}
		metrics.ObserveNetworkRequest("ton", "nft_mint", m.collection, start, err)
		return domain.IssueResult{}, err
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		metrics.ObserveNetworkRequest("ton", "nft_mint", m.collection, start, err)
		return domain.IssueResult{}, fmt.Errorf("ton: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("ton", "nft_mint", m.collection, start, nil)

	if parsed.TokenAddress == "" {
		return domain.IssueResult{}, fmt.Errorf("ton: в ответе нет адреса токена")
	}
	return domain.IssueResult{TokenAddress: parsed.TokenAddress, TxRef: parsed.TxHash}, nil
}
