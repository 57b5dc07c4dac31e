package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"channel-sense-bot/internal/domain"
	"channel-sense-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ActivityRepo = (*Postgres)(nil)
	_ domain.WalletRepo   = (*Postgres)(nil)
	_ domain.RewardLedger = (*Postgres)(nil)
	_ domain.ReportRepo   = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// UpsertChannel реализует domain.ActivityRepo.
func (p *Postgres) UpsertChannel(ctx context.Context, ch domain.Channel) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO channels (chat_id, title, username, created_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (chat_id) DO UPDATE SET title = EXCLUDED.title, username = EXCLUDED.username
`, ch.ChatID, ch.Title, ch.Username)
	metrics.ObserveNetworkRequest("postgres", "channels_upsert", "channels", start, err)
	return err
}

// UpsertUser реализует domain.ActivityRepo.
func (p *Postgres) UpsertUser(ctx context.Context, profile domain.UserProfile) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO users (tg_id, username, first_name, created_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (tg_id) DO UPDATE SET username = EXCLUDED.username, first_name = EXCLUDED.first_name
`, profile.UserID, profile.Username, profile.FirstName)
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	return err
}

// SaveMessage реализует domain.ActivityRepo. Повторная доставка того же
// сообщения вебхуком игнорируется.
func (p *Postgres) SaveMessage(ctx context.Context, msg domain.Message) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var replyTo, forwardFrom sql.NullInt64
	if msg.ReplyToMsgID != nil {
		replyTo = sql.NullInt64{Int64: *msg.ReplyToMsgID, Valid: true}
	}
	if msg.ForwardFromChatID != nil {
		forwardFrom = sql.NullInt64{Int64: *msg.ForwardFromChatID, Valid: true}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO messages (chat_id, tg_msg_id, user_id, text, sent_at, reply_to_msg_id, forward_from_chat_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (chat_id, tg_msg_id) DO NOTHING
`, msg.ChatID, msg.TGMsgID, msg.UserID, msg.Text, msg.SentAt, replyTo, forwardFrom)
	metrics.ObserveNetworkRequest("postgres", "messages_insert", "messages", start, err)
	return err
}

// SaveReaction увеличивает счётчик реакций на сообщение.
func (p *Postgres) SaveReaction(ctx context.Context, chatID, tgMsgID int64, count int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO message_reactions (chat_id, tg_msg_id, count, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (chat_id, tg_msg_id) DO UPDATE SET count = EXCLUDED.count, updated_at = now()
`, chatID, tgMsgID, count)
	metrics.ObserveNetworkRequest("postgres", "reactions_upsert", "message_reactions", start, err)
	return err
}

// ActiveChannels реализует domain.ActivityRepo: каналы, где за период
// накопилось строго больше minMessages сообщений.
func (p *Postgres) ActiveChannels(ctx context.Context, since time.Time, minMessages int) ([]domain.Channel, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT c.chat_id, c.title, COALESCE(c.username, ''), c.created_at
FROM channels c
JOIN messages m ON m.chat_id = c.chat_id
WHERE m.sent_at >= $1
GROUP BY c.chat_id, c.title, c.username, c.created_at
HAVING COUNT(*) > $2
ORDER BY c.chat_id
`, since, minMessages)
	metrics.ObserveNetworkRequest("postgres", "channels_active", "channels", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ChatID, &ch.Title, &ch.Username, &ch.CreatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// ChannelMetrics реализует domain.ActivityRepo.
func (p *Postgres) ChannelMetrics(ctx context.Context, chatID int64, window domain.Window) (domain.ChannelMetrics, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var m domain.ChannelMetrics
	err := p.pool.QueryRow(ctx, `
SELECT COUNT(*), COUNT(DISTINCT user_id)
FROM messages
WHERE chat_id = $1 AND sent_at >= $2 AND sent_at < $3
`, chatID, window.Start, window.End).Scan(&m.TotalMessages, &m.ActiveUsers)
	metrics.ObserveNetworkRequest("postgres", "channel_metrics", "messages", start, err)
	if err != nil {
		return domain.ChannelMetrics{}, err
	}
	return m, nil
}

// UserActivity реализует domain.ActivityRepo.
func (p *Postgres) UserActivity(ctx context.Context, chatID int64, window domain.Window, limit int) ([]domain.UserActivity, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT m.user_id, COALESCE(u.username, ''), COALESCE(u.first_name, ''), COUNT(*) AS cnt
FROM messages m
LEFT JOIN users u ON u.tg_id = m.user_id
WHERE m.chat_id = $1 AND m.sent_at >= $2 AND m.sent_at < $3
GROUP BY m.user_id, u.username, u.first_name
ORDER BY cnt DESC, m.user_id
LIMIT $4
`, chatID, window.Start, window.End, limit)
	metrics.ObserveNetworkRequest("postgres", "user_activity", "messages", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.UserActivity
	for rows.Next() {
		var u domain.UserActivity
		if err := rows.Scan(&u.UserID, &u.Username, &u.FirstName, &u.MessageCount); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UserMessageCount реализует domain.ActivityRepo.
func (p *Postgres) UserMessageCount(ctx context.Context, userID, chatID int64, window domain.Window) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var count int
	err := p.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM messages
WHERE user_id = $1 AND chat_id = $2 AND sent_at >= $3 AND sent_at < $4
`, userID, chatID, window.Start, window.End).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "user_message_count", "messages", start, err)
	return count, err
}

// UserMessages реализует domain.ActivityRepo.
func (p *Postgres) UserMessages(ctx context.Context, userID, chatID int64, window domain.Window) ([]domain.Message, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, chat_id, tg_msg_id, user_id, text, sent_at, reply_to_msg_id, forward_from_chat_id, created_at
FROM messages
WHERE user_id = $1 AND chat_id = $2 AND sent_at >= $3 AND sent_at < $4
ORDER BY sent_at
`, userID, chatID, window.Start, window.End)
	metrics.ObserveNetworkRequest("postgres", "user_messages", "messages", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MessageInteractions реализует domain.ActivityRepo: ответы других участников
// на сообщения пользователя и реакции на них.
func (p *Postgres) MessageInteractions(ctx context.Context, userID, chatID int64, window domain.Window) (domain.MessageInteractions, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var interactions domain.MessageInteractions
	err := p.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM messages r
JOIN messages m ON m.chat_id = r.chat_id AND m.tg_msg_id = r.reply_to_msg_id
WHERE m.user_id = $1 AND m.chat_id = $2
  AND r.user_id <> m.user_id
  AND r.sent_at >= $3 AND r.sent_at < $4
`, userID, chatID, window.Start, window.End).Scan(&interactions.Replies)
	metrics.ObserveNetworkRequest("postgres", "replies_received", "messages", start, err)
	if err != nil {
		return domain.MessageInteractions{}, err
	}

	start = time.Now()
	err = p.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(rx.count), 0)
FROM message_reactions rx
JOIN messages m ON m.chat_id = rx.chat_id AND m.tg_msg_id = rx.tg_msg_id
WHERE m.user_id = $1 AND m.chat_id = $2 AND m.sent_at >= $3 AND m.sent_at < $4
`, userID, chatID, window.Start, window.End).Scan(&interactions.Reactions)
	metrics.ObserveNetworkRequest("postgres", "reactions_received", "message_reactions", start, err)
	if err != nil {
		return domain.MessageInteractions{}, err
	}
	return interactions, nil
}

// UserActivityHours реализует domain.ActivityRepo: различные часы суток (UTC),
// в которые пользователь писал.
func (p *Postgres) UserActivityHours(ctx context.Context, userID, chatID int64, window domain.Window) ([]int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT EXTRACT(HOUR FROM sent_at AT TIME ZONE 'UTC')::int AS hour
FROM messages
WHERE user_id = $1 AND chat_id = $2 AND sent_at >= $3 AND sent_at < $4
ORDER BY hour
`, userID, chatID, window.Start, window.End)
	metrics.ObserveNetworkRequest("postgres", "user_activity_hours", "messages", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []int
	for rows.Next() {
		var hour int
		if err := rows.Scan(&hour); err != nil {
			return nil, err
		}
		hours = append(hours, hour)
	}
	return hours, rows.Err()
}

// HourlyActivity реализует domain.ActivityRepo. Часы возвращаются по
// возрастанию, чтобы выбор пика был детерминированным.
func (p *Postgres) HourlyActivity(ctx context.Context, chatID int64, window domain.Window) ([]domain.HourCount, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT EXTRACT(HOUR FROM sent_at AT TIME ZONE 'UTC')::int AS hour, COUNT(*)
FROM messages
WHERE chat_id = $1 AND sent_at >= $2 AND sent_at < $3
GROUP BY hour
ORDER BY hour
`, chatID, window.Start, window.End)
	metrics.ObserveNetworkRequest("postgres", "hourly_activity", "messages", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hourly []domain.HourCount
	for rows.Next() {
		var h domain.HourCount
		if err := rows.Scan(&h.Hour, &h.Count); err != nil {
			return nil, err
		}
		hourly = append(hourly, h)
	}
	return hourly, rows.Err()
}

// DailyActivity реализует domain.ActivityRepo. Дни идут в порядке недели.
func (p *Postgres) DailyActivity(ctx context.Context, chatID int64, window domain.Window) ([]domain.DayCount, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT TRIM(to_char(sent_at AT TIME ZONE 'UTC', 'Day')) AS day,
       EXTRACT(DOW FROM sent_at AT TIME ZONE 'UTC')::int AS dow,
       COUNT(*)
FROM messages
WHERE chat_id = $1 AND sent_at >= $2 AND sent_at < $3
GROUP BY day, dow
ORDER BY dow
`, chatID, window.Start, window.End)
	metrics.ObserveNetworkRequest("postgres", "daily_activity", "messages", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var daily []domain.DayCount
	for rows.Next() {
		var (
			d   domain.DayCount
			dow int
		)
		if err := rows.Scan(&d.Day, &dow, &d.Count); err != nil {
			return nil, err
		}
		daily = append(daily, d)
	}
	return daily, rows.Err()
}

// RecentMessages реализует domain.ActivityRepo.
func (p *Postgres) RecentMessages(ctx context.Context, chatID int64, window domain.Window, limit int) ([]domain.Message, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, chat_id, tg_msg_id, user_id, text, sent_at, reply_to_msg_id, forward_from_chat_id, created_at
FROM messages
WHERE chat_id = $1 AND sent_at >= $2 AND sent_at < $3 AND text <> ''
ORDER BY sent_at DESC
LIMIT $4
`, chatID, window.Start, window.End, limit)
	metrics.ObserveNetworkRequest("postgres", "recent_messages", "messages", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		var (
			msg         domain.Message
			replyTo     sql.NullInt64
			forwardFrom sql.NullInt64
		)
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.TGMsgID, &msg.UserID, &msg.Text, &msg.SentAt, &replyTo, &forwardFrom, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if replyTo.Valid {
			v := replyTo.Int64
			msg.ReplyToMsgID = &v
		}
		if forwardFrom.Valid {
			v := forwardFrom.Int64
			msg.ForwardFromChatID = &v
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// WalletForUser реализует domain.WalletRepo.
func (p *Postgres) WalletForUser(ctx context.Context, userID int64) (domain.Wallet, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var wallet domain.Wallet
	err := p.pool.QueryRow(ctx, `
SELECT user_id, address, chain, connected_at
FROM user_wallets
WHERE user_id = $1
`, userID).Scan(&wallet.UserID, &wallet.Address, &wallet.Chain, &wallet.ConnectedAt)
	metrics.ObserveNetworkRequest("postgres", "wallet_get", "user_wallets", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Wallet{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Wallet{}, err
	}
	return wallet, nil
}

// UpsertWallet реализует domain.WalletRepo.
func (p *Postgres) UpsertWallet(ctx context.Context, wallet domain.Wallet) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_wallets (user_id, address, chain, connected_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (user_id) DO UPDATE SET address = EXCLUDED.address, chain = EXCLUDED.chain, connected_at = now()
`, wallet.UserID, wallet.Address, wallet.Chain)
	metrics.ObserveNetworkRequest("postgres", "wallet_upsert", "user_wallets", start, err)
	return err
}

// AppendOutcome реализует domain.RewardLedger. Журнал только растёт.
func (p *Postgres) AppendOutcome(ctx context.Context, outcome domain.RewardOutcome) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO reward_outcomes (run_id, user_id, chat_id, succeeded, token_address, tx_ref, failure_reason, issued_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, outcome.RunID, outcome.UserID, outcome.ChatID, outcome.Succeeded, outcome.TokenAddress, outcome.TxRef, outcome.FailureReason, outcome.IssuedAt)
	metrics.ObserveNetworkRequest("postgres", "outcome_insert", "reward_outcomes", start, err)
	return err
}

// UserOutcomes реализует domain.RewardLedger.
func (p *Postgres) UserOutcomes(ctx context.Context, userID int64, limit int) ([]domain.RewardOutcome, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT run_id, user_id, chat_id, succeeded, token_address, tx_ref, failure_reason, issued_at
FROM reward_outcomes
WHERE user_id = $1
ORDER BY issued_at DESC
LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "outcomes_by_user", "reward_outcomes", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []domain.RewardOutcome
	for rows.Next() {
		var outcome domain.RewardOutcome
		if err := rows.Scan(&outcome.RunID, &outcome.UserID, &outcome.ChatID, &outcome.Succeeded, &outcome.TokenAddress, &outcome.TxRef, &outcome.FailureReason, &outcome.IssuedAt); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

// AppendReport реализует domain.ReportRepo: отчёт хранится целиком как JSON.
func (p *Postgres) AppendReport(ctx context.Context, report domain.WeeklyReport) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("сериализация отчёта: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO weekly_reports (run_id, chat_id, generated_at, payload)
VALUES ($1, $2, $3, $4)
`, report.RunID, report.ChatID, report.GeneratedAt, payload)
	metrics.ObserveNetworkRequest("postgres", "report_insert", "weekly_reports", start, err)
	return err
}

// ListReports реализует domain.ReportRepo.
func (p *Postgres) ListReports(ctx context.Context, chatID int64, limit int) ([]domain.WeeklyReport, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT payload
FROM weekly_reports
WHERE chat_id = $1
ORDER BY generated_at DESC
LIMIT $2
`, chatID, limit)
	metrics.ObserveNetworkRequest("postgres", "reports_list", "weekly_reports", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.WeeklyReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var report domain.WeeklyReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("десериализация отчёта: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}
