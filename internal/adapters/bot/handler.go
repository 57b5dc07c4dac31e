package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"channel-sense-bot/internal/adapters/telegram"
	"channel-sense-bot/internal/domain"
	"channel-sense-bot/internal/infra/metrics"
)

// Handler обслуживает вебхук бота: собирает сообщения групп в хранилище
// и отвечает на команды аналитики.
type Handler struct {
	bot      *tgbotapi.BotAPI
	log      zerolog.Logger
	activity domain.ActivityRepo
	wallets  domain.WalletRepo
	ledger   domain.RewardLedger
	analyzer domain.Analyzer
	jobs     domain.RewardQueue
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, activity domain.ActivityRepo, wallets domain.WalletRepo, ledger domain.RewardLedger, analyzer domain.Analyzer, jobs domain.RewardQueue) *Handler {
	return &Handler{
		bot:      bot,
		log:      log,
		activity: activity,
		wallets:  wallets,
		ledger:   ledger,
		analyzer: analyzer,
		jobs:     jobs,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	text := strings.TrimSpace(msg.Text)

	if isGroup(msg.Chat) && !strings.HasPrefix(text, "/") {
		h.ingestMessage(ctx, msg)
		return
	}
	if !strings.HasPrefix(text, "/") {
		h.reply(msg.Chat.ID, "Добавьте меня в группу, чтобы я собирал статистику. Команды: /help")
		return
	}
	h.handleCommand(ctx, msg, text)
}

func isGroup(chat *tgbotapi.Chat) bool {
	return chat != nil && (chat.IsGroup() || chat.IsSuperGroup())
}

// ingestMessage сохраняет сообщение группы вместе с автором и каналом.
// Канал и автор апсертятся на каждое сообщение: это держит имена свежими.
func (h *Handler) ingestMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}

	ch := domain.Channel{
		ChatID:   msg.Chat.ID,
		Title:    msg.Chat.Title,
		Username: msg.Chat.UserName,
	}
	if err := h.activity.UpsertChannel(ctx, ch); err != nil {
		h.log.Error().Err(err).Int64("chat", msg.Chat.ID).Msg("не удалось сохранить канал")
		return
	}

	profile := domain.UserProfile{
		UserID:    msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
	}
	if err := h.activity.UpsertUser(ctx, profile); err != nil {
		h.log.Error().Err(err).Int64("user", msg.From.ID).Msg("не удалось сохранить пользователя")
		return
	}

	record := domain.Message{
		ChatID:  msg.Chat.ID,
		TGMsgID: int64(msg.MessageID),
		UserID:  msg.From.ID,
		Text:    msg.Text,
		SentAt:  time.Unix(int64(msg.Date), 0).UTC(),
	}
	if msg.ReplyToMessage != nil {
		replyTo := int64(msg.ReplyToMessage.MessageID)
		record.ReplyToMsgID = &replyTo
	}
	if msg.ForwardFromChat != nil {
		forwardFrom := msg.ForwardFromChat.ID
		record.ForwardFromChatID = &forwardFrom
	}
	if err := h.activity.SaveMessage(ctx, record); err != nil {
		h.log.Error().Err(err).Int64("chat", msg.Chat.ID).Msg("не удалось сохранить сообщение")
		return
	}
	metrics.IncIngested(msg.Chat.ID)
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message, text string) {
	command, args := splitCommand(text)
	switch command {
	case "/start":
		h.handleStart(msg.Chat.ID)
	case "/help":
		h.handleHelp(msg.Chat.ID)
	case "/stats":
		h.handleStats(ctx, msg, parsePeriod(args))
	case "/top":
		h.handleTop(ctx, msg, parsePeriod(args))
	case "/sentiment":
		h.handleSentiment(ctx, msg)
	case "/my_rewards":
		h.handleMyRewards(ctx, msg)
	case "/wallet":
		h.handleWallet(ctx, msg, args)
	case "/rewards_now":
		h.handleRewardsNow(ctx, msg)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
	}
}

func splitCommand(text string) (string, string) {
	parts := strings.SplitN(text, " ", 2)
	command := parts[0]
	// Команды в группах приходят с упоминанием бота: /stats@channel_sense_bot.
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	args := ""
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return command, args
}

func parsePeriod(args string) domain.Period {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "day", "день":
		return domain.PeriodDay
	case "month", "месяц":
		return domain.PeriodMonth
	default:
		return domain.PeriodWeek
	}
}

func (h *Handler) handleStart(chatID int64) {
	h.reply(chatID, strings.Join([]string{
		"Привет! Я анализирую активность сообщества и раз в неделю награждаю самых вовлечённых участников NFT.",
		"",
		"Добавьте меня в группу, и я начну собирать статистику.",
		"Список команд: /help",
	}, "\n"))
}

func (h *Handler) handleHelp(chatID int64) {
	h.reply(chatID, strings.Join([]string{
		"Команды:",
		"/stats [day|week|month] — статистика канала",
		"/top [day|week|month] — рейтинг участников",
		"/sentiment — тональность обсуждений за неделю",
		"/wallet <адрес> — привязать TON-кошелёк для наград",
		"/my_rewards — мои награды",
		"/rewards_now — внеплановый прогон наград (для админов)",
	}, "\n"))
}

func (h *Handler) handleStats(ctx context.Context, msg *tgbotapi.Message, period domain.Period) {
	if !isGroup(msg.Chat) {
		h.reply(msg.Chat.ID, "Статистика доступна в группе, где я работаю.")
		return
	}
	analysis, err := h.analyzer.AnalyzeAt(ctx, msg.Chat.ID, period, time.Now().UTC().Truncate(time.Hour))
	if err != nil {
		h.log.Error().Err(err).Int64("chat", msg.Chat.ID).Msg("не удалось построить статистику")
		h.reply(msg.Chat.ID, "Не удалось построить статистику, попробуйте позже.")
		return
	}
	h.reply(msg.Chat.ID, formatStats(analysis))
}

func (h *Handler) handleTop(ctx context.Context, msg *tgbotapi.Message, period domain.Period) {
	if !isGroup(msg.Chat) {
		h.reply(msg.Chat.ID, "Рейтинг доступен в группе, где я работаю.")
		return
	}
	analysis, err := h.analyzer.AnalyzeAt(ctx, msg.Chat.ID, period, time.Now().UTC().Truncate(time.Hour))
	if err != nil {
		h.log.Error().Err(err).Int64("chat", msg.Chat.ID).Msg("не удалось построить рейтинг")
		h.reply(msg.Chat.ID, "Не удалось построить рейтинг, попробуйте позже.")
		return
	}
	h.reply(msg.Chat.ID, formatTop(analysis.TopUsers))
}

func (h *Handler) handleSentiment(ctx context.Context, msg *tgbotapi.Message) {
	if !isGroup(msg.Chat) {
		h.reply(msg.Chat.ID, "Анализ тональности доступен в группе, где я работаю.")
		return
	}
	breakdown, err := h.analyzer.Sentiment(ctx, msg.Chat.ID, domain.PeriodWeek)
	if err != nil {
		h.log.Error().Err(err).Int64("chat", msg.Chat.ID).Msg("не удалось оценить тональность")
		h.reply(msg.Chat.ID, "Анализ тональности временно недоступен.")
		return
	}
	h.reply(msg.Chat.ID, formatSentiment(breakdown))
}

func (h *Handler) handleMyRewards(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя")
		return
	}
	outcomes, err := h.ledger.UserOutcomes(ctx, msg.From.ID, 10)
	if err != nil {
		h.log.Error().Err(err).Int64("user", msg.From.ID).Msg("не удалось получить награды")
		h.reply(msg.Chat.ID, "Не удалось получить награды, попробуйте позже.")
		return
	}
	h.reply(msg.Chat.ID, formatRewards(outcomes))
}

func (h *Handler) handleWallet(ctx context.Context, msg *tgbotapi.Message, args string) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя")
		return
	}
	address := strings.TrimSpace(args)
	if address == "" {
		h.reply(msg.Chat.ID, "Укажите адрес кошелька: /wallet <адрес>")
		return
	}
	if !validWalletAddress(address) {
		h.reply(msg.Chat.ID, "Адрес не похож на TON-кошелёк. Ожидаю формат EQ... или UQ...")
		return
	}
	err := h.wallets.UpsertWallet(ctx, domain.Wallet{
		UserID:  msg.From.ID,
		Address: address,
		Chain:   "ton",
	})
	if err != nil {
		h.log.Error().Err(err).Int64("user", msg.From.ID).Msg("не удалось привязать кошелёк")
		h.reply(msg.Chat.ID, "Не удалось привязать кошелёк, попробуйте позже.")
		return
	}
	h.reply(msg.Chat.ID, "Кошелёк привязан. Теперь вы участвуете в еженедельных наградах.")
}

func validWalletAddress(address string) bool {
	if len(address) != 48 {
		return false
	}
	return strings.HasPrefix(address, "EQ") || strings.HasPrefix(address, "UQ")
}

// handleRewardsNow ставит внеплановый прогон в очередь. Сам прогон выполняет
// rewarder, чтобы вебхук не держал долгую операцию.
func (h *Handler) handleRewardsNow(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя")
		return
	}
	if isGroup(msg.Chat) && !h.isChatAdmin(msg.Chat.ID, msg.From.ID) {
		h.reply(msg.Chat.ID, "Запускать прогон наград могут только администраторы.")
		return
	}
	job := domain.RewardRunJob{
		JobID:       uuid.NewString(),
		RequestedBy: msg.From.ID,
		EnqueuedAt:  time.Now().UTC(),
	}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("не удалось поставить прогон в очередь")
		h.reply(msg.Chat.ID, "Не удалось запустить прогон, попробуйте позже.")
		return
	}
	h.reply(msg.Chat.ID, "Прогон наград поставлен в очередь.")
}

func (h *Handler) isChatAdmin(chatID, userID int64) bool {
	start := time.Now()
	member, err := h.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	metrics.ObserveNetworkRequest("telegram_bot", "get_chat_member", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Warn().Err(err).Int64("chat", chatID).Int64("user", userID).Msg("не удалось проверить права")
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}

func formatStats(analysis domain.ChannelAnalysis) string {
	var b strings.Builder
	b.WriteString("📊 Статистика канала\n\n")
	fmt.Fprintf(&b, "Сообщений: %d\n", analysis.TotalMessages)
	fmt.Fprintf(&b, "Активных участников: %d\n", analysis.ActiveUsers)
	fmt.Fprintf(&b, "Сообщений на участника: %.1f\n", analysis.AvgMessagesPerUser)
	if analysis.GrowthPercent != 0 {
		fmt.Fprintf(&b, "Рост: %+.1f%%\n", analysis.GrowthPercent)
	}
	if analysis.PeakHour != nil {
		fmt.Fprintf(&b, "Пик активности: %02d:00 UTC\n", *analysis.PeakHour)
	}
	if analysis.MostActiveDay != "" {
		fmt.Fprintf(&b, "Самый активный день: %s\n", analysis.MostActiveDay)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTop(users []domain.RankedUser) string {
	if len(users) == 0 {
		return "Пока нет данных для рейтинга."
	}
	var b strings.Builder
	b.WriteString("🏅 Самые вовлечённые участники\n\n")
	for _, u := range users {
		name := u.Username
		if name != "" {
			name = "@" + name
		} else if u.FirstName != "" {
			name = u.FirstName
		} else {
			name = fmt.Sprintf("id%d", u.UserID)
		}
		fmt.Fprintf(&b, "%d. %s — %d баллов (%d сообщений)\n", u.Rank, name, u.Score, u.MessageCount)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSentiment(breakdown domain.SentimentBreakdown) string {
	var b strings.Builder
	b.WriteString("💬 Тональность за неделю\n\n")
	fmt.Fprintf(&b, "Общий тон: %s (%s)\n", breakdown.Overall, breakdown.Trend)
	fmt.Fprintf(&b, "Позитив: %d%%, нейтрально: %d%%, негатив: %d%%\n", breakdown.Positive, breakdown.Neutral, breakdown.Negative)
	if len(breakdown.TrendingTopics) > 0 {
		fmt.Fprintf(&b, "Обсуждают: %s\n", strings.Join(breakdown.TrendingTopics, ", "))
	}
	if breakdown.Summary != "" {
		b.WriteString(breakdown.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRewards(outcomes []domain.RewardOutcome) string {
	issued := make([]domain.RewardOutcome, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Succeeded {
			issued = append(issued, outcome)
		}
	}
	if len(issued) == 0 {
		return "У вас пока нет наград. Будьте активнее в чате и привяжите кошелёк: /wallet"
	}
	var b strings.Builder
	b.WriteString("🏆 Ваши награды\n\n")
	for _, outcome := range issued {
		fmt.Fprintf(&b, "%s — NFT", outcome.IssuedAt.Format("02.01.2006"))
		if outcome.TokenAddress != nil {
			fmt.Fprintf(&b, " %s", *outcome.TokenAddress)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) reply(chatID int64, text string) {
	parts := telegram.SplitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}
