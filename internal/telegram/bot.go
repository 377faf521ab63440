package telegram

import (
	"context"
	"errors"
	"html"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"meowpedia/internal/catalog"
	"meowpedia/internal/chat"
	"meowpedia/internal/format"
	"meowpedia/internal/history"
)

const (
	resetCmd         = "reset_ctx"
	suggestPrefix    = "suggest:"
	keyPrefix        = "tg:"
	maxMessageLength = 4096
)

const (
	welcomeText = "😻 <b>欢迎来到喵喵百科！</b>\n" +
		"我是喵博士。无论你想了解猫咪的<b>隐性基因</b>，还是<b>圆滚滚的外形</b>，都可以问我哦！"
	resetText   = "🧹 对话已清空，我们重新开始吧喵~"
	busyText    = "🐾 喵博士还在思考上一个问题，请稍等一下喵~"
	unknownText = "喵？我不认识这个命令。试试 /start 或 /reset 吧~"
)

// ReportFunc produces the text of an on-demand usage report.
type ReportFunc func(ctx context.Context) (string, error)

type Bot struct {
	api      *tgbotapi.BotAPI
	s        sender
	sessions *history.Manager
	chat     *chat.Service

	reportChatID int64
	reportFn     ReportFunc

	mu      sync.Mutex
	watched map[string]watch
}

// watch is the render subscription held on one live conversation.
type watch struct {
	conv        *history.Conversation
	unsubscribe func()
}

func New(botToken string, sessions *history.Manager, svc *chat.Service) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	b := newBot(botAPISender{api: api}, sessions, svc)
	b.api = api
	log.Info("telegram bot authorized", "username", api.Self.UserName)
	return b, nil
}

func newBot(s sender, sessions *history.Manager, svc *chat.Service) *Bot {
	b := &Bot{
		s:        s,
		sessions: sessions,
		chat:     svc,
		watched:  make(map[string]watch),
	}
	sessions.OnEvict(b.forget)
	return b
}

// EnableReports lets chatID request the usage report with /report.
func (b *Bot) EnableReports(chatID int64, fn ReportFunc) {
	b.reportChatID = chatID
	b.reportFn = fn
}

// Start polls for updates until ctx is cancelled. Each update is handled on
// its own goroutine; turns within one chat are serialized by the conversation.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// Notify sends plain text to chatID.
func (b *Bot) Notify(chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageLength) {
		if _, err := b.s.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil:
		b.handleIncomingMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

// conversation returns the chat's conversation, subscribing the renderer the
// first time a given conversation is seen.
func (b *Bot) conversation(chatID int64) (string, *history.Conversation) {
	key := keyPrefix + strconv.FormatInt(chatID, 10)
	conv, _ := b.sessions.Get(key)

	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.watched[key]; !ok || w.conv != conv {
		if ok {
			w.unsubscribe()
		}
		b.watched[key] = watch{
			conv:        conv,
			unsubscribe: conv.Subscribe(func(ev history.Event) { b.render(chatID, ev) }),
		}
	}
	return key, conv
}

// forget drops the subscription of a conversation the manager let go of.
func (b *Bot) forget(key string, conv *history.Conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.watched[key]; ok && w.conv == conv {
		w.unsubscribe()
		delete(b.watched, key)
	}
}

// render is the conversation listener: it delivers replies and reset notices.
func (b *Bot) render(chatID int64, ev history.Event) {
	switch {
	case ev.Kind == history.EventReset:
		b.sendHTML(chatID, resetText, suggestionKeyboard())
	case ev.Message.Role == history.RoleAssistant:
		b.sendReply(chatID, ev.Message)
	}
}

func (b *Bot) sendReply(chatID int64, m history.Message) {
	lines := format.RenderTelegramLines(format.Format(m.Text), maxMessageLength)
	if cites := format.TelegramCitations(m.Citations); cites != "" {
		lines = append(lines, "")
		lines = append(lines, strings.Split(cites, "\n")...)
	}
	b.sendParts(chatID, packLines(lines, maxMessageLength), resetKeyboard())
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		_, conv := b.conversation(chatID)
		var kb any
		if conv.Len() == 0 {
			kb = suggestionKeyboard()
		}
		b.sendHTML(chatID, welcomeText, kb)
	case "reset":
		b.reset(chatID)
	case "report":
		if b.reportFn == nil || chatID != b.reportChatID {
			b.sendHTML(chatID, unknownText, nil)
			return
		}
		text, err := b.reportFn(ctx)
		if err != nil {
			log.Error("report failed", "chat", chatID, "err", err)
			b.sendHTML(chatID, history.ErrorText, nil)
			return
		}
		if err := b.Notify(chatID, text); err != nil {
			log.Error("failed to send report", "chat", chatID, "err", err)
		}
	default:
		b.sendHTML(chatID, unknownText, nil)
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	log.Debug("incoming message", "chat", msg.Chat.ID, "len", len(msg.Text))
	key, conv := b.conversation(msg.Chat.ID)
	b.typing(msg.Chat.ID)
	_, err := b.chat.Submit(ctx, key, conv, msg.Text)
	b.explainRefusal(msg.Chat.ID, err)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Warn("failed to answer callback", "err", err)
	}
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	switch {
	case cb.Data == resetCmd:
		b.reset(chatID)
	case strings.HasPrefix(cb.Data, suggestPrefix):
		idx, err := strconv.Atoi(strings.TrimPrefix(cb.Data, suggestPrefix))
		sg, ok := catalog.Lookup(idx)
		if err != nil || !ok {
			log.Warn("unknown suggestion", "data", cb.Data)
			return
		}
		key, conv := b.conversation(chatID)
		if conv.State() == history.StateIdle {
			b.sendHTML(chatID, sg.Icon+" <b>"+html.EscapeString(sg.Description)+"</b>", nil)
		}
		b.typing(chatID)
		_, err = b.chat.SubmitSuggestion(ctx, key, conv, idx)
		b.explainRefusal(chatID, err)
	}
}

func (b *Bot) reset(chatID int64) {
	_, conv := b.conversation(chatID)
	if err := conv.Reset(); err != nil {
		b.explainRefusal(chatID, err)
	}
}

func (b *Bot) explainRefusal(chatID int64, err error) {
	switch {
	case err == nil, errors.Is(err, history.ErrEmptyInput):
	case errors.Is(err, history.ErrTurnInProgress):
		b.sendHTML(chatID, busyText, nil)
	default:
		log.Error("turn refused", "chat", chatID, "err", err)
	}
}

func (b *Bot) typing(chatID int64) {
	if _, err := b.s.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		log.Debug("failed to send typing action", "chat", chatID, "err", err)
	}
}

// sendHTML sends a short fixed text in HTML parse mode.
func (b *Bot) sendHTML(chatID int64, text string, markup any) {
	b.sendParts(chatID, []string{text}, markup)
}

// sendParts sends pre-split HTML parts, attaching markup to the last one.
func (b *Bot) sendParts(chatID int64, parts []string, markup any) {
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		if i == len(parts)-1 && markup != nil {
			msg.ReplyMarkup = markup
		}
		if _, err := b.s.Send(msg); err != nil {
			log.Error("failed to send message", "chat", chatID, "err", err)
			return
		}
	}
}

func resetKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 重新开始", resetCmd),
		),
	)
}

func suggestionKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, sg := range catalog.Suggestions() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(sg.Icon+" "+sg.Title, suggestPrefix+strconv.Itoa(i)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// splitMessage breaks plain text into parts of at most limit runes, cutting
// on line boundaries and by runes only inside an overlong line. It knows
// nothing about markup, so HTML goes through packLines instead.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		r := []rune(line)
		for len(r) > limit {
			lines = append(lines, string(r[:limit]))
			r = r[limit:]
		}
		lines = append(lines, string(r))
	}
	return packLines(lines, limit)
}

// packLines joins lines with newlines into as few parts of at most limit
// runes as possible. Lines are never cut; one longer than limit stands alone.
func packLines(lines []string, limit int) []string {
	var (
		parts []string
		cur   strings.Builder
		n     int
		open  bool
	)
	for _, line := range lines {
		ln := utf8.RuneCountInString(line)
		if open && n+1+ln > limit {
			parts = append(parts, cur.String())
			cur.Reset()
			n, open = 0, false
		}
		if open {
			cur.WriteByte('\n')
			n++
		}
		cur.WriteString(line)
		n += ln
		open = true
	}
	if open {
		parts = append(parts, cur.String())
	}
	return parts
}
