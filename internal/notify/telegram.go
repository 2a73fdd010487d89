package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gigbot/discovery-service/internal/model"
)

// Sender is the part of *tgbotapi.BotAPI used to deliver messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts each gig to a chat.
type TelegramNotifier struct {
	bot    Sender
	chatID int64
}

// NewTelegramNotifier logs in with token. It calls the Telegram API once to
// validate the token.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return NewTelegramNotifierWithSender(bot, chatID), nil
}

// NewTelegramNotifierWithSender uses an existing sender.
func NewTelegramNotifierWithSender(bot Sender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

func (t *TelegramNotifier) Notify(ctx context.Context, gig model.Gig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatTelegram(gig))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FormatTelegram renders gig as a Telegram HTML message.
func FormatTelegram(gig model.Gig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔥 <b>%s</b>\n", html.EscapeString(gig.Title))
	fmt.Fprintf(&b, "📡 %s · %s\n", html.EscapeString(gig.Source), scoreText(gig))
	if budget := FormatBudget(gig.Budget); budget != "" {
		fmt.Fprintf(&b, "💰 %s\n", html.EscapeString(budget))
	}
	if gig.Snippet != "" {
		fmt.Fprintf(&b, "\n%s\n", html.EscapeString(gig.Snippet))
	}
	if gig.Link != "" {
		fmt.Fprintf(&b, "\n🔗 <a href=\"%s\">Open posting</a>", html.EscapeString(gig.Link))
	}
	return strings.TrimRight(b.String(), "\n")
}
