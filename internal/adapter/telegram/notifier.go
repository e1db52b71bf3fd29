// Package telegram notifies an operator chat about failed report runs.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"reportd/internal/shared"
)

// sender is the slice of the bot API the notifier uses.
type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Notifier sends run failure messages to a single chat.
type Notifier struct {
	bot    sender
	chatID int64
	log    *slog.Logger
}

// New creates a Notifier backed by the Bot API.
func New(token string, chatID int64, log *slog.Logger) (*Notifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, shared.Wrap(err, "create telegram bot")
	}
	return &Notifier{bot: b, chatID: chatID, log: log}, nil
}

// NewWithSender wires a custom sender; used by tests.
func NewWithSender(s sender, chatID int64, log *slog.Logger) *Notifier {
	return &Notifier{bot: s, chatID: chatID, log: log}
}

// NotifyFailure reports a failed run. Notification failures are logged
// and swallowed so they never affect the run outcome.
func (n *Notifier) NotifyFailure(ctx context.Context, job string, startedAt time.Time, runErr error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	text := fmt.Sprintf("Report job %q started %s failed:\n%v",
		job, startedAt.UTC().Format(time.RFC3339), runErr)

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		n.log.Error("failure notification not delivered", slog.Any("error", err))
		return
	}
	n.log.Info("failure notification sent", slog.Int64("chat_id", n.chatID))
}
