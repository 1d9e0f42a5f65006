package lark

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
)

// TextSender sends a text message to a Lark user
type TextSender interface {
	SendText(ctx context.Context, openID, text string) (string, error)
}

// Notifier delivers workflow notifications as Lark IM messages.
// Recipients without a Lark open_id are skipped.
type Notifier struct {
	sender TextSender
	users  port.UserRepository
	logger *zap.Logger
}

// NewNotifier creates a Lark notifier
func NewNotifier(sender TextSender, users port.UserRepository, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		users:  users,
		logger: logger,
	}
}

// Name implements port.Notifier
func (n *Notifier) Name() string {
	return "lark"
}

// Notify implements port.Notifier
func (n *Notifier) Notify(ctx context.Context, notification *port.Notification) error {
	users, err := n.users.GetByIDs(ctx, notification.RecipientIDs)
	if err != nil {
		return fmt.Errorf("failed to load recipients: %w", err)
	}

	text := notification.Title + "\n" + notification.Body

	var errs []error
	for _, u := range users {
		if u.LarkOpenID == "" {
			n.logger.Debug("Recipient has no Lark account",
				zap.Int64("user_id", u.ID),
				zap.Int64("expense_id", notification.ExpenseID))
			continue
		}

		messageID, err := n.sender.SendText(ctx, u.LarkOpenID, text)
		if err != nil {
			n.logger.Error("Failed to send Lark message",
				zap.Int64("user_id", u.ID),
				zap.Int64("expense_id", notification.ExpenseID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("user %d: %w", u.ID, err))
			continue
		}

		n.logger.Info("Lark message sent",
			zap.String("message_id", messageID),
			zap.Int64("user_id", u.ID),
			zap.String("kind", notification.Kind.String()))
	}
	return errors.Join(errs...)
}

var _ port.Notifier = (*Notifier)(nil)
