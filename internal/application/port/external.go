package port

import (
	"context"
	"io"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// IdentityProvider answers the organisational questions approver resolution needs
type IdentityProvider interface {
	// GetManagerOf returns the employee's direct manager, or nil when none is set
	GetManagerOf(ctx context.Context, employeeID int64) (*int64, error)
	ListUsersByRole(ctx context.Context, companyID int64, role string) ([]int64, error)
}

// Notification is a message for one or more users about an expense
type Notification struct {
	Kind         event.Type
	ExpenseID    int64
	RecipientIDs []int64
	Title        string
	Body         string
}

// Notifier delivers notifications to people
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n *Notification) error
}

// EventPublisher forwards workflow events to an external stream
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event) error
	Close() error
}

// HistoryExporter renders expenses and their approval history as a document
type HistoryExporter interface {
	ContentType() string
	Export(ctx context.Context, w io.Writer, expenses []*entity.Expense, history []*entity.ApprovalHistory) error
}
