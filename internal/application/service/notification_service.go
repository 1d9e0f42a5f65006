package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// NotificationService turns workflow events into messages for people and
// forwards every event to the external stream
type NotificationService interface {
	// Register subscribes the service's handlers on d
	Register(d dispatcher.Dispatcher)

	// HandleEvent notifies the people an event concerns
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	expenseRepo port.ExpenseRepository
	notifiers   []port.Notifier
	publisher   port.EventPublisher
	logger      Logger
}

// NewNotificationService creates a new NotificationService. publisher may be nil.
func NewNotificationService(
	expenseRepo port.ExpenseRepository,
	notifiers []port.Notifier,
	publisher port.EventPublisher,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		expenseRepo: expenseRepo,
		notifiers:   notifiers,
		publisher:   publisher,
		logger:      logger,
	}
}

var notifiedEvents = []event.Type{
	event.TypeApprovalRequested,
	event.TypeApprovalReminder,
	event.TypeExpenseFinalized,
	event.TypeExpenseOverridden,
}

var publishedEvents = []event.Type{
	event.TypeExpenseSubmitted,
	event.TypeStepAdvanced,
	event.TypeExpenseFinalized,
	event.TypeExpenseOverridden,
	event.TypeAssignmentDecided,
	event.TypeApprovalRequested,
	event.TypeApprovalReminder,
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	if len(s.notifiers) > 0 {
		for _, t := range notifiedEvents {
			d.SubscribeNamed(t, "notification", s.HandleEvent)
		}
	}
	if s.publisher != nil {
		for _, t := range publishedEvents {
			d.SubscribeNamed(t, "event-stream", s.publish)
		}
	}
}

func (s *notificationServiceImpl) publish(ctx context.Context, evt *event.Event) error {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("Failed to publish event",
			"error", err,
			"event_type", evt.Type,
			"expense_id", evt.ExpenseID,
		)
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	n, err := s.build(ctx, evt)
	if err != nil {
		return err
	}
	if n == nil || len(n.RecipientIDs) == 0 {
		return nil
	}

	var errs []error
	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, n); err != nil {
			s.logger.Error("Failed to send notification",
				"error", err,
				"notifier", notifier.Name(),
				"event_type", evt.Type,
				"expense_id", evt.ExpenseID,
			)
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
			continue
		}
		s.logger.Info("Notification sent",
			"notifier", notifier.Name(),
			"event_type", evt.Type,
			"expense_id", evt.ExpenseID,
			"recipients", len(n.RecipientIDs),
		)
	}
	return errors.Join(errs...)
}

// build renders the notification for evt, or nil when nobody needs to hear about it
func (s *notificationServiceImpl) build(ctx context.Context, evt *event.Event) (*port.Notification, error) {
	expense, err := s.expenseRepo.GetByID(ctx, evt.ExpenseID)
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	if expense == nil {
		s.logger.Warn("Event refers to unknown expense", "event_type", evt.Type, "expense_id", evt.ExpenseID)
		return nil, nil
	}

	summary := fmt.Sprintf("%s %s (%s)", expense.AmountOriginal.StringFixed(2), expense.CurrencyOriginal, expense.Category)
	n := &port.Notification{Kind: evt.Type, ExpenseID: expense.ID}

	switch evt.Type {
	case event.TypeApprovalRequested:
		n.RecipientIDs = evt.GetPayloadIDs(event.KeyApproverIDs)
		n.Title = "Expense awaiting your approval"
		n.Body = fmt.Sprintf("Expense #%d: %s is waiting for your decision at step %d.",
			expense.ID, summary, evt.GetPayloadInt(event.KeyStepOrder))

	case event.TypeApprovalReminder:
		n.RecipientIDs = evt.GetPayloadIDs(event.KeyApproverIDs)
		n.Title = "Reminder: expense still awaiting approval"
		n.Body = fmt.Sprintf("Expense #%d: %s has been waiting since %s.",
			expense.ID, summary, expense.CreatedAt.Format("2006-01-02"))

	case event.TypeExpenseFinalized, event.TypeExpenseOverridden:
		n.RecipientIDs = []int64{expense.EmployeeID}
		n.Title = fmt.Sprintf("Expense %s", strings.ToLower(expense.Status))
		n.Body = fmt.Sprintf("Expense #%d: %s was %s.", expense.ID, summary, strings.ToLower(expense.Status))
		if evt.Type == event.TypeExpenseOverridden {
			n.Body += " The decision was made by an administrator."
			if c := evt.GetPayloadString(event.KeyComment); c != "" && c != entity.OverrideDefaultComment {
				n.Body += " " + c
			}
		}

	default:
		return nil, nil
	}
	return n, nil
}
