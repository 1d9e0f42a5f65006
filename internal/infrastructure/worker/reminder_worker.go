package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

const (
	// DefaultReminderSchedule runs the scan every weekday at 09:00
	DefaultReminderSchedule = "0 9 * * 1-5"

	// DefaultReminderAfter is how long an assignment waits before a reminder
	DefaultReminderAfter = 48 * time.Hour

	reminderBatchSize = 500
)

// ReminderConfig holds reminder worker configuration
type ReminderConfig struct {
	// Schedule is a standard five-field cron expression
	Schedule string
	// After is the minimum age of an assignment before its approver is reminded
	After time.Duration
}

// ReminderWorker periodically emits approval.reminder events for assignments
// that have waited longer than the configured age. It only reads workflow
// state; delivery is left to the dispatcher's subscribers.
type ReminderWorker struct {
	assignments port.AssignmentRepository
	dispatcher  dispatcher.Dispatcher
	schedule    cron.Schedule
	expr        string
	after       time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	baseCtx context.Context
}

// NewReminderWorker creates a reminder worker. The schedule is validated here.
func NewReminderWorker(assignments port.AssignmentRepository, d dispatcher.Dispatcher, cfg ReminderConfig, logger *zap.Logger) (*ReminderWorker, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultReminderSchedule
	}
	if cfg.After <= 0 {
		cfg.After = DefaultReminderAfter
	}

	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", cfg.Schedule, err)
	}

	return &ReminderWorker{
		assignments: assignments,
		dispatcher:  d,
		schedule:    schedule,
		expr:        cfg.Schedule,
		after:       cfg.After,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Name implements Worker
func (w *ReminderWorker) Name() string {
	return "approval-reminder"
}

// Start implements Worker
func (w *ReminderWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron != nil {
		return fmt.Errorf("reminder worker already started")
	}

	w.baseCtx = ctx
	w.cron = cron.New()
	w.cron.Schedule(w.schedule, cron.FuncJob(func() {
		if _, err := w.RunOnce(w.baseCtx); err != nil {
			w.logger.Error("Reminder scan failed", zap.Error(err))
		}
	}))
	w.cron.Start()

	w.logger.Info("Reminder worker scheduled",
		zap.String("schedule", w.expr),
		zap.Duration("after", w.after))
	return nil
}

// Stop implements Worker. It waits for a running scan to finish.
func (w *ReminderWorker) Stop() error {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()

	if c == nil {
		return nil
	}
	<-c.Stop().Done()
	return nil
}

// RunOnce scans for overdue assignments and emits one reminder event per
// expense and returns the number of events emitted
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.after)

	pending, err := w.assignments.ListPendingCreatedBefore(ctx, cutoff, reminderBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue assignments: %w", err)
	}
	if len(pending) == 0 {
		w.logger.Debug("No overdue assignments", zap.Time("cutoff", cutoff))
		return 0, nil
	}

	correlationID := uuid.NewString()
	groups := groupByExpense(pending)
	for _, g := range groups {
		evt := event.NewEventWithCorrelation(event.TypeApprovalReminder, g.expense.ID, map[string]interface{}{
			event.KeyEmployeeID:    g.expense.EmployeeID,
			event.KeyCompanyID:     g.expense.CompanyID,
			event.KeyStepOrder:     g.expense.StepOrder,
			event.KeyApproverIDs:   g.approverIDs,
			event.KeyAssignmentIDs: g.assignmentIDs,
		}, correlationID)
		w.dispatcher.DispatchAsync(ctx, evt)
	}

	w.logger.Info("Approval reminders emitted",
		zap.Int("expenses", len(groups)),
		zap.Int("assignments", len(pending)),
		zap.String("correlation_id", correlationID))
	return len(groups), nil
}

type reminderGroup struct {
	expense       *entity.Expense
	approverIDs   []int64
	assignmentIDs []int64
}

func groupByExpense(pending []*entity.PendingApproval) []*reminderGroup {
	byExpense := make(map[int64]*reminderGroup)
	for _, p := range pending {
		g, ok := byExpense[p.Expense.ID]
		if !ok {
			g = &reminderGroup{expense: p.Expense}
			byExpense[p.Expense.ID] = g
		}
		g.approverIDs = append(g.approverIDs, p.Assignment.ApproverID)
		g.assignmentIDs = append(g.assignmentIDs, p.Assignment.ID)
	}

	groups := make([]*reminderGroup, 0, len(byExpense))
	for _, g := range byExpense {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].expense.ID < groups[j].expense.ID })
	return groups
}
