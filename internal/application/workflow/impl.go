package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

const tracerName = "github.com/garyjia/expense-approval/workflow"

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	flowRepo       port.FlowRepository
	expenseRepo    port.ExpenseRepository
	assignmentRepo port.AssignmentRepository
	historyRepo    port.HistoryRepository
	txManager      port.TransactionManager
	factory        AssignmentFactory
	dispatcher     dispatcher.Dispatcher
	logger         Logger
	locker         *expenseLocker
	tracer         trace.Tracer
	now            func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(logger Logger) EngineOption {
	return func(e *engineImpl) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExpenseLock toggles the in-process per-expense lock. The conditional
// update in ExpenseRepository still guards against other processes.
func WithExpenseLock(enabled bool) EngineOption {
	return func(e *engineImpl) {
		if enabled {
			e.locker = newExpenseLocker()
		} else {
			e.locker = nil
		}
	}
}

// WithClock overrides the time source used for decision timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithTracer sets the tracer used for engine spans
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *engineImpl) {
		e.tracer = tracer
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	flowRepo port.FlowRepository,
	expenseRepo port.ExpenseRepository,
	assignmentRepo port.AssignmentRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	factory AssignmentFactory,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		flowRepo:       flowRepo,
		expenseRepo:    expenseRepo,
		assignmentRepo: assignmentRepo,
		historyRepo:    historyRepo,
		txManager:      txManager,
		factory:        factory,
		logger:         nopLogger{},
		locker:         newExpenseLocker(),
		tracer:         otel.Tracer(tracerName),
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// run is one unit of work: lock, transaction, then dispatch of the collected
// events once the transaction has committed.
type run struct {
	expense       *entity.Expense
	flow          *entity.ApprovalFlow
	actorID       *int64
	correlationID string
	events        []*event.Event
}

func (r *run) emit(eventType event.Type, payload map[string]interface{}) {
	r.events = append(r.events, event.NewEventWithCorrelation(eventType, r.expense.ID, payload, r.correlationID))
}

func (e *engineImpl) Submit(ctx context.Context, expense *entity.Expense) (*entity.Expense, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.Submit")
	defer span.End()

	// The row is invisible to other runs until commit, so no lock is taken.
	r := &run{correlationID: uuid.NewString()}
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.expenseRepo.Create(txCtx, expense); err != nil {
			return fmt.Errorf("failed to create expense: %w", err)
		}
		span.SetAttributes(attribute.Int64("expense_id", expense.ID))
		r.expense = expense
		r.events = nil

		if expense.FlowID == nil {
			e.logger.Warn("Expense has no approval flow, leaving it pending", "expense_id", expense.ID)
			return nil
		}
		flow, err := e.loadFlow(txCtx, *expense.FlowID)
		if err != nil {
			return err
		}
		r.flow = flow
		return e.start(txCtx, r)
	})
	if err != nil {
		expense.ID = 0
		return nil, endSpan(span, err)
	}

	e.publish(ctx, r.events)
	return r.expense, nil
}

func (e *engineImpl) OnExpenseCreated(ctx context.Context, expenseID int64) (*entity.Expense, error) {
	return e.evaluate(ctx, "workflow.OnExpenseCreated", expenseID)
}

func (e *engineImpl) Evaluate(ctx context.Context, expenseID int64) (*entity.Expense, error) {
	return e.evaluate(ctx, "workflow.Evaluate", expenseID)
}

// evaluate starts an unstarted expense or re-runs its current step
func (e *engineImpl) evaluate(ctx context.Context, spanName string, expenseID int64) (*entity.Expense, error) {
	ctx, span := e.startSpan(ctx, spanName, expenseID)
	defer span.End()

	expense, err := e.execute(ctx, expenseID, func(txCtx context.Context, r *run) error {
		if r.expense.StepOrder == 0 {
			return e.start(txCtx, r)
		}
		return e.advance(txCtx, r)
	})
	return expense, endSpan(span, err)
}

func (e *engineImpl) OnAssignmentDecided(ctx context.Context, req DecisionRequest) (*entity.Expense, error) {
	if err := validateDecision(req.Decision); err != nil {
		return nil, err
	}

	assignment, err := e.assignmentRepo.GetByID(ctx, req.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	if assignment == nil {
		return nil, fmt.Errorf("%w: assignment %d", domainwf.ErrNotFound, req.AssignmentID)
	}

	ctx, span := e.startSpan(ctx, "workflow.OnAssignmentDecided", assignment.ExpenseID)
	span.SetAttributes(
		attribute.Int64("assignment_id", req.AssignmentID),
		attribute.String("decision", req.Decision),
	)
	defer span.End()

	expense, err := e.execute(ctx, assignment.ExpenseID, func(txCtx context.Context, r *run) error {
		r.actorID = &req.ActorID

		// Re-read inside the transaction; the row may have changed since the lookup above.
		current, err := e.assignmentRepo.GetByID(txCtx, req.AssignmentID)
		if err != nil {
			return fmt.Errorf("failed to load assignment: %w", err)
		}
		if current == nil || (!req.ActorIsAdmin && current.ApproverID != req.ActorID) {
			return fmt.Errorf("%w: assignment %d", domainwf.ErrNotFound, req.AssignmentID)
		}
		if !current.IsPending() {
			return fmt.Errorf("%w: assignment %d is %s", domainwf.ErrAlreadyDecided, current.ID, current.Status)
		}
		if r.expense.IsTerminal() {
			return fmt.Errorf("%w: expense %d is %s", domainwf.ErrAlreadyDecided, r.expense.ID, r.expense.Status)
		}

		step := r.flow.StepByOrder(r.expense.StepOrder)
		if step == nil || step.ID != current.StepID {
			return fmt.Errorf("%w: assignment %d, expense at step %d", domainwf.ErrStaleStep, current.ID, r.expense.StepOrder)
		}

		comment := strings.TrimSpace(req.Comment)
		if req.ActorIsAdmin {
			comment = strings.TrimSpace(entity.AdminDecisionPrefix + " " + comment)
		}

		if err := e.assignmentRepo.Decide(txCtx, current.ID, req.Decision, comment, e.now()); err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}

		if err := e.record(txCtx, r, entity.ActionDecided, r.expense.Status, r.expense.StepOrder, comment); err != nil {
			return err
		}
		r.emit(event.TypeAssignmentDecided, map[string]interface{}{
			event.KeyAssignmentIDs: []int64{current.ID},
			event.KeyDecision:      req.Decision,
			event.KeyActorID:       req.ActorID,
			event.KeyStepOrder:     r.expense.StepOrder,
			event.KeyComment:       comment,
		})

		e.logger.Info("Assignment decided",
			"expense_id", r.expense.ID,
			"assignment_id", current.ID,
			"approver_id", current.ApproverID,
			"actor_id", req.ActorID,
			"decision", req.Decision,
		)

		return e.advance(txCtx, r)
	})
	return expense, endSpan(span, err)
}

func (e *engineImpl) OnAdminOverride(ctx context.Context, req OverrideRequest) (*entity.Expense, error) {
	if err := validateDecision(req.Decision); err != nil {
		return nil, err
	}

	ctx, span := e.startSpan(ctx, "workflow.OnAdminOverride", req.ExpenseID)
	span.SetAttributes(attribute.String("decision", req.Decision))
	defer span.End()

	expense, err := e.executeWithoutFlow(ctx, req.ExpenseID, func(txCtx context.Context, r *run) error {
		r.actorID = &req.ActorID

		if r.expense.IsTerminal() {
			return fmt.Errorf("%w: expense %d is %s", domainwf.ErrAlreadyDecided, r.expense.ID, r.expense.Status)
		}

		comment := entity.OverrideDefaultComment
		if c := strings.TrimSpace(req.Comment); c != "" {
			comment = entity.OverrideDefaultComment + ": " + c
		}

		closed, err := e.assignmentRepo.OverridePending(txCtx, r.expense.ID, req.Decision, comment, e.now())
		if err != nil {
			return fmt.Errorf("failed to close pending assignments: %w", err)
		}

		trigger := domainwf.TriggerOverrideApprove
		if req.Decision == entity.AssignmentStatusRejected {
			trigger = domainwf.TriggerOverrideReject
		}
		previous := r.expense.Status
		if err := e.finalize(txCtx, r, trigger, entity.ActionOverridden, comment); err != nil {
			return err
		}
		r.emit(event.TypeExpenseOverridden, map[string]interface{}{
			event.KeyEmployeeID:     r.expense.EmployeeID,
			event.KeyStatus:         r.expense.Status,
			event.KeyPreviousStatus: previous,
			event.KeyActorID:        req.ActorID,
			event.KeyComment:        comment,
		})

		e.logger.Info("Expense overridden",
			"expense_id", r.expense.ID,
			"actor_id", req.ActorID,
			"status", r.expense.Status,
			"assignments_closed", closed,
		)
		return nil
	})
	return expense, endSpan(span, err)
}

// execute loads the expense and its flow before calling fn. An expense without
// a flow is returned untouched.
func (e *engineImpl) execute(ctx context.Context, expenseID int64, fn func(ctx context.Context, r *run) error) (*entity.Expense, error) {
	return e.executeWithoutFlow(ctx, expenseID, func(txCtx context.Context, r *run) error {
		if r.expense.FlowID == nil {
			if r.expense.IsTerminal() {
				return nil
			}
			e.logger.Warn("Expense has no approval flow, leaving it pending", "expense_id", r.expense.ID)
			return nil
		}

		flow, err := e.loadFlow(txCtx, *r.expense.FlowID)
		if err != nil {
			return err
		}
		r.flow = flow
		return fn(txCtx, r)
	})
}

func (e *engineImpl) loadFlow(ctx context.Context, flowID int64) (*entity.ApprovalFlow, error) {
	flow, err := e.flowRepo.GetByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow: %w", err)
	}
	if flow == nil {
		return nil, fmt.Errorf("%w: flow %d", domainwf.ErrNotFound, flowID)
	}
	return flow, nil
}

func (e *engineImpl) executeWithoutFlow(ctx context.Context, expenseID int64, fn func(ctx context.Context, r *run) error) (*entity.Expense, error) {
	if e.locker != nil {
		unlock := e.locker.Lock(expenseID)
		defer unlock()
	}

	r := &run{correlationID: uuid.NewString()}
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		expense, err := e.expenseRepo.GetByID(txCtx, expenseID)
		if err != nil {
			return fmt.Errorf("failed to load expense: %w", err)
		}
		if expense == nil {
			return fmt.Errorf("%w: expense %d", domainwf.ErrNotFound, expenseID)
		}
		r.expense = expense
		r.events = nil
		return fn(txCtx, r)
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, r.events)
	return r.expense, nil
}

// start moves a fresh expense onto the first step and evaluates it
func (e *engineImpl) start(ctx context.Context, r *run) error {
	r.actorID = &r.expense.EmployeeID

	if r.expense.IsTerminal() {
		return nil
	}

	first := r.flow.StepByOrder(1)
	if first == nil {
		// Nothing to approve: the flow is exhausted before it begins.
		return e.finalize(ctx, r, domainwf.TriggerApprove, entity.ActionApproved, "")
	}

	if err := e.moveTo(ctx, r, first, entity.ActionSubmitted); err != nil {
		return err
	}
	r.emit(event.TypeExpenseSubmitted, map[string]interface{}{
		event.KeyEmployeeID: r.expense.EmployeeID,
		event.KeyCompanyID:  r.expense.CompanyID,
		event.KeyStepOrder:  first.Order,
	})

	return e.advance(ctx, r)
}

// advance evaluates the current step until the expense is terminal or waits
// for decisions. A step entered with no approvers is evaluated in the same pass.
func (e *engineImpl) advance(ctx context.Context, r *run) error {
	for !r.expense.IsTerminal() {
		step := r.flow.StepByOrder(r.expense.StepOrder)
		if step == nil {
			return e.finalize(ctx, r, domainwf.TriggerApprove, entity.ActionApproved, "")
		}

		assignments, err := e.assignmentRepo.ListByExpenseAndStep(ctx, r.expense.ID, step.ID)
		if err != nil {
			return fmt.Errorf("failed to list assignments: %w", err)
		}

		result := domainwf.Evaluate(r.flow.Rules, assignments)
		for _, w := range result.Warnings {
			e.logger.Warn("Approval rule misconfigured", "expense_id", r.expense.ID, "flow_id", r.flow.ID, "warning", w)
		}

		switch result.Outcome {
		case domainwf.OutcomePending:
			return nil

		case domainwf.OutcomeFailed:
			e.logger.Info("Step failed",
				"expense_id", r.expense.ID,
				"step_order", step.Order,
				"approved", result.Approved,
				"rejected", result.Rejected,
				"required", result.Required,
			)
			return e.finalize(ctx, r, domainwf.TriggerReject, entity.ActionRejected, "")

		case domainwf.OutcomeSatisfied:
			next := r.flow.StepByOrder(step.Order + 1)
			if next == nil {
				return e.finalize(ctx, r, domainwf.TriggerApprove, entity.ActionApproved, "")
			}
			if err := e.moveTo(ctx, r, next, entity.ActionAdvanced); err != nil {
				return err
			}
			r.emit(event.TypeStepAdvanced, map[string]interface{}{
				event.KeyEmployeeID: r.expense.EmployeeID,
				event.KeyStepOrder:  next.Order,
			})

		default:
			return fmt.Errorf("%w: unknown outcome %s", domainwf.ErrInvalidState, result.Outcome)
		}
	}
	return nil
}

// moveTo points the expense at step and materialises its assignments
func (e *engineImpl) moveTo(ctx context.Context, r *run, step *entity.ApprovalStep, action string) error {
	sm := domainwf.NewExpenseStateMachine(domainwf.State(r.expense.Status))
	if err := sm.Fire(domainwf.TriggerAdvance); err != nil {
		return fmt.Errorf("cannot advance expense %d: %w", r.expense.ID, err)
	}

	previousStep := r.expense.StepOrder
	if err := e.expenseRepo.UpdateProgress(ctx, r.expense, sm.State().String(), step.Order); err != nil {
		return fmt.Errorf("failed to advance expense: %w", err)
	}
	if err := e.recordStep(ctx, r, action, r.expense.Status, previousStep, ""); err != nil {
		return err
	}

	assignments, err := e.factory.CreateForStep(ctx, r.expense, step)
	if err != nil {
		return err
	}

	if len(assignments) == 0 {
		if domainwf.Evaluate(r.flow.Rules, nil).Outcome == domainwf.OutcomePending {
			e.logger.Warn("Step has no approvers and its rule can never be met, an admin override is required",
				"expense_id", r.expense.ID,
				"flow_id", r.flow.ID,
				"step_order", step.Order,
			)
		} else {
			e.logger.Warn("Step has no approvers and will be evaluated as complete",
				"expense_id", r.expense.ID,
				"step_order", step.Order,
			)
		}
		return e.record(ctx, r, entity.ActionStepNoApprovers, r.expense.Status, step.Order, "")
	}

	approverIDs := make([]int64, 0, len(assignments))
	assignmentIDs := make([]int64, 0, len(assignments))
	for _, a := range assignments {
		if a.IsPending() {
			approverIDs = append(approverIDs, a.ApproverID)
			assignmentIDs = append(assignmentIDs, a.ID)
		}
	}
	r.emit(event.TypeApprovalRequested, map[string]interface{}{
		event.KeyEmployeeID:    r.expense.EmployeeID,
		event.KeyCompanyID:     r.expense.CompanyID,
		event.KeyStepOrder:     step.Order,
		event.KeyApproverIDs:   approverIDs,
		event.KeyAssignmentIDs: assignmentIDs,
	})
	return nil
}

// finalize moves the expense to a terminal state through the state machine
func (e *engineImpl) finalize(ctx context.Context, r *run, trigger domainwf.Trigger, action, comment string) error {
	sm := domainwf.NewExpenseStateMachine(domainwf.State(r.expense.Status))
	if err := sm.Fire(trigger); err != nil {
		return fmt.Errorf("cannot finalize expense %d: %w", r.expense.ID, err)
	}

	previous := r.expense.Status
	if err := e.expenseRepo.UpdateProgress(ctx, r.expense, sm.State().String(), r.expense.StepOrder); err != nil {
		return fmt.Errorf("failed to finalize expense: %w", err)
	}
	if err := e.recordStatus(ctx, r, action, previous, comment); err != nil {
		return err
	}

	r.emit(event.TypeExpenseFinalized, map[string]interface{}{
		event.KeyEmployeeID:     r.expense.EmployeeID,
		event.KeyCompanyID:      r.expense.CompanyID,
		event.KeyStatus:         r.expense.Status,
		event.KeyPreviousStatus: previous,
		event.KeyStepOrder:      r.expense.StepOrder,
	})

	e.logger.Info("Expense finalized",
		"expense_id", r.expense.ID,
		"status", r.expense.Status,
		"step_order", r.expense.StepOrder,
		"trigger", trigger.String(),
	)
	return nil
}

// record writes a history row that does not change status or step
func (e *engineImpl) record(ctx context.Context, r *run, action, status string, stepOrder int, comment string) error {
	return e.writeHistory(ctx, r, action, status, status, stepOrder, stepOrder, comment)
}

func (e *engineImpl) recordStep(ctx context.Context, r *run, action, status string, previousStep int, comment string) error {
	return e.writeHistory(ctx, r, action, status, status, previousStep, r.expense.StepOrder, comment)
}

func (e *engineImpl) recordStatus(ctx context.Context, r *run, action, previousStatus, comment string) error {
	return e.writeHistory(ctx, r, action, previousStatus, r.expense.Status, r.expense.StepOrder, r.expense.StepOrder, comment)
}

func (e *engineImpl) writeHistory(ctx context.Context, r *run, action, previousStatus, newStatus string, previousStep, newStep int, comment string) error {
	history := &entity.ApprovalHistory{
		ExpenseID:      r.expense.ID,
		ActorID:        r.actorID,
		Action:         action,
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		PreviousStep:   previousStep,
		NewStep:        newStep,
		Comment:        comment,
		Timestamp:      e.now(),
	}
	if err := e.historyRepo.Create(ctx, history); err != nil {
		return fmt.Errorf("failed to create history record: %w", err)
	}
	return nil
}

// publish hands committed events to the dispatcher. Handlers run detached from
// the request so a cancelled caller cannot drop notifications.
func (e *engineImpl) publish(ctx context.Context, events []*event.Event) {
	if e.dispatcher == nil || len(events) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	for _, evt := range events {
		e.dispatcher.DispatchAsync(detached, evt)
	}
}

func (e *engineImpl) startSpan(ctx context.Context, name string, expenseID int64) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, name)
	span.SetAttributes(attribute.Int64("expense_id", expenseID))
	return ctx, span
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func validateDecision(decision string) error {
	switch decision {
	case entity.AssignmentStatusApproved, entity.AssignmentStatusRejected:
		return nil
	default:
		return fmt.Errorf("%w: %q", domainwf.ErrInvalidDecision, decision)
	}
}
