package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// memStore is an in-memory stand-in for the database shared by the mock repositories.
// WithTransaction serialises transactions and restores a snapshot when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	flows       map[int64]*entity.ApprovalFlow
	expenses    map[int64]entity.Expense
	assignments map[int64]entity.ApprovalAssignment
	history     []entity.ApprovalHistory
	nextID      int64

	// failUpdate, when set, is consulted before every UpdateProgress
	failUpdate func(expense *entity.Expense, status string, stepOrder int) error
}

func newMemStore() *memStore {
	return &memStore{
		flows:       make(map[int64]*entity.ApprovalFlow),
		expenses:    make(map[int64]entity.Expense),
		assignments: make(map[int64]entity.ApprovalAssignment),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	expenses := make(map[int64]entity.Expense, len(s.expenses))
	for k, v := range s.expenses {
		expenses[k] = v
	}
	assignments := make(map[int64]entity.ApprovalAssignment, len(s.assignments))
	for k, v := range s.assignments {
		assignments[k] = v
	}
	history := append([]entity.ApprovalHistory(nil), s.history...)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.expenses = expenses
		s.assignments = assignments
		s.history = history
		s.mu.Unlock()
		return err
	}
	return nil
}

// addFlow stores a flow and assigns IDs to it and its steps and rules
func (s *memStore) addFlow(flow *entity.ApprovalFlow) *entity.ApprovalFlow {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow.ID = s.id()
	for _, step := range flow.Steps {
		step.ID = s.id()
		step.FlowID = flow.ID
	}
	for _, rule := range flow.Rules {
		rule.ID = s.id()
		rule.FlowID = flow.ID
	}
	s.flows[flow.ID] = flow
	return flow
}

func (s *memStore) addExpense(employeeID int64, flowID *int64) *entity.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entity.Expense{
		ID:         s.id(),
		EmployeeID: employeeID,
		CompanyID:  1,
		Status:     entity.ExpenseStatusPending,
		FlowID:     flowID,
	}
	s.expenses[e.ID] = e
	return &e
}

func (s *memStore) expense(id int64) entity.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expenses[id]
}

func (s *memStore) assignmentsOf(expenseID int64) []entity.ApprovalAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.ApprovalAssignment
	for _, a := range s.assignments {
		if a.ExpenseID == expenseID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// pendingFor returns the pending assignment of approverID on the expense
func (s *memStore) pendingFor(expenseID, approverID int64) int64 {
	for _, a := range s.assignmentsOf(expenseID) {
		if a.ApproverID == approverID && a.Status == entity.AssignmentStatusPending {
			return a.ID
		}
	}
	return 0
}

func (s *memStore) historyOf(expenseID int64) []entity.ApprovalHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.ApprovalHistory
	for _, h := range s.history {
		if h.ExpenseID == expenseID {
			out = append(out, h)
		}
	}
	return out
}

func (s *memStore) actions(expenseID int64) []string {
	var out []string
	for _, h := range s.historyOf(expenseID) {
		out = append(out, h.Action)
	}
	return out
}

type memFlowRepo struct{ s *memStore }

func (r memFlowRepo) Create(ctx context.Context, flow *entity.ApprovalFlow) error {
	r.s.addFlow(flow)
	return nil
}

func (r memFlowRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalFlow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.flows[id], nil
}

func (r memFlowRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.ApprovalFlow
	for _, f := range r.s.flows {
		if f.CompanyID == companyID {
			out = append(out, f)
		}
	}
	return out, nil
}

type memExpenseRepo struct{ s *memStore }

func (r memExpenseRepo) Create(ctx context.Context, expense *entity.Expense) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	expense.ID = r.s.id()
	r.s.expenses[expense.ID] = *expense
	return nil
}

func (r memExpenseRepo) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.expenses[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r memExpenseRepo) ListByEmployee(ctx context.Context, employeeID int64) ([]*entity.Expense, error) {
	return nil, errors.New("not implemented")
}

func (r memExpenseRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.Expense, error) {
	return nil, errors.New("not implemented")
}

func (r memExpenseRepo) ListByManager(ctx context.Context, managerID int64) ([]*entity.Expense, error) {
	return nil, errors.New("not implemented")
}

func (r memExpenseRepo) UpdateProgress(ctx context.Context, expense *entity.Expense, status string, stepOrder int) error {
	if r.s.failUpdate != nil {
		if err := r.s.failUpdate(expense, status, stepOrder); err != nil {
			return err
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.expenses[expense.ID]
	if !ok || stored.Status != expense.Status || stored.StepOrder != expense.StepOrder || stored.Version != expense.Version {
		return domainwf.ErrConcurrentUpdate
	}
	stored.Status = status
	stored.StepOrder = stepOrder
	stored.Version++
	r.s.expenses[expense.ID] = stored
	*expense = stored
	return nil
}

type memAssignmentRepo struct{ s *memStore }

func (r memAssignmentRepo) CreateBatch(ctx context.Context, assignments []*entity.ApprovalAssignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range assignments {
		duplicate := false
		for _, existing := range r.s.assignments {
			if existing.ExpenseID == a.ExpenseID && existing.StepID == a.StepID && existing.ApproverID == a.ApproverID {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		a.ID = r.s.id()
		r.s.assignments[a.ID] = *a
	}
	return nil
}

func (r memAssignmentRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalAssignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r memAssignmentRepo) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalAssignment, error) {
	var out []*entity.ApprovalAssignment
	for _, a := range r.s.assignmentsOf(expenseID) {
		a := a
		out = append(out, &a)
	}
	return out, nil
}

func (r memAssignmentRepo) ListByExpenseAndStep(ctx context.Context, expenseID, stepID int64) ([]*entity.ApprovalAssignment, error) {
	var out []*entity.ApprovalAssignment
	for _, a := range r.s.assignmentsOf(expenseID) {
		if a.StepID == stepID {
			a := a
			out = append(out, &a)
		}
	}
	return out, nil
}

func (r memAssignmentRepo) Decide(ctx context.Context, id int64, status, comment string, decidedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return fmt.Errorf("%w: assignment %d", domainwf.ErrNotFound, id)
	}
	if a.Status != entity.AssignmentStatusPending {
		return domainwf.ErrAlreadyDecided
	}
	a.Status = status
	a.Comment = comment
	a.DecidedAt = &decidedAt
	r.s.assignments[id] = a
	return nil
}

func (r memAssignmentRepo) OverridePending(ctx context.Context, expenseID int64, status, comment string, decidedAt time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, a := range r.s.assignments {
		if a.ExpenseID == expenseID && a.Status == entity.AssignmentStatusPending {
			a.Status = status
			a.Comment = comment
			a.DecidedAt = &decidedAt
			r.s.assignments[id] = a
			n++
		}
	}
	return n, nil
}

func (r memAssignmentRepo) ListPendingByApprover(ctx context.Context, approverID int64) ([]*entity.PendingApproval, error) {
	return nil, errors.New("not implemented")
}

func (r memAssignmentRepo) ListPendingByCompany(ctx context.Context, companyID int64) ([]*entity.PendingApproval, error) {
	return nil, errors.New("not implemented")
}

func (r memAssignmentRepo) ListDecidedByApprover(ctx context.Context, approverID int64, limit int) ([]*entity.PendingApproval, error) {
	return nil, errors.New("not implemented")
}

func (r memAssignmentRepo) ListPendingCreatedBefore(ctx context.Context, t time.Time, limit int) ([]*entity.PendingApproval, error) {
	return nil, errors.New("not implemented")
}

type memHistoryRepo struct{ s *memStore }

func (r memHistoryRepo) Create(ctx context.Context, history *entity.ApprovalHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	history.ID = r.s.id()
	r.s.history = append(r.s.history, *history)
	return nil
}

func (r memHistoryRepo) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalHistory, error) {
	var out []*entity.ApprovalHistory
	for _, h := range r.s.historyOf(expenseID) {
		h := h
		out = append(out, &h)
	}
	return out, nil
}

func (r memHistoryRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalHistory, error) {
	return nil, errors.New("not implemented")
}

// mockIdentity resolves managers and roles from maps
type mockIdentity struct {
	managers map[int64]int64
	roles    map[string][]int64
	err      error
}

func (m *mockIdentity) GetManagerOf(ctx context.Context, employeeID int64) (*int64, error) {
	if m.err != nil {
		return nil, m.err
	}
	id, ok := m.managers[employeeID]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (m *mockIdentity) ListUsersByRole(ctx context.Context, companyID int64, role string) ([]int64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.roles[role], nil
}

// recordingLogger keeps messages per level
type recordingLogger struct {
	mu    sync.Mutex
	infos []string
	warns []string
	errs  []string
}

func (l *recordingLogger) Info(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, msg)
}

func (l *recordingLogger) warned(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.warns {
		if w == msg {
			return true
		}
	}
	return false
}
