package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

type mockCompanyRepo struct {
	companies       map[int64]*entity.Company
	nextID          int64
	setActiveFlowFn func(ctx context.Context, companyID, flowID int64) error
}

func newMockCompanyRepo(companies ...*entity.Company) *mockCompanyRepo {
	m := &mockCompanyRepo{companies: make(map[int64]*entity.Company)}
	for _, c := range companies {
		m.companies[c.ID] = c
	}
	return m
}

func (m *mockCompanyRepo) Create(ctx context.Context, company *entity.Company) error {
	if company.ID == 0 {
		m.nextID++
		company.ID = 100 + m.nextID
	}
	m.companies[company.ID] = company
	return nil
}

func (m *mockCompanyRepo) GetByID(ctx context.Context, id int64) (*entity.Company, error) {
	c, ok := m.companies[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *mockCompanyRepo) SetActiveFlow(ctx context.Context, companyID, flowID int64) error {
	if m.setActiveFlowFn != nil {
		return m.setActiveFlowFn(ctx, companyID, flowID)
	}
	c, ok := m.companies[companyID]
	if !ok {
		return fmt.Errorf("company %d not found", companyID)
	}
	c.ActiveFlowID = &flowID
	return nil
}

type mockUserRepo struct {
	users  map[int64]*entity.User
	nextID int64
}

func newMockUserRepo(users ...*entity.User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[int64]*entity.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) Create(ctx context.Context, user *entity.User) error {
	for _, u := range m.users {
		if u.Email != "" && u.Email == user.Email {
			return fmt.Errorf("%w: %s", port.ErrDuplicateEmail, user.Email)
		}
	}
	if user.ID == 0 {
		m.nextID++
		user.ID = 1000 + m.nextID
	}
	user.Role = strings.ToUpper(user.Role)
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) SetManager(ctx context.Context, userID int64, managerID *int64) error {
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %d", domainwf.ErrNotFound, userID)
	}
	u.ManagerID = managerID
	return nil
}

func (m *mockUserRepo) UpdateRole(ctx context.Context, userID int64, role string) error {
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %d", domainwf.ErrNotFound, userID)
	}
	u.Role = role
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepo) GetByIDs(ctx context.Context, ids []int64) ([]*entity.User, error) {
	var out []*entity.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error) {
	var out []*entity.User
	for _, u := range m.users {
		if u.CompanyID == companyID {
			out = append(out, u)
		}
	}
	return out, nil
}

type mockFlowRepo struct {
	flows    map[int64]*entity.ApprovalFlow
	nextID   int64
	createFn func(ctx context.Context, flow *entity.ApprovalFlow) error
}

func newMockFlowRepo() *mockFlowRepo {
	return &mockFlowRepo{flows: make(map[int64]*entity.ApprovalFlow)}
}

func (m *mockFlowRepo) Create(ctx context.Context, flow *entity.ApprovalFlow) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, flow); err != nil {
			return err
		}
	}
	m.nextID++
	flow.ID = m.nextID
	for i, st := range flow.Steps {
		st.ID = flow.ID*100 + int64(i) + 1
		st.FlowID = flow.ID
	}
	m.flows[flow.ID] = flow
	return nil
}

func (m *mockFlowRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalFlow, error) {
	return m.flows[id], nil
}

func (m *mockFlowRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error) {
	var out []*entity.ApprovalFlow
	for _, f := range m.flows {
		if f.CompanyID == companyID {
			out = append(out, f)
		}
	}
	return out, nil
}

type mockExpenseRepo struct {
	expenses map[int64]*entity.Expense
	// users resolves managers for ListByManager
	users    *mockUserRepo
	nextID   int64
	createFn func(ctx context.Context, expense *entity.Expense) error
}

func newMockExpenseRepo(expenses ...*entity.Expense) *mockExpenseRepo {
	m := &mockExpenseRepo{expenses: make(map[int64]*entity.Expense)}
	for _, e := range expenses {
		m.expenses[e.ID] = e
		if e.ID > m.nextID {
			m.nextID = e.ID
		}
	}
	return m
}

func (m *mockExpenseRepo) Create(ctx context.Context, expense *entity.Expense) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, expense); err != nil {
			return err
		}
	}
	m.nextID++
	expense.ID = m.nextID
	m.expenses[expense.ID] = expense
	return nil
}

func (m *mockExpenseRepo) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	e, ok := m.expenses[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *mockExpenseRepo) ListByEmployee(ctx context.Context, employeeID int64) ([]*entity.Expense, error) {
	var out []*entity.Expense
	for _, e := range m.expenses {
		if e.EmployeeID == employeeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockExpenseRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.Expense, error) {
	var out []*entity.Expense
	for _, e := range m.expenses {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockExpenseRepo) ListByManager(ctx context.Context, managerID int64) ([]*entity.Expense, error) {
	var out []*entity.Expense
	if m.users == nil {
		return out, nil
	}
	for _, e := range m.expenses {
		if u, ok := m.users.users[e.EmployeeID]; ok && u.ManagerID != nil && *u.ManagerID == managerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockExpenseRepo) UpdateProgress(ctx context.Context, expense *entity.Expense, status string, stepOrder int) error {
	expense.Status = status
	expense.StepOrder = stepOrder
	m.expenses[expense.ID] = expense
	return nil
}

type mockAssignmentRepo struct {
	assignments       []*entity.ApprovalAssignment
	pendingByApprover func(ctx context.Context, approverID int64) ([]*entity.PendingApproval, error)
	pendingByCompany  func(ctx context.Context, companyID int64) ([]*entity.PendingApproval, error)
}

func (m *mockAssignmentRepo) CreateBatch(ctx context.Context, assignments []*entity.ApprovalAssignment) error {
	m.assignments = append(m.assignments, assignments...)
	return nil
}

func (m *mockAssignmentRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalAssignment, error) {
	for _, a := range m.assignments {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockAssignmentRepo) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalAssignment, error) {
	var out []*entity.ApprovalAssignment
	for _, a := range m.assignments {
		if a.ExpenseID == expenseID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) ListByExpenseAndStep(ctx context.Context, expenseID, stepID int64) ([]*entity.ApprovalAssignment, error) {
	var out []*entity.ApprovalAssignment
	for _, a := range m.assignments {
		if a.ExpenseID == expenseID && a.StepID == stepID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) Decide(ctx context.Context, id int64, status, comment string, decidedAt time.Time) error {
	return nil
}

func (m *mockAssignmentRepo) OverridePending(ctx context.Context, expenseID int64, status, comment string, decidedAt time.Time) (int64, error) {
	return 0, nil
}

func (m *mockAssignmentRepo) ListPendingByApprover(ctx context.Context, approverID int64) ([]*entity.PendingApproval, error) {
	if m.pendingByApprover != nil {
		return m.pendingByApprover(ctx, approverID)
	}
	return nil, nil
}

func (m *mockAssignmentRepo) ListPendingByCompany(ctx context.Context, companyID int64) ([]*entity.PendingApproval, error) {
	if m.pendingByCompany != nil {
		return m.pendingByCompany(ctx, companyID)
	}
	return nil, nil
}

func (m *mockAssignmentRepo) ListDecidedByApprover(ctx context.Context, approverID int64, limit int) ([]*entity.PendingApproval, error) {
	var out []*entity.PendingApproval
	for _, a := range m.assignments {
		if a.ApproverID == approverID && !a.IsPending() {
			out = append(out, &entity.PendingApproval{Assignment: a})
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) ListPendingCreatedBefore(ctx context.Context, t time.Time, limit int) ([]*entity.PendingApproval, error) {
	return nil, nil
}

type mockHistoryRepo struct {
	byExpense map[int64][]*entity.ApprovalHistory
}

func (m *mockHistoryRepo) Create(ctx context.Context, history *entity.ApprovalHistory) error {
	if m.byExpense == nil {
		m.byExpense = make(map[int64][]*entity.ApprovalHistory)
	}
	m.byExpense[history.ExpenseID] = append(m.byExpense[history.ExpenseID], history)
	return nil
}

func (m *mockHistoryRepo) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalHistory, error) {
	return m.byExpense[expenseID], nil
}

func (m *mockHistoryRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalHistory, error) {
	var out []*entity.ApprovalHistory
	for _, h := range m.byExpense {
		out = append(out, h...)
	}
	return out, nil
}

// mockTxManager runs fn directly
type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

// mockEngine stores submitted expenses in expenses when set
type mockEngine struct {
	expenses *mockExpenseRepo

	submitFn              func(ctx context.Context, expense *entity.Expense) (*entity.Expense, error)
	onExpenseCreatedFn    func(ctx context.Context, expenseID int64) (*entity.Expense, error)
	onAssignmentDecidedFn func(ctx context.Context, req workflow.DecisionRequest) (*entity.Expense, error)
	onAdminOverrideFn     func(ctx context.Context, req workflow.OverrideRequest) (*entity.Expense, error)

	decisions []workflow.DecisionRequest
	overrides []workflow.OverrideRequest
	evaluated []int64
	created   []int64
}

func (m *mockEngine) Submit(ctx context.Context, expense *entity.Expense) (*entity.Expense, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, expense)
	}
	if m.expenses != nil {
		if err := m.expenses.Create(ctx, expense); err != nil {
			return nil, err
		}
	}
	m.created = append(m.created, expense.ID)
	started := *expense
	started.StepOrder = 1
	return &started, nil
}

func (m *mockEngine) OnExpenseCreated(ctx context.Context, expenseID int64) (*entity.Expense, error) {
	m.created = append(m.created, expenseID)
	if m.onExpenseCreatedFn != nil {
		return m.onExpenseCreatedFn(ctx, expenseID)
	}
	return &entity.Expense{ID: expenseID, Status: entity.ExpenseStatusPending, StepOrder: 1}, nil
}

func (m *mockEngine) OnAssignmentDecided(ctx context.Context, req workflow.DecisionRequest) (*entity.Expense, error) {
	m.decisions = append(m.decisions, req)
	if m.onAssignmentDecidedFn != nil {
		return m.onAssignmentDecidedFn(ctx, req)
	}
	return &entity.Expense{Status: entity.ExpenseStatusPending}, nil
}

func (m *mockEngine) OnAdminOverride(ctx context.Context, req workflow.OverrideRequest) (*entity.Expense, error) {
	m.overrides = append(m.overrides, req)
	if m.onAdminOverrideFn != nil {
		return m.onAdminOverrideFn(ctx, req)
	}
	return &entity.Expense{ID: req.ExpenseID, Status: req.Decision}, nil
}

func (m *mockEngine) Evaluate(ctx context.Context, expenseID int64) (*entity.Expense, error) {
	m.evaluated = append(m.evaluated, expenseID)
	return &entity.Expense{ID: expenseID, Status: entity.ExpenseStatusPending, StepOrder: 1}, nil
}

type mockNotifier struct {
	name string
	err  error

	mu   sync.Mutex
	sent []*port.Notification
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Notify(ctx context.Context, n *port.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return m.err
}

type mockPublisher struct {
	err       error
	published []*event.Event
}

func (m *mockPublisher) Publish(ctx context.Context, evt *event.Event) error {
	m.published = append(m.published, evt)
	return m.err
}

func (m *mockPublisher) Close() error { return nil }

type mockExporter struct {
	err      error
	expenses []*entity.Expense
	history  []*entity.ApprovalHistory
}

func (m *mockExporter) ContentType() string { return "text/plain" }

func (m *mockExporter) Export(ctx context.Context, w io.Writer, expenses []*entity.Expense, history []*entity.ApprovalHistory) error {
	m.expenses = expenses
	m.history = history
	if m.err != nil {
		return m.err
	}
	_, err := fmt.Fprintf(w, "%d expenses", len(expenses))
	return err
}

type mockLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (m *mockLogger) record(level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, level+": "+msg)
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  { m.record("INFO", msg) }
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  { m.record("WARN", msg) }
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) { m.record("ERROR", msg) }

func (m *mockLogger) has(entry string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.msgs {
		if msg == entry {
			return true
		}
	}
	return false
}

func int64p(v int64) *int64 { return &v }

func float64p(v float64) *float64 { return &v }
