package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a reimbursement claim moving through an approval flow
type Expense struct {
	ID               int64           `json:"id"`
	EmployeeID       int64           `json:"employee_id"`
	CompanyID        int64           `json:"company_id"`
	AmountOriginal   decimal.Decimal `json:"amount_original"`
	CurrencyOriginal string          `json:"currency_original"`
	AmountCompany    decimal.Decimal `json:"amount_company"`
	CurrencyCompany  string          `json:"currency_company"`
	Category         string          `json:"category"`
	Description      string          `json:"description"`
	ExpenseDate      time.Time       `json:"expense_date"`
	Status           string          `json:"status"`
	FlowID           *int64          `json:"flow_id,omitempty"`
	StepOrder        int             `json:"step_order"`
	// Version increases on every progress update and guards conditional writes
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the expense reached APPROVED or REJECTED
func (e *Expense) IsTerminal() bool {
	return e.Status == ExpenseStatusApproved || e.Status == ExpenseStatusRejected
}

// ExpenseDetail is an expense together with every assignment created for it
type ExpenseDetail struct {
	Expense     *Expense              `json:"expense"`
	Assignments []*ApprovalAssignment `json:"assignments"`
}

// Activity is a user's own expenses, the decisions they made and who their manager is
type Activity struct {
	Expenses  []*Expense         `json:"expenses"`
	Decisions []*PendingApproval `json:"decisions"`
	Manager   *User              `json:"manager,omitempty"`
}
