package entity

import "time"

// Company owns users, flows and expenses
type Company struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	CurrencyCode string    `json:"currency_code"`
	ActiveFlowID *int64    `json:"active_flow_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// User is an employee, manager or admin of a company
type User struct {
	ID         int64     `json:"id"`
	CompanyID  int64     `json:"company_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	ManagerID  *int64    `json:"manager_id,omitempty"`
	LarkOpenID string    `json:"lark_open_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsAdmin reports whether the user holds the ADMIN role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
