package entity

import "time"

// ApprovalFlow is a company's ordered list of approval steps plus evaluation rules.
// Flows are never edited in place; a changed policy is a new flow.
type ApprovalFlow struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"company_id"`
	Name      string          `json:"name"`
	Steps     []*ApprovalStep `json:"steps"`
	Rules     []*ApprovalRule `json:"rules"`
	CreatedAt time.Time       `json:"created_at"`
}

// StepByOrder returns the step with the given order, or nil when the flow has none
func (f *ApprovalFlow) StepByOrder(order int) *ApprovalStep {
	for _, s := range f.Steps {
		if s.Order == order {
			return s
		}
	}
	return nil
}

// ApprovalStep is one stage of a flow
type ApprovalStep struct {
	ID     int64 `json:"id"`
	FlowID int64 `json:"flow_id"`
	Order  int   `json:"order"`
	// Approvers holds policy tokens: MANAGER, USER:<id>, ROLE:<role>
	Approvers    []string `json:"approvers"`
	ManagerFirst bool     `json:"manager_first"`
}

// ApprovalRule decides when a step counts as approved
type ApprovalRule struct {
	ID                 int64    `json:"id"`
	FlowID             int64    `json:"flow_id"`
	Type               string   `json:"type"`
	Threshold          *float64 `json:"threshold,omitempty"`
	SpecificApproverID *int64   `json:"specific_approver_id,omitempty"`
	// Logic is reserved. Sub-conditions are always OR-combined.
	Logic string `json:"logic"`
}
