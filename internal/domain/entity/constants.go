package entity

// Status constants for Expense
const (
	ExpenseStatusPending  = "PENDING"
	ExpenseStatusApproved = "APPROVED"
	ExpenseStatusRejected = "REJECTED"
)

// Status constants for ApprovalAssignment
const (
	AssignmentStatusPending  = "PENDING"
	AssignmentStatusApproved = "APPROVED"
	AssignmentStatusRejected = "REJECTED"
)

// Rule type constants for ApprovalRule
const (
	RuleTypePercentage       = "PERCENTAGE"
	RuleTypeSpecificApprover = "SPECIFIC_APPROVER"
	RuleTypeHybrid           = "HYBRID"
)

// Rule combining logic. Stored with each rule but not consulted by the
// evaluator: percentage and specific-approver conditions always combine with OR.
const (
	RuleLogicOr  = "OR"
	RuleLogicAnd = "AND"
)

// User role constants
const (
	RoleAdmin    = "ADMIN"
	RoleManager  = "MANAGER"
	RoleEmployee = "EMPLOYEE"
)

// History action constants
const (
	ActionSubmitted       = "SUBMITTED"
	ActionDecided         = "DECIDED"
	ActionAdvanced        = "ADVANCED"
	ActionApproved        = "APPROVED"
	ActionRejected        = "REJECTED"
	ActionOverridden      = "OVERRIDDEN"
	ActionStepNoApprovers = "STEP_NO_APPROVERS"
)

const (
	// OverrideDefaultComment is written on assignments closed by an admin override
	OverrideDefaultComment = "Overridden by admin"

	// AdminDecisionPrefix marks a decision recorded by an admin on someone else's assignment
	AdminDecisionPrefix = "[Admin decision]"
)
