package workflow

import (
	"fmt"
	"math"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Outcome is the verdict of evaluating one step
type Outcome string

const (
	OutcomePending   Outcome = "PENDING"
	OutcomeSatisfied Outcome = "SATISFIED"
	OutcomeFailed    Outcome = "FAILED"
)

// Evaluation is the result of Evaluate together with the counts that produced it
type Evaluation struct {
	Outcome          Outcome
	Total            int
	Approved         int
	Rejected         int
	Pending          int
	Required         int
	SpecificApproved bool
	// Warnings lists configuration problems that were tolerated
	Warnings []string
}

// Evaluate decides whether a step is satisfied, failed or still pending given the
// flow's rules and every assignment of that step. It performs no I/O.
//
// With no rules every approver must approve and one rejection fails the step.
// The first PERCENTAGE or HYBRID rule sets the required approvals; a
// SPECIFIC_APPROVER or HYBRID rule is met once a named approver approves. When
// both kinds are present either one is sufficient.
func Evaluate(rules []*entity.ApprovalRule, assignments []*entity.ApprovalAssignment) Evaluation {
	ev := Evaluation{Total: len(assignments)}
	for _, a := range assignments {
		switch a.Status {
		case entity.AssignmentStatusApproved:
			ev.Approved++
		case entity.AssignmentStatusRejected:
			ev.Rejected++
		}
	}
	ev.Pending = ev.Total - ev.Approved - ev.Rejected

	if len(rules) == 0 {
		ev.Required = ev.Total
		switch {
		case ev.Approved == ev.Total:
			ev.Outcome = OutcomeSatisfied
		case ev.Rejected > 0:
			ev.Outcome = OutcomeFailed
		default:
			ev.Outcome = OutcomePending
		}
		return ev
	}

	var percentRule *entity.ApprovalRule
	hasSpecificRule := false
	specificIDs := make(map[int64]bool)

	for _, r := range rules {
		switch r.Type {
		case entity.RuleTypePercentage, entity.RuleTypeHybrid:
			if percentRule == nil {
				percentRule = r
			}
		}
		switch r.Type {
		case entity.RuleTypeSpecificApprover, entity.RuleTypeHybrid:
			hasSpecificRule = true
		}
		if r.SpecificApproverID != nil {
			specificIDs[*r.SpecificApproverID] = true
		}
		ev.Warnings = append(ev.Warnings, ruleWarnings(r)...)
	}

	for _, a := range assignments {
		if a.Status == entity.AssignmentStatusApproved && specificIDs[a.ApproverID] {
			ev.SpecificApproved = true
			break
		}
	}

	percentSatisfied := false
	if percentRule != nil {
		ev.Required = requiredApprovals(percentRule.Threshold, ev.Total)
		percentSatisfied = ev.Approved >= ev.Required
	}

	satisfied := false
	switch {
	case hasSpecificRule && percentRule != nil:
		satisfied = percentSatisfied || ev.SpecificApproved
	case hasSpecificRule:
		satisfied = ev.SpecificApproved
	case percentRule != nil:
		satisfied = percentSatisfied
	}

	if satisfied {
		ev.Outcome = OutcomeSatisfied
		return ev
	}

	// assume every pending assignment still approves
	if ev.Rejected > 0 && percentRule != nil {
		maxPossible := ev.Approved + ev.Pending
		if maxPossible < ev.Required && !ev.SpecificApproved {
			ev.Outcome = OutcomeFailed
			return ev
		}
	}

	ev.Outcome = OutcomePending
	return ev
}

// requiredApprovals is ceil(threshold% of total) with a floor of 1. A missing
// threshold means every approver.
func requiredApprovals(threshold *float64, total int) int {
	if threshold == nil {
		return total
	}
	need := int(math.Ceil(*threshold * float64(total) / 100))
	if need <= 0 {
		return 1
	}
	return need
}

func ruleWarnings(r *entity.ApprovalRule) []string {
	switch r.Type {
	case entity.RuleTypeHybrid:
		if r.Threshold == nil && r.SpecificApproverID == nil {
			return []string{fmt.Sprintf("hybrid rule %d has neither threshold nor specific approver, requiring unanimous approval", r.ID)}
		}
	case entity.RuleTypePercentage:
		if r.Threshold == nil {
			return []string{fmt.Sprintf("percentage rule %d has no threshold, requiring unanimous approval", r.ID)}
		}
	case entity.RuleTypeSpecificApprover:
		if r.SpecificApproverID == nil {
			return []string{fmt.Sprintf("specific approver rule %d names no approver and can never be met", r.ID)}
		}
	default:
		return []string{fmt.Sprintf("rule %d has unknown type %q", r.ID, r.Type)}
	}
	return nil
}
