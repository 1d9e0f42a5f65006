package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approver"
)

// Resolver turns a step's approver tokens into concrete user IDs
type Resolver interface {
	// Resolve returns the deduplicated approvers for one employee's expense, in
	// first-seen order. Empty tokens default to MANAGER.
	Resolve(ctx context.Context, employeeID, companyID int64, tokens []string) ([]int64, error)
}

type approverResolver struct {
	identity port.IdentityProvider
	logger   Logger
}

// NewResolver creates a resolver backed by an identity provider
func NewResolver(identity port.IdentityProvider, logger Logger) Resolver {
	if logger == nil {
		logger = nopLogger{}
	}
	return &approverResolver{
		identity: identity,
		logger:   logger,
	}
}

func (r *approverResolver) Resolve(ctx context.Context, employeeID, companyID int64, tokens []string) ([]int64, error) {
	seen := make(map[int64]bool)
	var ids []int64
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, token := range approver.TokensOrDefault(tokens) {
		if strings.TrimSpace(token) == "" {
			continue
		}
		key, err := approver.Parse(token)
		if err != nil {
			r.logger.Warn("Skipping unrecognised approver token",
				"token", token,
				"employee_id", employeeID,
				"error", err,
			)
			continue
		}

		switch key.Kind {
		case approver.KindManager:
			managerID, err := r.identity.GetManagerOf(ctx, employeeID)
			if err != nil {
				return nil, fmt.Errorf("resolve manager of %d: %w", employeeID, err)
			}
			if managerID != nil {
				add(*managerID)
			}
		case approver.KindUser:
			add(key.UserID)
		case approver.KindRole:
			users, err := r.identity.ListUsersByRole(ctx, companyID, key.Role)
			if err != nil {
				return nil, fmt.Errorf("resolve role %s: %w", key.Role, err)
			}
			for _, id := range users {
				add(id)
			}
		}
	}

	return ids, nil
}
