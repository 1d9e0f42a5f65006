// Package approver models the approver policy tokens attached to flow steps.
package approver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Key
type Kind int

const (
	// KindManager selects the submitting employee's direct manager
	KindManager Kind = iota + 1
	// KindUser selects one specific user
	KindUser
	// KindRole selects every user of the company holding a role
	KindRole
)

const (
	tokenManager     = "MANAGER"
	tokenRoleManager = "ROLE:MANAGER"
	prefixUser       = "USER:"
	prefixRole       = "ROLE:"
)

// ErrInvalidToken is returned for tokens that match none of the known shapes
var ErrInvalidToken = errors.New("invalid approver token")

// DefaultTokens is used when a step lists no approvers
var DefaultTokens = []string{tokenManager}

// Key is a parsed approver token
type Key struct {
	Kind   Kind
	UserID int64  // set for KindUser
	Role   string // set for KindRole, upper-cased
}

// Manager returns the MANAGER key
func Manager() Key { return Key{Kind: KindManager} }

// User returns a USER:<id> key
func User(id int64) Key { return Key{Kind: KindUser, UserID: id} }

// Role returns a ROLE:<role> key
func Role(role string) Key { return Key{Kind: KindRole, Role: strings.ToUpper(role)} }

// Parse converts a token into a Key. Accepted shapes:
//
//	MANAGER, ROLE:MANAGER  the employee's manager
//	USER:<id>              that user
//	ROLE:<role>            users holding <role>
func Parse(token string) (Key, error) {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return Key{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	case token == tokenManager || token == tokenRoleManager:
		return Manager(), nil
	case strings.HasPrefix(token, prefixUser):
		id, err := strconv.ParseInt(strings.TrimPrefix(token, prefixUser), 10, 64)
		if err != nil || id <= 0 {
			return Key{}, fmt.Errorf("%w: bad user id in %q", ErrInvalidToken, token)
		}
		return User(id), nil
	case strings.HasPrefix(token, prefixRole):
		role := strings.TrimPrefix(token, prefixRole)
		if role == "" {
			return Key{}, fmt.Errorf("%w: missing role in %q", ErrInvalidToken, token)
		}
		return Role(role), nil
	default:
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
}

// TokensOrDefault returns tokens, or DefaultTokens when tokens is empty
func TokensOrDefault(tokens []string) []string {
	if len(tokens) == 0 {
		return DefaultTokens
	}
	return tokens
}

// String renders the canonical token
func (k Key) String() string {
	switch k.Kind {
	case KindManager:
		return tokenManager
	case KindUser:
		return prefixUser + strconv.FormatInt(k.UserID, 10)
	case KindRole:
		return prefixRole + k.Role
	default:
		return ""
	}
}
