package transition

import (
	"fmt"

	"delivery/internal/domain"
)

// ErrorCode classifies why a transition was refused.
type ErrorCode string

const (
	CodeInvalidTransition  ErrorCode = "invalid_transition"
	CodeRoleViolation      ErrorCode = "role_violation"
	CodePreconditionFailed ErrorCode = "precondition_failed"
	CodePaymentRequired    ErrorCode = "payment_required"
)

// Error is the result of a refused transition. It is an ordinary value, not
// a failure of the engine.
type Error struct {
	Code         ErrorCode
	Message      string
	From         domain.OrderStatus
	To           domain.OrderStatus
	AllowedRoles []domain.Role
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so callers can use the sentinels
// below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	// ErrInvalidTransition matches errors for pairs absent from the rule table.
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}

	// ErrRoleViolation matches errors for actors not permitted to act.
	ErrRoleViolation = &Error{Code: CodeRoleViolation}

	// ErrPreconditionFailed matches errors for failed business predicates.
	ErrPreconditionFailed = &Error{Code: CodePreconditionFailed}

	// ErrPaymentRequired is reserved for gateway-driven flows.
	ErrPaymentRequired = &Error{Code: CodePaymentRequired}
)
