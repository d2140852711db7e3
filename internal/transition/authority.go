package transition

import (
	"fmt"
	"strings"

	"delivery/internal/domain"
)

// Request describes a transition an actor wants to make.
type Request struct {
	Target domain.OrderStatus
	Input
}

// Evaluate validates req against the table and returns the patch to apply.
// It performs no I/O and does not modify req.Order. The caller must apply the
// patch conditionally on req.Order.Status being unchanged.
func (t *Table) Evaluate(req Request) (domain.OrderPatch, error) {
	from := req.Order.Status

	rule, ok := t.Lookup(from, req.Target)
	if !ok {
		return domain.OrderPatch{}, &Error{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("Cannot change order status from %s to %s", from, req.Target),
			From:    from,
			To:      req.Target,
		}
	}

	if !rule.Permits(req.Actor.Role) {
		return domain.OrderPatch{}, &Error{
			Code:         CodeRoleViolation,
			Message:      fmt.Sprintf("Role %q cannot change order status from %s to %s (allowed: %s)", req.Actor.Role, from, req.Target, joinRoles(rule.AllowedRoles)),
			From:         from,
			To:           req.Target,
			AllowedRoles: append([]domain.Role(nil), rule.AllowedRoles...),
		}
	}

	for _, pre := range rule.Preconditions {
		if pre.Holds(req.Input) {
			continue
		}
		code := pre.Code
		if code == "" {
			code = CodePreconditionFailed
		}
		e := &Error{Code: code, Message: pre.Message, From: from, To: req.Target}
		if code == CodeRoleViolation {
			e.AllowedRoles = append([]domain.Role(nil), rule.AllowedRoles...)
		}
		return domain.OrderPatch{}, e
	}

	patch := domain.OrderPatch{}.SetStatus(req.Target)
	for _, effect := range rule.SideEffects {
		patch = patch.Merge(effect(req.Input))
	}
	return patch, nil
}

// AllowedTransitions lists the statuses role may attempt from the order's
// current status. It is a hint for which actions to offer; Evaluate remains
// the only enforcement point.
func (t *Table) AllowedTransitions(order domain.Order, role domain.Role) []domain.OrderStatus {
	var out []domain.OrderStatus
	for _, r := range t.rules {
		if r.From == order.Status && r.Permits(role) {
			out = append(out, r.To)
		}
	}
	return out
}

// Evaluate runs req against the Default table.
func Evaluate(req Request) (domain.OrderPatch, error) {
	return Default.Evaluate(req)
}

// AllowedTransitions queries the Default table.
func AllowedTransitions(order domain.Order, role domain.Role) []domain.OrderStatus {
	return Default.AllowedTransitions(order, role)
}

func joinRoles(roles []domain.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}
