package transition

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"delivery/internal/domain"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func request(order domain.Order, target domain.OrderStatus, actorID string, role domain.Role, reason string) Request {
	return Request{
		Target: target,
		Input: Input{
			Order:  order,
			Actor:  domain.Actor{ID: actorID, Role: role},
			Reason: reason,
			Now:    testNow,
		},
	}
}

func asTransitionError(t *testing.T, err error) *Error {
	t.Helper()
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("expected *transition.Error, got %v", err)
	}
	return te
}

func TestEvaluate_UnknownPairIsInvalidTransition(t *testing.T) {
	t.Parallel()

	order := domain.Order{ID: "o1", Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusCompleted}

	_, err := Evaluate(request(order, domain.OrderStatusDelivered, "a1", domain.RoleSuperAdmin, ""))
	te := asTransitionError(t, err)
	if te.Code != CodeInvalidTransition {
		t.Errorf("expected %s, got %s", CodeInvalidTransition, te.Code)
	}

	order.Status = domain.OrderStatusCancelled
	_, err = Evaluate(request(order, domain.OrderStatusPending, "a1", domain.RoleSuperAdmin, ""))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected cancelled to be terminal, got %v", err)
	}
}

// For every rule, a role outside the allowed set gets role_violation and no patch.
func TestEvaluate_RoleEnforcementAcrossTable(t *testing.T) {
	t.Parallel()

	for _, rule := range Default.Rules() {
		for _, role := range domain.Roles {
			if rule.Permits(role) {
				continue
			}
			order := domain.Order{
				ID:            "o1",
				Status:        rule.From,
				PaymentStatus: domain.PaymentStatusCompleted,
				RiderID:       "R1",
			}
			patch, err := Evaluate(request(order, rule.To, "R1", role, "because"))
			te := asTransitionError(t, err)
			if te.Code != CodeRoleViolation {
				t.Errorf("%s -> %s as %s: expected role_violation, got %s", rule.From, rule.To, role, te.Code)
			}
			if !reflect.DeepEqual(te.AllowedRoles, rule.AllowedRoles) {
				t.Errorf("%s -> %s: allowed roles detail = %v, want %v", rule.From, rule.To, te.AllowedRoles, rule.AllowedRoles)
			}
			if !patch.IsEmpty() {
				t.Errorf("%s -> %s as %s: expected empty patch, got %+v", rule.From, rule.To, role, patch)
			}
		}
	}
}

func TestEvaluate_PendingToProcessingRequiresPayment(t *testing.T) {
	t.Parallel()

	order := domain.Order{ID: "o1", Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusPending}

	_, err := Evaluate(request(order, domain.OrderStatusProcessing, "s1", domain.RoleSeller, ""))
	te := asTransitionError(t, err)
	if te.Code != CodePreconditionFailed {
		t.Fatalf("expected precondition_failed, got %s", te.Code)
	}
	if !strings.Contains(te.Message, "Payment") {
		t.Errorf("expected payment message, got %q", te.Message)
	}

	order.PaymentStatus = domain.PaymentStatusCompleted
	patch, err := Evaluate(request(order, domain.OrderStatusProcessing, "s1", domain.RoleSeller, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch.Status == nil || *patch.Status != domain.OrderStatusProcessing {
		t.Errorf("expected status processing in patch, got %+v", patch.Status)
	}
}

func TestEvaluate_DeliveringChecksRiderBeforePayment(t *testing.T) {
	t.Parallel()

	order := domain.Order{ID: "o1", Status: domain.OrderStatusProcessing, PaymentStatus: domain.PaymentStatusFailed}

	_, err := Evaluate(request(order, domain.OrderStatusDelivering, "a1", domain.RoleAdmin, ""))
	te := asTransitionError(t, err)
	if te.Message != "Rider must be assigned before delivery can begin" {
		t.Errorf("expected rider message first, got %q", te.Message)
	}

	order.RiderID = "R1"
	_, err = Evaluate(request(order, domain.OrderStatusDelivering, "a1", domain.RoleAdmin, ""))
	te = asTransitionError(t, err)
	if !strings.Contains(te.Message, "Payment") {
		t.Errorf("expected payment message, got %q", te.Message)
	}
}

func TestEvaluate_DisputeResolutionRequiresReason(t *testing.T) {
	t.Parallel()

	order := domain.Order{ID: "o1", Status: domain.OrderStatusDisputed, PaymentStatus: domain.PaymentStatusCompleted}

	for _, target := range []domain.OrderStatus{domain.OrderStatusDelivered, domain.OrderStatusCancelled} {
		for _, reason := range []string{"", "   ", "\t\n"} {
			_, err := Evaluate(request(order, target, "a1", domain.RoleAdmin, reason))
			te := asTransitionError(t, err)
			if te.Code != CodePreconditionFailed {
				t.Errorf("disputed -> %s with reason %q: expected precondition_failed, got %s", target, reason, te.Code)
			}
			if !strings.Contains(te.Message, "Reason required") {
				t.Errorf("expected 'Reason required' message, got %q", te.Message)
			}
		}

		patch, err := Evaluate(request(order, target, "a1", domain.RoleAdmin, "customer confirmed receipt"))
		if err != nil {
			t.Errorf("disputed -> %s with reason: unexpected error %v", target, err)
			continue
		}
		if *patch.Status != target {
			t.Errorf("expected status %s, got %s", target, *patch.Status)
		}
	}
}

func TestEvaluate_RiderMustBeAssignedToDeliver(t *testing.T) {
	t.Parallel()

	order := domain.Order{ID: "o1", Status: domain.OrderStatusDelivering, PaymentStatus: domain.PaymentStatusCompleted, RiderID: "R1"}

	_, err := Evaluate(request(order, domain.OrderStatusDelivered, "R2", domain.RoleRider, ""))
	te := asTransitionError(t, err)
	if te.Code != CodeRoleViolation {
		t.Fatalf("expected role_violation for another rider, got %s", te.Code)
	}
	if len(te.AllowedRoles) == 0 {
		t.Error("expected allowed roles detail on role violation")
	}

	patch, err := Evaluate(request(order, domain.OrderStatusDelivered, "R1", domain.RoleRider, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch.DeliveredAt == nil || !patch.DeliveredAt.Equal(testNow) {
		t.Errorf("expected deliveredAt = %v, got %v", testNow, patch.DeliveredAt)
	}

	// Admins are not subject to the assigned-rider check.
	if _, err := Evaluate(request(order, domain.OrderStatusDelivered, "a1", domain.RoleAdmin, "")); err != nil {
		t.Errorf("admin should be able to mark delivered: %v", err)
	}
}

func TestEvaluate_CancelClearsRiderRegardlessOfPriorValue(t *testing.T) {
	t.Parallel()

	for _, rider := range []string{"", "R1", "R99"} {
		order := domain.Order{ID: "o1", Status: domain.OrderStatusProcessing, RiderID: rider}
		patch, err := Evaluate(request(order, domain.OrderStatusCancelled, "s1", domain.RoleSeller, ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !patch.ClearRiderID || patch.RiderID != nil {
			t.Errorf("rider %q: expected patch to clear rider, got %+v", rider, patch)
		}
		if got := patch.Apply(order); got.RiderID != "" {
			t.Errorf("rider %q: expected rider cleared after apply, got %q", rider, got.RiderID)
		}
	}
}

func TestEvaluate_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	delivered := testNow.Add(-time.Hour)
	order := domain.Order{
		ID:            "o1",
		Status:        domain.OrderStatusDelivering,
		PaymentStatus: domain.PaymentStatusCompleted,
		RiderID:       "R1",
		DeliveredAt:   &delivered,
	}
	before := order

	if _, err := Evaluate(request(order, domain.OrderStatusCancelled, "a1", domain.RoleAdmin, "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(order, before) {
		t.Errorf("order mutated: %+v", order)
	}
}

func TestEvaluate_SideEffectsFoldInOrder(t *testing.T) {
	t.Parallel()

	assign := func(Input) domain.OrderPatch {
		id := "R7"
		return domain.OrderPatch{RiderID: &id}
	}
	table := MustTable([]Rule{
		{From: domain.OrderStatusPending, To: domain.OrderStatusCancelled, AllowedRoles: []domain.Role{domain.RoleAdmin},
			SideEffects: []SideEffect{assign, clearRider}},
	})

	patch, err := table.Evaluate(request(domain.Order{Status: domain.OrderStatusPending}, domain.OrderStatusCancelled, "a1", domain.RoleAdmin, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !patch.ClearRiderID || patch.RiderID != nil {
		t.Errorf("later effect should win, got %+v", patch)
	}
}

func TestAllowedTransitions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status domain.OrderStatus
		role   domain.Role
		want   []domain.OrderStatus
	}{
		{domain.OrderStatusPending, domain.RoleBuyer, []domain.OrderStatus{domain.OrderStatusCancelled}},
		{domain.OrderStatusPending, domain.RoleSeller, []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusCancelled}},
		{domain.OrderStatusProcessing, domain.RoleAdmin, []domain.OrderStatus{domain.OrderStatusDelivering, domain.OrderStatusCancelled, domain.OrderStatusDisputed}},
		{domain.OrderStatusDelivering, domain.RoleRider, []domain.OrderStatus{domain.OrderStatusDelivered}},
		{domain.OrderStatusDelivered, domain.RoleBuyer, []domain.OrderStatus{domain.OrderStatusDisputed}},
		{domain.OrderStatusCancelled, domain.RoleSuperAdmin, nil},
		{domain.OrderStatusDisputed, domain.RoleBuyer, nil},
	}

	for _, tc := range testCases {
		got := AllowedTransitions(domain.Order{Status: tc.status}, tc.role)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("AllowedTransitions(%s, %s) = %v, want %v", tc.status, tc.role, got, tc.want)
		}
	}
}
