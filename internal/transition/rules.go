package transition

import (
	"strings"
	"time"

	"delivery/internal/domain"
)

// Input is the snapshot a rule is evaluated against.
type Input struct {
	Order  domain.Order
	Actor  domain.Actor
	Reason string
	Now    time.Time
}

// Precondition is a pure predicate over an Input. Code defaults to
// precondition_failed when empty.
type Precondition struct {
	Code    ErrorCode
	Message string
	Holds   func(in Input) bool
}

// SideEffect produces a partial patch for the order.
type SideEffect func(in Input) domain.OrderPatch

// Rule declares one legal (from, to) transition.
type Rule struct {
	From          domain.OrderStatus
	To            domain.OrderStatus
	AllowedRoles  []domain.Role
	Preconditions []Precondition
	SideEffects   []SideEffect
}

// Permits reports whether role may attempt the transition.
func (r Rule) Permits(role domain.Role) bool {
	for _, allowed := range r.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

var (
	sellerAndAdmins = []domain.Role{domain.RoleSeller, domain.RoleAdmin, domain.RoleSuperAdmin}
	buyerAndAdmins  = []domain.Role{domain.RoleBuyer, domain.RoleAdmin, domain.RoleSuperAdmin}
	riderAndAdmins  = []domain.Role{domain.RoleRider, domain.RoleAdmin, domain.RoleSuperAdmin}
	adminsOnly      = []domain.Role{domain.RoleAdmin, domain.RoleSuperAdmin}
	anyParty        = []domain.Role{domain.RoleBuyer, domain.RoleSeller, domain.RoleAdmin, domain.RoleSuperAdmin}
)

var (
	paymentCompleted = Precondition{
		Message: "Payment must be completed before the order can proceed",
		Holds: func(in Input) bool {
			return in.Order.PaymentStatus == domain.PaymentStatusCompleted
		},
	}

	riderAssigned = Precondition{
		Message: "Rider must be assigned before delivery can begin",
		Holds: func(in Input) bool {
			return in.Order.HasRider()
		},
	}

	// Riders may only complete orders assigned to them. Other allowed roles
	// pass unconditionally.
	assignedRiderOnly = Precondition{
		Code:    CodeRoleViolation,
		Message: "Only the assigned rider can mark this order as delivered",
		Holds: func(in Input) bool {
			if in.Actor.Role != domain.RoleRider {
				return true
			}
			return in.Actor.ID != "" && in.Actor.ID == in.Order.RiderID
		},
	}

	reasonRequired = Precondition{
		Message: "Reason required to resolve a dispute",
		Holds: func(in Input) bool {
			return strings.TrimSpace(in.Reason) != ""
		},
	}
)

func clearRider(Input) domain.OrderPatch {
	return domain.OrderPatch{ClearRiderID: true}
}

func stampDelivered(in Input) domain.OrderPatch {
	now := in.Now
	return domain.OrderPatch{DeliveredAt: &now}
}

// defaultRules is the order lifecycle. cancelled has no outgoing rules.
var defaultRules = []Rule{
	{From: domain.OrderStatusPending, To: domain.OrderStatusProcessing, AllowedRoles: sellerAndAdmins,
		Preconditions: []Precondition{paymentCompleted}},
	{From: domain.OrderStatusPending, To: domain.OrderStatusCancelled, AllowedRoles: anyParty},

	{From: domain.OrderStatusProcessing, To: domain.OrderStatusDelivering, AllowedRoles: adminsOnly,
		Preconditions: []Precondition{riderAssigned, paymentCompleted}},
	{From: domain.OrderStatusProcessing, To: domain.OrderStatusCancelled, AllowedRoles: sellerAndAdmins,
		SideEffects: []SideEffect{clearRider}},
	{From: domain.OrderStatusProcessing, To: domain.OrderStatusDisputed, AllowedRoles: buyerAndAdmins},

	{From: domain.OrderStatusDelivering, To: domain.OrderStatusDelivered, AllowedRoles: riderAndAdmins,
		Preconditions: []Precondition{assignedRiderOnly},
		SideEffects:   []SideEffect{stampDelivered}},
	{From: domain.OrderStatusDelivering, To: domain.OrderStatusCancelled, AllowedRoles: adminsOnly,
		SideEffects: []SideEffect{clearRider}},
	{From: domain.OrderStatusDelivering, To: domain.OrderStatusDisputed, AllowedRoles: buyerAndAdmins},

	{From: domain.OrderStatusDelivered, To: domain.OrderStatusDisputed, AllowedRoles: buyerAndAdmins},

	{From: domain.OrderStatusDisputed, To: domain.OrderStatusDelivered, AllowedRoles: adminsOnly,
		Preconditions: []Precondition{reasonRequired}},
	{From: domain.OrderStatusDisputed, To: domain.OrderStatusCancelled, AllowedRoles: adminsOnly,
		Preconditions: []Precondition{reasonRequired}},
}
