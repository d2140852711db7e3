package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"delivery/internal/domain"
	"delivery/internal/events"
	"delivery/internal/logging"
	"delivery/internal/observability"
	"delivery/internal/repository"
	"delivery/internal/transition"
)

// OrderServiceDeps holds the collaborators of an OrderService. Only Orders is required.
type OrderServiceDeps struct {
	Orders    repository.OrderRepository
	Riders    repository.RiderRepository
	Audit     repository.AuditRepository
	Publisher events.Publisher
	Rules     *transition.Table
	Logger    *slog.Logger
	Clock     func() time.Time
}

// OrderService orchestrates order transitions against the rule table.
type OrderService struct {
	orders    repository.OrderRepository
	riders    repository.RiderRepository
	audit     repository.AuditRepository
	publisher events.Publisher
	rules     *transition.Table
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(deps OrderServiceDeps) *OrderService {
	s := &OrderService{
		orders:    deps.Orders,
		riders:    deps.Riders,
		audit:     deps.Audit,
		publisher: deps.Publisher,
		rules:     deps.Rules,
		logger:    deps.Logger,
		now:       deps.Clock,
	}
	if s.rules == nil {
		s.rules = transition.Default
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// CreateOrderRequest contains the parameters for creating an order.
type CreateOrderRequest struct {
	BuyerID     string
	SellerID    string
	AmountMinor int64
	Currency    string
}

// CreateOrder persists a new order in pending status with payment pending.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if req.BuyerID == "" || req.SellerID == "" || req.AmountMinor <= 0 || len(strings.TrimSpace(req.Currency)) != 3 {
		return nil, ErrInvalidOrder
	}

	now := s.now()
	order := &domain.Order{
		ID:            uuid.New().String(),
		BuyerID:       req.BuyerID,
		SellerID:      req.SellerID,
		AmountMinor:   req.AmountMinor,
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	return s.orders.GetByID(ctx, orderID)
}

// TransitionRequest contains the parameters for a status change.
type TransitionRequest struct {
	OrderID string
	Target  domain.OrderStatus
	Actor   domain.Actor
	Reason  string
}

// Transition evaluates the request against a snapshot of the order and writes
// the resulting patch only if the order's status is still the snapshot's.
// Business rule failures are returned as *transition.Error. A lost race is
// returned as ErrConcurrentTransition and is never retried here.
func (s *OrderService) Transition(ctx context.Context, req TransitionRequest) (*domain.Order, error) {
	start := time.Now()
	defer func() { observability.TransitionLatency.Observe(time.Since(start).Seconds()) }()

	if req.OrderID == "" {
		return nil, ErrInvalidOrderID
	}
	if !req.Target.Valid() {
		return nil, ErrInvalidStatus
	}
	if req.Actor.ID == "" || !req.Actor.Role.Valid() {
		return nil, ErrInvalidActor
	}

	snapshot, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	patch, err := s.rules.Evaluate(transition.Request{
		Target: req.Target,
		Input: transition.Input{
			Order:  *snapshot,
			Actor:  req.Actor,
			Reason: req.Reason,
			Now:    now,
		},
	})
	if err != nil {
		outcome := "error"
		var te *transition.Error
		if errors.As(err, &te) {
			outcome = string(te.Code)
		}
		observability.TransitionsTotal.WithLabelValues(string(snapshot.Status), string(req.Target), outcome).Inc()
		return nil, err
	}

	updated, err := s.orders.ApplyPatch(ctx, req.OrderID, patch, snapshot.Status)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			observability.TransitionsTotal.WithLabelValues(string(snapshot.Status), string(req.Target), "conflict").Inc()
			s.logger.Info("transition lost concurrent write",
				"order_id", req.OrderID,
				"from", snapshot.Status,
				"to", req.Target,
				"actor_id", req.Actor.ID)
			return nil, fmt.Errorf("%w: %w", ErrConcurrentTransition, err)
		}
		return nil, err
	}
	observability.TransitionsTotal.WithLabelValues(string(snapshot.Status), string(req.Target), "ok").Inc()

	rec := domain.TransitionRecord{
		ID:         uuid.New().String(),
		OrderID:    updated.ID,
		From:       snapshot.Status,
		To:         updated.Status,
		ActorID:    req.Actor.ID,
		ActorRole:  req.Actor.Role,
		Reason:     strings.TrimSpace(req.Reason),
		RiderID:    updated.RiderID,
		OccurredAt: now,
	}
	s.afterTransition(ctx, snapshot, updated, rec)

	s.logger.Info("order transitioned",
		"order_id", updated.ID,
		"from", snapshot.Status,
		"to", updated.Status,
		"actor_id", req.Actor.ID,
		"actor_role", req.Actor.Role)
	return updated, nil
}

// afterTransition runs the best-effort follow-ups of a persisted transition.
// Failures are logged; the transition itself already happened.
func (s *OrderService) afterTransition(ctx context.Context, before, after *domain.Order, rec domain.TransitionRecord) {
	if s.audit != nil {
		if err := s.audit.Record(ctx, rec); err != nil {
			s.logger.Warn("failed to record transition", "order_id", rec.OrderID, "error", err)
		}
	}

	if s.riders != nil {
		switch {
		case after.Status == domain.OrderStatusDelivering && after.RiderID != "":
			s.setRiderStatus(ctx, after.RiderID, domain.RiderStatusDelivering)
		case before.Status == domain.OrderStatusDelivering && before.RiderID != "":
			s.setRiderStatus(ctx, before.RiderID, domain.RiderStatusOnline)
		}
	}

	if s.publisher != nil {
		ev := events.OrderTransitioned{
			EventID:         rec.ID,
			OrderID:         rec.OrderID,
			From:            rec.From,
			To:              rec.To,
			RiderID:         after.RiderID,
			PreviousRiderID: before.RiderID,
			ActorID:         rec.ActorID,
			ActorRole:       rec.ActorRole,
			Reason:          rec.Reason,
			OccurredAt:      rec.OccurredAt,
		}
		if err := s.publisher.PublishOrderTransitioned(ctx, ev); err != nil {
			s.logger.Warn("failed to publish transition", "order_id", rec.OrderID, "error", err)
		}
	}
}

func (s *OrderService) setRiderStatus(ctx context.Context, riderID string, status domain.RiderStatus) {
	err := s.riders.UpdateStatus(ctx, riderID, status)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("failed to update rider status", "rider_id", riderID, "status", status, "error", err)
	}
}

// AllowedTransitions lists the statuses role may move the order to, ignoring preconditions.
func (s *OrderService) AllowedTransitions(ctx context.Context, orderID string, role domain.Role) ([]domain.OrderStatus, error) {
	if !role.Valid() {
		return nil, ErrInvalidActor
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.rules.AllowedTransitions(*order, role), nil
}

// AssignRider sets the order's rider. Only admins may assign, and only while
// the order is pending or processing.
func (s *OrderService) AssignRider(ctx context.Context, orderID, riderID string, actor domain.Actor) (*domain.Order, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}
	if !actor.Role.IsAdmin() {
		return nil, ErrAssignmentForbidden
	}

	if s.riders != nil {
		if _, err := s.riders.GetByID(ctx, riderID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrRiderNotFound
			}
			return nil, err
		}
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusProcessing {
		return nil, ErrOrderNotAssignable
	}

	updated, err := s.orders.ApplyPatch(ctx, orderID, domain.OrderPatch{RiderID: &riderID}, order.Status)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %w", ErrConcurrentTransition, err)
		}
		return nil, err
	}

	s.logger.Info("rider assigned", "order_id", orderID, "rider_id", riderID, "actor_id", actor.ID)
	return updated, nil
}

// maxPaymentWriteAttempts bounds re-reads when the order status moves under a
// payment status write. The payment patch does not depend on order status.
const maxPaymentWriteAttempts = 3

// RecordPaymentStatus stores the payment status reported by the gateway.
func (s *OrderService) RecordPaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus) (*domain.Order, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	if !status.Valid() {
		return nil, ErrInvalidPaymentStatus
	}

	var lastErr error
	for attempt := 0; attempt < maxPaymentWriteAttempts; attempt++ {
		order, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.PaymentStatus == status {
			return order, nil
		}

		updated, err := s.orders.ApplyPatch(ctx, orderID, domain.OrderPatch{PaymentStatus: &status}, order.Status)
		if err == nil {
			s.logger.Info("payment status recorded", "order_id", orderID, "payment_status", status)
			return updated, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", ErrConcurrentTransition, lastErr)
}

// History returns the order's transition records, oldest first.
func (s *OrderService) History(ctx context.Context, orderID string) ([]domain.TransitionRecord, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	if s.audit == nil {
		return nil, ErrHistoryUnavailable
	}
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.audit.ListByOrder(ctx, orderID)
}
