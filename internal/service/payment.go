package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"delivery/internal/domain"
	"delivery/internal/logging"
	"delivery/internal/payment"
	"delivery/internal/repository"
)

// Gateway is the external payment provider. The transition engine never calls
// it; only the payment flow does.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req payment.InitRequest) (payment.InitResult, error)
	VerifyTransaction(ctx context.Context, reference string) (domain.PaymentStatus, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
	ParseWebhookEvent(payload []byte) (payment.WebhookEvent, error)
}

// PaymentRecorder stores the outcome of a payment on its order.
type PaymentRecorder interface {
	RecordPaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus) (*domain.Order, error)
}

// PaymentService starts and settles order payments.
type PaymentService struct {
	orders   repository.OrderRepository
	payments repository.PaymentRepository
	recorder PaymentRecorder
	gateway  Gateway
	logger   *slog.Logger
}

// NewPaymentService creates a new PaymentService. A nil gateway disables payments.
func NewPaymentService(
	orders repository.OrderRepository,
	payments repository.PaymentRepository,
	recorder PaymentRecorder,
	gateway Gateway,
	logger *slog.Logger,
) *PaymentService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &PaymentService{
		orders:   orders,
		payments: payments,
		recorder: recorder,
		gateway:  gateway,
		logger:   logger,
	}
}

// InitializePayment starts a gateway transaction for the order and marks its
// payment as processing. Repeated calls while a transaction is in flight
// return the existing one.
func (s *PaymentService) InitializePayment(ctx context.Context, orderID string) (*domain.Payment, error) {
	if s.gateway == nil {
		return nil, ErrPaymentsDisabled
	}
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == domain.PaymentStatusCompleted {
		return nil, ErrPaymentAlreadyCompleted
	}
	if order.AmountMinor <= 0 {
		return nil, ErrInvalidPaymentAmount
	}

	idempotencyKey := fmt.Sprintf("payment:%s", orderID)
	existing, err := s.payments.GetByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == domain.PaymentStatusProcessing {
		return existing, nil
	}

	result, err := s.gateway.InitializeTransaction(ctx, payment.InitRequest{
		OrderID:     order.ID,
		AmountMinor: order.AmountMinor,
		Currency:    order.Currency,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &domain.Payment{
		ID:               uuid.New().String(),
		OrderID:          order.ID,
		Reference:        result.Reference,
		AmountMinor:      order.AmountMinor,
		Currency:         order.Currency,
		Status:           domain.PaymentStatusProcessing,
		AuthorizationURL: result.AuthorizationURL,
		IdempotencyKey:   idempotencyKey,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		// A concurrent call won the race; hand back its transaction.
		winner, getErr := s.payments.GetByIdempotencyKey(ctx, idempotencyKey)
		if getErr != nil || winner == nil {
			return nil, err
		}
		return winner, nil
	}
	if _, err := s.recorder.RecordPaymentStatus(ctx, order.ID, domain.PaymentStatusProcessing); err != nil {
		return nil, err
	}

	s.logger.Info("payment initialized", "order_id", order.ID, "reference", p.Reference)
	return p, nil
}

// VerifyPayment asks the gateway for the transaction status and records it.
func (s *PaymentService) VerifyPayment(ctx context.Context, reference string) (*domain.Payment, error) {
	if s.gateway == nil {
		return nil, ErrPaymentsDisabled
	}
	if reference == "" {
		return nil, ErrInvalidPaymentReference
	}

	p, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	status, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := s.settle(ctx, p, status); err != nil {
		return nil, err
	}
	return p, nil
}

// HandleWebhook verifies and applies a gateway webhook. Events without a
// payment outcome are acknowledged and ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.gateway == nil {
		return ErrPaymentsDisabled
	}
	if !s.gateway.VerifyWebhookSignature(payload, signature) {
		return ErrInvalidWebhookSignature
	}

	ev, err := s.gateway.ParseWebhookEvent(payload)
	if err != nil {
		if errors.Is(err, payment.ErrUnsupportedEvent) {
			s.logger.Debug("ignoring webhook event", "type", ev.Type)
			return nil
		}
		return err
	}

	p, err := s.payments.GetByReference(ctx, ev.Reference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("webhook for unknown payment", "reference", ev.Reference, "type", ev.Type)
			return nil
		}
		return err
	}
	return s.settle(ctx, p, ev.Status)
}

func (s *PaymentService) settle(ctx context.Context, p *domain.Payment, status domain.PaymentStatus) error {
	if p.Status != status {
		if err := s.payments.UpdateStatus(ctx, p.ID, status); err != nil {
			return err
		}
		p.Status = status
	}
	if _, err := s.recorder.RecordPaymentStatus(ctx, p.OrderID, status); err != nil {
		return err
	}
	s.logger.Info("payment settled", "order_id", p.OrderID, "reference", p.Reference, "status", status)
	return nil
}
