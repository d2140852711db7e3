package service

import "errors"

var (
	// ErrInvalidOrderID is returned when order ID is empty.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidStatus is returned for an unknown target order status.
	ErrInvalidStatus = errors.New("invalid order status")

	// ErrInvalidPaymentStatus is returned for an unknown payment status.
	ErrInvalidPaymentStatus = errors.New("invalid payment status")

	// ErrInvalidActor is returned when the caller's id or role is missing or unknown.
	ErrInvalidActor = errors.New("invalid actor")

	// ErrInvalidOrder is returned when order creation input is incomplete.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInvalidLocation is returned for a location sample that fails validation.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrConcurrentTransition is returned when the order changed between read
	// and write. Callers must re-read the order and re-evaluate.
	ErrConcurrentTransition = errors.New("order was modified concurrently")

	// ErrAssignmentForbidden is returned when a non-admin tries to assign a rider.
	ErrAssignmentForbidden = errors.New("only admins can assign riders")

	// ErrOrderNotAssignable is returned when the order is past the point of rider assignment.
	ErrOrderNotAssignable = errors.New("rider can only be assigned while the order is pending or processing")

	// ErrRiderNotFound is returned when the rider to assign does not exist.
	ErrRiderNotFound = errors.New("rider not found")

	// ErrHistoryUnavailable is returned when no audit store is configured.
	ErrHistoryUnavailable = errors.New("transition history is not available")

	// ErrPaymentAlreadyCompleted is returned when initializing payment for a paid order.
	ErrPaymentAlreadyCompleted = errors.New("order is already paid")

	// ErrInvalidPaymentAmount is returned when the order amount cannot be charged.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")

	// ErrInvalidPaymentReference is returned when payment reference is empty.
	ErrInvalidPaymentReference = errors.New("invalid payment reference")

	// ErrInvalidWebhookSignature is returned when a webhook fails signature verification.
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrPaymentsDisabled is returned when no payment gateway is configured.
	ErrPaymentsDisabled = errors.New("payments are not configured")

	// ErrLocationIndexDisabled is returned when no location index is configured.
	ErrLocationIndexDisabled = errors.New("rider location index is not configured")
)
