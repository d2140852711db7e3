package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"delivery/internal/domain"
	"delivery/internal/middleware"
	"delivery/internal/service"
)

// OrderHandler handles HTTP requests for orders and their status transitions.
type OrderHandler struct {
	orderService *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// CreateOrderRequest is the HTTP request body for creating an order.
type CreateOrderRequest struct {
	BuyerID     string `json:"buyerId"`
	SellerID    string `json:"sellerId"`
	AmountMinor int64  `json:"amountMinor"`
	Currency    string `json:"currency"`
}

// TransitionOrderRequest is the HTTP request body for a status change.
type TransitionOrderRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// AssignRiderRequest is the HTTP request body for assigning a rider.
type AssignRiderRequest struct {
	RiderID string `json:"riderId"`
}

// OrderResponse is the HTTP response for order data.
type OrderResponse struct {
	ID            string     `json:"id"`
	BuyerID       string     `json:"buyerId"`
	SellerID      string     `json:"sellerId"`
	AmountMinor   int64      `json:"amountMinor"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"paymentStatus"`
	RiderID       string     `json:"riderId,omitempty"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// AllowedTransitionsResponse lists the statuses the caller may move the order to.
type AllowedTransitionsResponse struct {
	OrderID string   `json:"orderId"`
	Status  string   `json:"status"`
	Allowed []string `json:"allowed"`
}

// TransitionRecordResponse is one entry of an order's status history.
type TransitionRecordResponse struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	ActorID    string    `json:"actorId"`
	ActorRole  string    `json:"actorRole"`
	Reason     string    `json:"reason,omitempty"`
	RiderID    string    `json:"riderId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// CreateOrder handles POST /v1/orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, service.ErrInvalidActor)
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	// Buyers always order for themselves.
	buyerID := req.BuyerID
	if actor.Role == domain.RoleBuyer || buyerID == "" {
		buyerID = actor.ID
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), service.CreateOrderRequest{
		BuyerID:     buyerID,
		SellerID:    req.SellerID,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toOrderResponse(order))
}

// GetOrder handles GET /v1/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toOrderResponse(order))
}

// Transition handles POST /v1/orders/:id/transitions
func (h *OrderHandler) Transition(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, service.ErrInvalidActor)
		return
	}

	var req TransitionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	order, err := h.orderService.Transition(c.Request.Context(), service.TransitionRequest{
		OrderID: c.Param("id"),
		Target:  domain.OrderStatus(req.Status),
		Actor:   actor,
		Reason:  req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toOrderResponse(order))
}

// AllowedTransitions handles GET /v1/orders/:id/transitions/allowed
func (h *OrderHandler) AllowedTransitions(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, service.ErrInvalidActor)
		return
	}

	ctx := c.Request.Context()
	orderID := c.Param("id")
	order, err := h.orderService.GetOrder(ctx, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	allowed, err := h.orderService.AllowedTransitions(ctx, orderID, actor.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := AllowedTransitionsResponse{
		OrderID: order.ID,
		Status:  string(order.Status),
		Allowed: make([]string, 0, len(allowed)),
	}
	for _, s := range allowed {
		resp.Allowed = append(resp.Allowed, string(s))
	}
	respondJSON(c, http.StatusOK, resp)
}

// AssignRider handles POST /v1/orders/:id/rider
func (h *OrderHandler) AssignRider(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, service.ErrInvalidActor)
		return
	}

	var req AssignRiderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	order, err := h.orderService.AssignRider(c.Request.Context(), c.Param("id"), req.RiderID, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toOrderResponse(order))
}

// History handles GET /v1/orders/:id/history
func (h *OrderHandler) History(c *gin.Context) {
	records, err := h.orderService.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]TransitionRecordResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, TransitionRecordResponse{
			From:       string(r.From),
			To:         string(r.To),
			ActorID:    r.ActorID,
			ActorRole:  string(r.ActorRole),
			Reason:     r.Reason,
			RiderID:    r.RiderID,
			OccurredAt: r.OccurredAt,
		})
	}
	respondJSON(c, http.StatusOK, resp)
}

func toOrderResponse(o *domain.Order) OrderResponse {
	return OrderResponse{
		ID:            o.ID,
		BuyerID:       o.BuyerID,
		SellerID:      o.SellerID,
		AmountMinor:   o.AmountMinor,
		Currency:      o.Currency,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		RiderID:       o.RiderID,
		DeliveredAt:   o.DeliveredAt,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}
