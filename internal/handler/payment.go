package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"delivery/internal/domain"
	"delivery/internal/service"
)

// maxWebhookBodyBytes matches Stripe's documented payload ceiling.
const maxWebhookBodyBytes = 65536

// PaymentHandler handles HTTP requests for order payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// PaymentResponse is the HTTP response for payment operations.
type PaymentResponse struct {
	ID               string `json:"id"`
	OrderID          string `json:"orderId"`
	Reference        string `json:"reference"`
	AmountMinor      int64  `json:"amountMinor"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
}

// InitializePayment handles POST /v1/orders/:id/payment
func (h *PaymentHandler) InitializePayment(c *gin.Context) {
	p, err := h.paymentService.InitializePayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toPaymentResponse(p))
}

// VerifyPayment handles GET /v1/payments/:reference/verify
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	p, err := h.paymentService.VerifyPayment(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toPaymentResponse(p))
}

// Webhook handles POST /v1/payments/webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}

	if err := h.paymentService.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:               p.ID,
		OrderID:          p.OrderID,
		Reference:        p.Reference,
		AmountMinor:      p.AmountMinor,
		Currency:         p.Currency,
		Status:           string(p.Status),
		AuthorizationURL: p.AuthorizationURL,
	}
}
