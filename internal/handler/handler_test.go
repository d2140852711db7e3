package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"delivery/internal/domain"
	"delivery/internal/hub"
	"delivery/internal/middleware"
	"delivery/internal/repository"
	"delivery/internal/service"
	"delivery/internal/tests"
	"delivery/internal/transition"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	orders *tests.MockOrderRepository
	riders *tests.MockRiderRepository
	hub    *hub.Hub
}

func newTestServer() *testServer {
	orders := tests.NewMockOrderRepository()
	riders := tests.NewMockRiderRepository()
	h := hub.New()

	orderSvc := service.NewOrderService(service.OrderServiceDeps{
		Orders: orders,
		Riders: riders,
		Audit:  tests.NewMockAuditRepository(),
	})
	riderSvc := service.NewRiderService(h, tests.NewMockLocationIndex(), nil, riders, nil)

	orderHandler := NewOrderHandler(orderSvc)
	trackingHandler := NewTrackingHandler(riderSvc, h, nil)

	router := gin.New()
	v1 := router.Group("/v1", middleware.ActorMiddleware())
	v1.POST("/orders", orderHandler.CreateOrder)
	v1.GET("/orders/:id", orderHandler.GetOrder)
	v1.POST("/orders/:id/transitions", orderHandler.Transition)
	v1.GET("/orders/:id/transitions/allowed", orderHandler.AllowedTransitions)
	v1.POST("/orders/:id/rider", orderHandler.AssignRider)
	v1.GET("/orders/:id/history", orderHandler.History)
	v1.POST("/riders/:id/location", trackingHandler.PushLocation)
	v1.DELETE("/riders/:id/tracking", trackingHandler.StopTracking)
	v1.GET("/tracking/sessions", trackingHandler.Sessions)
	v1.GET("/tracking/live/ws", trackingHandler.SubscribeLive)

	return &testServer{router: router, orders: orders, riders: riders, hub: h}
}

func (s *testServer) do(method, path string, actor domain.Actor, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor.ID != "" {
		req.Header.Set(middleware.ActorIDHeader, actor.ID)
		req.Header.Set(middleware.ActorRoleHeader, string(actor.Role))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

var (
	sellerActor = domain.Actor{ID: "seller-1", Role: domain.RoleSeller}
	buyerActor  = domain.Actor{ID: "buyer-1", Role: domain.RoleBuyer}
	adminActor  = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	riderActor  = domain.Actor{ID: "rider-1", Role: domain.RoleRider}
)

func TestTransitionEndpoint_StatusCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		status     domain.OrderStatus
		payment    domain.PaymentStatus
		target     string
		actor      domain.Actor
		wantStatus int
		wantCode   string
	}{
		{"accepted", domain.OrderStatusPending, domain.PaymentStatusCompleted, "processing", sellerActor, http.StatusOK, ""},
		{"role violation", domain.OrderStatusPending, domain.PaymentStatusCompleted, "processing", buyerActor, http.StatusForbidden, "role_violation"},
		{"precondition", domain.OrderStatusPending, domain.PaymentStatusPending, "processing", sellerActor, http.StatusUnprocessableEntity, "precondition_failed"},
		{"invalid pair", domain.OrderStatusPending, domain.PaymentStatusCompleted, "delivered", adminActor, http.StatusConflict, "invalid_transition"},
		{"unknown status", domain.OrderStatusPending, domain.PaymentStatusCompleted, "shipped", adminActor, http.StatusBadRequest, ""},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer()
			s.orders.AddOrder(&domain.Order{ID: "order-1", Status: tt.status, PaymentStatus: tt.payment, AmountMinor: 100, Currency: "NGN"})

			w := s.do(http.MethodPost, "/v1/orders/order-1/transitions", tt.actor, TransitionOrderRequest{Status: tt.target})
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantCode == "" {
				return
			}
			resp := decodeError(t, w)
			if resp.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, resp.Code)
			}
			if tt.wantCode == "role_violation" && len(resp.AllowedRoles) == 0 {
				t.Error("expected allowed roles on role violation")
			}
		})
	}
}

func TestTransitionEndpoint_RequiresActor(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := s.do(http.MethodPost, "/v1/orders/order-1/transitions", domain.Actor{}, TransitionOrderRequest{Status: "processing"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}

	w = s.do(http.MethodPost, "/v1/orders/order-1/transitions", domain.Actor{ID: "x", Role: "courier"}, TransitionOrderRequest{Status: "processing"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown role, got %d", w.Code)
	}
}

func TestOrderEndpoints_CreateGetAllowed(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := s.do(http.MethodPost, "/v1/orders", buyerActor, CreateOrderRequest{BuyerID: "someone-else", SellerID: "seller-1", AmountMinor: 5000, Currency: "ngn"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created OrderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.BuyerID != buyerActor.ID {
		t.Errorf("buyer must order for themselves, got %s", created.BuyerID)
	}

	w = s.do(http.MethodGet, "/v1/orders/"+created.ID, buyerActor, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = s.do(http.MethodGet, "/v1/orders/"+created.ID+"/transitions/allowed", buyerActor, nil)
	var allowed AllowedTransitionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &allowed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(allowed.Allowed) != 1 || allowed.Allowed[0] != "cancelled" {
		t.Errorf("expected buyer may only cancel a pending order, got %v", allowed.Allowed)
	}

	w = s.do(http.MethodGet, "/v1/orders/missing", buyerActor, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestAssignRiderEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.riders.AddRider(&domain.Rider{ID: "rider-1", Name: "Ada"})
	s.orders.AddOrder(&domain.Order{ID: "order-1", Status: domain.OrderStatusProcessing, PaymentStatus: domain.PaymentStatusCompleted})

	if w := s.do(http.MethodPost, "/v1/orders/order-1/rider", sellerActor, AssignRiderRequest{RiderID: "rider-1"}); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for seller, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/v1/orders/order-1/rider", adminActor, AssignRiderRequest{RiderID: "ghost"}); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown rider, got %d", w.Code)
	}
	w := s.do(http.MethodPost, "/v1/orders/order-1/rider", adminActor, AssignRiderRequest{RiderID: "rider-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if s.orders.GetOrder("order-1").RiderID != "rider-1" {
		t.Error("rider not stored")
	}
}

func TestPushLocationEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	body := domain.LocationSample{Latitude: 6.45, Longitude: 3.38, AccuracyMeters: 5, TimestampMillis: time.Now().UnixMilli()}

	if w := s.do(http.MethodPost, "/v1/riders/rider-1/location", riderActor, body); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if _, ok := s.hub.Session("rider-1"); !ok {
		t.Error("expected a session for rider-1")
	}

	// Another rider cannot report for rider-1.
	other := domain.Actor{ID: "rider-2", Role: domain.RoleRider}
	if w := s.do(http.MethodPost, "/v1/riders/rider-1/location", other, body); w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}

	// An older sample is accepted and silently dropped.
	older := body
	older.TimestampMillis -= 10_000
	if w := s.do(http.MethodPost, "/v1/riders/rider-1/location", riderActor, older); w.Code != http.StatusAccepted {
		t.Errorf("expected 202 for out-of-order sample, got %d", w.Code)
	}

	bad := body
	bad.Longitude = 200
	if w := s.do(http.MethodPost, "/v1/riders/rider-1/location", riderActor, bad); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	w := s.do(http.MethodDelete, "/v1/riders/rider-1/tracking", riderActor, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"stopped":true`) {
		t.Errorf("expected stop, got %d %s", w.Code, w.Body.String())
	}
}

func TestSessionsEndpoint_Filters(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	now := time.Now().UnixMilli()
	moving, idle := 5.0, 0.0
	for _, smp := range []domain.LocationSample{
		{RiderID: "rider-1", Latitude: 6.45, Longitude: 3.38, TimestampMillis: now, SpeedMetersPerSecond: &moving},
		{RiderID: "rider-2", Latitude: 6.46, Longitude: 3.39, TimestampMillis: now, SpeedMetersPerSecond: &idle},
	} {
		if err := s.hub.Ingest(t.Context(), smp); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	cases := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?movement=moving", 1},
		{"?movement=idle", 1},
		{"?movement=all&q=RIDER-2", 1},
		{"?q=nobody", 0},
	}
	for _, tt := range cases {
		w := s.do(http.MethodGet, "/v1/tracking/sessions"+tt.query, adminActor, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tt.query, w.Code)
		}
		var resp SessionsResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Total != tt.want {
			t.Errorf("%s: expected %d rows, got %d", tt.query, tt.want, resp.Total)
		}
		for _, r := range resp.Riders {
			if r.Freshness != "Just now" {
				t.Errorf("expected fresh row, got %q", r.Freshness)
			}
		}
	}

	if w := s.do(http.MethodGet, "/v1/tracking/sessions?movement=flying", adminActor, nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown movement, got %d", w.Code)
	}
}

func TestLiveWebsocket_ReceivesFilteredEvents(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	header := http.Header{}
	header.Set(middleware.ActorIDHeader, adminActor.ID)
	header.Set(middleware.ActorRoleHeader, string(adminActor.Role))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/tracking/live/ws?movement=moving"

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered before the upgrade completes.
	if got := s.hub.SubscriberCount(hub.AllTopic()); got != 1 {
		t.Fatalf("expected 1 live subscriber, got %d", got)
	}

	idle, moving := 0.0, 3.0
	base := time.Now().UnixMilli()
	_ = s.hub.Ingest(t.Context(), domain.LocationSample{RiderID: "rider-idle", Latitude: 1, Longitude: 1, TimestampMillis: base, SpeedMetersPerSecond: &idle})
	_ = s.hub.Ingest(t.Context(), domain.LocationSample{RiderID: "rider-moving", Latitude: 1, Longitude: 1, TimestampMillis: base, SpeedMetersPerSecond: &moving})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev domain.TrackingEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.RiderID != "rider-moving" || ev.Type != domain.TrackingEventLocation {
		t.Errorf("expected moving rider event, got %+v", ev)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{&transition.Error{Code: transition.CodeInvalidTransition}, http.StatusConflict},
		{&transition.Error{Code: transition.CodeRoleViolation}, http.StatusForbidden},
		{&transition.Error{Code: transition.CodePreconditionFailed}, http.StatusUnprocessableEntity},
		{&transition.Error{Code: transition.CodePaymentRequired}, http.StatusPaymentRequired},
		{fmt.Errorf("%w: %w", service.ErrConcurrentTransition, repository.ErrConflict), http.StatusConflict},
		{repository.ErrNotFound, http.StatusNotFound},
		{errors.Join(service.ErrInvalidLocation, hub.ErrInvalidSample), http.StatusBadRequest},
		{service.ErrPaymentsDisabled, http.StatusServiceUnavailable},
		{service.ErrInvalidWebhookSignature, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range cases {
		if got := mapErrorToHTTPStatus(tt.err); got != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, got)
		}
	}
}
