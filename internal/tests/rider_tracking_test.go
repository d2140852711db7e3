package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"delivery/internal/domain"
	"delivery/internal/events"
	"delivery/internal/hub"
	"delivery/internal/service"
	"delivery/internal/transition"
)

func riderSample(riderID string, ts int64, speed float64) domain.LocationSample {
	return domain.LocationSample{
		RiderID:              riderID,
		Latitude:             6.4550,
		Longitude:            3.3841,
		AccuracyMeters:       8,
		SpeedMetersPerSecond: &speed,
		TimestampMillis:      ts,
	}
}

func nextEvent(t *testing.T, sub *hub.Subscription) domain.TrackingEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tracking event")
	}
	return domain.TrackingEvent{}
}

func assertNoEvent(t *testing.T, sub *hub.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestRiderService_UpdateLocationIndexesAndBroadcasts(t *testing.T) {
	t.Parallel()

	riders := NewMockRiderRepository()
	riders.AddRider(&domain.Rider{ID: "rider-1", Name: "Ada Obi", Status: domain.RiderStatusOnline})
	cache := NewMockRiderCache()
	index := NewMockLocationIndex()

	h := hub.New(hub.WithDirectory(service.NewRiderDirectory(riders, cache)))
	svc := service.NewRiderService(h, index, cache, riders, nil)
	sub, err := h.Subscribe(hub.RiderTopic("rider-1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := svc.UpdateLocation(context.Background(), service.SourceHTTP, riderSample("rider-1", 1_000, 4.2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := nextEvent(t, sub)
	if ev.Type != domain.TrackingEventLocation || ev.RiderName != "Ada Obi" {
		t.Errorf("unexpected event %+v", ev)
	}
	if !index.HasLocation("rider-1") {
		t.Error("expected rider in geo index")
	}

	// The directory filled the cache on the first lookup.
	if cached, _ := cache.GetRider(context.Background(), "rider-1"); cached == nil || cached.Name != "Ada Obi" {
		t.Errorf("expected cached rider, got %+v", cached)
	}
}

func TestRiderService_InvalidSampleRejected(t *testing.T) {
	t.Parallel()

	index := NewMockLocationIndex()
	h := hub.New()
	svc := service.NewRiderService(h, index, nil, nil, nil)

	bad := riderSample("rider-1", 1_000, 0)
	bad.Latitude = 123
	err := svc.UpdateLocation(context.Background(), service.SourceHTTP, bad)
	if !errors.Is(err, service.ErrInvalidLocation) || !errors.Is(err, hub.ErrInvalidSample) {
		t.Fatalf("expected invalid location, got %v", err)
	}
	if index.UpdateLocationCallCount != 0 {
		t.Error("invalid sample must not be indexed")
	}
	if _, ok := h.Session("rider-1"); ok {
		t.Error("invalid sample must not create a session")
	}

	if err := svc.UpdateLocation(context.Background(), service.SourceHTTP, domain.LocationSample{}); !errors.Is(err, service.ErrInvalidRiderID) {
		t.Errorf("expected ErrInvalidRiderID, got %v", err)
	}
}

func TestRiderService_StopTrackingTakesRiderOffMap(t *testing.T) {
	t.Parallel()

	riders := NewMockRiderRepository()
	riders.AddRider(&domain.Rider{ID: "rider-1", Name: "Ada", Status: domain.RiderStatusOnline})
	index := NewMockLocationIndex()
	cache := NewMockRiderCache()
	h := hub.New()
	svc := service.NewRiderService(h, index, cache, riders, nil)
	ctx := context.Background()

	if err := svc.UpdateLocation(ctx, service.SourceWebsocket, riderSample("rider-1", 1_000, 0)); err != nil {
		t.Fatalf("update: %v", err)
	}
	sub, err := h.Subscribe(hub.RiderTopic("rider-1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	stopped, err := svc.StopTracking(ctx, "rider-1")
	if err != nil || !stopped {
		t.Fatalf("expected stop, got %v %v", stopped, err)
	}
	ev := nextEvent(t, sub)
	if ev.Type != domain.TrackingEventStopped || ev.Reason != domain.StopReasonStopped {
		t.Errorf("unexpected event %+v", ev)
	}
	if index.HasLocation("rider-1") {
		t.Error("expected rider removed from geo index")
	}
	if got := riders.GetRider("rider-1").Status; got != domain.RiderStatusOffline {
		t.Errorf("expected OFFLINE, got %s", got)
	}

	// A second stop is a no-op for the hub.
	stopped, err = svc.StopTracking(ctx, "rider-1")
	if err != nil || stopped {
		t.Errorf("expected no session on second stop, got %v %v", stopped, err)
	}
}

func TestRiderService_NearbyRiders(t *testing.T) {
	t.Parallel()

	index := NewMockLocationIndex()
	svc := service.NewRiderService(hub.New(), index, nil, nil, nil)
	ctx := context.Background()
	_ = index.UpdateLocation(ctx, "rider-1", 6.45, 3.38)

	got, err := svc.NearbyRiders(ctx, 6.45, 3.38, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].RiderID != "rider-1" {
		t.Errorf("unexpected riders %+v", got)
	}

	if _, err := svc.NearbyRiders(ctx, 95, 3.38, 2); !errors.Is(err, service.ErrInvalidLocation) {
		t.Errorf("expected ErrInvalidLocation, got %v", err)
	}

	disabled := service.NewRiderService(hub.New(), nil, nil, nil, nil)
	if _, err := disabled.NearbyRiders(ctx, 6.45, 3.38, 2); !errors.Is(err, service.ErrLocationIndexDisabled) {
		t.Errorf("expected ErrLocationIndexDisabled, got %v", err)
	}
}

// An order walks from pending to delivered while its rider reports
// positions. Only the delivering leg feeds the order's subscribers.
func TestEndToEnd_OrderDeliveryDrivesTracking(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	orders := NewMockOrderRepository()
	riders := NewMockRiderRepository()
	riders.AddRider(&domain.Rider{ID: "R1", Name: "Ada", Status: domain.RiderStatusOnline})
	orders.AddOrder(seedOrder("order-1", domain.OrderStatusPending, domain.PaymentStatusPending, ""))

	h := hub.New(hub.WithDirectory(service.NewRiderDirectory(riders, nil)))
	dispatcher := events.NewDispatcher(nil)
	dispatcher.Subscribe(h.OnOrderTransitioned)

	orderSvc := service.NewOrderService(service.OrderServiceDeps{
		Orders:    orders,
		Riders:    riders,
		Audit:     NewMockAuditRepository(),
		Publisher: dispatcher,
	})
	riderSvc := service.NewRiderService(h, NewMockLocationIndex(), nil, riders, nil)

	orderSub, err := h.Subscribe(hub.OrderTopic("order-1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer orderSub.Close()

	accept := service.TransitionRequest{OrderID: "order-1", Target: domain.OrderStatusProcessing, Actor: seller}

	// Unpaid orders cannot be accepted.
	if _, err := orderSvc.Transition(ctx, accept); !errors.Is(err, transition.ErrPreconditionFailed) {
		t.Fatalf("expected precondition_failed before payment, got %v", err)
	}
	if got := orders.GetOrder("order-1").Status; got != domain.OrderStatusPending {
		t.Fatalf("refused transition changed status to %s", got)
	}

	if _, err := orderSvc.RecordPaymentStatus(ctx, "order-1", domain.PaymentStatusCompleted); err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if _, err := orderSvc.Transition(ctx, accept); err != nil {
		t.Fatalf("accept after payment: %v", err)
	}
	if _, err := orderSvc.AssignRider(ctx, "order-1", "R1", admin); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Before delivery the rider's samples are not tied to the order.
	early := riderSample("R1", 1_000, 3)
	early.OrderID = "order-1"
	if err := riderSvc.UpdateLocation(ctx, service.SourceWebsocket, early); err != nil {
		t.Fatalf("update: %v", err)
	}
	assertNoEvent(t, orderSub)

	if _, err := orderSvc.Transition(ctx, service.TransitionRequest{OrderID: "order-1", Target: domain.OrderStatusDelivering, Actor: admin}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	const samples = 5
	start := int64(60_000)
	for i := 0; i < samples; i++ {
		s := riderSample("R1", start+int64(i)*6_000, 3)
		s.OrderID = "order-1"
		if err := riderSvc.UpdateLocation(ctx, service.SourceWebsocket, s); err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
	}

	var last int64
	for i := 0; i < samples; i++ {
		ev := nextEvent(t, orderSub)
		if ev.Type != domain.TrackingEventLocation || ev.OrderID != "order-1" || ev.RiderID != "R1" || ev.Sample == nil {
			t.Fatalf("unexpected order event %d: %+v", i, ev)
		}
		if ev.Sample.TimestampMillis < last {
			t.Errorf("broadcast %d went back in time: %d < %d", i, ev.Sample.TimestampMillis, last)
		}
		last = ev.Sample.TimestampMillis
	}
	assertNoEvent(t, orderSub)

	rider := domain.Actor{ID: "R1", Role: domain.RoleRider}
	delivered, err := orderSvc.Transition(ctx, service.TransitionRequest{OrderID: "order-1", Target: domain.OrderStatusDelivered, Actor: rider})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if delivered.DeliveredAt == nil {
		t.Error("expected deliveredAt set")
	}

	// Samples still stamped with the delivered order are no longer associated with it.
	late := riderSample("R1", last+6_000, 0)
	late.OrderID = "order-1"
	if err := riderSvc.UpdateLocation(ctx, service.SourceWebsocket, late); err != nil {
		t.Fatalf("update: %v", err)
	}
	assertNoEvent(t, orderSub)

	snap, ok := h.Session("R1")
	if !ok || snap.OrderID != "" {
		t.Errorf("expected session without order, got %+v", snap)
	}
	if got := riders.GetRider("R1").Status; got != domain.RiderStatusOnline {
		t.Errorf("expected rider back ONLINE, got %s", got)
	}
}
