package events

import (
	"context"
	"errors"
	"testing"

	"delivery/internal/domain"
)

type recordingPublisher struct {
	got []OrderTransitioned
	err error
}

func (r *recordingPublisher) PublishOrderTransitioned(_ context.Context, ev OrderTransitioned) error {
	r.got = append(r.got, ev)
	return r.err
}

func TestDispatcher_CallsEveryHandlerInOrder(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil)
	var calls []string
	boom := errors.New("boom")
	d.Subscribe(func(context.Context, OrderTransitioned) error { calls = append(calls, "first"); return boom })
	d.Subscribe(func(context.Context, OrderTransitioned) error { calls = append(calls, "second"); return nil })

	err := d.PublishOrderTransitioned(context.Background(), OrderTransitioned{OrderID: "o1", To: domain.OrderStatusDelivering})
	if !errors.Is(err, boom) {
		t.Errorf("expected joined handler error, got %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("unexpected call order %v", calls)
	}
}

func TestFanout_PublishesToAll(t *testing.T) {
	t.Parallel()

	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("down")}
	f := Fanout{a, nil, b}

	err := f.PublishOrderTransitioned(context.Background(), OrderTransitioned{OrderID: "o1"})
	if err == nil {
		t.Error("expected error from failing publisher")
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Errorf("expected both publishers called, got %d and %d", len(a.got), len(b.got))
	}
}
