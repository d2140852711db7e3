package redis

import (
	"encoding/json"
	"testing"

	"delivery/internal/domain"
)

func TestRelay_DecodeSkipsOwnEvents(t *testing.T) {
	t.Parallel()

	r := NewRelay(nil, "instance-a", nil)
	ev := domain.TrackingEvent{Type: domain.TrackingEventStopped, RiderID: "R1", Reason: domain.StopReasonStale}

	own, _ := json.Marshal(relayEnvelope{Origin: "instance-a", Event: ev})
	if _, remote, err := r.decode(own); err != nil || remote {
		t.Errorf("own event: remote=%v err=%v", remote, err)
	}

	peer, _ := json.Marshal(relayEnvelope{Origin: "instance-b", Event: ev})
	got, remote, err := r.decode(peer)
	if err != nil || !remote {
		t.Fatalf("peer event: remote=%v err=%v", remote, err)
	}
	if got.RiderID != "R1" || got.Reason != domain.StopReasonStale {
		t.Errorf("unexpected decoded event %+v", got)
	}

	if _, _, err := r.decode([]byte("{")); err == nil {
		t.Error("expected decode error")
	}
}
