package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"delivery/internal/domain"
)

func TestTransitionDocument_BSONRoundTrip(t *testing.T) {
	t.Parallel()

	rec := domain.TransitionRecord{
		ID:         "a1",
		OrderID:    "o1",
		From:       domain.OrderStatusDisputed,
		To:         domain.OrderStatusDelivered,
		ActorID:    "admin-1",
		ActorRole:  domain.RoleAdmin,
		Reason:     "buyer confirmed",
		OccurredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	raw, err := bson.Marshal(toDocument(rec))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["_id"] != "a1" || fields["order_id"] != "o1" || fields["to"] != "delivered" {
		t.Errorf("unexpected stored fields %v", fields)
	}
	if _, ok := fields["rider_id"]; ok {
		t.Error("empty rider id should be omitted")
	}

	var doc transitionDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := doc.record()
	if got.ID != rec.ID || got.From != rec.From || got.To != rec.To || got.ActorRole != rec.ActorRole || !got.OccurredAt.Equal(rec.OccurredAt) {
		t.Errorf("record mismatch: %+v", got)
	}
}
