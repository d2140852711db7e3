package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"delivery/internal/domain"
	"delivery/internal/repository"
)

const auditCollection = "order_transitions"

// transitionDocument is the stored shape of a domain.TransitionRecord.
type transitionDocument struct {
	ID         string    `bson:"_id"`
	OrderID    string    `bson:"order_id"`
	From       string    `bson:"from"`
	To         string    `bson:"to"`
	ActorID    string    `bson:"actor_id"`
	ActorRole  string    `bson:"actor_role"`
	Reason     string    `bson:"reason,omitempty"`
	RiderID    string    `bson:"rider_id,omitempty"`
	OccurredAt time.Time `bson:"occurred_at"`
}

func toDocument(rec domain.TransitionRecord) transitionDocument {
	return transitionDocument{
		ID:         rec.ID,
		OrderID:    rec.OrderID,
		From:       string(rec.From),
		To:         string(rec.To),
		ActorID:    rec.ActorID,
		ActorRole:  string(rec.ActorRole),
		Reason:     rec.Reason,
		RiderID:    rec.RiderID,
		OccurredAt: rec.OccurredAt.UTC(),
	}
}

func (d transitionDocument) record() domain.TransitionRecord {
	return domain.TransitionRecord{
		ID:         d.ID,
		OrderID:    d.OrderID,
		From:       domain.OrderStatus(d.From),
		To:         domain.OrderStatus(d.To),
		ActorID:    d.ActorID,
		ActorRole:  domain.Role(d.ActorRole),
		Reason:     d.Reason,
		RiderID:    d.RiderID,
		OccurredAt: d.OccurredAt,
	}
}

// AuditRepository stores order transition history in MongoDB.
type AuditRepository struct {
	col *mongodriver.Collection
}

// NewAuditRepository uses the order_transitions collection of db.
func NewAuditRepository(db *mongodriver.Database) *AuditRepository {
	return &AuditRepository{col: db.Collection(auditCollection)}
}

// EnsureIndexes creates the (order_id, occurred_at) index used by ListByOrder.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "occurred_at", Value: 1}},
	})
	return err
}

// Record upserts by id so redelivered records are stored once.
func (r *AuditRepository) Record(ctx context.Context, rec domain.TransitionRecord) error {
	doc := toDocument(rec)
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$setOnInsert": doc}, opts)
	return err
}

// ListByOrder returns the history of an order, oldest first.
func (r *AuditRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.TransitionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"order_id": orderID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.TransitionRecord
	for cur.Next(ctx) {
		var doc transitionDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.record())
	}
	return out, cur.Err()
}

var _ repository.AuditRepository = (*AuditRepository)(nil)
