package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-helpdesk/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when the ticket id does not exist.
	ErrNotFound = errors.New("ticket not found")
	// ErrVersionConflict is returned when a compare-and-swap update lost
	// against a concurrent writer. Callers may re-read and retry once.
	ErrVersionConflict = errors.New("ticket version conflict")
	// ErrInvalidTransition is returned by the store when a status update
	// violates the ticket workflow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TicketRepository is the engine's view of the ticket store. All field
// mutations go through versioned compare-and-swap updates so concurrently
// dispatched rules never lose writes.
type TicketRepository interface {
	Create(ctx context.Context, t *Ticket) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Ticket, error)
	FindAll(ctx context.Context, filter bson.M, page, limit int64) ([]Ticket, int64, error)

	// UpdateFields applies set under a version check and bumps the version.
	UpdateFields(ctx context.Context, id primitive.ObjectID, version int64, set bson.M) error
	// UpdateStatus validates the workflow transition before the CAS write.
	UpdateStatus(ctx context.Context, id primitive.ObjectID, version int64, from, to TicketStatus) error
	// AddTag adds to the tag set; adding an existing tag is a no-op.
	AddTag(ctx context.Context, id primitive.ObjectID, version int64, tag string) error

	// Sweep queries used by the SLA monitor.
	FindOpenWithDeadline(ctx context.Context) ([]Ticket, error)
	FindUnassignedSince(ctx context.Context, cutoff time.Time) ([]Ticket, error)

	EnsureIndexes(ctx context.Context) error
}

type TicketRepositoryImpl struct {
	collection *mongo.Collection
	counters   *mongo.Collection
}

func NewTicketRepository(mongodb *database.MongodbDB) TicketRepository {
	return &TicketRepositoryImpl{
		collection: mongodb.DB.Collection("tickets"),
		counters:   mongodb.DB.Collection("counters"),
	}
}

func (r *TicketRepositoryImpl) Create(ctx context.Context, t *Ticket) error {
	t.ID = primitive.NewObjectID()
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Version = 1
	if t.Status == "" {
		t.Status = TicketStatusOpen
	}
	if t.Priority == "" {
		t.Priority = TicketPriorityMedium
	}
	if t.TicketNumber == "" {
		seq, err := r.nextSequence(ctx)
		if err != nil {
			return err
		}
		t.TicketNumber = formatTicketNumber(seq)
	}
	_, err := r.collection.InsertOne(ctx, t)
	return err
}

func (r *TicketRepositoryImpl) nextSequence(ctx context.Context) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "tickets"},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

func formatTicketNumber(seq int64) string {
	return fmt.Sprintf("TKT-%06d", seq)
}

func (r *TicketRepositoryImpl) FindByID(ctx context.Context, id primitive.ObjectID) (*Ticket, error) {
	var t Ticket
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TicketRepositoryImpl) FindAll(ctx context.Context, filter bson.M, page, limit int64) ([]Ticket, int64, error) {
	if filter == nil {
		filter = bson.M{}
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var tickets []Ticket
	if err = cursor.All(ctx, &tickets); err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (r *TicketRepositoryImpl) UpdateFields(ctx context.Context, id primitive.ObjectID, version int64, set bson.M) error {
	update := bson.M{}
	for k, v := range set {
		update[k] = v
	}
	update["updated_at"] = time.Now()

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "version": version},
		bson.M{"$set": update, "$inc": bson.M{"version": int64(1)}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

func (r *TicketRepositoryImpl) UpdateStatus(ctx context.Context, id primitive.ObjectID, version int64, from, to TicketStatus) error {
	if !KnownStatus(to) || !ValidTransition(from, to) {
		return ErrInvalidTransition
	}
	// The version filter also pins the status the transition was checked
	// against, so a concurrent status change surfaces as a conflict.
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "version": version, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}, "$inc": bson.M{"version": int64(1)}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

func (r *TicketRepositoryImpl) AddTag(ctx context.Context, id primitive.ObjectID, version int64, tag string) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "version": version},
		bson.M{
			"$addToSet": bson.M{"tags": tag},
			"$set":      bson.M{"updated_at": time.Now()},
			"$inc":      bson.M{"version": int64(1)},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

func (r *TicketRepositoryImpl) conflictOrMissing(ctx context.Context, id primitive.ObjectID) error {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (r *TicketRepositoryImpl) FindOpenWithDeadline(ctx context.Context) ([]Ticket, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"sla_deadline": bson.M{"$ne": nil},
		"status":       bson.M{"$nin": []TicketStatus{TicketStatusResolved, TicketStatusClosed}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tickets []Ticket
	if err = cursor.All(ctx, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *TicketRepositoryImpl) FindUnassignedSince(ctx context.Context, cutoff time.Time) ([]Ticket, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"assigned_to":            nil,
		"unassigned_notified_at": nil,
		"created_at":             bson.M{"$lte": cutoff},
		"status":                 bson.M{"$nin": []TicketStatus{TicketStatusResolved, TicketStatusClosed}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tickets []Ticket
	if err = cursor.All(ctx, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *TicketRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ticket_number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "sla_deadline", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "assigned_to", Value: 1}, {Key: "created_at", Value: 1}},
		},
	})
	return err
}
