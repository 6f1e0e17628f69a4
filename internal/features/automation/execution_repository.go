package automation

import (
	"context"
	"time"

	"go-helpdesk/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RuleStats is the aggregate view of one rule's execution records.
type RuleStats struct {
	RuleID    primitive.ObjectID `json:"rule_id" bson:"_id"`
	Triggered int64              `json:"triggered" bson:"triggered"`
	Succeeded int64              `json:"succeeded" bson:"succeeded"`
	Partial   int64              `json:"partial" bson:"partial"`
	Failed    int64              `json:"failed" bson:"failed"`
}

// ExecutionRepository owns the execution records and the (rule, event)
// idempotency anchor: TryClaim inserts the PENDING record against a unique
// compound index before any action runs, so a redelivered event loses the
// race and is skipped instead of re-executed.
type ExecutionRepository interface {
	TryClaim(ctx context.Context, rule *AutomationRule, event Event) (bool, error)
	Finalize(ctx context.Context, ruleID primitive.ObjectID, eventID string, outcome Outcome, results []ActionResult) error
	History(ctx context.Context, ruleID *primitive.ObjectID, page, limit int64) ([]ExecutionRecord, int64, error)
	Stats(ctx context.Context, limit int64) ([]RuleStats, error)
	EnsureIndexes(ctx context.Context) error
}

type ExecutionRepositoryImpl struct {
	collection *mongo.Collection
}

func NewExecutionRepository(mongodb *database.MongodbDB) ExecutionRepository {
	return &ExecutionRepositoryImpl{
		collection: mongodb.DB.Collection("execution_records"),
	}
}

// TryClaim reports whether this process won the right to execute the rule
// for the event. A duplicate key error means another dispatch already
// claimed the pair.
func (r *ExecutionRepositoryImpl) TryClaim(ctx context.Context, rule *AutomationRule, event Event) (bool, error) {
	record := ExecutionRecord{
		ID:        primitive.NewObjectID(),
		RuleID:    rule.ID,
		TicketID:  event.TicketID,
		EventID:   event.ID,
		Trigger:   event.Trigger,
		Outcome:   OutcomePending,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.collection.InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Finalize settles the claimed record exactly once. The outcome filter
// keeps an already finalized record immutable even under a racing retry.
func (r *ExecutionRepositoryImpl) Finalize(ctx context.Context, ruleID primitive.ObjectID, eventID string, outcome Outcome, results []ActionResult) error {
	now := time.Now().UTC()
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"rule_id": ruleID, "event_id": eventID, "outcome": OutcomePending},
		bson.M{"$set": bson.M{
			"outcome":      outcome,
			"actions":      results,
			"finalized_at": now,
		}},
	)
	return err
}

func (r *ExecutionRepositoryImpl) History(ctx context.Context, ruleID *primitive.ObjectID, page, limit int64) ([]ExecutionRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	filter := bson.M{}
	if ruleID != nil {
		filter["rule_id"] = *ruleID
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

	var records []ExecutionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Stats aggregates per-rule triggered counts and outcome rates, most
// triggered first.
func (r *ExecutionRepositoryImpl) Stats(ctx context.Context, limit int64) ([]RuleStats, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	outcomeCount := func(outcome Outcome) bson.M {
		return bson.M{"$sum": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$outcome", outcome}}, 1, 0,
		}}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":       "$rule_id",
			"triggered": bson.M{"$sum": 1},
			"succeeded": outcomeCount(OutcomeSuccess),
			"partial":   outcomeCount(OutcomePartial),
			"failed":    outcomeCount(OutcomeFailed),
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "triggered", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stats []RuleStats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *ExecutionRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "rule_id", Value: 1}, {Key: "event_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	})
	return err
}
