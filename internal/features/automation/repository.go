package automation

import (
	"context"
	"errors"
	"time"

	"go-helpdesk/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrRuleNotFound = errors.New("automation rule not found")

type RuleRepository interface {
	Create(ctx context.Context, rule *AutomationRule) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*AutomationRule, error)
	FindAll(ctx context.Context, page, limit int64) ([]AutomationRule, int64, error)
	FindActiveByTrigger(ctx context.Context, trigger TriggerType) ([]AutomationRule, error)
	Update(ctx context.Context, id primitive.ObjectID, rule *AutomationRule) error
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	EnsureIndexes(ctx context.Context) error
}

type RuleRepositoryImpl struct {
	collection *mongo.Collection
}

func NewRuleRepository(mongodb *database.MongodbDB) RuleRepository {
	return &RuleRepositoryImpl{
		collection: mongodb.DB.Collection("automation_rules"),
	}
}

func (r *RuleRepositoryImpl) Create(ctx context.Context, rule *AutomationRule) error {
	rule.ID = primitive.NewObjectID()
	rule.CreatedAt = time.Now().UTC()
	rule.UpdatedAt = rule.CreatedAt
	_, err := r.collection.InsertOne(ctx, rule)
	return err
}

func (r *RuleRepositoryImpl) FindByID(ctx context.Context, id primitive.ObjectID) (*AutomationRule, error) {
	var rule AutomationRule
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rule)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *RuleRepositoryImpl) FindAll(ctx context.Context, page, limit int64) ([]AutomationRule, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "priority", Value: 1}, {Key: "created_at", Value: 1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var rules []AutomationRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

// FindActiveByTrigger returns the active rules for one trigger ordered by
// priority ascending, the order the dispatcher executes them in.
func (r *RuleRepositoryImpl) FindActiveByTrigger(ctx context.Context, trigger TriggerType) ([]AutomationRule, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "priority", Value: 1}, {Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"trigger": trigger, "is_active": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rules []AutomationRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *RuleRepositoryImpl) Update(ctx context.Context, id primitive.ObjectID, rule *AutomationRule) error {
	update := bson.M{"$set": bson.M{
		"name":        rule.Name,
		"description": rule.Description,
		"trigger":     rule.Trigger,
		"conditions":  rule.Conditions,
		"actions":     rule.Actions,
		"priority":    rule.Priority,
		"is_active":   rule.IsActive,
		"updated_at":  time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *RuleRepositoryImpl) SetActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"is_active":  active,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *RuleRepositoryImpl) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *RuleRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "trigger", Value: 1}, {Key: "is_active", Value: 1}, {Key: "priority", Value: 1}},
		},
	})
	return err
}
