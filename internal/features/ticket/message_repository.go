package ticket

import (
	"context"
	"time"

	"go-helpdesk/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *Message) error
	FindByTicket(ctx context.Context, ticketID primitive.ObjectID, limit int64) ([]Message, error)
}

type MessageRepositoryImpl struct {
	collection *mongo.Collection
}

func NewMessageRepository(mongodb *database.MongodbDB) MessageRepository {
	return &MessageRepositoryImpl{
		collection: mongodb.DB.Collection("ticket_messages"),
	}
}

func (r *MessageRepositoryImpl) Create(ctx context.Context, msg *Message) error {
	msg.ID = primitive.NewObjectID()
	msg.CreatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, msg)
	return err
}

func (r *MessageRepositoryImpl) FindByTicket(ctx context.Context, ticketID primitive.ObjectID, limit int64) ([]Message, error) {
	if limit < 1 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"ticket_id": ticketID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
