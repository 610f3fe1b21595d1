package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "conversations"

type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
}

func NewMongoStorage(uri, database string, log *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	collection := client.Database(database).Collection(collectionName)

	// Index on user_id for the per-user listing
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		log.Warn("creating index", slog.String("error", err.Error()))
	}

	return &MongoStorage{
		client:     client,
		collection: collection,
		log:        log,
	}, nil
}

func (m *MongoStorage) Create(ctx context.Context, userId string) (*Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	conv := &Conversation{
		ID:              primitive.NewObjectID(),
		UserID:          userId,
		Messages:        []Message{},
		StartTime:       now,
		LastMessageTime: now,
	}
	if _, err := m.collection.InsertOne(ctx, conv); err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}
	return conv, nil
}

func (m *MongoStorage) Get(ctx context.Context, id string) (*Conversation, error) {
	return m.findOne(ctx, bson.M{"_id": mustObjectID(id)})
}

func (m *MongoStorage) GetForUser(ctx context.Context, id, userId string) (*Conversation, error) {
	return m.findOne(ctx, bson.M{"_id": mustObjectID(id), "user_id": userId})
}

func (m *MongoStorage) findOne(ctx context.Context, filter bson.M) (*Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var conv Conversation
	err := m.collection.FindOne(ctx, filter).Decode(&conv)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding conversation: %w", err)
	}
	return &conv, nil
}

func (m *MongoStorage) ListByUser(ctx context.Context, userId string) ([]Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := m.collection.Find(ctx, bson.M{"user_id": userId})
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer cursor.Close(ctx)

	conversations := []Conversation{}
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, fmt.Errorf("decoding conversations: %w", err)
	}
	return conversations, nil
}

func (m *MongoStorage) AppendMessage(ctx context.Context, id string, message Message, usage *TokenUsage) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	update := bson.M{
		"$push": bson.M{"messages": message},
		"$set":  bson.M{"last_message_time": time.Now().UTC()},
	}
	if usage != nil {
		update["$inc"] = bson.M{
			"total_prompt_tokens":   usage.Prompt,
			"total_response_tokens": usage.Response,
			"total_token_count":     usage.Total,
		}
	}

	result, err := m.collection.UpdateOne(ctx, bson.M{"_id": mustObjectID(id)}, update)
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStorage) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := m.collection.DeleteOne(ctx, bson.M{"_id": mustObjectID(id)})
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

func (m *MongoStorage) TokenStats(ctx context.Context, id, userId string) (*TokenStats, error) {
	conv, err := m.GetForUser(ctx, id, userId)
	if err != nil {
		return nil, err
	}
	return &TokenStats{
		ConversationID:   id,
		UserID:           userId,
		TotalUserTokens:  conv.TotalPromptTokens,
		TotalModelTokens: conv.TotalResponseTokens,
		TotalTokens:      conv.TotalTokenCount,
		MessageCount:     len(conv.Messages),
	}, nil
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// mustObjectID maps an invalid hex id to the zero ObjectID, which matches
// no document and therefore surfaces as ErrNotFound.
func mustObjectID(id string) primitive.ObjectID {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID
	}
	return oid
}
