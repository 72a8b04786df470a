// Package db manages MongoDB connections and collections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Client wraps mongo.Client and exposes the collections used by the
// conversation store.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and returns a Client. The connection is
// verified with a ping so startup fails fast when the store is down.
func New(ctx context.Context, mongoURI string) (*Client, error) {
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database("talkwire"),
	}, nil
}

// ConversationsCollection returns the conversations collection.
func (c *Client) ConversationsCollection() *mongo.Collection {
	return c.db.Collection("conversations")
}

// ParticipantsCollection returns the conversation participants collection.
func (c *Client) ParticipantsCollection() *mongo.Collection {
	return c.db.Collection("participants")
}

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	return c.db.Collection("messages")
}

// FriendsCollection returns the friend relationships collection.
func (c *Client) FriendsCollection() *mongo.Collection {
	return c.db.Collection("friends")
}

// UsersCollection returns the users collection owned by the account
// subsystem. This service only ever reads from it.
func (c *Client) UsersCollection() *mongo.Collection {
	return c.db.Collection("users")
}

// CountersCollection returns the counters collection backing monotonic
// id allocation.
func (c *Client) CountersCollection() *mongo.Collection {
	return c.db.Collection("counters")
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the stores rely on. Safe to call on
// every startup; Mongo treats existing identical indexes as a no-op.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// A private conversation is unique per sorted member pair. The
	// partial filter keeps group conversations (members unset) out of
	// the unique constraint.
	convIndexes := []mongo.IndexModel{
		{
			Keys: map[string]int{"members": 1},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"kind": "private"}),
		},
		{
			Keys: map[string]int{"creator_id": 1},
		},
	}
	if _, err := c.ConversationsCollection().Indexes().CreateMany(ctx, convIndexes); err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}

	// One participant row per (user, conversation); the user index
	// serves conversation-list queries.
	participantIndexes := []mongo.IndexModel{
		{
			Keys:    map[string]int{"conversation_id": 1, "user_id": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: map[string]int{"user_id": 1},
		},
	}
	if _, err := c.ParticipantsCollection().Indexes().CreateMany(ctx, participantIndexes); err != nil {
		return fmt.Errorf("failed to create participant indexes: %w", err)
	}

	// seq is the per-conversation monotonic message id; unique within
	// the conversation and the unit of read high-water marks.
	messageIndexes := []mongo.IndexModel{
		{
			Keys:    map[string]int{"conversation_id": 1, "seq": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: map[string]int{"conversation_id": 1, "created_at": -1},
		},
	}
	if _, err := c.MessagesCollection().Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	// At most one relationship row per unordered user pair.
	friendIndexes := []mongo.IndexModel{
		{
			Keys:    map[string]int{"lesser_id": 1, "greater_id": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: map[string]int{"to_id": 1, "status": 1},
		},
		{
			Keys: map[string]int{"from_id": 1, "status": 1},
		},
	}
	if _, err := c.FriendsCollection().Indexes().CreateMany(ctx, friendIndexes); err != nil {
		return fmt.Errorf("failed to create friend indexes: %w", err)
	}

	return nil
}
