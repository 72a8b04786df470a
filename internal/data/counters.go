package data

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CountersStore allocates monotonically increasing ids. Each counter is
// a single document keyed by name whose value only ever moves forward,
// so allocation survives restarts and is safe across processes.
type CountersStore struct {
	coll *mongo.Collection
}

// NewCountersStore returns a CountersStore using the given collection.
func NewCountersStore(coll *mongo.Collection) *CountersStore {
	return &CountersStore{coll: coll}
}

// Next atomically increments the named counter and returns its new
// value. The first call for a name returns 1.
func (c *CountersStore) Next(ctx context.Context, name string) (int64, error) {
	res := c.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After))

	var doc struct {
		Value int64 `bson:"value"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, fmt.Errorf("counter %q: %w", name, err)
	}
	return doc.Value, nil
}

// messageCounter is the counter name for per-conversation message seqs.
func messageCounter(conversationID int64) string {
	return fmt.Sprintf("msg:%d", conversationID)
}

// conversationCounter is the counter name for conversation ids.
const conversationCounter = "conversation"
