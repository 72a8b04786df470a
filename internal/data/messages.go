package data

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	coll     *mongo.Collection
	counters *CountersStore
}

// NewMessagesStore returns a MessagesStore using the given collection
// and counter allocator.
func NewMessagesStore(coll *mongo.Collection, counters *CountersStore) *MessagesStore {
	return &MessagesStore{coll: coll, counters: counters}
}

// Save allocates the next seq for the conversation and inserts the
// message document. The seq comes from a per-conversation counter so
// it increases monotonically even across processes; a crash between
// allocation and insert leaves a gap, never a duplicate.
func (m *MessagesStore) Save(ctx context.Context, conversationID, senderID int64, content string, parentSeq int64) (*Message, error) {
	seq, err := m.counters.Next(ctx, messageCounter(conversationID))
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ConversationID: conversationID,
		Seq:            seq,
		SenderID:       senderID,
		Content:        content,
		ParentSeq:      parentSeq,
		CreatedAt:      time.Now(),
	}

	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = result.InsertedID.(bson.ObjectID)
	return msg, nil
}

// Get returns one message by (conversation, seq).
func (m *MessagesStore) Get(ctx context.Context, conversationID, seq int64) (*Message, error) {
	var msg Message
	err := m.coll.FindOne(ctx, bson.M{"conversation_id": conversationID, "seq": seq}).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("message (%d, %d): %w", conversationID, seq, ErrNotFound)
		}
		return nil, err
	}
	return &msg, nil
}

// Exists reports whether a message with the given seq exists in the
// conversation. Used to validate reply parents.
func (m *MessagesStore) Exists(ctx context.Context, conversationID, seq int64) (bool, error) {
	count, err := m.coll.CountDocuments(ctx, bson.M{"conversation_id": conversationID, "seq": seq})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LastSeq returns the seq of the newest persisted message in the
// conversation, or 0 when it has none. Read from the messages
// collection rather than the counter so an allocation that never made
// it to an insert does not inflate unread counts.
func (m *MessagesStore) LastSeq(ctx context.Context, conversationID int64) (int64, error) {
	opts := options.FindOne().
		SetSort(bson.M{"seq": -1}).
		SetProjection(bson.M{"seq": 1})

	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := m.coll.FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, err
	}
	return doc.Seq, nil
}

// Last returns the newest message in the conversation, or nil when it
// has none.
func (m *MessagesStore) Last(ctx context.Context, conversationID int64) (*Message, error) {
	opts := options.FindOne().SetSort(bson.M{"seq": -1})

	var msg Message
	err := m.coll.FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// History returns up to limit of the conversation's most recent
// messages ordered oldest first.
func (m *MessagesStore) History(ctx context.Context, conversationID int64, limit int64) ([]*Message, error) {
	opts := options.Find().
		SetSort(bson.M{"seq": -1}).
		SetLimit(limit)

	cursor, err := m.coll.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []*Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	// Newest first from the query; the client expects chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Recall marks a message as recalled. The content stays in place; only
// the flag and recall metadata change, and only once.
func (m *MessagesStore) Recall(ctx context.Context, conversationID, seq, byUserID int64) error {
	res, err := m.coll.UpdateOne(ctx,
		bson.M{"conversation_id": conversationID, "seq": seq, "recalled": false},
		bson.M{"$set": bson.M{
			"recalled":    true,
			"recalled_at": time.Now(),
			"recalled_by": byUserID,
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("recallable message (%d, %d): %w", conversationID, seq, ErrNotFound)
	}
	return nil
}
