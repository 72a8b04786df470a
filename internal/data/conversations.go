package data

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/talkwire/talkwire/internal/normalize"
)

// ConversationsStore provides conversation database operations.
type ConversationsStore struct {
	coll     *mongo.Collection
	counters *CountersStore
}

// NewConversationsStore returns a ConversationsStore using the given
// collection and counter allocator.
func NewConversationsStore(coll *mongo.Collection, counters *CountersStore) *ConversationsStore {
	return &ConversationsStore{coll: coll, counters: counters}
}

// Get returns a conversation by id.
func (s *ConversationsStore) Get(ctx context.Context, id int64) (*Conversation, error) {
	var conv Conversation
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &conv, nil
}

// FindPrivate returns the private conversation for the given user
// pair, or ErrNotFound when the pair has never talked.
func (s *ConversationsStore) FindPrivate(ctx context.Context, user1, user2 int64) (*Conversation, error) {
	lesser, greater := SortPair(user1, user2)
	var conv Conversation
	err := s.coll.FindOne(ctx, bson.M{"kind": KindPrivate, "members": []int64{lesser, greater}}).Decode(&conv)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("private conversation (%d, %d): %w", lesser, greater, ErrNotFound)
		}
		return nil, err
	}
	return &conv, nil
}

// GetOrCreatePrivate returns the private conversation for the given
// user pair, creating it if none exists. The pair is stored sorted so
// the unique index enforces one conversation per unordered pair.
// Returns created=true when a new conversation document was inserted.
func (s *ConversationsStore) GetOrCreatePrivate(ctx context.Context, user1, user2 int64) (*Conversation, bool, error) {
	if user1 == user2 {
		return nil, false, fmt.Errorf("private conversation requires two distinct users")
	}
	lesser, greater := SortPair(user1, user2)
	filter := bson.M{"kind": KindPrivate, "members": []int64{lesser, greater}}

	var conv Conversation
	err := s.coll.FindOne(ctx, filter).Decode(&conv)
	if err == nil {
		return &conv, false, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, false, err
	}

	id, err := s.counters.Next(ctx, conversationCounter)
	if err != nil {
		return nil, false, err
	}
	conv = Conversation{
		ID:        id,
		Kind:      KindPrivate,
		Members:   []int64{lesser, greater},
		CreatorID: user1,
		CreatedAt: time.Now(),
	}
	if _, err := s.coll.InsertOne(ctx, &conv); err != nil {
		// Lost a create race for the same pair: the winner's document
		// satisfies the caller just as well.
		if mongo.IsDuplicateKeyError(err) {
			var existing Conversation
			if ferr := s.coll.FindOne(ctx, filter).Decode(&existing); ferr == nil {
				return &existing, false, nil
			}
		}
		return nil, false, err
	}
	return &conv, true, nil
}

// CreateGroup inserts a new group conversation.
func (s *ConversationsStore) CreateGroup(ctx context.Context, creatorID int64, name string) (*Conversation, error) {
	id, err := s.counters.Next(ctx, conversationCounter)
	if err != nil {
		return nil, err
	}
	conv := &Conversation{
		ID:        id,
		Kind:      KindGroup,
		Name:      normalize.GroupName(name),
		CreatorID: creatorID,
		CreatedAt: time.Now(),
	}
	if _, err := s.coll.InsertOne(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Dissolve marks a group conversation as closed. History is kept; the
// flag only blocks new activity.
func (s *ConversationsStore) Dissolve(ctx context.Context, id int64) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "kind": KindGroup},
		bson.M{"$set": bson.M{"dissolved": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("group conversation %d: %w", id, ErrNotFound)
	}
	return nil
}
