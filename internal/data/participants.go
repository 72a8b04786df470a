package data

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// ParticipantsStore provides participant-row database operations.
// Participant rows are the source of truth for who may post into a
// conversation and carry the per-user read high-water mark.
type ParticipantsStore struct {
	coll *mongo.Collection
}

// NewParticipantsStore returns a ParticipantsStore using the given collection.
func NewParticipantsStore(coll *mongo.Collection) *ParticipantsStore {
	return &ParticipantsStore{coll: coll}
}

// Add creates the participant row for (conversation, user). Adding an
// existing participant is a no-op and returns the current row, so
// re-joining is idempotent.
func (s *ParticipantsStore) Add(ctx context.Context, conversationID, userID int64) (*Participant, error) {
	p := &Participant{
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       time.Now(),
	}
	result, err := s.coll.InsertOne(ctx, p)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return s.Get(ctx, conversationID, userID)
		}
		return nil, err
	}
	p.ID = result.InsertedID.(bson.ObjectID)
	return p, nil
}

// Remove deletes the participant row. The conversation and its message
// history survive; only the membership goes away. Removing an already
// absent row is not an error.
func (s *ParticipantsStore) Remove(ctx context.Context, conversationID, userID int64) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"conversation_id": conversationID, "user_id": userID})
	return err
}

// Get returns the participant row for (conversation, user).
func (s *ParticipantsStore) Get(ctx context.Context, conversationID, userID int64) (*Participant, error) {
	var p Participant
	err := s.coll.FindOne(ctx, bson.M{"conversation_id": conversationID, "user_id": userID}).Decode(&p)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("participant (%d, %d): %w", conversationID, userID, ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// ListUserIDs returns the user ids of every current participant of a
// conversation.
func (s *ParticipantsStore) ListUserIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []*Participant
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	return ids, nil
}

// ListByUser returns every participant row of a user, i.e. all the
// conversations they are currently in.
func (s *ParticipantsStore) ListByUser(ctx context.Context, userID int64) ([]*Participant, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []*Participant
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkRead advances the participant's read high-water mark to upTo.
// $max keeps the mark monotonic: a stale or repeated call never moves
// it backwards, which makes the operation idempotent. Requires an
// existing participant row.
func (s *ParticipantsStore) MarkRead(ctx context.Context, conversationID, userID, upTo int64) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"conversation_id": conversationID, "user_id": userID},
		bson.M{"$max": bson.M{"read_up_to": upTo}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("participant (%d, %d): %w", conversationID, userID, ErrNotFound)
	}
	return nil
}
