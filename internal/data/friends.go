package data

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// FriendsStore provides friend-relationship database operations. One
// row exists per unordered user pair; the sorted (lesser_id,
// greater_id) columns carry the unique constraint while from/to keep
// the request direction.
type FriendsStore struct {
	coll *mongo.Collection
}

// NewFriendsStore returns a FriendsStore using the given collection.
func NewFriendsStore(coll *mongo.Collection) *FriendsStore {
	return &FriendsStore{coll: coll}
}

// Request creates a pending friend request from fromID to toID.
// Self-pairs are rejected. If a relationship row for the pair already
// exists (any status), it is returned with created=false.
func (s *FriendsStore) Request(ctx context.Context, fromID, toID int64) (*FriendRelationship, bool, error) {
	if fromID == toID {
		return nil, false, fmt.Errorf("cannot friend yourself")
	}
	lesser, greater := SortPair(fromID, toID)

	rel := &FriendRelationship{
		LesserID:  lesser,
		GreaterID: greater,
		FromID:    fromID,
		ToID:      toID,
		Status:    FriendPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	result, err := s.coll.InsertOne(ctx, rel)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, gerr := s.Get(ctx, fromID, toID)
			if gerr != nil {
				return nil, false, gerr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	rel.ID = result.InsertedID.(bson.ObjectID)
	return rel, true, nil
}

// Get returns the relationship row for the unordered pair (a, b).
func (s *FriendsStore) Get(ctx context.Context, a, b int64) (*FriendRelationship, error) {
	lesser, greater := SortPair(a, b)
	var rel FriendRelationship
	err := s.coll.FindOne(ctx, bson.M{"lesser_id": lesser, "greater_id": greater}).Decode(&rel)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("friendship (%d, %d): %w", lesser, greater, ErrNotFound)
		}
		return nil, err
	}
	return &rel, nil
}

// Respond resolves the pending request sent from fromID to toID. Only
// the addressed user can respond, and only while the request is still
// pending.
func (s *FriendsStore) Respond(ctx context.Context, fromID, toID int64, accept bool) error {
	status := FriendDeclined
	if accept {
		status = FriendAccepted
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"from_id": fromID, "to_id": toID, "status": FriendPending},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("pending request %d -> %d: %w", fromID, toID, ErrNotFound)
	}
	return nil
}

// Remove deletes the relationship row for the unordered pair. Message
// history of any private conversation between the pair is untouched.
func (s *FriendsStore) Remove(ctx context.Context, a, b int64) error {
	lesser, greater := SortPair(a, b)
	_, err := s.coll.DeleteOne(ctx, bson.M{"lesser_id": lesser, "greater_id": greater})
	return err
}

// AreFriends reports whether the pair has an accepted relationship.
func (s *FriendsStore) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	lesser, greater := SortPair(a, b)
	count, err := s.coll.CountDocuments(ctx, bson.M{
		"lesser_id":  lesser,
		"greater_id": greater,
		"status":     FriendAccepted,
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListAccepted returns the user ids of everyone userID has an accepted
// relationship with.
func (s *FriendsStore) ListAccepted(ctx context.Context, userID int64) ([]int64, error) {
	filter := bson.M{
		"status": FriendAccepted,
		"$or": bson.A{
			bson.M{"lesser_id": userID},
			bson.M{"greater_id": userID},
		},
	}
	cursor, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rels []*FriendRelationship
	if err := cursor.All(ctx, &rels); err != nil {
		return nil, err
	}

	friends := make([]int64, 0, len(rels))
	for _, rel := range rels {
		if rel.LesserID == userID {
			friends = append(friends, rel.GreaterID)
		} else {
			friends = append(friends, rel.LesserID)
		}
	}
	return friends, nil
}

// ListPending returns pending requests addressed to userID.
func (s *FriendsStore) ListPending(ctx context.Context, userID int64) ([]*FriendRelationship, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"to_id": userID, "status": FriendPending})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rels []*FriendRelationship
	if err := cursor.All(ctx, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}
