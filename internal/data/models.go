// Package data provides DB models and stores.
package data

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrNotFound is returned when a looked-up entity does not exist.
// Stores wrap it with context; callers match with errors.Is.
var ErrNotFound = errors.New("not found")

// Conversation kinds.
const (
	KindPrivate = "private"
	KindGroup   = "group"
)

// Conversation maps to the conversations collection. A private
// conversation stores its two member ids sorted ascending in Members,
// which backs the unique-per-pair constraint; group conversations
// leave Members unset and track membership through participant rows
// only.
type Conversation struct {
	ID        int64     `bson:"_id"`
	Kind      string    `bson:"kind"`
	Name      string    `bson:"name,omitempty"` // group only
	Members   []int64   `bson:"members,omitempty"`
	CreatorID int64     `bson:"creator_id"`
	CreatedAt time.Time `bson:"created_at"`
	Dissolved bool      `bson:"dissolved"`
}

// Participant maps to the participants collection: one row per
// (user, conversation). ReadUpTo is the read high-water mark in
// message seq units; zero means the user has never marked the
// conversation read.
type Participant struct {
	ID             bson.ObjectID `bson:"_id,omitempty"`
	ConversationID int64         `bson:"conversation_id"`
	UserID         int64         `bson:"user_id"`
	JoinedAt       time.Time     `bson:"joined_at"`
	ReadUpTo       int64         `bson:"read_up_to"`
}

// Message maps to the messages collection. Seq increases monotonically
// within a conversation and doubles as the unit of read tracking.
// Messages are immutable once created except for recall marking.
type Message struct {
	ID             bson.ObjectID `bson:"_id,omitempty"`
	ConversationID int64         `bson:"conversation_id"`
	Seq            int64         `bson:"seq"`
	SenderID       int64         `bson:"sender_id"`
	Content        string        `bson:"content"`
	ParentSeq      int64         `bson:"parent_seq"` // 0 = not a reply
	CreatedAt      time.Time     `bson:"created_at"`
	Recalled       bool          `bson:"recalled"`
	RecalledAt     time.Time     `bson:"recalled_at,omitempty"`
	RecalledBy     int64         `bson:"recalled_by,omitempty"`
}

// Friend relationship statuses.
const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
	FriendDeclined = "declined"
)

// FriendRelationship maps to the friends collection. LesserID/GreaterID
// hold the unordered pair sorted ascending and carry the unique
// constraint; FromID/ToID preserve who initiated the request.
type FriendRelationship struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	LesserID  int64         `bson:"lesser_id"`
	GreaterID int64         `bson:"greater_id"`
	FromID    int64         `bson:"from_id"`
	ToID      int64         `bson:"to_id"`
	Status    string        `bson:"status"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

// User is the account subsystem's user document. This service reads
// display names from it and never writes.
type User struct {
	ID       int64  `bson:"_id"`
	Username string `bson:"username"`
}

// ConversationSummary is the per-conversation row of a user's
// conversation list: display name, last message preview and unread
// count. Consumed by the HTTP listing layer.
type ConversationSummary struct {
	ConversationID int64
	Kind           string
	Name           string
	LastMessage    *Message
	UnreadCount    int64
}

// UnreadCount computes how many messages a participant has not read
// given the conversation's last message seq and the participant's
// high-water mark. A zero mark counts every message as unread. Never
// negative.
func UnreadCount(lastSeq, readUpTo int64) int64 {
	if readUpTo >= lastSeq {
		return 0
	}
	return lastSeq - readUpTo
}

// SortPair returns the two ids ordered ascending.
func SortPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
