// Package broadcast implements the group publish/subscribe layer that
// fans chat events out to live connections: a tagged event model, an
// in-process hub and a Redis-backed broker for crossing processes.
package broadcast

import "fmt"

// Kind tags an event with its variant. The set is closed: receivers
// dispatch with a single switch.
type Kind string

const (
	// KindMessage is a room event: a new message to render in the
	// currently open conversation.
	KindMessage Kind = "message"
	// KindInbox is a personal notification that some conversation the
	// user participates in received a message.
	KindInbox Kind = "inbox"
	// KindBlocked tells a sender their message was rejected. Delivered
	// only to the sender's own inbox group, never to the room.
	KindBlocked Kind = "blocked"
)

// MessagePayload is the canonical wire form of a persisted message. ID
// is the per-conversation seq; ParentID is 0 for non-replies.
type MessagePayload struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	ParentID       int64  `json:"parent_id"`
	Content        string `json:"content"`
	TimestampMS    int64  `json:"timestamp_ms"`
	IsRecalled     bool   `json:"is_recalled"`
}

// Event is one broadcast unit. Msg is set for message and inbox
// events; Reason carries the human-readable explanation on blocked
// events.
type Event struct {
	Kind   Kind            `json:"kind"`
	Msg    *MessagePayload `json:"msg,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// Room returns the broadcast group key for a conversation's room:
// every connection that has the conversation open subscribes here.
func Room(conversationID int64) string {
	return fmt.Sprintf("room:%d", conversationID)
}

// Inbox returns the broadcast group key for a user's personal channel:
// it receives notifications from all of the user's conversations.
func Inbox(userID int64) string {
	return fmt.Sprintf("inbox:%d", userID)
}
