package chat

import (
	"context"
	"errors"

	"github.com/talkwire/talkwire/internal/data"
)

// ConversationGetter is the slice of the conversation store the
// resolver needs.
type ConversationGetter interface {
	Get(ctx context.Context, id int64) (*data.Conversation, error)
}

// ParticipantReader is the slice of the participant store the resolver
// needs.
type ParticipantReader interface {
	Get(ctx context.Context, conversationID, userID int64) (*data.Participant, error)
	ListUserIDs(ctx context.Context, conversationID int64) ([]int64, error)
}

// Resolver decides who may post into a conversation and who receives
// its messages. Both the live send path and the HTTP layer consult it,
// so the two surfaces can never disagree.
type Resolver struct {
	convs ConversationGetter
	parts ParticipantReader
}

// NewResolver returns a Resolver over the given stores.
func NewResolver(convs ConversationGetter, parts ParticipantReader) *Resolver {
	return &Resolver{convs: convs, parts: parts}
}

// AuthorizedToPost reports whether userID may currently post into the
// conversation. Checked per message: membership can erode mid-session.
//
// Group conversations require a participant row and an undissolved
// conversation. Private conversations require both sides' participant
// rows to still exist; once either side has left or unfriended, the
// conversation is permanently mute.
func (r *Resolver) AuthorizedToPost(ctx context.Context, conversationID, userID int64) (bool, error) {
	conv, err := r.convs.Get(ctx, conversationID)
	if err != nil {
		return false, err
	}

	switch conv.Kind {
	case data.KindGroup:
		if conv.Dissolved {
			return false, nil
		}
		if _, err := r.parts.Get(ctx, conversationID, userID); err != nil {
			if errors.Is(err, data.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return true, nil

	case data.KindPrivate:
		member := false
		for _, id := range conv.Members {
			if id == userID {
				member = true
			}
		}
		if !member {
			return false, nil
		}
		for _, id := range conv.Members {
			if _, err := r.parts.Get(ctx, conversationID, id); err != nil {
				if errors.Is(err, data.ErrNotFound) {
					return false, nil
				}
				return false, err
			}
		}
		return true, nil

	default:
		return false, nil
	}
}

// Recipients returns the user ids of every participant of the
// conversation except excludeUserID. These are the inbox targets of a
// fanout; the excluded sender is reached through the room event only.
func (r *Resolver) Recipients(ctx context.Context, conversationID, excludeUserID int64) ([]int64, error) {
	ids, err := r.parts.ListUserIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		if id != excludeUserID {
			out = append(out, id)
		}
	}
	return out, nil
}
