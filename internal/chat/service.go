package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/talkwire/talkwire/internal/data"
)

// ConversationService carries the conversation lifecycle operations
// that sit outside the hot send path: starting and dissolving
// conversations, membership changes, read tracking, history and the
// per-user conversation list.
type ConversationService struct {
	convs   *data.ConversationsStore
	parts   *data.ParticipantsStore
	msgs    *data.MessagesStore
	friends *data.FriendsStore
	users   *data.UsersStore
	log     *zap.SugaredLogger
}

func NewConversationService(convs *data.ConversationsStore, parts *data.ParticipantsStore, msgs *data.MessagesStore, friends *data.FriendsStore, users *data.UsersStore, log *zap.SugaredLogger) *ConversationService {
	return &ConversationService{
		convs:   convs,
		parts:   parts,
		msgs:    msgs,
		friends: friends,
		users:   users,
		log:     log,
	}
}

// Friends exposes the friend relationship store for the HTTP layer.
func (s *ConversationService) Friends() *data.FriendsStore {
	return s.friends
}

// StartPrivate opens (or reopens) the private conversation between two
// friends. The conversation document is unique per pair for the
// lifetime of the system; re-friending after an unfriend reactivates
// the same conversation by restoring both participant rows, so shared
// history survives.
func (s *ConversationService) StartPrivate(ctx context.Context, userID, otherID int64) (*data.Conversation, error) {
	friends, err := s.friends.AreFriends(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, &AuthorizationError{Reason: "users are not friends"}
	}

	conv, _, err := s.convs.GetOrCreatePrivate(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	// Add is idempotent, so reopening an already-active conversation is
	// a no-op.
	if _, err := s.parts.Add(ctx, conv.ID, userID); err != nil {
		return nil, err
	}
	if _, err := s.parts.Add(ctx, conv.ID, otherID); err != nil {
		return nil, err
	}
	return conv, nil
}

// CreateGroup creates a group conversation owned by creatorID and adds
// the creator plus every resolvable member. Member ids that do not
// exist are skipped rather than failing the whole creation; a group
// needs at least two participants including the creator.
func (s *ConversationService) CreateGroup(ctx context.Context, creatorID int64, name string, memberIDs []int64) (*data.Conversation, error) {
	members := []int64{creatorID}
	seen := map[int64]bool{creatorID: true}
	for _, id := range memberIDs {
		if seen[id] {
			continue
		}
		ok, err := s.users.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.log.Infow("skipping unknown user on group create", "user", id)
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, errors.New("a group needs at least one member besides the creator")
	}

	conv, err := s.convs.CreateGroup(ctx, creatorID, name)
	if err != nil {
		return nil, err
	}
	for _, id := range members {
		if _, err := s.parts.Add(ctx, conv.ID, id); err != nil {
			return nil, fmt.Errorf("add member %d: %w", id, err)
		}
	}
	return conv, nil
}

// Leave removes the caller's own participant row from a group. The
// creator cannot leave their own group; they dissolve it instead.
func (s *ConversationService) Leave(ctx context.Context, conversationID, userID int64) error {
	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind != data.KindGroup {
		return &AuthorizationError{Reason: "only group conversations can be left"}
	}
	if conv.CreatorID == userID {
		return &AuthorizationError{Reason: "the creator cannot leave their own group"}
	}
	return s.parts.Remove(ctx, conversationID, userID)
}

// Kick removes another member from a group. Creator only.
func (s *ConversationService) Kick(ctx context.Context, conversationID, byUserID, targetID int64) error {
	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind != data.KindGroup {
		return &AuthorizationError{Reason: "only group conversations have members to remove"}
	}
	if conv.CreatorID != byUserID {
		return &AuthorizationError{Reason: "only the group creator can remove members"}
	}
	if targetID == byUserID {
		return &AuthorizationError{Reason: "the creator cannot remove themselves"}
	}
	return s.parts.Remove(ctx, conversationID, targetID)
}

// Dissolve marks a group dissolved. Creator only. Participant rows are
// kept so former members retain read access to history; posting is
// refused by the membership resolver once the dissolved flag is set.
func (s *ConversationService) Dissolve(ctx context.Context, conversationID, byUserID int64) error {
	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind != data.KindGroup {
		return &AuthorizationError{Reason: "only group conversations can be dissolved"}
	}
	if conv.CreatorID != byUserID {
		return &AuthorizationError{Reason: "only the group creator can dissolve the group"}
	}
	return s.convs.Dissolve(ctx, conversationID)
}

// Unfriend ends the friendship and deactivates the shared private
// conversation by removing the other user's participant row. With one
// row missing, neither side is authorized to post until re-friending
// restores it.
func (s *ConversationService) Unfriend(ctx context.Context, byUserID, otherID int64) error {
	if err := s.friends.Remove(ctx, byUserID, otherID); err != nil {
		return err
	}
	conv, err := s.convs.FindPrivate(ctx, byUserID, otherID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil // friends who never talked
		}
		return err
	}
	return s.parts.Remove(ctx, conv.ID, otherID)
}

// MarkRead advances the caller's read high-water mark to the
// conversation's latest message. Stale marks are kept monotonic by the
// store's $max update, so concurrent calls cannot move the mark
// backwards.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, userID int64) error {
	last, err := s.msgs.LastSeq(ctx, conversationID)
	if err != nil {
		return err
	}
	if last == 0 {
		// nothing to read yet, but only participants may ask
		_, err := s.parts.Get(ctx, conversationID, userID)
		return err
	}
	return s.parts.MarkRead(ctx, conversationID, userID, last)
}

// Unread reports how many messages the user has not read in one
// conversation.
func (s *ConversationService) Unread(ctx context.Context, conversationID, userID int64) (int64, error) {
	part, err := s.parts.Get(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	last, err := s.msgs.LastSeq(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	return data.UnreadCount(last, part.ReadUpTo), nil
}

// History returns the most recent messages of a conversation in
// chronological order. Callers must hold a participant row; dissolved
// groups remain readable so former members keep their history.
func (s *ConversationService) History(ctx context.Context, conversationID, userID int64, limit int64) ([]*data.Message, error) {
	if _, err := s.parts.Get(ctx, conversationID, userID); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, &AuthorizationError{Reason: "not a participant of this conversation"}
		}
		return nil, err
	}
	return s.msgs.History(ctx, conversationID, limit)
}

// Recall marks one of the caller's own messages recalled.
func (s *ConversationService) Recall(ctx context.Context, conversationID, userID, seq int64) error {
	msg, err := s.msgs.Get(ctx, conversationID, seq)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return &AuthorizationError{Reason: "only the sender can recall a message"}
	}
	return s.msgs.Recall(ctx, conversationID, seq, userID)
}

// Summaries builds the user's conversation list: one row per
// participant membership with a resolved display name, the last
// message and the unread count, ordered most recently active first.
func (s *ConversationService) Summaries(ctx context.Context, userID int64) ([]*data.ConversationSummary, error) {
	parts, err := s.parts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*data.ConversationSummary, 0, len(parts))
	for _, p := range parts {
		conv, err := s.convs.Get(ctx, p.ConversationID)
		if err != nil {
			if errors.Is(err, data.ErrNotFound) {
				continue
			}
			return nil, err
		}

		name := conv.Name
		if conv.Kind == data.KindPrivate {
			name = s.privateName(ctx, conv, userID)
		}

		last, err := s.msgs.Last(ctx, conv.ID)
		if err != nil && !errors.Is(err, data.ErrNotFound) {
			return nil, err
		}
		var lastSeq int64
		if last != nil {
			lastSeq = last.Seq
		}

		out = append(out, &data.ConversationSummary{
			ConversationID: conv.ID,
			Kind:           conv.Kind,
			Name:           name,
			LastMessage:    last,
			UnreadCount:    data.UnreadCount(lastSeq, p.ReadUpTo),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return summaryActivity(out[i]) > summaryActivity(out[j])
	})
	return out, nil
}

// privateName resolves a private conversation's display name to the
// other member's username, falling back to an id label when the
// account is gone.
func (s *ConversationService) privateName(ctx context.Context, conv *data.Conversation, userID int64) string {
	var otherID int64
	for _, m := range conv.Members {
		if m != userID {
			otherID = m
			break
		}
	}
	other, err := s.users.GetByID(ctx, otherID)
	if err != nil {
		return fmt.Sprintf("user %d", otherID)
	}
	return other.Username
}

func summaryActivity(s *data.ConversationSummary) int64 {
	if s.LastMessage == nil {
		return 0
	}
	return s.LastMessage.CreatedAt.UnixMilli()
}
