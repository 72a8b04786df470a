package chat

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/talkwire/talkwire/internal/data"
	"github.com/talkwire/talkwire/internal/db"
)

// Integration tests; they require a running MongoDB instance and are
// skipped unless MONGODB_URI is set.

func testService(t *testing.T) *ConversationService {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	c, err := db.New(ctx, uri)
	if err != nil {
		t.Fatalf("db.New failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	_ = c.ConversationsCollection().Drop(ctx)
	_ = c.ParticipantsCollection().Drop(ctx)
	_ = c.MessagesCollection().Drop(ctx)
	_ = c.FriendsCollection().Drop(ctx)
	_ = c.UsersCollection().Drop(ctx)
	_ = c.CountersCollection().Drop(ctx)

	if err := c.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
	}

	for id, name := range map[int64]string{1: "alice", 2: "bob", 3: "carol"} {
		if _, err := c.UsersCollection().InsertOne(ctx, &data.User{ID: id, Username: name}); err != nil {
			t.Fatalf("seed user failed: %v", err)
		}
	}

	counters := data.NewCountersStore(c.CountersCollection())
	return NewConversationService(
		data.NewConversationsStore(c.ConversationsCollection(), counters),
		data.NewParticipantsStore(c.ParticipantsCollection()),
		data.NewMessagesStore(c.MessagesCollection(), counters),
		data.NewFriendsStore(c.FriendsCollection()),
		data.NewUsersStore(c.UsersCollection()),
		zap.NewNop().Sugar(),
	)
}

func befriend(t *testing.T, s *ConversationService, a, b int64) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := s.friends.Request(ctx, a, b); err != nil {
		t.Fatalf("friend request failed: %v", err)
	}
	if err := s.friends.Respond(ctx, a, b, true); err != nil {
		t.Fatalf("friend accept failed: %v", err)
	}
}

func TestStartPrivateRequiresFriendship(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	var authErr *AuthorizationError
	if _, err := s.StartPrivate(ctx, 1, 2); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError for strangers, got %v", err)
	}

	befriend(t, s, 1, 2)
	conv, err := s.StartPrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("StartPrivate failed: %v", err)
	}
	if conv.Kind != data.KindPrivate {
		t.Fatalf("wrong kind: %s", conv.Kind)
	}

	// same conversation from either direction
	again, err := s.StartPrivate(ctx, 2, 1)
	if err != nil {
		t.Fatalf("StartPrivate again failed: %v", err)
	}
	if again.ID != conv.ID {
		t.Fatalf("expected one conversation per pair, got %d and %d", conv.ID, again.ID)
	}
}

func TestUnfriendDeactivatesAndRefriendReactivates(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	befriend(t, s, 1, 2)
	conv, err := s.StartPrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("StartPrivate failed: %v", err)
	}
	resolver := NewResolver(s.convs, s.parts)

	if ok, _ := resolver.AuthorizedToPost(ctx, conv.ID, 1); !ok {
		t.Fatal("friend could not post")
	}

	if err := s.Unfriend(ctx, 1, 2); err != nil {
		t.Fatalf("Unfriend failed: %v", err)
	}
	// both directions go mute once one participant row is gone
	for _, userID := range []int64{1, 2} {
		if ok, _ := resolver.AuthorizedToPost(ctx, conv.ID, userID); ok {
			t.Errorf("user %d could still post after unfriend", userID)
		}
	}

	befriend(t, s, 2, 1)
	reopened, err := s.StartPrivate(ctx, 2, 1)
	if err != nil {
		t.Fatalf("StartPrivate after re-friend failed: %v", err)
	}
	if reopened.ID != conv.ID {
		t.Fatalf("re-friending created a new conversation: %d vs %d", reopened.ID, conv.ID)
	}
	if ok, _ := resolver.AuthorizedToPost(ctx, conv.ID, 2); !ok {
		t.Fatal("re-friended user still cannot post")
	}
}

func TestGroupLifecycle(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	conv, err := s.CreateGroup(ctx, 1, "weekend plans", []int64{2, 3, 999})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	ids, err := s.parts.ListUserIDs(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListUserIDs failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 participants (unknown id skipped), got %d", len(ids))
	}

	var authErr *AuthorizationError
	if err := s.Leave(ctx, conv.ID, 1); !errors.As(err, &authErr) {
		t.Fatalf("creator leave should be refused, got %v", err)
	}
	if err := s.Leave(ctx, conv.ID, 3); err != nil {
		t.Fatalf("member leave failed: %v", err)
	}

	if err := s.Kick(ctx, conv.ID, 2, 1); !errors.As(err, &authErr) {
		t.Fatalf("non-creator kick should be refused, got %v", err)
	}
	if err := s.Kick(ctx, conv.ID, 1, 2); err != nil {
		t.Fatalf("creator kick failed: %v", err)
	}

	if err := s.Dissolve(ctx, conv.ID, 2); !errors.As(err, &authErr) {
		t.Fatalf("non-creator dissolve should be refused, got %v", err)
	}
	if err := s.Dissolve(ctx, conv.ID, 1); err != nil {
		t.Fatalf("Dissolve failed: %v", err)
	}

	resolver := NewResolver(s.convs, s.parts)
	if ok, _ := resolver.AuthorizedToPost(ctx, conv.ID, 1); ok {
		t.Fatal("posting into a dissolved group was allowed")
	}
}

func TestReadTrackingAndSummaries(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	befriend(t, s, 1, 2)
	conv, err := s.StartPrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("StartPrivate failed: %v", err)
	}

	for _, text := range []string{"one", "two", "three"} {
		if _, err := s.msgs.Save(ctx, conv.ID, 1, text, 0); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	n, err := s.Unread(ctx, conv.ID, 2)
	if err != nil {
		t.Fatalf("Unread failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("unread = %d, want 3", n)
	}

	if err := s.MarkRead(ctx, conv.ID, 2); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if n, _ = s.Unread(ctx, conv.ID, 2); n != 0 {
		t.Fatalf("unread after mark = %d, want 0", n)
	}

	if _, err := s.msgs.Save(ctx, conv.ID, 1, "four", 0); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	summaries, err := s.Summaries(ctx, 2)
	if err != nil {
		t.Fatalf("Summaries failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	got := summaries[0]
	if got.Name != "alice" {
		t.Errorf("private conversation named %q, want other member's username", got.Name)
	}
	if got.UnreadCount != 1 {
		t.Errorf("summary unread = %d, want 1", got.UnreadCount)
	}
	if got.LastMessage == nil || got.LastMessage.Content != "four" {
		t.Errorf("summary last message = %+v", got.LastMessage)
	}
}

func TestMarkReadRequiresParticipation(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	befriend(t, s, 1, 2)
	conv, err := s.StartPrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("StartPrivate failed: %v", err)
	}

	// empty conversation: participants succeed, outsiders do not
	if err := s.MarkRead(ctx, conv.ID, 1); err != nil {
		t.Fatalf("participant MarkRead on empty conversation failed: %v", err)
	}
	if err := s.MarkRead(ctx, conv.ID, 3); !errors.Is(err, data.ErrNotFound) {
		t.Fatalf("outsider MarkRead on empty conversation: got %v, want ErrNotFound", err)
	}

	if _, err := s.msgs.Save(ctx, conv.ID, 1, "hello", 0); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.MarkRead(ctx, conv.ID, 3); !errors.Is(err, data.ErrNotFound) {
		t.Fatalf("outsider MarkRead: got %v, want ErrNotFound", err)
	}
}

func TestHistoryRequiresParticipation(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	befriend(t, s, 1, 2)
	conv, err := s.StartPrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("StartPrivate failed: %v", err)
	}
	if _, err := s.msgs.Save(ctx, conv.ID, 1, "secret", 0); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var authErr *AuthorizationError
	if _, err := s.History(ctx, conv.ID, 3, 50); !errors.As(err, &authErr) {
		t.Fatalf("outsider history read should be refused, got %v", err)
	}
	msgs, err := s.History(ctx, conv.ID, 2, 50)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "secret" {
		t.Fatalf("history = %+v", msgs)
	}
}

func TestRecallSenderOnly(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	befriend(t, s, 1, 2)
	conv, err := s.StartPrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("StartPrivate failed: %v", err)
	}
	msg, err := s.msgs.Save(ctx, conv.ID, 1, "oops", 0)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var authErr *AuthorizationError
	if err := s.Recall(ctx, conv.ID, 2, msg.Seq); !errors.As(err, &authErr) {
		t.Fatalf("non-sender recall should be refused, got %v", err)
	}
	if err := s.Recall(ctx, conv.ID, 1, msg.Seq); err != nil {
		t.Fatalf("Recall failed: %v", err)
	}
}
