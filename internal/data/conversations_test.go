package data

import (
	"context"
	"errors"
	"testing"
)

func TestPrivateConversationUniquePerPair(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	counters := NewCountersStore(c.CountersCollection())
	convs := NewConversationsStore(c.ConversationsCollection(), counters)

	conv, created, err := convs.GetOrCreatePrivate(ctx, 2, 1)
	if err != nil {
		t.Fatalf("GetOrCreatePrivate failed: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create the conversation")
	}
	if conv.Members[0] != 1 || conv.Members[1] != 2 {
		t.Fatalf("members not stored sorted: %v", conv.Members)
	}

	// same pair in either order resolves to the same conversation
	again, created, err := convs.GetOrCreatePrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetOrCreatePrivate (second) failed: %v", err)
	}
	if created || again.ID != conv.ID {
		t.Fatalf("expected existing conversation %d, got %d (created=%v)", conv.ID, again.ID, created)
	}
}

func TestPrivateConversationRejectsSelfPair(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	counters := NewCountersStore(c.CountersCollection())
	convs := NewConversationsStore(c.ConversationsCollection(), counters)

	if _, _, err := convs.GetOrCreatePrivate(ctx, 3, 3); err == nil {
		t.Fatal("expected error for self-pair private conversation")
	}
}

func TestGroupCreateAndDissolve(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	counters := NewCountersStore(c.CountersCollection())
	convs := NewConversationsStore(c.ConversationsCollection(), counters)

	group, err := convs.CreateGroup(ctx, 1, "  weekend   crew ")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if group.Name != "weekend crew" {
		t.Fatalf("group name not normalized: %q", group.Name)
	}

	if err := convs.Dissolve(ctx, group.ID); err != nil {
		t.Fatalf("Dissolve failed: %v", err)
	}
	got, err := convs.Get(ctx, group.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Dissolved {
		t.Fatal("conversation should be marked dissolved")
	}

	if err := convs.Dissolve(ctx, 99999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound dissolving missing group, got %v", err)
	}
}
