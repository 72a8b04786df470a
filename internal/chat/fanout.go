package chat

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/talkwire/talkwire/internal/broadcast"
	"github.com/talkwire/talkwire/internal/data"
	"github.com/talkwire/talkwire/internal/normalize"
)

// MessageWriter is the slice of the message store the coordinator needs.
type MessageWriter interface {
	Save(ctx context.Context, conversationID, senderID int64, content string, parentSeq int64) (*data.Message, error)
	Exists(ctx context.Context, conversationID, seq int64) (bool, error)
}

// UserReader resolves sender display names.
type UserReader interface {
	GetByID(ctx context.Context, id int64) (*data.User, error)
}

// Coordinator orchestrates the send path: validate, persist, then fan
// the persisted message out to the conversation's room group and to
// every other participant's inbox group. Persisting always
// happens-before publishing so a notified client can never observe an
// id that isn't durable yet.
type Coordinator struct {
	convs    ConversationGetter
	resolver *Resolver
	msgs     MessageWriter
	users    UserReader
	broker   broadcast.Broker
	log      *zap.SugaredLogger

	// maxContentLen bounds message text in runes.
	maxContentLen int
}

// NewCoordinator wires a Coordinator. maxContentLen <= 0 disables the
// length bound.
func NewCoordinator(convs ConversationGetter, resolver *Resolver, msgs MessageWriter, users UserReader, broker broadcast.Broker, log *zap.SugaredLogger, maxContentLen int) *Coordinator {
	return &Coordinator{
		convs:         convs,
		resolver:      resolver,
		msgs:          msgs,
		users:         users,
		broker:        broker,
		log:           log,
		maxContentLen: maxContentLen,
	}
}

// Send runs one message through the send path and returns the
// persisted message.
//
// Failure modes: data.ErrNotFound when the conversation is gone,
// *AuthorizationError when the sender may not post (the sender's inbox
// gets a blocked notice, the room sees nothing), ErrEmptyContent /
// ErrContentTooLong for input the session drops silently, and wrapped
// store errors when persistence fails — in which case nothing is
// broadcast.
func (c *Coordinator) Send(ctx context.Context, conversationID, senderID int64, text string, parentID int64) (*data.Message, error) {
	content := normalize.Content(text)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if c.maxContentLen > 0 && utf8.RuneCountInString(content) > c.maxContentLen {
		return nil, ErrContentTooLong
	}

	conv, err := c.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	ok, err := c.resolver.AuthorizedToPost(ctx, conversationID, senderID)
	if err != nil {
		return nil, fmt.Errorf("authorization check: %w", err)
	}
	if !ok {
		reason := blockedReason(conv, senderID)
		if perr := c.broker.Publish(ctx, broadcast.Inbox(senderID), broadcast.Event{
			Kind:   broadcast.KindBlocked,
			Reason: reason,
		}); perr != nil {
			c.log.Warnw("failed to deliver blocked notice", "user", senderID, "err", perr)
		}
		return nil, &AuthorizationError{Reason: reason}
	}

	// A reply parent must live in the same conversation; anything else
	// is silently treated as no parent.
	if parentID > 0 {
		exists, err := c.msgs.Exists(ctx, conversationID, parentID)
		if err != nil {
			return nil, fmt.Errorf("validate parent: %w", err)
		}
		if !exists {
			parentID = 0
		}
	}

	sender, err := c.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("resolve sender: %w", err)
	}

	saved, err := c.msgs.Save(ctx, conversationID, senderID, content, parentID)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	payload := &broadcast.MessagePayload{
		ID:             saved.Seq,
		ConversationID: saved.ConversationID,
		SenderID:       saved.SenderID,
		SenderUsername: sender.Username,
		ParentID:       saved.ParentSeq,
		Content:        saved.Content,
		TimestampMS:    saved.CreatedAt.UnixMilli(),
		IsRecalled:     false,
	}

	// Room event: rendered by every connection with the conversation
	// open, including the sender's own other sessions.
	if err := c.broker.Publish(ctx, broadcast.Room(conversationID), broadcast.Event{
		Kind: broadcast.KindMessage,
		Msg:  payload,
	}); err != nil {
		// The message is durable; live delivery is best-effort and
		// reconciled through history pull on reconnect.
		c.log.Warnw("room publish failed", "conversation", conversationID, "seq", saved.Seq, "err", err)
	}

	// Inbox events: every other participant learns a message arrived
	// even with the conversation closed. The sender is excluded — their
	// echo rides the room event.
	recipients, err := c.resolver.Recipients(ctx, conversationID, senderID)
	if err != nil {
		c.log.Warnw("recipient resolution failed after persist", "conversation", conversationID, "err", err)
		return saved, nil
	}
	for _, userID := range recipients {
		if err := c.broker.Publish(ctx, broadcast.Inbox(userID), broadcast.Event{
			Kind: broadcast.KindInbox,
			Msg:  payload,
		}); err != nil {
			c.log.Warnw("inbox publish failed", "user", userID, "conversation", conversationID, "err", err)
		}
	}

	return saved, nil
}

// blockedReason maps the conversation state to the human-readable
// reason shown to a rejected sender. Outsiders are told so regardless
// of the conversation's kind.
func blockedReason(conv *data.Conversation, senderID int64) string {
	switch {
	case conv.Dissolved:
		return "this group has been dissolved"
	case conv.Kind == data.KindPrivate && hasMember(conv, senderID):
		return "this private conversation is no longer active"
	default:
		return "you are not a member of this conversation"
	}
}

func hasMember(conv *data.Conversation, userID int64) bool {
	for _, id := range conv.Members {
		if id == userID {
			return true
		}
	}
	return false
}
