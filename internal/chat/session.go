package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/talkwire/talkwire/internal/auth"
	"github.com/talkwire/talkwire/internal/broadcast"
	"github.com/talkwire/talkwire/internal/data"
)

// Conn is the slice of a websocket connection a session drives. It is
// satisfied by *websocket.Conn and by test fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Authenticator verifies a session credential and yields the claims.
type Authenticator interface {
	Decode(raw string) (*auth.Claims, error)
}

// MessageSender is the send path the session delegates inbound text
// frames to.
type MessageSender interface {
	Send(ctx context.Context, conversationID, senderID int64, text string, parentID int64) (*data.Message, error)
}

// Heartbeat literals exchanged as plain text frames.
const (
	heartbeatPing = "PING"
	heartbeatPong = "PONG"
)

// Outbound frame types.
const (
	frameNormal  = "normal"
	frameInbox   = "inbox"
	frameBlocked = "blocked"
)

// Session lifecycle states. Transitions only move forward:
// connecting -> authenticated -> subscribed -> closed.
const (
	stateConnecting = iota
	stateAuthenticated
	stateSubscribed
	stateClosed
)

// SessionConfig carries the connection tuning knobs.
type SessionConfig struct {
	ReadDeadline  time.Duration
	WriteDeadline time.Duration
	MaxFrameBytes int64
}

// inboundFrame is a client message frame. Anything that doesn't parse
// as this shape (and isn't a heartbeat) is dropped.
type inboundFrame struct {
	Text     string `json:"text"`
	ParentID int64  `json:"parent_id"`
}

// outboundFrame is the server-to-client envelope. Msg is set for
// normal and inbox frames, Reason for blocked frames.
type outboundFrame struct {
	Type   string                    `json:"type"`
	Msg    *broadcast.MessagePayload `json:"msg,omitempty"`
	Reason string                    `json:"reason,omitempty"`
}

// Session drives one websocket connection to one open conversation:
// it authenticates the credential, joins the conversation's room group
// and the user's inbox group, relays inbound text frames into the send
// path and pushes broadcast events back out. A Session is also the
// broadcast.Sender registered with the broker.
type Session struct {
	id             uuid.UUID
	conn           Conn
	conversationID int64
	credential     string

	authn  Authenticator
	coord  MessageSender
	broker broadcast.Broker
	log    *zap.SugaredLogger
	cfg    SessionConfig

	userID int64
	state  int

	// writeMu serializes frame writes: the read loop (heartbeat
	// replies) and broker deliveries write concurrently.
	writeMu sync.Mutex

	closeOnce sync.Once
	roomSub   int64
	inboxSub  int64
}

// NewSession builds a session for an upgraded connection. credential is
// the raw token presented during the handshake; it is not verified
// until Run.
func NewSession(conn Conn, conversationID int64, credential string, authn Authenticator, coord MessageSender, broker broadcast.Broker, log *zap.SugaredLogger, cfg SessionConfig) *Session {
	return &Session{
		id:             uuid.New(),
		conn:           conn,
		conversationID: conversationID,
		credential:     credential,
		authn:          authn,
		coord:          coord,
		broker:         broker,
		log:            log,
		cfg:            cfg,
	}
}

// Run takes the session through its lifecycle and blocks until the
// connection closes. The connection is always closed and both group
// subscriptions released on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown()

	claims, err := s.authn.Decode(s.credential)
	if err != nil {
		s.log.Infow("session rejected", "session", s.id, "err", err)
		s.writeClose(websocket.ClosePolicyViolation, "authentication failed")
		return err
	}
	s.userID = claims.UserID
	s.state = stateAuthenticated

	s.roomSub, err = s.broker.Subscribe(ctx, broadcast.Room(s.conversationID), s)
	if err != nil {
		return err
	}
	s.inboxSub, err = s.broker.Subscribe(ctx, broadcast.Inbox(s.userID), s)
	if err != nil {
		return err
	}
	s.state = stateSubscribed

	s.log.Infow("session open", "session", s.id, "user", s.userID, "conversation", s.conversationID)
	return s.readLoop(ctx)
}

// readLoop consumes client frames until the connection errors out. The
// read deadline is refreshed per frame, so a client that stops sending
// anything (heartbeats included) gets disconnected.
func (s *Session) readLoop(ctx context.Context) error {
	if s.cfg.MaxFrameBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxFrameBytes)
	}

	for {
		if s.cfg.ReadDeadline > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadDeadline)); err != nil {
				return err
			}
		}

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Infow("session read error", "session", s.id, "err", err)
			}
			return nil
		}

		if string(raw) == heartbeatPing {
			if err := s.writeRaw([]byte(heartbeatPong)); err != nil {
				return nil
			}
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			// Malformed frames are dropped, not answered: a broken
			// client gets no protocol of its own.
			s.log.Debugw("dropping malformed frame", "session", s.id)
			continue
		}

		s.handleSend(ctx, frame)
	}
}

// handleSend runs one inbound frame through the coordinator. Rejections
// never terminate the session: blocked senders already got their notice
// through the inbox group, invalid input is dropped.
func (s *Session) handleSend(ctx context.Context, frame inboundFrame) {
	_, err := s.coord.Send(ctx, s.conversationID, s.userID, frame.Text, frame.ParentID)
	if err == nil {
		return
	}

	var authErr *AuthorizationError
	switch {
	case errors.As(err, &authErr):
		s.log.Infow("message blocked", "session", s.id, "user", s.userID, "reason", authErr.Reason)
	case errors.Is(err, ErrEmptyContent):
		// dropped silently
	case errors.Is(err, ErrContentTooLong):
		s.log.Debugw("dropping oversized message", "session", s.id, "user", s.userID)
	case errors.Is(err, data.ErrNotFound):
		s.log.Warnw("message for missing conversation", "session", s.id, "conversation", s.conversationID)
	default:
		s.log.Errorw("send failed", "session", s.id, "user", s.userID, "err", err)
	}
}

// Send implements broadcast.Sender: it converts a broker event into an
// outbound frame. A write failure makes the hub drop this session's
// subscription.
func (s *Session) Send(ev broadcast.Event) error {
	frame := outboundFrame{Msg: ev.Msg, Reason: ev.Reason}
	switch ev.Kind {
	case broadcast.KindMessage:
		frame.Type = frameNormal
	case broadcast.KindInbox:
		frame.Type = frameInbox
	case broadcast.KindBlocked:
		frame.Type = frameBlocked
	default:
		return nil
	}

	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return s.writeRaw(raw)
}

func (s *Session) writeRaw(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.cfg.WriteDeadline > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteDeadline)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) writeClose(code int, reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(s.cfg.WriteDeadline)
	_ = s.conn.SetWriteDeadline(deadline)
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

// teardown releases both group subscriptions and closes the
// connection. Safe to call more than once.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		if s.roomSub != 0 {
			s.broker.Unsubscribe(broadcast.Room(s.conversationID), s.roomSub)
		}
		if s.inboxSub != 0 {
			s.broker.Unsubscribe(broadcast.Inbox(s.userID), s.inboxSub)
		}
		s.state = stateClosed
		_ = s.conn.Close()
		s.log.Infow("session closed", "session", s.id, "user", s.userID)
	})
}
