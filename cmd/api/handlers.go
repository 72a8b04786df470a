package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/talkwire/talkwire/internal/chat"
	"github.com/talkwire/talkwire/internal/data"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChatSocket upgrades the connection and hands it to a chat
// session. The credential is verified inside Session.Run so a bad
// token still gets a proper websocket close frame instead of a plain
// HTTP error.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conversationID, err := pathInt64(r, "conversationID")
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	credential := credentialFromRequest(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Infow("websocket upgrade failed", "err", err)
		return
	}

	session := chat.NewSession(conn, conversationID, credential, s.authn, s.coord, s.broker, s.log, chat.SessionConfig{
		ReadDeadline:  s.cfg.ReadDeadline,
		WriteDeadline: s.cfg.WriteDeadline,
		MaxFrameBytes: s.cfg.WS.MaxFrameBytes,
	})
	// The request context ends with this handler; the session outlives
	// it and is bounded by the connection instead.
	_ = session.Run(context.Background())
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	summaries, err := s.svc.Summaries(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleStartPrivate(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	var req struct {
		OtherID int64 `json:"other_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OtherID <= 0 {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	conv, err := s.svc.StartPrivate(r.Context(), claims.UserID, req.OtherID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	conversationID, err := pathInt64(r, "id")
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	var limit int64 = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	msgs, err := s.svc.History(r.Context(), conversationID, claims.UserID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	conversationID, err := pathInt64(r, "id")
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	if err := s.svc.MarkRead(r.Context(), conversationID, claims.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	conversationID, err := pathInt64(r, "id")
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	seq, err := pathInt64(r, "seq")
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}
	if err := s.svc.Recall(r.Context(), conversationID, claims.UserID, seq); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	var req struct {
		Name      string  `json:"name"`
		MemberIDs []int64 `json:"member_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	conv, err := s.svc.CreateGroup(r.Context(), claims.UserID, req.Name, req.MemberIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	conversationID, err := pathInt64(r, "id")
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	if err := s.svc.Leave(r.Context(), conversationID, claims.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	conversationID, err := pathInt64(r, "id")
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	targetID, err := pathInt64(r, "userID")
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if err := s.svc.Kick(r.Context(), conversationID, claims.UserID, targetID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDissolveGroup(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	conversationID, err := pathInt64(r, "id")
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	if err := s.svc.Dissolve(r.Context(), conversationID, claims.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	ids, err := s.svc.Friends().ListAccepted(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]int64{"friend_ids": ids})
}

func (s *Server) handleFriendRequest(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	var req struct {
		ToID int64 `json:"to_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToID <= 0 {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rel, created, err := s.svc.Friends().Request(r.Context(), claims.UserID, req.ToID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	s.writeJSON(w, code, rel)
}

func (s *Server) handleFriendRespond(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	fromID, err := pathInt64(r, "fromID")
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	var req struct {
		Accept bool `json:"accept"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.svc.Friends().Respond(r.Context(), fromID, claims.UserID, req.Accept); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnfriend(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing auth claims", http.StatusUnauthorized)
		return
	}
	otherID, err := pathInt64(r, "id")
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if err := s.svc.Unfriend(r.Context(), claims.UserID, otherID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorw("write response failed", "err", err)
	}
}

// writeError maps service errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var authErr *chat.AuthorizationError
	switch {
	case errors.As(err, &authErr):
		http.Error(w, authErr.Reason, http.StatusForbidden)
	case errors.Is(err, data.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		s.log.Errorw("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
