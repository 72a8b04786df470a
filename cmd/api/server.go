package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/talkwire/talkwire/internal/broadcast"
	"github.com/talkwire/talkwire/internal/chat"
	"github.com/talkwire/talkwire/internal/config"
	"github.com/talkwire/talkwire/internal/middleware"
)

// Server holds the HTTP surface: the websocket chat endpoint plus the
// REST endpoints for conversations, friends and groups.
type Server struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	authn    chat.Authenticator
	coord    chat.MessageSender
	svc      *chat.ConversationService
	broker   broadcast.Broker
	limiter  *middleware.LimiterStore
	upgrader websocket.Upgrader
}

// newServer returns a ready-to-use Server wired with its dependencies.
func newServer(cfg *config.Config, log *zap.SugaredLogger, authn chat.Authenticator, coord chat.MessageSender, svc *chat.ConversationService, broker broadcast.Broker, limiter *middleware.LimiterStore) *Server {
	return &Server{
		cfg:     cfg,
		log:     log,
		authn:   authn,
		coord:   coord,
		svc:     svc,
		broker:  broker,
		limiter: limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// routes assembles the router. The websocket handshake is rate limited
// per client IP; REST endpoints require a valid token.
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/ws/chat/{conversationID:[0-9]+}",
		middleware.RateLimit(s.limiter, http.HandlerFunc(s.handleChatSocket))).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.requireAuth)

	api.HandleFunc("/conversations", s.handleListConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/private", s.handleStartPrivate).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id:[0-9]+}/messages", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id:[0-9]+}/read", s.handleMarkRead).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id:[0-9]+}/messages/{seq:[0-9]+}/recall", s.handleRecall).Methods(http.MethodPost)

	api.HandleFunc("/groups", s.handleCreateGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id:[0-9]+}/leave", s.handleLeaveGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id:[0-9]+}/members/{userID:[0-9]+}", s.handleKick).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{id:[0-9]+}", s.handleDissolveGroup).Methods(http.MethodDelete)

	api.HandleFunc("/friends", s.handleListFriends).Methods(http.MethodGet)
	api.HandleFunc("/friends/requests", s.handleFriendRequest).Methods(http.MethodPost)
	api.HandleFunc("/friends/requests/{fromID:[0-9]+}", s.handleFriendRespond).Methods(http.MethodPost)
	api.HandleFunc("/friends/{id:[0-9]+}", s.handleUnfriend).Methods(http.MethodDelete)

	return r
}
