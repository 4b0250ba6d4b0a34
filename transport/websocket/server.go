package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gridclash/gridclash-backend/internal/entity"
	"github.com/gridclash/gridclash-backend/internal/pkg"
)

const (
	writeTimeout   = 10 * time.Second
	sendBufferSize = 32
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSendBufferFull   = errors.New("outbound buffer full")
)

type matchUseCase interface {
	CreateMatch(playerID, playerName string) (entity.MatchState, error)
	JoinMatch(matchID, playerID, playerName string) (entity.MatchState, error)
	MakeMove(ctx context.Context, matchID, playerID string, cell int) (entity.MatchState, error)
	MatchActive(matchID string) bool
	Reconnect(matchID, token string) (entity.MatchState, string, error)
	Disconnect(ctx context.Context, matchID, playerID string)
	Leave(ctx context.Context, matchID, playerID string)
}

// Server is the session coordinator's transport face: it binds each websocket
// connection to a player identity, translates inbound messages into match
// operations, and delivers match events to the connections holding that
// match's two slots.
type Server struct {
	logger  *slog.Logger
	matches matchUseCase

	upgrader websocket.Upgrader

	connectionsMutex sync.RWMutex
	connections      map[string]*client

	handlers map[string]func(ctx context.Context, sess *session, msg *Message) error
}

// client wraps one websocket connection. Outbound messages go through a
// buffered channel drained by a single writer goroutine, so delivering an
// event to a slow reader never blocks the match operation that emitted it.
// The channel keeps per-connection delivery order.
type client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan Message
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan Message, sendBufferSize),
	}
}

// enqueue hands a message to the writer goroutine. A full buffer means the
// peer stopped reading; the message is dropped rather than stalling the
// caller.
func (that *client) enqueue(msg Message) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return errConnectionClosed
	}

	select {
	case that.send <- msg:
		return nil
	default:
		return errSendBufferFull
	}
}

// shutdown stops the writer goroutine once the outbound buffer drains. Safe
// to call more than once.
func (that *client) shutdown() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.closed {
		that.closed = true
		close(that.send)
	}
}

// writeLoop is the connection's single writer; it drains the outbound buffer
// onto the wire in order. On a write error it keeps draining so enqueuers
// never back up while the read loop tears the session down.
func (that *client) writeLoop() {
	for msg := range that.send {
		_ = that.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = that.conn.WriteJSON(msg)
	}
}

// session is the per-connection state: the identity the connection is bound
// to and its single active match binding, if any.
type session struct {
	playerID string
	client   *client
	matchID  string
}

func New(logger *slog.Logger, matches matchUseCase) *Server {
	server := &Server{
		logger:  logger.With("component", "websocket"),
		matches: matches,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},

		connections: make(map[string]*client),

		handlers: make(map[string]func(context.Context, *session, *Message) error),
	}

	server.handlers[ActionCreateMatch] = server.handleCreateMatch
	server.handlers[ActionJoinMatch] = server.handleJoinMatch
	server.handlers[ActionMakeMove] = server.handleMakeMove
	server.handlers[ActionReconnect] = server.handleReconnect
	server.handlers[ActionLeaveMatch] = server.handleLeaveMatch

	return server
}

// Start - starts the WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveConnection(ctx, w, r)
	})

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) serveConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "serveConnection")

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	sess := &session{
		playerID: pkg.GeneratePlayerID(),
		client:   newClient(conn),
	}

	go sess.client.writeLoop()

	that.registerConnection(sess.playerID, sess.client)

	log = log.With("playerID", sess.playerID)
	log.Info("WebSocket connection established")

	defer func() {
		that.unregisterConnection(sess.playerID)

		if sess.matchID != "" {
			that.matches.Disconnect(ctx, sess.matchID, sess.playerID)
		}

		sess.client.shutdown()
		_ = conn.Close()

		log.Info("WebSocket connection closed")
	}()

	that.readLoop(ctx, sess)
}

func (that *Server) readLoop(ctx context.Context, sess *session) {
	log := that.logger.With("method", "readLoop", "playerID", sess.playerID)

	for {
		_, data, err := sess.client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error("unexpected close", "error", err)
			}
			return
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			that.sendError(sess.client, "Internal", "malformed message")
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Error("unknown action", "action", message.Action)
			that.sendError(sess.client, "Internal", "unknown action: "+message.Action)
			continue
		}

		if err = handler(ctx, sess, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

// Notify delivers a match event to the connection currently bound to the
// player identity. Identities without a live connection are skipped; the
// match itself tracks their disconnected state.
func (that *Server) Notify(playerID string, event any) {
	that.connectionsMutex.RLock()
	conn, ok := that.connections[playerID]
	that.connectionsMutex.RUnlock()

	if !ok {
		return
	}

	action, payload := encodeEvent(event)
	if action == "" {
		that.logger.Error("unknown event type", "event", fmt.Sprintf("%T", event))
		return
	}

	if err := that.sendMessage(conn, action, payload); err != nil {
		that.logger.Error("failed to deliver event", "playerID", playerID, "action", action, "error", err)
	}
}

// boundToActiveMatch reports whether the session still holds a live match
// binding. A binding whose match has completed or been evicted is released
// here, so the connection can create or join a new match without an explicit
// leave.
func (that *Server) boundToActiveMatch(sess *session) bool {
	if sess.matchID == "" {
		return false
	}

	if !that.matches.MatchActive(sess.matchID) {
		sess.matchID = ""
		return false
	}

	return true
}

func (that *Server) registerConnection(playerID string, conn *client) {
	that.connectionsMutex.Lock()
	that.connections[playerID] = conn
	that.connectionsMutex.Unlock()
}

func (that *Server) unregisterConnection(playerID string) {
	that.connectionsMutex.Lock()
	delete(that.connections, playerID)
	that.connectionsMutex.Unlock()
}

func (that *Server) sendMessage(conn *client, action string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	response := Message{
		Action:  action,
		Payload: payloadJSON,
	}

	if err = conn.enqueue(response); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	return nil
}

func (that *Server) sendError(conn *client, kind, message string) {
	payload := ErrorPayload{
		Kind:    kind,
		Message: message,
	}

	if err := that.sendMessage(conn, ActionError, payload); err != nil {
		that.logger.Error("failed to send error response", "error", err)
	}
}
