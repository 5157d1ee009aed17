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
	"github.com/skyhallinc/skyhall-backend/internal/apperror"
	"github.com/skyhallinc/skyhall-backend/internal/entity"
	"github.com/skyhallinc/skyhall-backend/internal/usecase"
)

type matchUseCase interface {
	GetMatch(ctx context.Context, id string) (*entity.Match, error)
	JoinMatch(ctx context.Context, matchID, playerID string) (*entity.Match, error)
	LeaveMatch(ctx context.Context, matchID, playerID string) (*entity.Match, bool, error)
	ApplySnapshot(ctx context.Context, matchID, playerID string, snapshot *entity.GameData) (*entity.Match, bool, error)
	MakeMove(ctx context.Context, matchID, playerID string, move usecase.Move) (*entity.Match, error)
	ReadyForNextRound(ctx context.Context, matchID, playerID string) (*entity.Match, bool, error)
	ConsentRematch(ctx context.Context, matchID, playerID string, consent bool) (*entity.Match, error)
	StartRematch(ctx context.Context, matchID, playerID string) (*entity.Match, error)
	SetPresence(ctx context.Context, matchID, playerID, presence string) (*entity.Match, bool, error)
}

type authService interface {
	ResolveToken(ctx context.Context, token string) (string, error)
}

// Server is the synchronization channel: one broadcast room per match,
// relaying state snapshots and lifecycle events to every attached client.
type Server struct {
	logger  *slog.Logger
	matches matchUseCase
	auth    authService

	// joinDelay masks client connection-setup races before the
	// participant-joined broadcast. Cosmetic only.
	joinDelay time.Duration

	upgrader websocket.Upgrader

	roomsMutex sync.RWMutex
	rooms      map[string]*room

	handlers map[string]func(ctx context.Context, c *client, payload json.RawMessage) error
}

func New(logger *slog.Logger, matches matchUseCase, auth authService, joinDelay time.Duration) *Server {
	server := &Server{
		logger:    logger,
		matches:   matches,
		auth:      auth,
		joinDelay: joinDelay,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},

		rooms: make(map[string]*room),

		handlers: make(map[string]func(context.Context, *client, json.RawMessage) error),
	}

	server.handlers[ActionRoomJoin] = server.handleRoomJoin
	server.handlers[ActionRoomLeave] = server.handleRoomLeave
	server.handlers[ActionGameSnapshot] = server.handleGameSnapshot
	server.handlers[ActionGameMove] = server.handleGameMove
	server.handlers[ActionRoundReady] = server.handleRoundReady
	server.handlers[ActionRematchConsent] = server.handleRematchConsent
	server.handlers[ActionRematchStart] = server.handleRematchStart

	return server
}

// Start - starts the WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveWS(ctx, w, r)
	})

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// serveWS upgrades the connection and starts the client pumps.
func (that *Server) serveWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "serveWS")

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	c := &client{
		server: that,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
	}

	go c.writePump()
	go c.readPump(ctx)

	log.Info("WebSocket connection established")
}

// Broadcast sends a named event with a match snapshot to every client in the
// match's room. Used by this transport and by the REST layer for
// settings-changed style notifications.
func (that *Server) Broadcast(matchID, event string, match *entity.Match) {
	that.broadcastPayload(matchID, event, StatePayload{Match: match})
}

// BroadcastRedirect tells the room's clients where to go after a rematch.
func (that *Server) BroadcastRedirect(matchID, target string, playerIDs []string) {
	that.broadcastPayload(matchID, EventRedirect, RedirectPayload{
		Target:    target,
		PlayerIDs: playerIDs,
	})
}

func (that *Server) broadcastPayload(matchID, event string, payload any) {
	log := that.logger.With("method", "broadcastPayload", "matchID", matchID, "event", event)

	room := that.getRoom(matchID)
	if room == nil {
		// fire-and-forget: nobody listening is not an error
		log.Debug("no room for match, dropping event")
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to marshal payload", "error", err)
		return
	}

	raw, err := json.Marshal(Message{Action: event, Payload: body})
	if err != nil {
		log.Error("failed to marshal message", "error", err)
		return
	}

	room.broadcast(raw)
}

func (that *Server) getRoom(matchID string) *room {
	that.roomsMutex.RLock()
	defer that.roomsMutex.RUnlock()

	return that.rooms[matchID]
}

func (that *Server) joinRoom(matchID string, c *client) {
	that.roomsMutex.Lock()
	defer that.roomsMutex.Unlock()

	r, ok := that.rooms[matchID]
	if !ok {
		r = newRoom()
		that.rooms[matchID] = r
	}

	r.add(c)
}

func (that *Server) leaveRoom(matchID string, c *client) {
	that.roomsMutex.Lock()
	defer that.roomsMutex.Unlock()

	r, ok := that.rooms[matchID]
	if !ok {
		return
	}

	r.remove(c)

	if r.empty() {
		delete(that.rooms, matchID)
	}
}

// handleDisconnect flips presence and notifies the room when a pump dies.
// A vanished match is logged and dropped, never surfaced: there is no one
// to answer on a fire-and-forget channel.
func (that *Server) handleDisconnect(ctx context.Context, c *client) {
	log := that.logger.With("method", "handleDisconnect")

	if c.matchID == "" {
		return
	}

	that.leaveRoom(c.matchID, c)

	match, dealt, err := that.matches.SetPresence(ctx, c.matchID, c.playerID, entity.PresenceDisconnected)
	if errors.Is(err, apperror.ErrMatchNotFound) || errors.Is(err, apperror.ErrPlayerNotFound) {
		log.Info("match or player gone on disconnect", "matchID", c.matchID, "playerID", c.playerID)
		return
	}

	if err != nil {
		log.Error("failed to set presence", "error", err)
		return
	}

	that.Broadcast(c.matchID, EventParticipantDisconnected, match)

	// the departed player may have been the last hold-out at the
	// readiness gate
	if dealt {
		that.Broadcast(c.matchID, EventShuffling, nil)
		that.Broadcast(c.matchID, EventRoundDealt, match)
	}

	log.Info("player disconnected", "matchID", c.matchID, "playerID", c.playerID)
}
