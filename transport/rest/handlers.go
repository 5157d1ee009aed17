package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/skyhallinc/skyhall-backend/internal/apperror"
	"github.com/skyhallinc/skyhall-backend/internal/entity"
	"github.com/skyhallinc/skyhall-backend/internal/usecase"
	"github.com/skyhallinc/skyhall-backend/transport/websocket"
)

type matchUseCase interface {
	GetOrCreatePlayer(ctx context.Context, id, name string) (*entity.Player, error)
	CreateMatch(ctx context.Context, creatorID, name string, private bool, capacity int) (*entity.Match, error)
	GetMatch(ctx context.Context, id string) (*entity.Match, error)
	ListMatches(ctx context.Context, filter usecase.ListFilter) ([]*entity.Match, error)
	JoinMatch(ctx context.Context, matchID, playerID string) (*entity.Match, error)
	LeaveMatch(ctx context.Context, matchID, playerID string) (*entity.Match, bool, error)
	StartMatch(ctx context.Context, matchID, playerID string) (*entity.Match, error)
	FinishMatch(ctx context.Context, matchID, playerID string) (*entity.Match, error)
	UpdateSettings(ctx context.Context, matchID, playerID string, capacity int, private bool) (*entity.Match, error)
	DeleteMatch(ctx context.Context, matchID, playerID string) error
}

type authService interface {
	IssueToken(playerID string) (string, error)
	ResolveToken(ctx context.Context, token string) (string, error)
	RevokeToken(ctx context.Context, token string) error
}

// notifier pushes lifecycle events to the match's live room. REST mutations
// that a connected client should see right away go through it.
type notifier interface {
	Broadcast(matchID, event string, match *entity.Match)
	BroadcastRedirect(matchID, target string, playerIDs []string)
}

type Handlers struct {
	logger  *slog.Logger
	matches matchUseCase
	auth    authService
	notify  notifier
}

func NewHandlers(logger *slog.Logger, matches matchUseCase, auth authService, notify notifier) *Handlers {
	return &Handlers{
		logger:  logger,
		matches: matches,
		auth:    auth,
		notify:  notify,
	}
}

// withAuth resolves the bearer token and hands the player id to the wrapped
// handler. The raw token travels in the request context for /auth/revoke.
func (that *Handlers) withAuth(next func(w http.ResponseWriter, r *http.Request, playerID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		playerID, err := that.auth.ResolveToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r.WithContext(withToken(r.Context(), token)), playerID)
	}
}

func (that *Handlers) Ping(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

// IssueToken mints a guest identity. A known player id in the body renews
// the token for that identity instead of creating a new one.
func (that *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "IssueToken")

	var req struct {
		PlayerID string `json:"playerId"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	player, err := that.matches.GetOrCreatePlayer(r.Context(), req.PlayerID, req.Name)
	if err != nil {
		log.Error("failed to resolve player", "error", err)
		writeAppError(w, err)
		return
	}

	token, err := that.auth.IssueToken(player.ID)
	if err != nil {
		log.Error("failed to issue token", "error", err)
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":  token,
		"player": player,
	})
}

func (that *Handlers) RevokeToken(w http.ResponseWriter, r *http.Request, _ string) {
	log := that.logger.With("method", "RevokeToken")

	token, ok := tokenFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	if err := that.auth.RevokeToken(r.Context(), token); err != nil {
		log.Error("failed to revoke token", "error", err)
		writeAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (that *Handlers) CreateMatch(w http.ResponseWriter, r *http.Request, playerID string) {
	log := that.logger.With("method", "CreateMatch")

	var req struct {
		Name     string `json:"name"`
		Private  bool   `json:"private"`
		Capacity int    `json:"capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	match, err := that.matches.CreateMatch(r.Context(), playerID, req.Name, req.Private, req.Capacity)
	if err != nil {
		log.Error("failed to create match", "error", err)
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, match)
}

func (that *Handlers) GetMatch(w http.ResponseWriter, r *http.Request) {
	match, err := that.matches.GetMatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

// ListMatches returns the lobby view. Filters arrive as query parameters:
// status, creator and private.
func (that *Handlers) ListMatches(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "ListMatches")

	filter := usecase.ListFilter{
		Status:    r.URL.Query().Get("status"),
		CreatorID: r.URL.Query().Get("creator"),
	}

	switch r.URL.Query().Get("private") {
	case "true":
		private := true
		filter.Private = &private
	case "false":
		private := false
		filter.Private = &private
	}

	matches, err := that.matches.ListMatches(r.Context(), filter)
	if err != nil {
		log.Error("failed to list matches", "error", err)
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, matches)
}

func (that *Handlers) JoinMatch(w http.ResponseWriter, r *http.Request, playerID string) {
	log := that.logger.With("method", "JoinMatch")

	match, err := that.matches.JoinMatch(r.Context(), r.PathValue("id"), playerID)
	if err != nil {
		log.Info("failed to join match", "matchID", r.PathValue("id"), "error", err)
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

func (that *Handlers) LeaveMatch(w http.ResponseWriter, r *http.Request, playerID string) {
	log := that.logger.With("method", "LeaveMatch")

	matchID := r.PathValue("id")

	match, destroyed, err := that.matches.LeaveMatch(r.Context(), matchID, playerID)
	if err != nil {
		log.Info("failed to leave match", "matchID", matchID, "error", err)
		writeAppError(w, err)
		return
	}

	if destroyed {
		that.notify.BroadcastRedirect(matchID, websocket.HomeRedirect, nil)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	that.notify.Broadcast(matchID, websocket.EventParticipantLeft, match)

	writeJSON(w, http.StatusOK, match)
}

func (that *Handlers) StartMatch(w http.ResponseWriter, r *http.Request, playerID string) {
	log := that.logger.With("method", "StartMatch")

	match, err := that.matches.StartMatch(r.Context(), r.PathValue("id"), playerID)
	if err != nil {
		log.Info("failed to start match", "matchID", r.PathValue("id"), "error", err)
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

func (that *Handlers) FinishMatch(w http.ResponseWriter, r *http.Request, playerID string) {
	log := that.logger.With("method", "FinishMatch")

	match, err := that.matches.FinishMatch(r.Context(), r.PathValue("id"), playerID)
	if err != nil {
		log.Info("failed to finish match", "matchID", r.PathValue("id"), "error", err)
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

// UpdateSettings changes capacity and visibility of a waiting match and
// notifies the room so seated players see the new limits immediately.
func (that *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request, playerID string) {
	log := that.logger.With("method", "UpdateSettings")

	var req struct {
		Capacity int  `json:"capacity"`
		Private  bool `json:"private"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	matchID := r.PathValue("id")

	match, err := that.matches.UpdateSettings(r.Context(), matchID, playerID, req.Capacity, req.Private)
	if err != nil {
		log.Info("failed to update settings", "matchID", matchID, "error", err)
		writeAppError(w, err)
		return
	}

	that.notify.Broadcast(matchID, websocket.EventSettingsChanged, match)

	writeJSON(w, http.StatusOK, match)
}

func (that *Handlers) DeleteMatch(w http.ResponseWriter, r *http.Request, playerID string) {
	log := that.logger.With("method", "DeleteMatch")

	matchID := r.PathValue("id")

	if err := that.matches.DeleteMatch(r.Context(), matchID, playerID); err != nil {
		log.Info("failed to delete match", "matchID", matchID, "error", err)
		writeAppError(w, err)
		return
	}

	that.notify.BroadcastRedirect(matchID, websocket.HomeRedirect, nil)

	w.WriteHeader(http.StatusNoContent)
}

type contextKey string

const tokenContextKey contextKey = "bearer-token"

func withToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

func tokenFrom(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}

	return token, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps domain sentinels onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperror.ErrMatchNotFound), errors.Is(err, apperror.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperror.ErrForbidden), errors.Is(err, apperror.ErrNotYourTurn):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, apperror.ErrMatchFull),
		errors.Is(err, apperror.ErrAlreadyJoined),
		errors.Is(err, apperror.ErrMatchNotWaiting),
		errors.Is(err, apperror.ErrMatchNotPlaying),
		errors.Is(err, apperror.ErrMatchNotFinished):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperror.ErrInsufficientCards):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, apperror.ErrInvalidAction),
		errors.Is(err, apperror.ErrWrongStep),
		errors.Is(err, apperror.ErrInvalidSlot),
		errors.Is(err, apperror.ErrCardRevealed),
		errors.Is(err, apperror.ErrPileEmpty),
		errors.Is(err, usecase.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
