package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/skyhallinc/skyhall-backend/internal/apperror"
	"github.com/skyhallinc/skyhall-backend/internal/entity"
)

// handleRoomJoin authenticates the connection and attaches it to a match
// room. The participant-joined broadcast is delayed a beat to mask client
// connection-setup races; the joining client itself is answered immediately.
func (that *Server) handleRoomJoin(ctx context.Context, c *client, payload json.RawMessage) error {
	log := that.logger.With("method", "handleRoomJoin")

	var req JoinPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	playerID, err := that.auth.ResolveToken(ctx, req.Token)
	if err != nil {
		log.Error("failed to resolve token", "error", err)
		c.sendError(ActionRoomJoin, "invalid token")
		return nil
	}

	match, err := that.matches.GetMatch(ctx, req.MatchID)
	if err != nil {
		log.Error("failed to get match", "matchID", req.MatchID, "error", err)
		c.sendError(ActionRoomJoin, "match not found")
		return nil
	}

	if !match.HasPlayer(playerID) {
		if match, err = that.matches.JoinMatch(ctx, req.MatchID, playerID); err != nil {
			log.Error("failed to join match", "matchID", req.MatchID, "error", err)
			c.sendError(ActionRoomJoin, "failed to join match")
			return nil
		}
	} else {
		// reconnect: just flip presence back
		if match, _, err = that.matches.SetPresence(ctx, req.MatchID, playerID, entity.PresenceConnected); err != nil {
			log.Error("failed to set presence", "error", err)
			c.sendError(ActionRoomJoin, "failed to rejoin match")
			return nil
		}
	}

	// hopping to another match: detach from the old room first, or its
	// broadcasts would still target this connection after it dies
	if c.matchID != "" && c.matchID != match.ID {
		that.handleDisconnect(ctx, c)
	}

	c.playerID = playerID
	c.matchID = match.ID
	that.joinRoom(match.ID, c)

	c.sendMessage(ActionRoomJoin, StatePayload{Match: match})

	matchID := match.ID
	time.AfterFunc(that.joinDelay, func() {
		current, err := that.matches.GetMatch(context.WithoutCancel(ctx), matchID)
		if err != nil {
			log.Info("match gone before join broadcast", "matchID", matchID)
			return
		}

		that.Broadcast(matchID, EventParticipantJoined, current)
	})

	log.Info("player joined room", "matchID", match.ID, "playerID", playerID)

	return nil
}

func (that *Server) handleRoomLeave(ctx context.Context, c *client, _ json.RawMessage) error {
	log := that.logger.With("method", "handleRoomLeave")

	if c.matchID == "" {
		c.sendError(ActionRoomLeave, "not in a room")
		return nil
	}

	matchID := c.matchID

	match, destroyed, err := that.matches.LeaveMatch(ctx, matchID, c.playerID)

	if errors.Is(err, apperror.ErrMatchNotWaiting) {
		// mid-game leave: the seat stays, only presence flips
		match, dealt, presenceErr := that.matches.SetPresence(ctx, matchID, c.playerID, entity.PresenceDisconnected)
		if presenceErr != nil {
			log.Error("failed to set presence", "error", presenceErr)
			return nil
		}

		that.leaveRoom(matchID, c)
		c.matchID = ""
		that.Broadcast(matchID, EventParticipantDisconnected, match)

		if dealt {
			that.Broadcast(matchID, EventShuffling, nil)
			that.Broadcast(matchID, EventRoundDealt, match)
		}

		return nil
	}

	if err != nil {
		log.Error("failed to leave match", "error", err)
		c.sendError(ActionRoomLeave, "failed to leave match")
		return nil
	}

	that.leaveRoom(matchID, c)
	c.matchID = ""

	if destroyed {
		// the creator left a waiting match and took it down with them
		that.BroadcastRedirect(matchID, HomeRedirect, nil)
		log.Info("match torn down by leaving creator", "matchID", matchID)
		return nil
	}

	that.Broadcast(matchID, EventParticipantLeft, match)

	log.Info("player left room", "matchID", matchID, "playerID", c.playerID)

	return nil
}

// handleGameSnapshot accepts a full round-state replacement from any
// participant. The channel does not check the submitting player against
// currentPlayer: turn legality is a client-side convention here, and
// concurrent submissions resolve last-write-wins.
func (that *Server) handleGameSnapshot(ctx context.Context, c *client, payload json.RawMessage) error {
	log := that.logger.With("method", "handleGameSnapshot")

	var req SnapshotPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if req.Game == nil {
		c.sendError(ActionGameSnapshot, "game state is required")
		return nil
	}

	match, stale, err := that.matches.ApplySnapshot(ctx, c.matchID, c.playerID, req.Game)
	if errors.Is(err, apperror.ErrMatchNotFound) {
		log.Info("match gone, dropping snapshot", "matchID", c.matchID)
		return nil
	}

	if err != nil {
		log.Error("failed to apply snapshot", "error", err)
		c.sendError(ActionGameSnapshot, "failed to apply snapshot")
		return nil
	}

	that.broadcastPayload(c.matchID, EventMoveApplied, StatePayload{Match: match, Stale: stale})

	return nil
}

// handleGameMove applies one semantic action through the rules engine,
// for clients that prefer the server to compute the next state.
func (that *Server) handleGameMove(ctx context.Context, c *client, payload json.RawMessage) error {
	log := that.logger.With("method", "handleGameMove")

	var req MovePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	match, err := that.matches.MakeMove(ctx, c.matchID, c.playerID, req.Move)
	if errors.Is(err, apperror.ErrMatchNotFound) {
		log.Info("match gone, dropping move", "matchID", c.matchID)
		return nil
	}

	if err != nil {
		log.Error("failed to make move", "error", err)
		c.sendError(ActionGameMove, err.Error())
		return nil
	}

	that.Broadcast(c.matchID, EventMoveApplied, match)

	return nil
}

// handleRoundReady collects readiness signals; the deal happens once every
// player is in, preceded by a shuffling notice.
func (that *Server) handleRoundReady(ctx context.Context, c *client, _ json.RawMessage) error {
	log := that.logger.With("method", "handleRoundReady")

	match, dealt, err := that.matches.ReadyForNextRound(ctx, c.matchID, c.playerID)
	if errors.Is(err, apperror.ErrMatchNotFound) {
		log.Info("match gone, dropping ready signal", "matchID", c.matchID)
		return nil
	}

	if err != nil {
		log.Error("failed to record readiness", "error", err)
		c.sendError(ActionRoundReady, "failed to record readiness")
		return nil
	}

	if !dealt {
		return nil
	}

	that.Broadcast(c.matchID, EventShuffling, nil)
	that.Broadcast(c.matchID, EventRoundDealt, match)

	log.Info("next round dealt", "matchID", c.matchID, "round", match.Round)

	return nil
}

func (that *Server) handleRematchConsent(ctx context.Context, c *client, payload json.RawMessage) error {
	log := that.logger.With("method", "handleRematchConsent")

	var req ConsentPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	match, err := that.matches.ConsentRematch(ctx, c.matchID, c.playerID, req.Consent)
	if errors.Is(err, apperror.ErrMatchNotFound) {
		log.Info("match gone, dropping consent", "matchID", c.matchID)
		return nil
	}

	if err != nil {
		log.Error("failed to record consent", "error", err)
		c.sendError(ActionRematchConsent, "failed to record consent")
		return nil
	}

	that.Broadcast(c.matchID, EventRematchConsentChanged, match)

	return nil
}

// handleRematchStart creates the follow-up match and routes every client:
// consenting participants to the new match id, everyone else home.
func (that *Server) handleRematchStart(ctx context.Context, c *client, _ json.RawMessage) error {
	log := that.logger.With("method", "handleRematchStart")

	rematch, err := that.matches.StartRematch(ctx, c.matchID, c.playerID)
	if errors.Is(err, apperror.ErrMatchNotFound) {
		log.Info("match gone, dropping rematch start", "matchID", c.matchID)
		return nil
	}

	if err != nil {
		log.Error("failed to start rematch", "error", err)
		c.sendError(ActionRematchStart, "failed to start rematch")
		return nil
	}

	that.BroadcastRedirect(c.matchID, rematch.ID, rematch.PlayerIDs())

	log.Info("rematch started", "matchID", c.matchID, "rematchID", rematch.ID)

	return nil
}
