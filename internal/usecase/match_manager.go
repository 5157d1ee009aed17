package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/skyhallinc/skyhall-backend/internal/apperror"
	"github.com/skyhallinc/skyhall-backend/internal/entity"
	"github.com/skyhallinc/skyhall-backend/internal/skyhall"
)

type matchRepo interface {
	CreateOrUpdate(ctx context.Context, match *entity.Match) error
	GetByID(ctx context.Context, id string) (*entity.Match, error)
	DeleteByID(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]*entity.Match, error)
}

type playerRepo interface {
	CreateOrUpdate(ctx context.Context, player *entity.Player) error
	GetByID(ctx context.Context, id string) (*entity.Player, error)
}

// ListFilter narrows ListMatches results. Zero values mean "any".
type ListFilter struct {
	Status    string
	CreatorID string
	Private   *bool
}

// Move is one semantic turn action, for clients that let the server apply
// the rules instead of submitting a whole snapshot.
type Move struct {
	Kind string `json:"kind"`
	Slot int    `json:"slot"`
}

const (
	MoveReveal       = "reveal"
	MoveDrawDeck     = "draw-deck"
	MoveTakeDiscard  = "take-discard"
	MoveSwapDiscard  = "swap-discard"
	MoveSwapDrawn    = "swap-drawn"
	MoveDiscardDrawn = "discard-drawn"
	MoveFlip         = "flip"
)

// MatchManager owns the match lifecycle: create, join, deal, accept moves,
// score rounds and orchestrate rematches. It is the only writer of the
// persisted match record, but deliberately not the only authority: any
// participant may replace the whole round state (see ApplySnapshot).
type MatchManager struct {
	logger     *slog.Logger
	matchRepo  matchRepo
	playerRepo playerRepo
}

func NewMatchManager(logger *slog.Logger, matchRepo matchRepo, playerRepo playerRepo) *MatchManager {
	return &MatchManager{
		logger: logger,

		matchRepo:  matchRepo,
		playerRepo: playerRepo,
	}
}

// GetOrCreatePlayer resolves a player identity, minting a new one for an
// empty ID.
func (that *MatchManager) GetOrCreatePlayer(ctx context.Context, id, name string) (*entity.Player, error) {
	if id == "" {
		player := &entity.Player{
			ID:   uuid.NewString(),
			Name: name,
		}

		if err := that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
			return nil, fmt.Errorf("failed to create player: %w", err)
		}

		return player, nil
	}

	player, err := that.playerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get player by id: %w", err)
	}

	return player, nil
}

// CreateMatch opens a new waiting match with the creator already joined.
func (that *MatchManager) CreateMatch(ctx context.Context, creatorID, name string, private bool, capacity int) (*entity.Match, error) {
	creator, err := that.getPlayerByID(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	if capacity < entity.MinPlayers {
		capacity = entity.MinPlayers
	}
	if capacity > entity.MaxPlayers {
		capacity = entity.MaxPlayers
	}

	match := entity.NewMatch(uuid.NewString(), name, creatorID, private, capacity)
	if err = match.AddPlayer(creator.ID, creator.Name); err != nil {
		return nil, fmt.Errorf("failed to seat creator: %w", err)
	}

	creator.MatchID = match.ID
	if err = that.updatePlayer(ctx, creator); err != nil {
		return nil, err
	}

	if err = that.updateMatch(ctx, match); err != nil {
		return nil, err
	}

	return match, nil
}

func (that *MatchManager) GetMatch(ctx context.Context, id string) (*entity.Match, error) {
	return that.getMatchByID(ctx, id)
}

// ListMatches returns stored matches narrowed by the filter.
func (that *MatchManager) ListMatches(ctx context.Context, filter ListFilter) ([]*entity.Match, error) {
	all, err := that.matchRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	matches := make([]*entity.Match, 0, len(all))
	for _, match := range all {
		if filter.Status != "" && match.Status != filter.Status {
			continue
		}
		if filter.CreatorID != "" && match.CreatorID != filter.CreatorID {
			continue
		}
		if filter.Private != nil && match.Private != *filter.Private {
			continue
		}

		matches = append(matches, match)
	}

	return matches, nil
}

// JoinMatch seats a player into a waiting match.
func (that *MatchManager) JoinMatch(ctx context.Context, matchID, playerID string) (*entity.Match, error) {
	match, err := that.getMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}

	if !match.IsWaiting() {
		return nil, apperror.ErrMatchNotWaiting
	}

	player, err := that.getPlayerByID(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if err = match.AddPlayer(player.ID, player.Name); err != nil {
		return nil, err
	}

	player.MatchID = match.ID
	if err = that.updatePlayer(ctx, player); err != nil {
		return nil, err
	}

	if err = that.updateMatch(ctx, match); err != nil {
		return nil, err
	}

	return match, nil
}

// LeaveMatch removes a player from a waiting match. A departing creator
// tears the match down; everyone still seated is reported back so the
// caller can redirect them. Leaving is not legal once the match started.
func (that *MatchManager) LeaveMatch(ctx context.Context, matchID, playerID string) (*entity.Match, bool, error) {
	match, err := that.getMatchByID(ctx, matchID)
	if err != nil {
		return nil, false, err
	}

	if !match.IsWaiting() {
		return nil, false, apperror.ErrMatchNotWaiting
	}

	if !match.HasPlayer(playerID) {
		return nil, false, fmt.Errorf("%w: player %s", apperror.ErrPlayerNotFound, playerID)
	}

	if playerID == match.CreatorID {
		if err = that.destroyMatch(ctx, match); err != nil {
			return nil, false, err
		}

		return match, true, nil
	}

	if err = match.RemovePlayer(playerID); err != nil {
		return nil, false, err
	}

	if err = that.detachPlayer(ctx, playerID); err != nil {
		return nil, false, err
	}

	if err = that.updateMatch(ctx, match); err != nil {
		return nil, false, err
	}

	return match, false, nil
}

// StartMatch deals the first round. Creator only, waiting matches only.
func (that *MatchManager) StartMatch(ctx context.Context, matchID, playerID string) (*entity.Match, error) {
	match, err := that.getMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}

	if playerID != match.CreatorID {
		return nil, fmt.Errorf("%w: only the creator may start", apperror.ErrForbidden)
	}

	if !match.IsWaiting() {
		return nil, apperror.ErrMatchNotWaiting
	}

	game, err := skyhall.Deal(match.PlayerIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to deal: %w", err)
	}

	game.Seq = 1
	match.Game = game
	match.Round = 1
	match.Status = entity.StatusPlaying

	if err = that.updateMatch(ctx, match); err != nil {
		return nil, err
	}

	return match, nil
}

// FinishMatch force-finishes a match. Creator only.
func (that *MatchManager) FinishMatch(ctx context.Context, matchID, playerID string) (*entity.Match, error) {
	match, err := that.getMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}

	if playerID != match.CreatorID {
		return nil, fmt.Errorf("%w: only the creator may finish", apperror.ErrForbidden)
	}

	if match.IsFinished() {
		return match, nil
	}

	match.Status = entity.StatusFinished
	if err = that.updateMatch(ctx, match); err != nil {
		return nil, err
	}

	return match, nil
}

// UpdateSettings changes capacity and privacy. Creator only, waiting only;
// capacity never drops below the seated player count.
func (that *MatchManager) UpdateSettings(ctx context.Context, matchID, playerID string, capacity int, private bool) (*entity.Match, error) {
	match, err := that.getMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}

	if playerID != match.CreatorID {
		return nil, fmt.Errorf("%w: only the creator may change settings", apperror.ErrForbidden)
	}

	if !match.IsWaiting() {
		return nil, apperror.ErrMatchNotWaiting
	}

	if capacity < entity.MinPlayers || capacity > entity.MaxPlayers {
		return nil, fmt.Errorf("%w: capacity %d", apperror.ErrInvalidAction, capacity)
	}

	if capacity < len(match.Players) {
		return nil, fmt.Errorf("%w: %d players already seated", apperror.ErrMatchFull, len(match.Players))
	}

	match.Capacity = capacity
	match.Private = private

	if err = that.updateMatch(ctx, match); err != nil {
		return nil, err
	}

	return match, nil
}

// DeleteMatch removes a match that never started. Creator only.
func (that *MatchManager) DeleteMatch(ctx context.Context, matchID, playerID string) error {
	match, err := that.getMatchByID(ctx, matchID)
	if err != nil {
		return err
	}

	if playerID != match.CreatorID {
		return fmt.Errorf("%w: only the creator may delete", apperror.ErrForbidden)
	}

	if !match.IsWaiting() {
		return apperror.ErrMatchNotWaiting
	}

	return that.destroyMatch(ctx, match)
}

// ApplySnapshot replaces the whole round state with a client submission.
// The write always wins; a submission based on a stale sequence number is
// detected and logged but still applied, matching the channel's
// last-write-wins contract. When the snapshot lands on endGame the round is
// scored and the match may finish.
func (that *MatchManager) ApplySnapshot(ctx context.Context, matchID, playerID string, snapshot *entity.GameData) (*entity.Match, bool, error) {
	log := that.logger.With("method", "ApplySnapshot", "matchID", matchID)

	match, err := that.getMatchByID(ctx, matchID)
	if err != nil {
		return nil, false, err
	}

	if !match.IsPlaying() {
		return nil, false, apperror.ErrMatchNotPlaying
	}

	if !match.HasPlayer(playerID) {
		return nil, false, fmt.Errorf("%w: player %s", apperror.ErrForbidden, playerID)
	}

	stale := match.Game != nil && snapshot.Seq != match.Game.Seq
	if stale {
		log.Warn("stale snapshot applied last-write-wins",
			"playerID", playerID,
			"baseSeq", snapshot.Seq,
			"currentSeq", match.Game.Seq,
		)
	}

	if match.Game != nil {
		snapshot.Seq = match.Game.Seq + 1
	} else {
		snapshot.Seq = 1
	}
	match.Game = snapshot

	if snapshot.Step == entity.StepEndGame {
		if err = skyhall.ApplyRound(match); err != nil {
			return nil, stale, fmt.Errorf("failed to score round: %w", err)
		}
	}

	if err = that.updateMatch(ctx, match); err != nil {
		return nil, stale, err
	}

	return match, stale, nil
}

// MakeMove applies one semantic action through the rules engine and persists
// the resulting snapshot. This is the server-applied alternative to
// ApplySnapshot for thin clients.
func (that *MatchManager) MakeMove(ctx context.Context, matchID, playerID string, move Move) (*entity.Match, error) {
	match, err := that.getMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}

	if !match.IsPlaying() || match.Game == nil {
		return nil, apperror.ErrMatchNotPlaying
	}

	game := match.Game

	switch move.Kind {
	case MoveReveal:
		err = skyhall.RevealInitial(game, playerID, move.Slot)
	case MoveDrawDeck:
		err = skyhall.DrawFromDeck(game, playerID)
	case MoveTakeDiscard:
		err = skyhall.TakeFromDiscard(game, playerID)
	case MoveSwapDiscard:
		err = skyhall.SwapFromDiscard(game, playerID, move.Slot)
	case MoveSwapDrawn:
		err = skyhall.SwapDrawn(game, playerID, move.Slot)
	case MoveDiscardDrawn:
		err = skyhall.DiscardDrawn(game, playerID)
	case MoveFlip:
		err = skyhall.FlipFromDeck(game, playerID, move.Slot)
	default:
		return nil, fmt.Errorf("%w: %q", apperror.ErrInvalidAction, move.Kind)
	}

	if err != nil {
		return nil, fmt.Errorf("move rejected: %w", err)
	}

	game.Seq++

	if game.Step == entity.StepEndGame {
		if err = skyhall.ApplyRound(match); err != nil {
			return nil, fmt.Errorf("failed to score round: %w", err)
		}
	}

	if err = that.updateMatch(ctx, match); err != nil {
		return nil, err
	}

	return match, nil
}

// ReadyForNextRound records a player's readiness after a scored round; once
// every connected player is ready a fresh round is dealt. Disconnected
// players stay seated but do not hold up the deal.
func (that *MatchManager) ReadyForNextRound(ctx context.Context, matchID, playerID string) (*entity.Match, bool, error) {
	match, err := that.getMatchByID(ctx, matchID)
	if err != nil {
		return nil, false, err
	}

	if !match.IsPlaying() || match.Game == nil || match.Game.Step != entity.StepEndGame {
		return nil, false, apperror.ErrMatchNotPlaying
	}

	if !match.HasPlayer(playerID) {
		return nil, false, fmt.Errorf("%w: player %s", apperror.ErrForbidden, playerID)
	}

	if !match.IsReadyForNextRound(playerID) {
		match.NextRoundReady = append(match.NextRoundReady, playerID)
	}

	if !allConnectedReady(match) {
		if err = that.updateMatch(ctx, match); err != nil {
			return nil, false, err
		}

		return match, false, nil
	}

	if err = dealNextRound(match); err != nil {
		return nil, false, err
	}

	if err = that.updateMatch(ctx, match); err != nil {
		return nil, false, err
	}

	return match, true, nil
}

// allConnectedReady reports whether every connected player has signalled
// readiness for the next round.
func allConnectedReady(match *entity.Match) bool {
	connected := 0

	for _, link := range match.Players {
		if link.Presence != entity.PresenceConnected {
			continue
		}

		connected++

		if !match.IsReadyForNextRound(link.PlayerID) {
			return false
		}
	}

	return connected > 0
}

// dealNextRound replaces the round state with a fresh deal for every seated
// player, disconnected ones included.
func dealNextRound(match *entity.Match) error {
	game, err := skyhall.Deal(match.PlayerIDs())
	if err != nil {
		return fmt.Errorf("failed to deal: %w", err)
	}

	game.Seq = match.Game.Seq + 1
	match.Game = game
	match.Round++
	match.NextRoundReady = nil

	return nil
}

// ConsentRematch toggles a player's rematch opt-in on a finished match.
// The consent list is read-modify-write on the stored record; concurrent
// submissions can race, which the source system accepts.
func (that *MatchManager) ConsentRematch(ctx context.Context, matchID, playerID string, consent bool) (*entity.Match, error) {
	match, err := that.getMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}

	if !match.IsFinished() {
		return nil, apperror.ErrMatchNotFinished
	}

	if !match.HasPlayer(playerID) {
		return nil, fmt.Errorf("%w: player %s", apperror.ErrForbidden, playerID)
	}

	if consent && !match.HasConsented(playerID) {
		match.RematchConsent = append(match.RematchConsent, playerID)
	}

	if !consent {
		for i, id := range match.RematchConsent {
			if id == playerID {
				match.RematchConsent = append(match.RematchConsent[:i], match.RematchConsent[i+1:]...)
				break
			}
		}
	}

	if err = that.updateMatch(ctx, match); err != nil {
		return nil, err
	}

	return match, nil
}

// StartRematch spins up a new waiting match from a finished one, seating the
// creator plus every consenting player in their old join order.
func (that *MatchManager) StartRematch(ctx context.Context, matchID, playerID string) (*entity.Match, error) {
	match, err := that.getMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}

	if playerID != match.CreatorID {
		return nil, fmt.Errorf("%w: only the creator may start a rematch", apperror.ErrForbidden)
	}

	if !match.IsFinished() {
		return nil, apperror.ErrMatchNotFinished
	}

	rematch := entity.NewMatch(uuid.NewString(), match.Name, match.CreatorID, match.Private, match.Capacity)

	for _, link := range match.Players {
		if link.PlayerID != match.CreatorID && !match.HasConsented(link.PlayerID) {
			continue
		}

		if err = rematch.AddPlayer(link.PlayerID, link.Name); err != nil {
			return nil, fmt.Errorf("failed to seat %s: %w", link.PlayerID, err)
		}

		player, err := that.getPlayerByID(ctx, link.PlayerID)
		if err != nil {
			return nil, err
		}

		player.MatchID = rematch.ID
		if err = that.updatePlayer(ctx, player); err != nil {
			return nil, err
		}
	}

	if err = that.updateMatch(ctx, rematch); err != nil {
		return nil, err
	}

	return rematch, nil
}

// SetPresence flips a player's connected flag. While a match is waiting a
// disconnect is handled by LeaveMatch instead; during play the player stays
// seated and only the flag changes. A disconnect at the readiness gate is
// re-evaluated: if everyone still connected was already ready, the next
// round is dealt, reported by the second return value.
func (that *MatchManager) SetPresence(ctx context.Context, matchID, playerID, presence string) (*entity.Match, bool, error) {
	match, err := that.getMatchByID(ctx, matchID)
	if err != nil {
		return nil, false, err
	}

	link := match.Link(playerID)
	if link == nil {
		return nil, false, fmt.Errorf("%w: player %s", apperror.ErrPlayerNotFound, playerID)
	}

	link.Presence = presence

	dealt := false
	if presence == entity.PresenceDisconnected &&
		match.IsPlaying() && match.Game != nil && match.Game.Step == entity.StepEndGame &&
		allConnectedReady(match) {
		if err = dealNextRound(match); err != nil {
			return nil, false, err
		}

		dealt = true
	}

	if err = that.updateMatch(ctx, match); err != nil {
		return nil, false, err
	}

	return match, dealt, nil
}

func (that *MatchManager) destroyMatch(ctx context.Context, match *entity.Match) error {
	log := that.logger.With("method", "destroyMatch", "matchID", match.ID)

	for _, link := range match.Players {
		if err := that.detachPlayer(ctx, link.PlayerID); err != nil {
			log.Error("failed to detach player", "playerID", link.PlayerID, "error", err)
		}
	}

	if err := that.matchRepo.DeleteByID(ctx, match.ID); err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}

	log.Info("match destroyed")

	return nil
}

func (that *MatchManager) detachPlayer(ctx context.Context, playerID string) error {
	player, err := that.getPlayerByID(ctx, playerID)
	if err != nil {
		return err
	}

	player.MatchID = ""

	return that.updatePlayer(ctx, player)
}

func (that *MatchManager) getMatchByID(ctx context.Context, id string) (*entity.Match, error) {
	match, err := that.matchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	return match, nil
}

func (that *MatchManager) updateMatch(ctx context.Context, match *entity.Match) error {
	if err := that.matchRepo.CreateOrUpdate(ctx, match); err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}

	return nil
}

func (that *MatchManager) getPlayerByID(ctx context.Context, id string) (*entity.Player, error) {
	player, err := that.playerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	return player, nil
}

func (that *MatchManager) updatePlayer(ctx context.Context, player *entity.Player) error {
	if err := that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	return nil
}
