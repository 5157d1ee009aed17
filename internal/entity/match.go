package entity

import (
	"fmt"

	"github.com/skyhallinc/skyhall-backend/internal/apperror"
)

const (
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusFinished = "finished"
)

const (
	PresenceConnected    = "connected"
	PresenceDisconnected = "disconnected"
)

const (
	MinPlayers = 2
	MaxPlayers = 4
)

// PlayerLink ties a player to a match: cumulative score, per-round history
// and presence. It lives and dies with the match.
type PlayerLink struct {
	PlayerID     string `json:"player_id"`
	Name         string `json:"name,omitempty"`
	Score        int    `json:"score"`
	ScoreHistory []int  `json:"score_history"`
	Presence     string `json:"presence"`
}

// Match is the durable record of one game session.
type Match struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Round     int    `json:"round"`
	Private   bool   `json:"private"`
	Capacity  int    `json:"capacity"`
	CreatorID string `json:"creator_id"`

	WinnerID    string `json:"winner_id,omitempty"`
	WinnerScore int    `json:"winner_score,omitempty"`

	// Players is ordered by join time; join order breaks winner ties.
	Players []*PlayerLink `json:"players"`

	RematchConsent []string `json:"rematch_consent,omitempty"`
	NextRoundReady []string `json:"next_round_ready,omitempty"`

	Game *GameData `json:"game,omitempty"`
}

func NewMatch(id, name, creatorID string, private bool, capacity int) *Match {
	return &Match{
		ID:        id,
		Name:      name,
		Status:    StatusWaiting,
		Private:   private,
		Capacity:  capacity,
		CreatorID: creatorID,
	}
}

func (that *Match) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Match) IsPlaying() bool {
	return that.Status == StatusPlaying
}

func (that *Match) IsFinished() bool {
	return that.Status == StatusFinished
}

func (that *Match) IsFull() bool {
	return len(that.Players) >= that.Capacity
}

// Link returns the join record for the given player, or nil.
func (that *Match) Link(playerID string) *PlayerLink {
	for _, link := range that.Players {
		if link.PlayerID == playerID {
			return link
		}
	}
	return nil
}

func (that *Match) HasPlayer(playerID string) bool {
	return that.Link(playerID) != nil
}

// PlayerIDs returns the player identities in join order.
func (that *Match) PlayerIDs() []string {
	ids := make([]string, 0, len(that.Players))
	for _, link := range that.Players {
		ids = append(ids, link.PlayerID)
	}
	return ids
}

// AddPlayer appends a join record, enforcing capacity and uniqueness.
func (that *Match) AddPlayer(playerID, name string) error {
	if that.HasPlayer(playerID) {
		return fmt.Errorf("%w: player %s", apperror.ErrAlreadyJoined, playerID)
	}

	if that.IsFull() {
		return fmt.Errorf("%w: capacity %d", apperror.ErrMatchFull, that.Capacity)
	}

	that.Players = append(that.Players, &PlayerLink{
		PlayerID:     playerID,
		Name:         name,
		ScoreHistory: []int{},
		Presence:     PresenceConnected,
	})

	return nil
}

// RemovePlayer drops a join record. Only legal while the match is waiting;
// once a round has been dealt a departing player merely goes disconnected.
func (that *Match) RemovePlayer(playerID string) error {
	if !that.IsWaiting() {
		return apperror.ErrMatchNotWaiting
	}

	for i, link := range that.Players {
		if link.PlayerID == playerID {
			that.Players = append(that.Players[:i], that.Players[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("%w: player %s", apperror.ErrPlayerNotFound, playerID)
}

// HasConsented reports whether the player opted into a rematch.
func (that *Match) HasConsented(playerID string) bool {
	for _, id := range that.RematchConsent {
		if id == playerID {
			return true
		}
	}
	return false
}

// IsReadyForNextRound reports whether the player signalled readiness.
func (that *Match) IsReadyForNextRound(playerID string) bool {
	for _, id := range that.NextRoundReady {
		if id == playerID {
			return true
		}
	}
	return false
}
