package websocket

import (
	"encoding/json"

	"github.com/skyhallinc/skyhall-backend/internal/entity"
	"github.com/skyhallinc/skyhall-backend/internal/usecase"
)

// Message is the wire envelope for both directions: an action name plus an
// action-specific payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound actions.
const (
	ActionRoomJoin       = "room:join"
	ActionRoomLeave      = "room:leave"
	ActionGameSnapshot   = "game:snapshot"
	ActionGameMove       = "game:move"
	ActionRoundReady     = "round:ready"
	ActionRematchConsent = "rematch:consent"
	ActionRematchStart   = "rematch:start"
)

// Outbound events.
const (
	EventParticipantJoined       = "participant-joined"
	EventParticipantLeft         = "participant-left"
	EventParticipantDisconnected = "participant-disconnected"
	EventSettingsChanged         = "settings-changed"
	EventShuffling               = "shuffling"
	EventRoundDealt              = "round-dealt"
	EventMoveApplied             = "move-applied"
	EventRematchConsentChanged   = "rematch-consent-changed"
	EventRedirect                = "redirect-to-new-match"
	EventError                   = "error"
)

// HomeRedirect is the redirect target for participants who are not part of
// a rematch.
const HomeRedirect = "/"

// JoinPayload attaches a connection to a match room. The bearer token is
// resolved to the player identity.
type JoinPayload struct {
	Token   string `json:"token"`
	MatchID string `json:"match_id"`
}

// SnapshotPayload carries a full round-state replacement.
type SnapshotPayload struct {
	Game *entity.GameData `json:"game"`
}

// MovePayload carries one semantic action for server-side application.
type MovePayload struct {
	Move usecase.Move `json:"move"`
}

// ConsentPayload toggles rematch opt-in.
type ConsentPayload struct {
	Consent bool `json:"consent"`
}

// StatePayload is the common outbound body: a match snapshot, optionally
// flagged as the result of a stale (raced) submission.
type StatePayload struct {
	Match *entity.Match `json:"match,omitempty"`
	Stale bool          `json:"stale,omitempty"`
	Error string        `json:"error,omitempty"`
}

// RedirectPayload routes clients after a rematch: consenters to the new
// match, everyone else home.
type RedirectPayload struct {
	Target    string   `json:"target"`
	PlayerIDs []string `json:"player_ids,omitempty"`
}

// DestinationFor resolves where one player should navigate: eligible
// players follow the target, everyone else goes home.
func (that RedirectPayload) DestinationFor(playerID string) string {
	for _, id := range that.PlayerIDs {
		if id == playerID {
			return that.Target
		}
	}
	return HomeRedirect
}
