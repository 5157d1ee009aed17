package entity

// Step is a state of the per-round turn state machine.
type Step string

const (
	StepInitialReveal  Step = "initialReveal"
	StepDraw           Step = "draw"
	StepReplaceDiscard Step = "replace-discard"
	StepDecideDeck     Step = "decide-deck"
	StepFlipDeck       Step = "flip-deck"
	StepEndTurn        Step = "endTurn"
	StepEndGame        Step = "endGame"
)

// HandSize is how many cards every player holds during a round.
const HandSize = 12

// GameData is the round state. It is created whole at deal time and replaced
// whole on every accepted move; it is never patched field by field.
type GameData struct {
	Hands       map[string][]*Card `json:"hands"`
	DrawPile    []*Card            `json:"draw_pile"`
	DiscardPile []*Card            `json:"discard_pile"`

	CurrentPlayer string   `json:"current_player"`
	Step          Step     `json:"step"`
	TurnOrder     []string `json:"turn_order"`

	LastTurn   bool   `json:"last_turn"`
	LastTurnBy string `json:"last_turn_by,omitempty"`

	// Seq increases by one on every accepted snapshot. A submission based on
	// an older Seq is detectable as stale; it is still applied last-write-wins.
	Seq uint64 `json:"seq"`
}

// DrawTop returns the next card of the draw pile without removing it.
func (that *GameData) DrawTop() *Card {
	if len(that.DrawPile) == 0 {
		return nil
	}
	return that.DrawPile[len(that.DrawPile)-1]
}

// DiscardTop returns the most recent discard without removing it.
func (that *GameData) DiscardTop() *Card {
	if len(that.DiscardPile) == 0 {
		return nil
	}
	return that.DiscardPile[len(that.DiscardPile)-1]
}

// PopDraw removes and returns the top card of the draw pile.
func (that *GameData) PopDraw() *Card {
	card := that.DrawTop()
	if card == nil {
		return nil
	}
	that.DrawPile = that.DrawPile[:len(that.DrawPile)-1]
	return card
}

// PopDiscard removes and returns the top card of the discard pile.
func (that *GameData) PopDiscard() *Card {
	card := that.DiscardTop()
	if card == nil {
		return nil
	}
	that.DiscardPile = that.DiscardPile[:len(that.DiscardPile)-1]
	return card
}

// PushDiscard puts a card face up on top of the discard pile.
func (that *GameData) PushDiscard(card *Card) {
	card.Revealed = true
	card.InTransit = false
	that.DiscardPile = append(that.DiscardPile, card)
}

// RevealedCount returns how many of the player's cards are face up.
func (that *GameData) RevealedCount(playerID string) int {
	count := 0
	for _, card := range that.Hands[playerID] {
		if card.Revealed {
			count++
		}
	}
	return count
}

// NextInOrder returns the player after the given one in turn order, wrapping.
func (that *GameData) NextInOrder(playerID string) string {
	for i, id := range that.TurnOrder {
		if id == playerID {
			return that.TurnOrder[(i+1)%len(that.TurnOrder)]
		}
	}
	return ""
}

// InOrder reports whether the player is part of the round's turn order.
func (that *GameData) InOrder(playerID string) bool {
	for _, id := range that.TurnOrder {
		if id == playerID {
			return true
		}
	}
	return false
}
