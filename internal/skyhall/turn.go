package skyhall

import (
	"fmt"
	"math/rand"

	"github.com/skyhallinc/skyhall-backend/internal/apperror"
	"github.com/skyhallinc/skyhall-backend/internal/entity"
)

// initialRevealCount is how many cards each player flips before the first turn.
const initialRevealCount = 2

// RevealInitial flips one face-down card during the initialReveal step. It is
// not turn-gated: every player acts on their own hand until they have flipped
// two cards. Once all players are done the starting player is picked and the
// round moves to draw.
func RevealInitial(game *entity.GameData, playerID string, slot int) error {
	if game.Step != entity.StepInitialReveal {
		return fmt.Errorf("%w: step %s", apperror.ErrWrongStep, game.Step)
	}

	hand, ok := game.Hands[playerID]
	if !ok {
		return fmt.Errorf("%w: player %s", apperror.ErrPlayerNotFound, playerID)
	}

	if game.RevealedCount(playerID) >= initialRevealCount {
		return fmt.Errorf("%w: already revealed %d cards", apperror.ErrCardRevealed, initialRevealCount)
	}

	card, err := cardAt(hand, slot)
	if err != nil {
		return err
	}

	if card.Revealed {
		return fmt.Errorf("%w: slot %d", apperror.ErrCardRevealed, slot)
	}

	card.Revealed = true

	if allInitialRevealsDone(game) {
		game.CurrentPlayer = pickStartingPlayer(game)
		game.Step = entity.StepDraw
	}

	return nil
}

// DrawFromDeck takes the hidden top card of the draw pile. The card stays on
// the pile flagged in transit until the player decides what to do with it.
func DrawFromDeck(game *entity.GameData, playerID string) error {
	if err := requireTurn(game, playerID, entity.StepDraw); err != nil {
		return err
	}

	card := game.DrawTop()
	if card == nil {
		return fmt.Errorf("%w: draw pile", apperror.ErrPileEmpty)
	}

	card.InTransit = true
	game.Step = entity.StepDecideDeck

	return nil
}

// TakeFromDiscard picks up the face-up discard top. The card must then be
// swapped into the hand; discarding it back is not an option.
func TakeFromDiscard(game *entity.GameData, playerID string) error {
	if err := requireTurn(game, playerID, entity.StepDraw); err != nil {
		return err
	}

	card := game.DiscardTop()
	if card == nil {
		return fmt.Errorf("%w: discard pile", apperror.ErrPileEmpty)
	}

	card.InTransit = true
	game.Step = entity.StepReplaceDiscard

	return nil
}

// SwapFromDiscard puts the picked-up discard into the given hand slot; the
// replaced card becomes the new discard top, face up. Ends the turn.
func SwapFromDiscard(game *entity.GameData, playerID string, slot int) error {
	if err := requireTurn(game, playerID, entity.StepReplaceDiscard); err != nil {
		return err
	}

	hand := game.Hands[playerID]
	replaced, err := cardAt(hand, slot)
	if err != nil {
		return err
	}

	taken := game.PopDiscard()
	if taken == nil {
		return fmt.Errorf("%w: discard pile", apperror.ErrPileEmpty)
	}

	taken.Revealed = true
	taken.InTransit = false
	hand[slot] = taken
	game.PushDiscard(replaced)

	endTurn(game, playerID)

	return nil
}

// SwapDrawn puts the drawn card into the given hand slot, face up; the
// replaced card goes to the discard pile. Ends the turn.
func SwapDrawn(game *entity.GameData, playerID string, slot int) error {
	if err := requireTurn(game, playerID, entity.StepDecideDeck); err != nil {
		return err
	}

	hand := game.Hands[playerID]
	replaced, err := cardAt(hand, slot)
	if err != nil {
		return err
	}

	drawn := game.PopDraw()
	if drawn == nil {
		return fmt.Errorf("%w: draw pile", apperror.ErrPileEmpty)
	}

	drawn.Revealed = true
	drawn.InTransit = false
	hand[slot] = drawn
	game.PushDiscard(replaced)

	endTurn(game, playerID)

	return nil
}

// DiscardDrawn throws the drawn card on the discard pile. The player then
// owes one reveal of a face-down card (flip-deck step).
func DiscardDrawn(game *entity.GameData, playerID string) error {
	if err := requireTurn(game, playerID, entity.StepDecideDeck); err != nil {
		return err
	}

	drawn := game.PopDraw()
	if drawn == nil {
		return fmt.Errorf("%w: draw pile", apperror.ErrPileEmpty)
	}

	game.PushDiscard(drawn)
	game.Step = entity.StepFlipDeck

	return nil
}

// FlipFromDeck reveals exactly one face-down card after a straight discard.
// Ends the turn.
func FlipFromDeck(game *entity.GameData, playerID string, slot int) error {
	if err := requireTurn(game, playerID, entity.StepFlipDeck); err != nil {
		return err
	}

	card, err := cardAt(game.Hands[playerID], slot)
	if err != nil {
		return err
	}

	if card.Revealed {
		return fmt.Errorf("%w: slot %d", apperror.ErrCardRevealed, slot)
	}

	card.Revealed = true

	endTurn(game, playerID)

	return nil
}

// endTurn advances the round after a completed turn. A player who just
// revealed their whole hand starts the closing lap; when the lap comes back
// around to them the round is over.
func endTurn(game *entity.GameData, playerID string) {
	game.Step = entity.StepEndTurn

	if !game.LastTurn && game.RevealedCount(playerID) == entity.HandSize {
		game.LastTurn = true
		game.LastTurnBy = playerID
	}

	next := game.NextInOrder(playerID)
	game.CurrentPlayer = next

	if game.LastTurn && next == game.LastTurnBy {
		game.Step = entity.StepEndGame
		return
	}

	game.Step = entity.StepDraw
}

func requireTurn(game *entity.GameData, playerID string, step entity.Step) error {
	if game.Step != step {
		return fmt.Errorf("%w: step %s", apperror.ErrWrongStep, game.Step)
	}

	if game.CurrentPlayer != playerID {
		return fmt.Errorf("%w: current player is %s", apperror.ErrNotYourTurn, game.CurrentPlayer)
	}

	return nil
}

func cardAt(hand []*entity.Card, slot int) (*entity.Card, error) {
	if slot < 0 || slot >= len(hand) {
		return nil, fmt.Errorf("%w: slot %d", apperror.ErrInvalidSlot, slot)
	}

	return hand[slot], nil
}

func allInitialRevealsDone(game *entity.GameData) bool {
	for id := range game.Hands {
		if game.RevealedCount(id) < initialRevealCount {
			return false
		}
	}
	return true
}

// pickStartingPlayer picks the player with the highest sum of revealed cards,
// ties broken by the highest single revealed card, then uniformly at random.
func pickStartingPlayer(game *entity.GameData) string {
	best := ""
	bestSum, bestHigh := 0, 0
	tied := 0

	for _, id := range game.TurnOrder {
		sum, high := revealedSumAndHigh(game.Hands[id])

		switch {
		case best == "" || sum > bestSum || (sum == bestSum && high > bestHigh):
			best, bestSum, bestHigh = id, sum, high
			tied = 1
		case sum == bestSum && high == bestHigh:
			tied++
			if rand.Intn(tied) == 0 { //nolint: gosec // tie break, not crypto
				best = id
			}
		}
	}

	return best
}

func revealedSumAndHigh(hand []*entity.Card) (sum, high int) {
	first := true
	for _, card := range hand {
		if !card.Revealed {
			continue
		}

		sum += card.Value
		if first || card.Value > high {
			high = card.Value
			first = false
		}
	}

	return sum, high
}
