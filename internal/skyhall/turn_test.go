package skyhall

import (
	"fmt"
	"testing"

	"github.com/skyhallinc/skyhall-backend/internal/apperror"
	"github.com/skyhallinc/skyhall-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedGame builds a deterministic two player round in the draw step:
// alice holds 0..11, bob holds 1..12, alice to act.
func fixedGame() *entity.GameData {
	hand := func(owner string, base int) []*entity.Card {
		cards := make([]*entity.Card, entity.HandSize)
		for i := range cards {
			cards[i] = &entity.Card{ID: fmt.Sprintf("%s-%d", owner, i), Value: base + i}
		}
		return cards
	}

	return &entity.GameData{
		Hands: map[string][]*entity.Card{
			"alice": hand("alice", 0),
			"bob":   hand("bob", 1),
		},
		DrawPile:      []*entity.Card{{ID: "draw-0", Value: 5}, {ID: "draw-1", Value: -2}},
		DiscardPile:   []*entity.Card{{ID: "disc-0", Value: 9, Revealed: true}},
		TurnOrder:     []string{"alice", "bob"},
		CurrentPlayer: "alice",
		Step:          entity.StepDraw,
	}
}

func TestRevealInitial(t *testing.T) {
	t.Run("Any player may reveal during initialReveal regardless of turn", func(t *testing.T) {
		// Given: a freshly dealt round
		game := fixedGame()
		game.Step = entity.StepInitialReveal
		game.CurrentPlayer = ""

		// When: bob reveals before alice
		require.NoError(t, RevealInitial(game, "bob", 0))
		require.NoError(t, RevealInitial(game, "alice", 3))

		// Then: both reveals stuck and the step did not advance yet
		assert.True(t, game.Hands["bob"][0].Revealed)
		assert.True(t, game.Hands["alice"][3].Revealed)
		assert.Equal(t, entity.StepInitialReveal, game.Step)
	})

	t.Run("Rejects a third reveal by the same player", func(t *testing.T) {
		// Given: alice already revealed two cards
		game := fixedGame()
		game.Step = entity.StepInitialReveal
		require.NoError(t, RevealInitial(game, "alice", 0))
		require.NoError(t, RevealInitial(game, "alice", 1))

		// When: alice reveals a third card
		err := RevealInitial(game, "alice", 2)

		// Then: the reveal is rejected
		assert.ErrorIs(t, err, apperror.ErrCardRevealed)
		assert.False(t, game.Hands["alice"][2].Revealed)
	})

	t.Run("Highest revealed sum starts, advancing the step to draw", func(t *testing.T) {
		// Given: a round where bob will reveal the higher sum
		game := fixedGame()
		game.Step = entity.StepInitialReveal
		game.CurrentPlayer = ""

		// When: alice reveals 0+1 and bob reveals 11+12
		require.NoError(t, RevealInitial(game, "alice", 0))
		require.NoError(t, RevealInitial(game, "alice", 1))
		require.NoError(t, RevealInitial(game, "bob", 10))
		require.NoError(t, RevealInitial(game, "bob", 11))

		// Then: bob starts and the round is in the draw step
		assert.Equal(t, entity.StepDraw, game.Step)
		assert.Equal(t, "bob", game.CurrentPlayer)
	})

	t.Run("Equal sums are broken by the highest single card", func(t *testing.T) {
		// Given: hands where both reveal a sum of 12
		game := fixedGame()
		game.Step = entity.StepInitialReveal
		game.CurrentPlayer = ""

		// When: alice reveals 5+7, bob reveals 3+9 (bob's single high wins)
		require.NoError(t, RevealInitial(game, "alice", 5))
		require.NoError(t, RevealInitial(game, "alice", 7))
		require.NoError(t, RevealInitial(game, "bob", 2))
		require.NoError(t, RevealInitial(game, "bob", 8))

		// Then: bob starts
		assert.Equal(t, "bob", game.CurrentPlayer)
	})

	t.Run("Rejects reveals outside the initialReveal step", func(t *testing.T) {
		// Given: a round already in the draw step
		game := fixedGame()

		// When: alice tries an initial reveal
		err := RevealInitial(game, "alice", 0)

		// Then: the reveal is rejected
		assert.ErrorIs(t, err, apperror.ErrWrongStep)
	})
}

func TestDrawChoices(t *testing.T) {
	t.Run("Drawing from the deck moves to decide-deck", func(t *testing.T) {
		// Given: alice to act in the draw step
		game := fixedGame()

		// When: alice draws from the deck
		require.NoError(t, DrawFromDeck(game, "alice"))

		// Then: the top card is in transit and the step advanced
		assert.Equal(t, entity.StepDecideDeck, game.Step)
		assert.True(t, game.DrawTop().InTransit)
		assert.Len(t, game.DrawPile, 2)
	})

	t.Run("Taking the discard moves to replace-discard", func(t *testing.T) {
		// Given: alice to act in the draw step
		game := fixedGame()

		// When: alice takes the discard top
		require.NoError(t, TakeFromDiscard(game, "alice"))

		// Then: the discard top is in transit and the step advanced
		assert.Equal(t, entity.StepReplaceDiscard, game.Step)
		assert.True(t, game.DiscardTop().InTransit)
	})

	t.Run("Rejects the wrong actor without mutating state", func(t *testing.T) {
		// Given: alice to act in the draw step
		game := fixedGame()

		// When: bob tries to draw
		err := DrawFromDeck(game, "bob")

		// Then: the draw is rejected and nothing changed
		assert.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Equal(t, entity.StepDraw, game.Step)
		assert.False(t, game.DrawTop().InTransit)
	})
}

func TestSwapFromDiscard(t *testing.T) {
	// Given: alice picked up the discard top (value 9)
	game := fixedGame()
	require.NoError(t, TakeFromDiscard(game, "alice"))

	// When: alice swaps it into slot 4 (value 4)
	require.NoError(t, SwapFromDiscard(game, "alice", 4))

	// Then: slot 4 holds the revealed 9, the 4 is the new discard top,
	// and the turn passed to bob
	assert.Equal(t, 9, game.Hands["alice"][4].Value)
	assert.True(t, game.Hands["alice"][4].Revealed)
	assert.Equal(t, 4, game.DiscardTop().Value)
	assert.True(t, game.DiscardTop().Revealed)
	assert.Equal(t, "bob", game.CurrentPlayer)
	assert.Equal(t, entity.StepDraw, game.Step)
}

func TestDecideDeck(t *testing.T) {
	t.Run("Swapping the drawn card discards the replaced one", func(t *testing.T) {
		// Given: alice drew the hidden top card (value -2)
		game := fixedGame()
		require.NoError(t, DrawFromDeck(game, "alice"))

		// When: alice swaps it into slot 0 (value 0)
		require.NoError(t, SwapDrawn(game, "alice", 0))

		// Then: slot 0 holds the revealed -2, the 0 went to the discard,
		// the draw pile shrank, and the turn passed to bob
		assert.Equal(t, -2, game.Hands["alice"][0].Value)
		assert.True(t, game.Hands["alice"][0].Revealed)
		assert.Equal(t, 0, game.DiscardTop().Value)
		assert.Len(t, game.DrawPile, 1)
		assert.Equal(t, "bob", game.CurrentPlayer)
		assert.Equal(t, entity.StepDraw, game.Step)
	})

	t.Run("Discarding the drawn card requires a flip", func(t *testing.T) {
		// Given: alice drew the hidden top card
		game := fixedGame()
		require.NoError(t, DrawFromDeck(game, "alice"))

		// When: alice discards it outright
		require.NoError(t, DiscardDrawn(game, "alice"))

		// Then: the card is the revealed discard top and alice owes a flip
		assert.Equal(t, -2, game.DiscardTop().Value)
		assert.True(t, game.DiscardTop().Revealed)
		assert.Equal(t, entity.StepFlipDeck, game.Step)
		assert.Equal(t, "alice", game.CurrentPlayer)
	})

	t.Run("Rejects a swap when nothing was drawn", func(t *testing.T) {
		// Given: alice has not drawn anything
		game := fixedGame()

		// When: alice tries to resolve a deck decision
		err := SwapDrawn(game, "alice", 0)

		// Then: the action is rejected because the step is wrong
		assert.ErrorIs(t, err, apperror.ErrWrongStep)
	})
}

func TestFlipFromDeck(t *testing.T) {
	t.Run("Reveals one face-down card and ends the turn", func(t *testing.T) {
		// Given: alice owes a flip after a straight discard
		game := fixedGame()
		require.NoError(t, DrawFromDeck(game, "alice"))
		require.NoError(t, DiscardDrawn(game, "alice"))

		// When: alice flips slot 7
		require.NoError(t, FlipFromDeck(game, "alice", 7))

		// Then: the card is revealed and the turn passed to bob
		assert.True(t, game.Hands["alice"][7].Revealed)
		assert.Equal(t, "bob", game.CurrentPlayer)
		assert.Equal(t, entity.StepDraw, game.Step)
	})

	t.Run("Rejects flipping an already revealed card", func(t *testing.T) {
		// Given: alice owes a flip and slot 7 is already face up
		game := fixedGame()
		game.Hands["alice"][7].Revealed = true
		require.NoError(t, DrawFromDeck(game, "alice"))
		require.NoError(t, DiscardDrawn(game, "alice"))

		// When: alice flips slot 7
		err := FlipFromDeck(game, "alice", 7)

		// Then: the flip is rejected and the step stays flip-deck
		assert.ErrorIs(t, err, apperror.ErrCardRevealed)
		assert.Equal(t, entity.StepFlipDeck, game.Step)
	})
}

func TestClosingLap(t *testing.T) {
	t.Run("Revealing the whole hand starts the closing lap, not the end", func(t *testing.T) {
		// Given: alice with 11 revealed cards, about to flip the last one
		game := fixedGame()
		for i := 0; i < entity.HandSize-1; i++ {
			game.Hands["alice"][i].Revealed = true
		}
		require.NoError(t, DrawFromDeck(game, "alice"))
		require.NoError(t, DiscardDrawn(game, "alice"))

		// When: alice flips her final card
		require.NoError(t, FlipFromDeck(game, "alice", entity.HandSize-1))

		// Then: the last turn flag is set and bob still gets a turn
		assert.True(t, game.LastTurn)
		assert.Equal(t, "alice", game.LastTurnBy)
		assert.Equal(t, "bob", game.CurrentPlayer)
		assert.Equal(t, entity.StepDraw, game.Step)
	})

	t.Run("The round ends when the lap returns to the trigger", func(t *testing.T) {
		// Given: the closing lap triggered by alice, bob to act
		game := fixedGame()
		game.LastTurn = true
		game.LastTurnBy = "alice"
		game.CurrentPlayer = "bob"

		// When: bob completes his final turn
		require.NoError(t, DrawFromDeck(game, "bob"))
		require.NoError(t, DiscardDrawn(game, "bob"))
		require.NoError(t, FlipFromDeck(game, "bob", 0))

		// Then: the round is over
		assert.Equal(t, entity.StepEndGame, game.Step)
	})
}

// TestFullTurnCycle walks one complete two player turn end to end:
// deal, initial reveals, starting player, draw, discard, flip, hand over.
func TestFullTurnCycle(t *testing.T) {
	// Given: a real deal for two players
	game, err := Deal([]string{"alice", "bob"})
	require.NoError(t, err)

	// When: both players complete their initial reveals
	require.NoError(t, RevealInitial(game, "alice", 0))
	require.NoError(t, RevealInitial(game, "alice", 1))
	require.NoError(t, RevealInitial(game, "bob", 0))
	require.NoError(t, RevealInitial(game, "bob", 1))

	// Then: a starting player was chosen by revealed sum
	require.Equal(t, entity.StepDraw, game.Step)
	first := game.CurrentPlayer
	require.Contains(t, []string{"alice", "bob"}, first)

	sum := func(id string) int {
		total := 0
		for _, card := range game.Hands[id] {
			if card.Revealed {
				total += card.Value
			}
		}
		return total
	}
	other := game.NextInOrder(first)
	assert.GreaterOrEqual(t, sum(first), sum(other))

	// When: the starting player draws, discards and flips
	require.NoError(t, DrawFromDeck(game, first))
	require.NoError(t, DiscardDrawn(game, first))

	flipSlot := -1
	for i, card := range game.Hands[first] {
		if !card.Revealed {
			flipSlot = i
			break
		}
	}
	require.GreaterOrEqual(t, flipSlot, 0)
	require.NoError(t, FlipFromDeck(game, first, flipSlot))

	// Then: the turn passed to the other player
	assert.Equal(t, other, game.CurrentPlayer)
	assert.Equal(t, entity.StepDraw, game.Step)
}

// TestPickStartingPlayer_RandomTieBreak checks that a full tie on revealed
// sum and highest single card is broken uniformly: over many picks every
// tied player should start about equally often.
func TestPickStartingPlayer_RandomTieBreak(t *testing.T) {
	const trials = 3000

	players := []string{"alice", "bob", "carol"}
	wins := make(map[string]int, len(players))

	for i := 0; i < trials; i++ {
		hands := make(map[string][]*entity.Card, len(players))
		for _, id := range players {
			hands[id] = []*entity.Card{
				{ID: id + "-0", Value: 4, Revealed: true},
				{ID: id + "-1", Value: 4, Revealed: true},
			}
		}

		game := &entity.GameData{Hands: hands, TurnOrder: players}
		wins[pickStartingPlayer(game)]++
	}

	for _, id := range players {
		ratio := float64(wins[id]) / trials
		assert.InDelta(t, 1.0/3.0, ratio, 0.05, "player %s", id)
	}
}
