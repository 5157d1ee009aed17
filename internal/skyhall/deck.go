package skyhall

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/skyhallinc/skyhall-backend/internal/apperror"
	"github.com/skyhallinc/skyhall-backend/internal/entity"
)

// PoolSize is the fixed size of the card pool.
const PoolSize = 150

// cardCounts is the multiplicity table of the pool: value -> copies.
var cardCounts = []struct {
	Value int
	Count int
}{
	{Value: -2, Count: 5},
	{Value: -1, Count: 10},
	{Value: 0, Count: 15},
	{Value: 1, Count: 10},
	{Value: 2, Count: 10},
	{Value: 3, Count: 10},
	{Value: 4, Count: 10},
	{Value: 5, Count: 10},
	{Value: 6, Count: 10},
	{Value: 7, Count: 10},
	{Value: 8, Count: 10},
	{Value: 9, Count: 10},
	{Value: 10, Count: 10},
	{Value: 11, Count: 10},
	{Value: 12, Count: 10},
}

// BuildPool creates the full 150 card pool, face down, unshuffled.
func BuildPool() []*entity.Card {
	pool := make([]*entity.Card, 0, PoolSize)
	for _, row := range cardCounts {
		for i := 0; i < row.Count; i++ {
			pool = append(pool, &entity.Card{
				ID:    uuid.NewString(),
				Value: row.Value,
			})
		}
	}

	return pool
}

// Deal builds a fresh round state for the given players: 12 cards per hand,
// one face-up discard, the rest as the draw pile. The pool is shuffled with a
// uniform Fisher-Yates permutation and the seating order is shuffled too.
func Deal(playerIDs []string) (*entity.GameData, error) {
	n := len(playerIDs)
	if n < entity.MinPlayers || n > entity.MaxPlayers {
		return nil, fmt.Errorf("%w: %d players", apperror.ErrInsufficientCards, n)
	}

	pool := BuildPool()
	if len(pool) < n*entity.HandSize+1 {
		return nil, fmt.Errorf("%w: pool of %d cards", apperror.ErrInsufficientCards, len(pool))
	}

	rand.Shuffle(len(pool), func(i, j int) { //nolint: gosec // shuffle fairness, not crypto
		pool[i], pool[j] = pool[j], pool[i]
	})

	order := make([]string, n)
	copy(order, playerIDs)
	rand.Shuffle(n, func(i, j int) { //nolint: gosec // seating order only
		order[i], order[j] = order[j], order[i]
	})

	hands := make(map[string][]*entity.Card, n)
	dealt := 0
	for _, id := range order {
		hands[id] = pool[dealt : dealt+entity.HandSize : dealt+entity.HandSize]
		dealt += entity.HandSize
	}

	game := &entity.GameData{
		Hands:     hands,
		TurnOrder: order,
		Step:      entity.StepInitialReveal,
	}

	first := pool[dealt]
	dealt++
	game.PushDiscard(first)

	game.DrawPile = pool[dealt:]

	return game, nil
}
