package usecase

import (
	"context"
	"log/slog"
	"testing"

	"github.com/skyhallinc/skyhall-backend/internal/apperror"
	"github.com/skyhallinc/skyhall-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMatchRepo is an in-memory matchRepo.
type fakeMatchRepo struct {
	matches map[string]*entity.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[string]*entity.Match)}
}

func (that *fakeMatchRepo) CreateOrUpdate(_ context.Context, match *entity.Match) error {
	that.matches[match.ID] = match
	return nil
}

func (that *fakeMatchRepo) GetByID(_ context.Context, id string) (*entity.Match, error) {
	match, ok := that.matches[id]
	if !ok {
		return nil, apperror.ErrMatchNotFound
	}
	return match, nil
}

func (that *fakeMatchRepo) DeleteByID(_ context.Context, id string) error {
	delete(that.matches, id)
	return nil
}

func (that *fakeMatchRepo) ListAll(_ context.Context) ([]*entity.Match, error) {
	all := make([]*entity.Match, 0, len(that.matches))
	for _, match := range that.matches {
		all = append(all, match)
	}
	return all, nil
}

// fakePlayerRepo is an in-memory playerRepo.
type fakePlayerRepo struct {
	players map[string]*entity.Player
}

func newFakePlayerRepo(ids ...string) *fakePlayerRepo {
	repo := &fakePlayerRepo{players: make(map[string]*entity.Player)}
	for _, id := range ids {
		repo.players[id] = &entity.Player{ID: id}
	}
	return repo
}

func (that *fakePlayerRepo) CreateOrUpdate(_ context.Context, player *entity.Player) error {
	that.players[player.ID] = player
	return nil
}

func (that *fakePlayerRepo) GetByID(_ context.Context, id string) (*entity.Player, error) {
	player, ok := that.players[id]
	if !ok {
		return nil, apperror.ErrPlayerNotFound
	}
	return player, nil
}

func newManager(players ...string) (*MatchManager, *fakeMatchRepo, *fakePlayerRepo) {
	matchRepo := newFakeMatchRepo()
	playerRepo := newFakePlayerRepo(players...)
	manager := NewMatchManager(slog.Default(), matchRepo, playerRepo)
	return manager, matchRepo, playerRepo
}

// startedMatch creates a match with the given players and deals round one.
func startedMatch(t *testing.T, manager *MatchManager, players ...string) *entity.Match {
	t.Helper()
	ctx := context.Background()

	match, err := manager.CreateMatch(ctx, players[0], "", false, entity.MaxPlayers)
	require.NoError(t, err)

	for _, id := range players[1:] {
		_, err = manager.JoinMatch(ctx, match.ID, id)
		require.NoError(t, err)
	}

	match, err = manager.StartMatch(ctx, match.ID, players[0])
	require.NoError(t, err)

	return match
}

func TestMatchManager_CreateMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates a waiting match with the creator seated", func(t *testing.T) {
		// Given: a known player
		manager, _, playerRepo := newManager("alice")

		// When: alice creates a match
		match, err := manager.CreateMatch(ctx, "alice", "friday", true, 3)

		// Then: the match waits with alice seated and linked back
		require.NoError(t, err)
		assert.Equal(t, entity.StatusWaiting, match.Status)
		assert.Equal(t, "alice", match.CreatorID)
		assert.Equal(t, []string{"alice"}, match.PlayerIDs())
		assert.True(t, match.Private)
		assert.Equal(t, match.ID, playerRepo.players["alice"].MatchID)
	})

	t.Run("Clamps capacity into the legal player range", func(t *testing.T) {
		manager, _, _ := newManager("alice")

		// When: creating with an absurd capacity
		match, err := manager.CreateMatch(ctx, "alice", "", false, 9)

		// Then: capacity is clamped to the maximum
		require.NoError(t, err)
		assert.Equal(t, entity.MaxPlayers, match.Capacity)
	})
}

func TestMatchManager_JoinAndLeave(t *testing.T) {
	ctx := context.Background()

	t.Run("Joining a started match is rejected", func(t *testing.T) {
		// Given: a started two player match
		manager, _, _ := newManager("alice", "bob", "carol")
		match := startedMatch(t, manager, "alice", "bob")

		// When: carol tries to join
		_, err := manager.JoinMatch(ctx, match.ID, "carol")

		// Then: the join is rejected
		assert.ErrorIs(t, err, apperror.ErrMatchNotWaiting)
	})

	t.Run("A leaving non-creator is removed and detached", func(t *testing.T) {
		// Given: a waiting match with two players
		manager, _, playerRepo := newManager("alice", "bob")
		match, err := manager.CreateMatch(ctx, "alice", "", false, 4)
		require.NoError(t, err)
		_, err = manager.JoinMatch(ctx, match.ID, "bob")
		require.NoError(t, err)

		// When: bob leaves
		updated, destroyed, err := manager.LeaveMatch(ctx, match.ID, "bob")

		// Then: the match survives without bob
		require.NoError(t, err)
		assert.False(t, destroyed)
		assert.Equal(t, []string{"alice"}, updated.PlayerIDs())
		assert.Empty(t, playerRepo.players["bob"].MatchID)
	})

	t.Run("A leaving creator tears the waiting match down", func(t *testing.T) {
		// Given: a waiting match with two players
		manager, matchRepo, playerRepo := newManager("alice", "bob")
		match, err := manager.CreateMatch(ctx, "alice", "", false, 4)
		require.NoError(t, err)
		_, err = manager.JoinMatch(ctx, match.ID, "bob")
		require.NoError(t, err)

		// When: the creator leaves
		_, destroyed, err := manager.LeaveMatch(ctx, match.ID, "alice")

		// Then: the match is gone and everyone is detached
		require.NoError(t, err)
		assert.True(t, destroyed)
		assert.Empty(t, matchRepo.matches)
		assert.Empty(t, playerRepo.players["bob"].MatchID)
	})
}

func TestMatchManager_StartMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Dealing starts round one", func(t *testing.T) {
		// Given: a waiting match with two players
		manager, _, _ := newManager("alice", "bob")
		match := startedMatch(t, manager, "alice", "bob")

		// Then: the match is playing with a dealt round
		assert.Equal(t, entity.StatusPlaying, match.Status)
		assert.Equal(t, 1, match.Round)
		require.NotNil(t, match.Game)
		assert.Equal(t, entity.StepInitialReveal, match.Game.Step)
		assert.Equal(t, uint64(1), match.Game.Seq)
		assert.Len(t, match.Game.Hands, 2)
	})

	t.Run("Only the creator may start", func(t *testing.T) {
		// Given: a waiting match with two players
		manager, _, _ := newManager("alice", "bob")
		match, err := manager.CreateMatch(ctx, "alice", "", false, 4)
		require.NoError(t, err)
		_, err = manager.JoinMatch(ctx, match.ID, "bob")
		require.NoError(t, err)

		// When: bob tries to start
		_, err = manager.StartMatch(ctx, match.ID, "bob")

		// Then: the start is rejected
		assert.ErrorIs(t, err, apperror.ErrForbidden)
	})

	t.Run("A lone player cannot start", func(t *testing.T) {
		// Given: a match with only the creator
		manager, _, _ := newManager("alice")
		match, err := manager.CreateMatch(ctx, "alice", "", false, 4)
		require.NoError(t, err)

		// When: the creator starts alone
		_, err = manager.StartMatch(ctx, match.ID, "alice")

		// Then: the deal fails for lack of players
		assert.ErrorIs(t, err, apperror.ErrInsufficientCards)
	})
}

func TestMatchManager_Settings(t *testing.T) {
	ctx := context.Background()

	t.Run("Creator adjusts capacity and privacy while waiting", func(t *testing.T) {
		manager, _, _ := newManager("alice")
		match, err := manager.CreateMatch(ctx, "alice", "", false, 4)
		require.NoError(t, err)

		// When: shrinking to a private two seater
		updated, err := manager.UpdateSettings(ctx, match.ID, "alice", 2, true)

		// Then: the settings stick
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Capacity)
		assert.True(t, updated.Private)
	})

	t.Run("Capacity cannot drop below the seated players", func(t *testing.T) {
		manager, _, _ := newManager("alice", "bob", "carol")
		match, err := manager.CreateMatch(ctx, "alice", "", false, 4)
		require.NoError(t, err)
		_, err = manager.JoinMatch(ctx, match.ID, "bob")
		require.NoError(t, err)
		_, err = manager.JoinMatch(ctx, match.ID, "carol")
		require.NoError(t, err)

		// When: shrinking below three seated players
		_, err = manager.UpdateSettings(ctx, match.ID, "alice", 2, false)

		// Then: the change is rejected
		assert.ErrorIs(t, err, apperror.ErrMatchFull)
	})

	t.Run("Settings are frozen once the match started", func(t *testing.T) {
		manager, _, _ := newManager("alice", "bob")
		match := startedMatch(t, manager, "alice", "bob")

		// When: changing settings mid-game
		_, err := manager.UpdateSettings(ctx, match.ID, "alice", 3, false)

		// Then: the change is rejected
		assert.ErrorIs(t, err, apperror.ErrMatchNotWaiting)
	})
}

func TestMatchManager_ApplySnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("A snapshot replaces the round state and bumps the sequence", func(t *testing.T) {
		// Given: a started match
		manager, _, _ := newManager("alice", "bob")
		match := startedMatch(t, manager, "alice", "bob")

		// When: bob submits a snapshot based on the current sequence
		snapshot := *match.Game
		snapshot.Step = entity.StepDraw
		snapshot.CurrentPlayer = "bob"

		updated, stale, err := manager.ApplySnapshot(ctx, match.ID, "bob", &snapshot)

		// Then: the submission wins and the sequence advanced
		require.NoError(t, err)
		assert.False(t, stale)
		assert.Equal(t, entity.StepDraw, updated.Game.Step)
		assert.Equal(t, uint64(2), updated.Game.Seq)
	})

	t.Run("A stale snapshot is detected but still wins", func(t *testing.T) {
		// Given: a started match that already advanced once
		manager, _, _ := newManager("alice", "bob")
		match := startedMatch(t, manager, "alice", "bob")

		first := *match.Game
		_, _, err := manager.ApplySnapshot(ctx, match.ID, "alice", &first)
		require.NoError(t, err)

		// When: bob submits a snapshot based on the old sequence
		staleSnapshot := *match.Game
		staleSnapshot.Seq = 1
		staleSnapshot.CurrentPlayer = "bob"

		updated, stale, err := manager.ApplySnapshot(ctx, match.ID, "bob", &staleSnapshot)

		// Then: the race is reported and the write still lands
		require.NoError(t, err)
		assert.True(t, stale)
		assert.Equal(t, "bob", updated.Game.CurrentPlayer)
		assert.Equal(t, uint64(3), updated.Game.Seq)
	})

	t.Run("Outsiders may not submit snapshots", func(t *testing.T) {
		manager, _, _ := newManager("alice", "bob", "mallory")
		match := startedMatch(t, manager, "alice", "bob")

		snapshot := *match.Game
		_, _, err := manager.ApplySnapshot(ctx, match.ID, "mallory", &snapshot)

		assert.ErrorIs(t, err, apperror.ErrForbidden)
	})

	t.Run("An endGame snapshot scores the round", func(t *testing.T) {
		// Given: a started match whose snapshot arrives at endGame
		manager, _, _ := newManager("alice", "bob")
		match := startedMatch(t, manager, "alice", "bob")

		snapshot := *match.Game
		snapshot.Step = entity.StepEndGame
		snapshot.LastTurn = true
		snapshot.LastTurnBy = "alice"

		// When: the snapshot is applied
		updated, _, err := manager.ApplySnapshot(ctx, match.ID, "alice", &snapshot)

		// Then: every player's history grew by one round
		require.NoError(t, err)
		for _, link := range updated.Players {
			assert.Len(t, link.ScoreHistory, 1)
		}
	})
}

func TestMatchManager_MakeMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Applies engine moves server side", func(t *testing.T) {
		// Given: a started match
		manager, _, _ := newManager("alice", "bob")
		match := startedMatch(t, manager, "alice", "bob")
		baseSeq := match.Game.Seq

		// When: both players reveal their opening cards
		for _, id := range []string{"alice", "bob"} {
			for slot := 0; slot < 2; slot++ {
				_, err := manager.MakeMove(ctx, match.ID, id, Move{Kind: MoveReveal, Slot: slot})
				require.NoError(t, err)
			}
		}

		// Then: the round advanced to draw with the sequence bumped per move
		updated, err := manager.GetMatch(ctx, match.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StepDraw, updated.Game.Step)
		assert.Equal(t, baseSeq+4, updated.Game.Seq)
		assert.NotEmpty(t, updated.Game.CurrentPlayer)
	})

	t.Run("Rejects an unknown move kind", func(t *testing.T) {
		manager, _, _ := newManager("alice", "bob")
		match := startedMatch(t, manager, "alice", "bob")

		_, err := manager.MakeMove(ctx, match.ID, "alice", Move{Kind: "teleport"})

		assert.ErrorIs(t, err, apperror.ErrInvalidAction)
	})
}

func TestMatchManager_ReadyForNextRound(t *testing.T) {
	ctx := context.Background()

	// Given: a match whose first round just got scored below the ceiling
	manager, _, _ := newManager("alice", "bob")
	match := startedMatch(t, manager, "alice", "bob")

	snapshot := *match.Game
	snapshot.Step = entity.StepEndGame
	// zero out hand values so the round cannot cross the match ceiling
	for _, hand := range snapshot.Hands {
		for _, card := range hand {
			card.Value = 0
		}
	}
	match, _, err := manager.ApplySnapshot(ctx, match.ID, "alice", &snapshot)
	require.NoError(t, err)
	require.Equal(t, entity.StatusPlaying, match.Status)

	// When: alice signals readiness
	match, dealt, err := manager.ReadyForNextRound(ctx, match.ID, "alice")
	require.NoError(t, err)

	// Then: no deal until everyone is ready
	assert.False(t, dealt)
	assert.Equal(t, 1, match.Round)

	// When: bob signals readiness too
	match, dealt, err = manager.ReadyForNextRound(ctx, match.ID, "bob")
	require.NoError(t, err)

	// Then: a fresh round was dealt
	assert.True(t, dealt)
	assert.Equal(t, 2, match.Round)
	assert.Equal(t, entity.StepInitialReveal, match.Game.Step)
	assert.Empty(t, match.NextRoundReady)
}

// scoredBelowCeiling drives a started match to a scored endGame with zeroed
// hand values so the round cannot cross the match ceiling.
func scoredBelowCeiling(t *testing.T, manager *MatchManager, match *entity.Match) *entity.Match {
	t.Helper()

	snapshot := *match.Game
	snapshot.Step = entity.StepEndGame
	for _, hand := range snapshot.Hands {
		for _, card := range hand {
			card.Value = 0
		}
	}

	match, _, err := manager.ApplySnapshot(context.Background(), match.ID, match.CreatorID, &snapshot)
	require.NoError(t, err)
	require.Equal(t, entity.StatusPlaying, match.Status)

	return match
}

func TestMatchManager_ReadyForNextRound_DisconnectedPlayer(t *testing.T) {
	ctx := context.Background()

	t.Run("A dropped player does not hold up the deal", func(t *testing.T) {
		// Given: a scored round where carol has dropped
		manager, _, _ := newManager("alice", "bob", "carol")
		match := startedMatch(t, manager, "alice", "bob", "carol")
		match = scoredBelowCeiling(t, manager, match)

		_, dealt, err := manager.SetPresence(ctx, match.ID, "carol", entity.PresenceDisconnected)
		require.NoError(t, err)
		require.False(t, dealt)

		// When: only the connected players signal readiness
		_, dealt, err = manager.ReadyForNextRound(ctx, match.ID, "alice")
		require.NoError(t, err)
		require.False(t, dealt)

		match, dealt, err = manager.ReadyForNextRound(ctx, match.ID, "bob")
		require.NoError(t, err)

		// Then: the round is dealt without carol, who stays seated
		assert.True(t, dealt)
		assert.Equal(t, 2, match.Round)
		assert.Len(t, match.Game.Hands, 3)
		assert.Equal(t, entity.PresenceDisconnected, match.Link("carol").Presence)
	})

	t.Run("The last hold-out dropping completes the gate", func(t *testing.T) {
		// Given: everyone but carol is already ready
		manager, _, _ := newManager("alice", "bob", "carol")
		match := startedMatch(t, manager, "alice", "bob", "carol")
		match = scoredBelowCeiling(t, manager, match)

		_, dealt, err := manager.ReadyForNextRound(ctx, match.ID, "alice")
		require.NoError(t, err)
		require.False(t, dealt)
		_, dealt, err = manager.ReadyForNextRound(ctx, match.ID, "bob")
		require.NoError(t, err)
		require.False(t, dealt)

		// When: carol disconnects instead of readying up
		match, dealt, err = manager.SetPresence(ctx, match.ID, "carol", entity.PresenceDisconnected)
		require.NoError(t, err)

		// Then: the deal goes through on her departure
		assert.True(t, dealt)
		assert.Equal(t, 2, match.Round)
		assert.Equal(t, entity.StepInitialReveal, match.Game.Step)
		assert.Empty(t, match.NextRoundReady)
	})
}

func TestMatchManager_Rematch(t *testing.T) {
	ctx := context.Background()

	// Given: a finished four player match where three consent
	manager, _, playerRepo := newManager("alice", "bob", "carol", "dave")
	match := startedMatch(t, manager, "alice", "bob", "carol", "dave")
	match.Status = entity.StatusFinished

	_, err := manager.ConsentRematch(ctx, match.ID, "bob", true)
	require.NoError(t, err)
	_, err = manager.ConsentRematch(ctx, match.ID, "carol", true)
	require.NoError(t, err)

	// When: the creator starts the rematch
	rematch, err := manager.StartRematch(ctx, match.ID, "alice")

	// Then: a fresh waiting match holds the creator and both consenters
	require.NoError(t, err)
	assert.NotEqual(t, match.ID, rematch.ID)
	assert.Equal(t, entity.StatusWaiting, rematch.Status)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, rematch.PlayerIDs())

	// Then: consenters point at the new match, dave does not
	assert.Equal(t, rematch.ID, playerRepo.players["bob"].MatchID)
	assert.NotEqual(t, rematch.ID, playerRepo.players["dave"].MatchID)
}

func TestMatchManager_RematchGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("Consent requires a finished match", func(t *testing.T) {
		manager, _, _ := newManager("alice", "bob")
		match := startedMatch(t, manager, "alice", "bob")

		_, err := manager.ConsentRematch(ctx, match.ID, "bob", true)

		assert.ErrorIs(t, err, apperror.ErrMatchNotFinished)
	})

	t.Run("Only the creator may start the rematch", func(t *testing.T) {
		manager, _, _ := newManager("alice", "bob")
		match := startedMatch(t, manager, "alice", "bob")
		match.Status = entity.StatusFinished

		_, err := manager.StartRematch(ctx, match.ID, "bob")

		assert.ErrorIs(t, err, apperror.ErrForbidden)
	})
}

func TestMatchManager_SetPresence(t *testing.T) {
	ctx := context.Background()

	// Given: a started match
	manager, _, _ := newManager("alice", "bob")
	match := startedMatch(t, manager, "alice", "bob")

	// When: bob drops mid-game
	updated, dealt, err := manager.SetPresence(ctx, match.ID, "bob", entity.PresenceDisconnected)

	// Then: bob stays seated, only the flag flipped
	require.NoError(t, err)
	assert.False(t, dealt)
	assert.Equal(t, entity.PresenceDisconnected, updated.Link("bob").Presence)
	assert.Len(t, updated.Players, 2)
	assert.Equal(t, entity.StatusPlaying, updated.Status)
}

func TestMatchManager_ListMatches(t *testing.T) {
	ctx := context.Background()

	// Given: one public and one private match
	manager, _, _ := newManager("alice", "bob")
	_, err := manager.CreateMatch(ctx, "alice", "", false, 4)
	require.NoError(t, err)
	_, err = manager.CreateMatch(ctx, "bob", "", true, 4)
	require.NoError(t, err)

	// When: listing public waiting matches
	public := false
	matches, err := manager.ListMatches(ctx, ListFilter{Status: entity.StatusWaiting, Private: &public})

	// Then: only alice's match comes back
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "alice", matches[0].CreatorID)
}
