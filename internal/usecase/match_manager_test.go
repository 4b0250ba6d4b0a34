package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridclash/gridclash-backend/internal/apperror"
	"github.com/gridclash/gridclash-backend/internal/entity"
	"github.com/gridclash/gridclash-backend/internal/registry"
)

type fakeNotifier struct {
	mu     sync.Mutex
	events map[string][]any
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{events: make(map[string][]any)}
}

func (that *fakeNotifier) Notify(playerID string, event any) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.events[playerID] = append(that.events[playerID], event)
}

func (that *fakeNotifier) eventsFor(playerID string) []any {
	that.mu.Lock()
	defer that.mu.Unlock()

	out := make([]any, len(that.events[playerID]))
	copy(out, that.events[playerID])

	return out
}

func (that *fakeNotifier) lastEventFor(playerID string) any {
	events := that.eventsFor(playerID)
	if len(events) == 0 {
		return nil
	}

	return events[len(events)-1]
}

type fakeArchive struct {
	mu      sync.Mutex
	records map[string]*entity.MatchRecord
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{records: make(map[string]*entity.MatchRecord)}
}

func (that *fakeArchive) Save(_ context.Context, record *entity.MatchRecord) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.records[record.ID] = record

	return nil
}

func (that *fakeArchive) recordFor(id string) *entity.MatchRecord {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.records[id]
}

type managerFixture struct {
	manager  *MatchManager
	registry *registry.Registry
	notifier *fakeNotifier
	archive  *fakeArchive
}

func newManagerFixture(t *testing.T, grace time.Duration) *managerFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := registry.New(logger, 5*time.Minute, 5*time.Minute)
	notifier := newFakeNotifier()
	archive := newFakeArchive()

	manager := NewMatchManager(logger, reg, archive, entity.DefaultBoardSize, grace)
	manager.SetNotifier(notifier)

	return &managerFixture{
		manager:  manager,
		registry: reg,
		notifier: notifier,
		archive:  archive,
	}
}

// startMatch creates a match for alice and joins bob.
func (that *managerFixture) startMatch(t *testing.T) entity.MatchState {
	t.Helper()

	created, err := that.manager.CreateMatch("alice-id", "alice")
	require.NoError(t, err)

	state, err := that.manager.JoinMatch(created.ID, "bob-id", "bob")
	require.NoError(t, err)

	return state
}

func TestMatchManager_CreateMatch(t *testing.T) {
	t.Run("Creates a waiting match owned by the creator", func(t *testing.T) {
		// Given: a fresh coordinator
		fx := newManagerFixture(t, time.Minute)

		// When: a player creates a match
		state, err := fx.manager.CreateMatch("alice-id", "alice")
		require.NoError(t, err)

		// Then: the match waits for an opponent, creator holds X and a token
		assert.Equal(t, entity.StatusWaiting, state.Status)
		require.Len(t, state.Slots, 1)
		assert.Equal(t, entity.PlayerX, state.Slots[0].Mark)
		assert.NotEmpty(t, state.Slots[0].ReconnectToken)

		// And: the match is registered
		_, err = fx.registry.Lookup(state.ID)
		assert.NoError(t, err)
	})
}

func TestMatchManager_JoinMatch(t *testing.T) {
	t.Run("Joining starts the game and notifies the creator", func(t *testing.T) {
		// Given: a waiting match
		fx := newManagerFixture(t, time.Minute)
		created, err := fx.manager.CreateMatch("alice-id", "alice")
		require.NoError(t, err)

		// When: a second player joins
		state, err := fx.manager.JoinMatch(created.ID, "bob-id", "bob")
		require.NoError(t, err)

		// Then: the joiner holds O and the game is on
		assert.Equal(t, entity.StatusOngoing, state.Status)
		assert.Equal(t, entity.PlayerO, state.SlotByPlayer("bob-id").Mark)

		// And: the creator was told about the opponent
		events := fx.notifier.eventsFor("alice-id")
		require.Len(t, events, 1)
		joined, ok := events[0].(OpponentJoinedEvent)
		require.True(t, ok)
		assert.Equal(t, "bob", joined.OpponentName)
		assert.Equal(t, entity.PlayerX, joined.Turn)
	})

	t.Run("Joining after the creator dropped arms their grace window", func(t *testing.T) {
		// Given: a waiting match whose creator disconnected
		ctx := context.Background()
		fx := newManagerFixture(t, time.Minute)
		created, err := fx.manager.CreateMatch("alice-id", "alice")
		require.NoError(t, err)
		fx.manager.Disconnect(ctx, created.ID, "alice-id")

		// When: a second player joins anyway
		state, err := fx.manager.JoinMatch(created.ID, "bob-id", "bob")
		require.NoError(t, err)

		// Then: the game starts and the joiner is told the opponent is out
		assert.Equal(t, entity.StatusOngoing, state.Status)
		disconnected, ok := fx.notifier.lastEventFor("bob-id").(OpponentDisconnectedEvent)
		require.True(t, ok)
		assert.Equal(t, 60, disconnected.GraceSeconds)

		// And: the creator can still reclaim the seat with their token
		restored, playerID, err := fx.manager.Reconnect(created.ID, created.SlotByPlayer("alice-id").ReconnectToken)
		require.NoError(t, err)
		assert.Equal(t, "alice-id", playerID)
		assert.Equal(t, entity.StatusOngoing, restored.Status)
	})

	t.Run("A creator who never returns after such a join forfeits the match", func(t *testing.T) {
		// Given: a short grace window and a creator who dropped while waiting
		ctx := context.Background()
		fx := newManagerFixture(t, 30*time.Millisecond)
		created, err := fx.manager.CreateMatch("alice-id", "alice")
		require.NoError(t, err)
		fx.manager.Disconnect(ctx, created.ID, "alice-id")

		// When: a second player joins and the window runs out
		_, err = fx.manager.JoinMatch(created.ID, "bob-id", "bob")
		require.NoError(t, err)
		time.Sleep(150 * time.Millisecond)

		// Then: the match is abandoned rather than hanging forever
		match, lookupErr := fx.registry.Lookup(created.ID)
		require.NoError(t, lookupErr)
		match.Lock()
		result := match.Result
		match.Unlock()
		assert.Equal(t, entity.ResultAbandoned, result)

		// And: the joiner was told and the outcome archived
		completed, ok := fx.notifier.lastEventFor("bob-id").(MatchCompletedEvent)
		require.True(t, ok)
		assert.Equal(t, entity.ResultAbandoned, completed.Result)
		assert.NotNil(t, fx.archive.recordFor(created.ID))
	})

	t.Run("Joining an unknown match fails with MatchNotFound", func(t *testing.T) {
		// Given: a fresh coordinator
		fx := newManagerFixture(t, time.Minute)

		// When: joining an id that was never created
		_, err := fx.manager.JoinMatch("missing", "bob-id", "bob")

		// Then: it should fail with ErrMatchNotFound
		assert.ErrorIs(t, err, apperror.ErrMatchNotFound)
	})

	t.Run("Joining a full match fails with MatchFull and alters no slot", func(t *testing.T) {
		// Given: a match with both slots taken
		fx := newManagerFixture(t, time.Minute)
		state := fx.startMatch(t)

		// When: a third player tries to join
		_, err := fx.manager.JoinMatch(state.ID, "carol-id", "carol")

		// Then: it should fail with ErrMatchFull
		assert.ErrorIs(t, err, apperror.ErrMatchFull)

		// And: the original slots are untouched
		match, lookupErr := fx.registry.Lookup(state.ID)
		require.NoError(t, lookupErr)
		require.Len(t, match.Slots, 2)
		assert.Equal(t, "alice-id", match.Slots[0].PlayerID)
		assert.Equal(t, "bob-id", match.Slots[1].PlayerID)
	})
}

func TestMatchManager_MakeMove(t *testing.T) {
	ctx := context.Background()

	t.Run("A left-column win completes the match and reaches both players", func(t *testing.T) {
		// Given: an ongoing match
		fx := newManagerFixture(t, time.Minute)
		state := fx.startMatch(t)

		// When: X takes 0, 3, 6 while O plays 1, 4
		moves := []struct {
			playerID string
			cell     int
		}{
			{"alice-id", 0}, {"bob-id", 1}, {"alice-id", 3}, {"bob-id", 4}, {"alice-id", 6},
		}

		var final entity.MatchState
		for _, move := range moves {
			var err error
			final, err = fx.manager.MakeMove(ctx, state.ID, move.playerID, move.cell)
			require.NoError(t, err)
		}

		// Then: the match ends with a win for X
		assert.Equal(t, entity.StatusFinished, final.Status)
		assert.Equal(t, entity.ResultWin, final.Result)
		assert.Equal(t, entity.PlayerX, final.Winner)

		// And: both players observed the completion last, after the moves
		for _, playerID := range []string{"alice-id", "bob-id"} {
			completed, ok := fx.notifier.lastEventFor(playerID).(MatchCompletedEvent)
			require.True(t, ok, "player %s should end on a completion event", playerID)
			assert.Equal(t, entity.ResultWin, completed.Result)
			assert.Equal(t, entity.PlayerX, completed.Winner)
		}

		// And: the result is archived
		record := fx.archive.recordFor(state.ID)
		require.NotNil(t, record)
		assert.Equal(t, entity.PlayerX, record.Winner)
		assert.Len(t, record.Moves, 5)
	})

	t.Run("Each applied move is fanned out to both players", func(t *testing.T) {
		// Given: an ongoing match
		fx := newManagerFixture(t, time.Minute)
		state := fx.startMatch(t)

		// When: X opens on the center
		_, err := fx.manager.MakeMove(ctx, state.ID, "alice-id", 4)
		require.NoError(t, err)

		// Then: both players received the applied move with the turn flipped
		for _, playerID := range []string{"alice-id", "bob-id"} {
			applied, ok := fx.notifier.lastEventFor(playerID).(MoveAppliedEvent)
			require.True(t, ok)
			assert.Equal(t, entity.PlayerX, applied.Board.Cells[4])
			assert.Equal(t, entity.PlayerO, applied.Turn)
		}
	})

	t.Run("A move out of turn fails with NotYourTurn and emits nothing", func(t *testing.T) {
		// Given: an ongoing match with X to move
		fx := newManagerFixture(t, time.Minute)
		state := fx.startMatch(t)
		before := len(fx.notifier.eventsFor("alice-id"))

		// When: O moves first
		_, err := fx.manager.MakeMove(ctx, state.ID, "bob-id", 0)

		// Then: it should fail with ErrNotYourTurn and no event is delivered
		assert.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Len(t, fx.notifier.eventsFor("alice-id"), before)
	})

	t.Run("Moves after completion fail with GameNotInProgress", func(t *testing.T) {
		// Given: a completed match
		fx := newManagerFixture(t, time.Minute)
		state := fx.startMatch(t)
		for _, move := range []struct {
			playerID string
			cell     int
		}{
			{"alice-id", 0}, {"bob-id", 1}, {"alice-id", 3}, {"bob-id", 4}, {"alice-id", 6},
		} {
			_, err := fx.manager.MakeMove(ctx, state.ID, move.playerID, move.cell)
			require.NoError(t, err)
		}

		// When: the loser tries another move
		_, err := fx.manager.MakeMove(ctx, state.ID, "bob-id", 5)

		// Then: it should fail with ErrGameNotInProgress
		assert.ErrorIs(t, err, apperror.ErrGameNotInProgress)
	})

	t.Run("A move by an outsider fails with NotInMatch", func(t *testing.T) {
		// Given: an ongoing match
		fx := newManagerFixture(t, time.Minute)
		state := fx.startMatch(t)

		// When: an identity without a slot submits a move
		_, err := fx.manager.MakeMove(ctx, state.ID, "mallory-id", 0)

		// Then: it should fail with ErrNotInMatch
		assert.ErrorIs(t, err, apperror.ErrNotInMatch)
	})
}

func TestMatchManager_DisconnectAndReconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("Reconnecting within the grace window restores play unchanged", func(t *testing.T) {
		// Given: an ongoing match where X moved once and then dropped
		fx := newManagerFixture(t, time.Minute)
		state := fx.startMatch(t)

		_, err := fx.manager.MakeMove(ctx, state.ID, "alice-id", 0)
		require.NoError(t, err)

		token := state.SlotByPlayer("alice-id").ReconnectToken
		fx.manager.Disconnect(ctx, state.ID, "alice-id")

		// Then: the opponent learned about the disconnect and its grace window
		disconnected, ok := fx.notifier.lastEventFor("bob-id").(OpponentDisconnectedEvent)
		require.True(t, ok)
		assert.Equal(t, 60, disconnected.GraceSeconds)

		// When: the player reconnects with its token
		restored, playerID, err := fx.manager.Reconnect(state.ID, token)
		require.NoError(t, err)

		// Then: the identity and game state are exactly as before
		assert.Equal(t, "alice-id", playerID)
		assert.Equal(t, entity.StatusOngoing, restored.Status)
		assert.Equal(t, entity.PlayerX, restored.Board.Cells[0])
		assert.Equal(t, entity.PlayerO, restored.Turn)

		// And: the opponent learned about the reconnect
		_, ok = fx.notifier.lastEventFor("bob-id").(OpponentReconnectedEvent)
		assert.True(t, ok)
	})

	t.Run("An expired grace window abandons the match", func(t *testing.T) {
		// Given: an ongoing match with a very short grace window
		fx := newManagerFixture(t, 30*time.Millisecond)
		state := fx.startMatch(t)

		// When: X drops and never comes back
		fx.manager.Disconnect(ctx, state.ID, "alice-id")
		time.Sleep(150 * time.Millisecond)

		// Then: the match completed as abandoned
		match, err := fx.registry.Lookup(state.ID)
		require.NoError(t, err)
		match.Lock()
		result := match.Result
		match.Unlock()
		assert.Equal(t, entity.ResultAbandoned, result)

		// And: the remaining player was told and the outcome archived
		completed, ok := fx.notifier.lastEventFor("bob-id").(MatchCompletedEvent)
		require.True(t, ok)
		assert.Equal(t, entity.ResultAbandoned, completed.Result)
		assert.NotNil(t, fx.archive.recordFor(state.ID))
	})

	t.Run("Reconnecting cancels the pending grace timer", func(t *testing.T) {
		// Given: a short grace window and a dropped player
		fx := newManagerFixture(t, 30*time.Millisecond)
		state := fx.startMatch(t)
		token := state.SlotByPlayer("alice-id").ReconnectToken

		fx.manager.Disconnect(ctx, state.ID, "alice-id")

		// When: the player reconnects immediately and time passes
		_, _, err := fx.manager.Reconnect(state.ID, token)
		require.NoError(t, err)
		time.Sleep(150 * time.Millisecond)

		// Then: the match is still in progress
		match, lookupErr := fx.registry.Lookup(state.ID)
		require.NoError(t, lookupErr)
		match.Lock()
		status := match.Status
		match.Unlock()
		assert.Equal(t, entity.StatusOngoing, status)
	})

	t.Run("Reconnecting with a bad token fails with SlotNotReconnectable", func(t *testing.T) {
		// Given: a match with a dropped player
		fx := newManagerFixture(t, time.Minute)
		state := fx.startMatch(t)
		fx.manager.Disconnect(ctx, state.ID, "alice-id")

		// When: reconnecting with a token that was never issued
		_, _, err := fx.manager.Reconnect(state.ID, "forged-token")

		// Then: it should fail with ErrSlotNotReconnectable
		assert.ErrorIs(t, err, apperror.ErrSlotNotReconnectable)
	})

	t.Run("Reconnecting to an evicted match fails with SlotNotReconnectable", func(t *testing.T) {
		// Given: a fresh coordinator with no matches
		fx := newManagerFixture(t, time.Minute)

		// When: reconnecting to an id that no longer exists
		_, _, err := fx.manager.Reconnect("gone", "token")

		// Then: it should fail with ErrSlotNotReconnectable
		assert.ErrorIs(t, err, apperror.ErrSlotNotReconnectable)
	})

	t.Run("Losing both players abandons the match immediately", func(t *testing.T) {
		// Given: an ongoing match
		fx := newManagerFixture(t, time.Minute)
		state := fx.startMatch(t)

		// When: both players drop
		fx.manager.Disconnect(ctx, state.ID, "alice-id")
		fx.manager.Disconnect(ctx, state.ID, "bob-id")

		// Then: the match is abandoned without waiting for the grace window
		match, err := fx.registry.Lookup(state.ID)
		require.NoError(t, err)
		match.Lock()
		result := match.Result
		match.Unlock()
		assert.Equal(t, entity.ResultAbandoned, result)
	})
}

func TestMatchManager_Leave(t *testing.T) {
	ctx := context.Background()

	t.Run("Leaving a waiting match evicts it", func(t *testing.T) {
		// Given: a waiting match
		fx := newManagerFixture(t, time.Minute)
		created, err := fx.manager.CreateMatch("alice-id", "alice")
		require.NoError(t, err)

		// When: the creator leaves
		fx.manager.Leave(ctx, created.ID, "alice-id")

		// Then: the match is gone
		_, err = fx.registry.Lookup(created.ID)
		assert.ErrorIs(t, err, apperror.ErrMatchNotFound)
	})

	t.Run("Leaving an ongoing match abandons it and tells the opponent", func(t *testing.T) {
		// Given: an ongoing match
		fx := newManagerFixture(t, time.Minute)
		state := fx.startMatch(t)

		// When: X leaves voluntarily
		fx.manager.Leave(ctx, state.ID, "alice-id")

		// Then: the opponent received the abandoned completion
		completed, ok := fx.notifier.lastEventFor("bob-id").(MatchCompletedEvent)
		require.True(t, ok)
		assert.Equal(t, entity.ResultAbandoned, completed.Result)

		// And: the outcome is archived
		record := fx.archive.recordFor(state.ID)
		require.NotNil(t, record)
		assert.Equal(t, entity.ResultAbandoned, record.Result)
	})
}

func TestMatchManager_MatchActive(t *testing.T) {
	ctx := context.Background()

	t.Run("An ongoing match is active", func(t *testing.T) {
		// Given: a started match
		fx := newManagerFixture(t, time.Minute)
		state := fx.startMatch(t)

		// Then: it still accepts play
		assert.True(t, fx.manager.MatchActive(state.ID))
	})

	t.Run("A completed match is no longer active", func(t *testing.T) {
		// Given: a match that ended in a win
		fx := newManagerFixture(t, time.Minute)
		state := fx.startMatch(t)
		for _, move := range []struct {
			playerID string
			cell     int
		}{
			{"alice-id", 0}, {"bob-id", 1}, {"alice-id", 3}, {"bob-id", 4}, {"alice-id", 6},
		} {
			_, err := fx.manager.MakeMove(ctx, state.ID, move.playerID, move.cell)
			require.NoError(t, err)
		}

		// Then: connections bound to it are free to move on
		assert.False(t, fx.manager.MatchActive(state.ID))
	})

	t.Run("An evicted match is no longer active", func(t *testing.T) {
		// Given: a fresh coordinator with no matches
		fx := newManagerFixture(t, time.Minute)

		// Then: an unknown id is inactive
		assert.False(t, fx.manager.MatchActive("gone"))
	})
}

func TestMatchManager_Sweep(t *testing.T) {
	t.Run("Expired waiting matches are archived and announced", func(t *testing.T) {
		// Given: a coordinator whose registry times out creations instantly
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		reg := registry.New(logger, 5*time.Minute, 0)
		notifier := newFakeNotifier()
		archive := newFakeArchive()
		manager := NewMatchManager(logger, reg, archive, entity.DefaultBoardSize, time.Minute)
		manager.SetNotifier(notifier)

		created, err := manager.CreateMatch("alice-id", "alice")
		require.NoError(t, err)

		// When: the sweep runs
		manager.Sweep(context.Background())

		// Then: the creator is told the match expired
		completed, ok := notifier.lastEventFor("alice-id").(MatchCompletedEvent)
		require.True(t, ok)
		assert.Equal(t, entity.ResultExpired, completed.Result)

		// And: the match is archived and evicted
		assert.NotNil(t, archive.recordFor(created.ID))
		_, err = reg.Lookup(created.ID)
		assert.ErrorIs(t, err, apperror.ErrMatchNotFound)
	})
}
