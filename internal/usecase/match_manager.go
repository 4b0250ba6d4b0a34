package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gridclash/gridclash-backend/internal/apperror"
	"github.com/gridclash/gridclash-backend/internal/entity"
	"github.com/gridclash/gridclash-backend/internal/pkg"
)

type matchRegistry interface {
	Create(boardSize int, creator *entity.Slot) *entity.Match
	Lookup(id string) (*entity.Match, error)
	Evict(id string)
	Sweep(now time.Time) []*entity.Match
}

type archiveRepository interface {
	Save(ctx context.Context, record *entity.MatchRecord) error
}

// Notifier delivers a match-scoped event to the connection bound to the given
// player identity. Implemented by the websocket transport.
type Notifier interface {
	Notify(playerID string, event any)
}

// Events pushed to match participants. The transport maps these onto wire
// messages; they are emitted while the match operation still holds the match
// lock, which keeps per-match causal order on both connections.
type (
	OpponentJoinedEvent struct {
		OpponentName string
		Board        entity.Board
		Turn         string
	}

	MoveAppliedEvent struct {
		Board entity.Board
		Turn  string
	}

	MatchCompletedEvent struct {
		Result string
		Winner string
		Board  entity.Board
	}

	OpponentDisconnectedEvent struct {
		GraceSeconds int
	}

	OpponentReconnectedEvent struct{}
)

// MatchManager drives the full match lifecycle: create, join, moves,
// disconnect grace windows, reconnection and sweeps. Every operation on a
// given match runs under that match's lock; independent matches proceed
// concurrently.
type MatchManager struct {
	logger   *slog.Logger
	registry matchRegistry
	archive  archiveRepository

	boardSize int
	grace     time.Duration

	notifierMu sync.RWMutex
	notifier   Notifier

	timersMu    sync.Mutex
	graceTimers map[string]*time.Timer
}

func NewMatchManager(logger *slog.Logger, registry matchRegistry, archive archiveRepository, boardSize int, grace time.Duration) *MatchManager {
	return &MatchManager{
		logger:   logger.With("component", "match_manager"),
		registry: registry,
		archive:  archive,

		boardSize: boardSize,
		grace:     grace,

		graceTimers: make(map[string]*time.Timer),
	}
}

// SetNotifier wires the transport in after construction; the transport needs
// the manager and the manager needs the transport.
func (that *MatchManager) SetNotifier(notifier Notifier) {
	that.notifierMu.Lock()
	that.notifier = notifier
	that.notifierMu.Unlock()
}

// CreateMatch registers a new waiting match owned by the calling identity.
func (that *MatchManager) CreateMatch(playerID, playerName string) (entity.MatchState, error) {
	creator := &entity.Slot{
		PlayerID:       playerID,
		Name:           playerName,
		ReconnectToken: pkg.GenerateReconnectToken(),
	}

	match := that.registry.Create(that.boardSize, creator)

	match.Lock()
	defer match.Unlock()

	that.logger.Info("match created", "matchID", match.ID, "playerID", playerID)

	return match.State(), nil
}

// JoinMatch fills the second slot and notifies the creator that the game is
// on.
func (that *MatchManager) JoinMatch(matchID, playerID, playerName string) (entity.MatchState, error) {
	match, err := that.registry.Lookup(matchID)
	if err != nil {
		return entity.MatchState{}, fmt.Errorf("failed to look up match: %w", err)
	}

	joiner := &entity.Slot{
		PlayerID:       playerID,
		Name:           playerName,
		ReconnectToken: pkg.GenerateReconnectToken(),
	}

	match.Lock()
	defer match.Unlock()

	if err = match.Join(joiner); err != nil {
		return entity.MatchState{}, fmt.Errorf("failed to join match: %w", err)
	}

	state := match.State()

	if opponent := match.OpponentOf(playerID); opponent != nil {
		if opponent.Connected {
			that.notify(opponent.PlayerID, OpponentJoinedEvent{
				OpponentName: playerName,
				Board:        state.Board,
				Turn:         state.Turn,
			})
		} else {
			// The creator dropped while the match was still waiting. The
			// game starts with their grace window already running so the
			// joiner never sits against a vacant seat without a deadline.
			that.startGraceTimer(matchID, opponent.PlayerID)
			that.notify(playerID, OpponentDisconnectedEvent{
				GraceSeconds: int(that.grace.Seconds()),
			})
		}
	}

	that.logger.Info("player joined match", "matchID", matchID, "playerID", playerID)

	return state, nil
}

// MakeMove applies one move for the calling identity and fans the outcome out
// to both slots. On a terminal result the match is archived; eviction is left
// to the retention sweep so results stay queryable and reconnects stay
// answerable.
func (that *MatchManager) MakeMove(ctx context.Context, matchID, playerID string, cell int) (entity.MatchState, error) {
	match, err := that.registry.Lookup(matchID)
	if err != nil {
		return entity.MatchState{}, fmt.Errorf("failed to look up match: %w", err)
	}

	match.Lock()
	defer match.Unlock()

	if err = match.ApplyMove(playerID, cell); err != nil {
		return entity.MatchState{}, fmt.Errorf("failed to make move: %w", err)
	}

	state := match.State()

	if match.IsFinished() {
		that.cancelMatchTimers(state)
		that.archiveMatch(ctx, match)
		that.notifySlots(state, MatchCompletedEvent{
			Result: state.Result,
			Winner: state.Winner,
			Board:  state.Board,
		})

		that.logger.Info("match completed", "matchID", matchID, "result", state.Result, "winner", state.Winner)

		return state, nil
	}

	that.notifySlots(state, MoveAppliedEvent{Board: state.Board, Turn: state.Turn})

	return state, nil
}

// Disconnect handles a closed connection for the identity's bound match. An
// in-progress match gets a grace window; if every slot is gone the match is
// abandoned on the spot. A waiting match keeps running on its creation
// timeout.
func (that *MatchManager) Disconnect(ctx context.Context, matchID, playerID string) {
	log := that.logger.With("method", "Disconnect", "matchID", matchID, "playerID", playerID)

	match, err := that.registry.Lookup(matchID)
	if err != nil {
		return
	}

	match.Lock()
	defer match.Unlock()

	if match.IsFinished() {
		return
	}

	anyConnected, err := match.MarkDisconnected(playerID)
	if err != nil {
		log.Error("failed to mark slot disconnected", "error", err)
		return
	}

	if match.IsWaiting() {
		log.Info("creator disconnected before opponent joined, awaiting creation timeout")
		return
	}

	if !anyConnected {
		match.Abandon()
		that.archiveMatch(ctx, match)
		log.Info("both players gone, match abandoned")
		return
	}

	that.startGraceTimer(matchID, playerID)

	if opponent := match.OpponentOf(playerID); opponent != nil && opponent.Connected {
		that.notify(opponent.PlayerID, OpponentDisconnectedEvent{
			GraceSeconds: int(that.grace.Seconds()),
		})
	}

	log.Info("player disconnected, grace window started", "grace", that.grace)
}

// MatchActive reports whether the match still accepts play. Completed and
// evicted matches are inactive; a connection bound to one is free to move on.
func (that *MatchManager) MatchActive(matchID string) bool {
	match, err := that.registry.Lookup(matchID)
	if err != nil {
		return false
	}

	match.Lock()
	defer match.Unlock()

	return !match.IsFinished()
}

// Reconnect restores a slot claimed with a previously issued token and
// reports the identity it belongs to, so the transport can rebind the new
// connection.
func (that *MatchManager) Reconnect(matchID, token string) (entity.MatchState, string, error) {
	match, err := that.registry.Lookup(matchID)
	if err != nil {
		if errors.Is(err, apperror.ErrMatchNotFound) {
			return entity.MatchState{}, "", fmt.Errorf("%w: match %s is gone", apperror.ErrSlotNotReconnectable, matchID)
		}

		return entity.MatchState{}, "", fmt.Errorf("failed to look up match: %w", err)
	}

	match.Lock()
	defer match.Unlock()

	slot, err := match.Reconnect(token)
	if err != nil {
		return entity.MatchState{}, "", fmt.Errorf("failed to reconnect: %w", err)
	}

	that.cancelGraceTimer(matchID, slot.PlayerID)

	if opponent := match.OpponentOf(slot.PlayerID); opponent != nil && opponent.Connected {
		that.notify(opponent.PlayerID, OpponentReconnectedEvent{})
	}

	that.logger.Info("player reconnected", "matchID", matchID, "playerID", slot.PlayerID)

	return match.State(), slot.PlayerID, nil
}

// Leave is a voluntary departure. Leaving a waiting match evicts it; leaving
// an in-progress match abandons it immediately, no grace window.
func (that *MatchManager) Leave(ctx context.Context, matchID, playerID string) {
	log := that.logger.With("method", "Leave", "matchID", matchID, "playerID", playerID)

	match, err := that.registry.Lookup(matchID)
	if err != nil {
		return
	}

	match.Lock()

	if match.SlotByPlayer(playerID) == nil || match.IsFinished() {
		match.Unlock()
		return
	}

	if match.IsWaiting() {
		match.Expire()
		match.Unlock()

		that.registry.Evict(matchID)
		log.Info("creator left waiting match, match evicted")
		return
	}

	match.Abandon()
	state := match.State()

	that.cancelMatchTimers(state)
	that.archiveMatch(ctx, match)

	if opponent := match.OpponentOf(playerID); opponent != nil && opponent.Connected {
		that.notify(opponent.PlayerID, MatchCompletedEvent{
			Result: state.Result,
			Board:  state.Board,
		})
	}

	match.Unlock()

	log.Info("player left match, match abandoned")
}

// Sweep runs one registry sweep pass, archiving and announcing matches that
// expired waiting for an opponent. Scheduled periodically by the application.
func (that *MatchManager) Sweep(ctx context.Context) {
	expired := that.registry.Sweep(time.Now())

	for _, match := range expired {
		match.Lock()
		state := match.State()
		that.archiveMatch(ctx, match)
		match.Unlock()

		that.cancelMatchTimers(state)

		for _, slot := range state.Slots {
			if slot.Connected {
				that.notify(slot.PlayerID, MatchCompletedEvent{
					Result: state.Result,
					Board:  state.Board,
				})
			}
		}
	}
}

// startGraceTimer arms the reconnect window for one slot. The timer fires at
// most once; reconnection or completion cancels it.
func (that *MatchManager) startGraceTimer(matchID, playerID string) {
	key := graceKey(matchID, playerID)

	that.timersMu.Lock()
	defer that.timersMu.Unlock()

	if timer, ok := that.graceTimers[key]; ok {
		timer.Stop()
	}

	that.graceTimers[key] = time.AfterFunc(that.grace, func() {
		that.expireGrace(matchID, playerID)
	})
}

func (that *MatchManager) cancelGraceTimer(matchID, playerID string) {
	key := graceKey(matchID, playerID)

	that.timersMu.Lock()
	defer that.timersMu.Unlock()

	if timer, ok := that.graceTimers[key]; ok {
		timer.Stop()
		delete(that.graceTimers, key)
	}
}

func (that *MatchManager) cancelMatchTimers(state entity.MatchState) {
	for _, slot := range state.Slots {
		that.cancelGraceTimer(state.ID, slot.PlayerID)
	}
}

// expireGrace fires when a disconnected player's window runs out. The slot
// may have reconnected or the match may have completed in the meantime, so
// everything is re-checked under the match lock.
func (that *MatchManager) expireGrace(matchID, playerID string) {
	log := that.logger.With("method", "expireGrace", "matchID", matchID, "playerID", playerID)

	that.timersMu.Lock()
	delete(that.graceTimers, graceKey(matchID, playerID))
	that.timersMu.Unlock()

	match, err := that.registry.Lookup(matchID)
	if err != nil {
		return
	}

	match.Lock()
	defer match.Unlock()

	slot := match.SlotByPlayer(playerID)
	if slot == nil || slot.Connected || !match.IsOngoing() {
		return
	}

	match.Abandon()
	state := match.State()

	that.archiveMatch(context.Background(), match)

	if opponent := match.OpponentOf(playerID); opponent != nil && opponent.Connected {
		that.notify(opponent.PlayerID, MatchCompletedEvent{
			Result: state.Result,
			Board:  state.Board,
		})
	}

	log.Info("grace window expired, match abandoned")
}

// archiveMatch stores the completed-match record. Archive failures are logged
// and never fail the match operation; the archive is a convenience surface,
// not the source of truth.
func (that *MatchManager) archiveMatch(ctx context.Context, match *entity.Match) {
	if that.archive == nil {
		return
	}

	if err := that.archive.Save(ctx, match.Record()); err != nil {
		that.logger.Error("failed to archive match", "matchID", match.ID, "error", err)
	}
}

func (that *MatchManager) notifySlots(state entity.MatchState, event any) {
	for _, slot := range state.Slots {
		if slot.Connected {
			that.notify(slot.PlayerID, event)
		}
	}
}

func (that *MatchManager) notify(playerID string, event any) {
	that.notifierMu.RLock()
	notifier := that.notifier
	that.notifierMu.RUnlock()

	if notifier != nil {
		notifier.Notify(playerID, event)
	}
}

func graceKey(matchID, playerID string) string {
	return matchID + ":" + playerID
}
