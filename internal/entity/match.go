package entity

import (
	"fmt"
	"sync"
	"time"

	"github.com/gridclash/gridclash-backend/internal/apperror"
)

const (
	StatusWaiting  = "waiting"
	StatusOngoing  = "ongoing"
	StatusFinished = "finished"

	ResultWin       = "win"
	ResultDraw      = "draw"
	ResultAbandoned = "abandoned"
	ResultExpired   = "expired"
)

// Slot is one of the two player positions in a match. A slot is bound to the
// player identity that claimed it; every operation on the match is
// authenticated against that binding.
type Slot struct {
	PlayerID       string `json:"player_id"`
	Name           string `json:"name"`
	Mark           string `json:"mark"`
	Connected      bool   `json:"connected"`
	ReconnectToken string `json:"-"`
}

// Move is one applied move, kept for replay and the post-game record.
type Move struct {
	Cell int       `json:"cell"`
	Mark string    `json:"mark"`
	At   time.Time `json:"at"`
}

// Match is the authoritative state of one game. All mutating operations for a
// match must be serialized through Lock/Unlock; callers hold the lock for the
// whole validate-then-mutate sequence so two near-simultaneous moves can never
// both validate against a stale turn.
type Match struct {
	mu sync.Mutex

	ID         string
	Board      Board
	Turn       string
	Status     string
	Result     string
	Winner     string
	Slots      []*Slot
	Moves      []Move
	CreatedAt  time.Time
	FinishedAt time.Time
}

// NewMatch creates a waiting match. The creator takes the first slot and the
// first-mover mark.
func NewMatch(id string, boardSize int, creator *Slot) *Match {
	creator.Mark = PlayerX
	creator.Connected = true

	return &Match{
		ID:        id,
		Board:     NewBoard(boardSize),
		Turn:      PlayerX,
		Status:    StatusWaiting,
		Slots:     []*Slot{creator},
		CreatedAt: time.Now(),
	}
}

func (that *Match) Lock()   { that.mu.Lock() }
func (that *Match) Unlock() { that.mu.Unlock() }

// Join fills the second slot and starts the game.
func (that *Match) Join(joiner *Slot) error {
	if len(that.Slots) >= 2 {
		return fmt.Errorf("%w: match %s", apperror.ErrMatchFull, that.ID)
	}

	if !that.IsWaiting() {
		return fmt.Errorf("%w: match %s", apperror.ErrMatchAlreadyStarted, that.ID)
	}

	joiner.Mark = PlayerO
	joiner.Connected = true

	that.Slots = append(that.Slots, joiner)
	that.Status = StatusOngoing

	return nil
}

// ApplyMove validates and applies one move for the given player identity.
// Guards run in a fixed order so every rejection has exactly one cause:
// membership, then turn, then liveness, then board legality.
func (that *Match) ApplyMove(playerID string, cell int) error {
	slot := that.SlotByPlayer(playerID)
	if slot == nil {
		return fmt.Errorf("%w: match %s", apperror.ErrNotInMatch, that.ID)
	}

	if that.Turn != EmptyCell && slot.Mark != that.Turn {
		return apperror.ErrNotYourTurn
	}

	if !that.IsOngoing() {
		return apperror.ErrGameNotInProgress
	}

	board, err := that.Board.ApplyMove(cell, slot.Mark)
	if err != nil {
		return err
	}

	that.Board = board
	that.Moves = append(that.Moves, Move{Cell: cell, Mark: slot.Mark, At: time.Now()})
	that.Turn = toggleMark(slot.Mark)

	switch outcome := that.Board.Evaluate(); outcome {
	case PlayerX, PlayerO:
		that.complete(ResultWin, outcome)
	case PlayerTie:
		that.complete(ResultDraw, EmptyCell)
	}

	return nil
}

// MarkDisconnected records that the slot's connection is gone and reports
// whether any slot is still attached.
func (that *Match) MarkDisconnected(playerID string) (anyConnected bool, err error) {
	slot := that.SlotByPlayer(playerID)
	if slot == nil {
		return false, fmt.Errorf("%w: match %s", apperror.ErrNotInMatch, that.ID)
	}

	slot.Connected = false

	for _, s := range that.Slots {
		if s.Connected {
			return true, nil
		}
	}

	return false, nil
}

// Reconnect restores a previously disconnected slot. The reconnect token is
// the identity proof: it must match the one issued when the slot was claimed.
func (that *Match) Reconnect(token string) (*Slot, error) {
	if that.IsFinished() {
		return nil, fmt.Errorf("%w: match %s is already finished", apperror.ErrSlotNotReconnectable, that.ID)
	}

	for _, slot := range that.Slots {
		if slot.ReconnectToken != token {
			continue
		}

		if slot.Connected {
			return nil, fmt.Errorf("%w: slot is still connected", apperror.ErrSlotNotReconnectable)
		}

		slot.Connected = true

		return slot, nil
	}

	return nil, fmt.Errorf("%w: unknown reconnect token", apperror.ErrSlotNotReconnectable)
}

// Abandon finishes the match without a winner. A no-op once finished.
func (that *Match) Abandon() {
	that.complete(ResultAbandoned, EmptyCell)
}

// Expire finishes a match that never got an opponent within the creation
// timeout.
func (that *Match) Expire() {
	that.complete(ResultExpired, EmptyCell)
}

// complete transitions to finished exactly once; later calls are ignored so
// the terminal result is irreversible.
func (that *Match) complete(result, winner string) {
	if that.IsFinished() {
		return
	}

	that.Status = StatusFinished
	that.Result = result
	that.Winner = winner
	that.Turn = EmptyCell
	that.FinishedAt = time.Now()
}

func (that *Match) SlotByPlayer(playerID string) *Slot {
	for _, slot := range that.Slots {
		if slot.PlayerID == playerID {
			return slot
		}
	}
	return nil
}

func (that *Match) OpponentOf(playerID string) *Slot {
	for _, slot := range that.Slots {
		if slot.PlayerID != playerID {
			return slot
		}
	}
	return nil
}

func (that *Match) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Match) IsOngoing() bool {
	return that.Status == StatusOngoing
}

func (that *Match) IsFinished() bool {
	return that.Status == StatusFinished
}

// MatchState is a point-in-time copy of a match, safe to hand to transports
// after the match lock is released.
type MatchState struct {
	ID     string
	Board  Board
	Turn   string
	Status string
	Result string
	Winner string
	Slots  []Slot
}

func (that *Match) State() MatchState {
	slots := make([]Slot, 0, len(that.Slots))
	for _, slot := range that.Slots {
		slots = append(slots, *slot)
	}

	return MatchState{
		ID:     that.ID,
		Board:  that.Board.Copy(),
		Turn:   that.Turn,
		Status: that.Status,
		Result: that.Result,
		Winner: that.Winner,
		Slots:  slots,
	}
}

func (that MatchState) SlotByPlayer(playerID string) *Slot {
	for i := range that.Slots {
		if that.Slots[i].PlayerID == playerID {
			return &that.Slots[i]
		}
	}
	return nil
}

func (that MatchState) OpponentOf(playerID string) *Slot {
	for i := range that.Slots {
		if that.Slots[i].PlayerID != playerID {
			return &that.Slots[i]
		}
	}
	return nil
}

// MatchRecord is the archived form of a completed match.
type MatchRecord struct {
	ID         string    `json:"id"`
	Result     string    `json:"result"`
	Winner     string    `json:"winner,omitempty"`
	BoardSize  int       `json:"board_size"`
	Players    []string  `json:"players"`
	Moves      []Move    `json:"moves"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (that *Match) Record() *MatchRecord {
	players := make([]string, 0, len(that.Slots))
	for _, slot := range that.Slots {
		players = append(players, slot.Name)
	}

	moves := make([]Move, len(that.Moves))
	copy(moves, that.Moves)

	return &MatchRecord{
		ID:         that.ID,
		Result:     that.Result,
		Winner:     that.Winner,
		BoardSize:  that.Board.Size,
		Players:    players,
		Moves:      moves,
		CreatedAt:  that.CreatedAt,
		FinishedAt: that.FinishedAt,
	}
}
