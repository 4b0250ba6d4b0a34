package entity

import (
	"fmt"

	"github.com/gridclash/gridclash-backend/internal/apperror"
)

const (
	PlayerX = "X"
	PlayerO = "O"

	PlayerTie = "-"

	EmptyCell = ""

	DefaultBoardSize = 3
)

// Board is an NxN grid of cells. Cells hold PlayerX, PlayerO or EmptyCell.
// ApplyMove returns a fresh copy, so a handed-out board never changes under
// its holder.
type Board struct {
	Size  int      `json:"size"`
	Cells []string `json:"cells"`
}

func NewBoard(size int) Board {
	if size < DefaultBoardSize {
		size = DefaultBoardSize
	}

	return Board{
		Size:  size,
		Cells: make([]string, size*size),
	}
}

// ApplyMove places mark on the given cell and returns the resulting board.
// It fails with apperror.ErrIllegalMove when the cell is out of range, the
// cell is already occupied, or the board is already decided.
func (that Board) ApplyMove(cell int, mark string) (Board, error) {
	if cell < 0 || cell >= len(that.Cells) {
		return that, fmt.Errorf("%w: cell %d is out of range", apperror.ErrIllegalMove, cell)
	}

	if that.Evaluate() != EmptyCell {
		return that, fmt.Errorf("%w: board is already decided", apperror.ErrIllegalMove)
	}

	if that.Cells[cell] != EmptyCell {
		return that, fmt.Errorf("%w: cell %d is already occupied", apperror.ErrIllegalMove, cell)
	}

	next := that.Copy()
	next.Cells[cell] = mark

	return next, nil
}

// Evaluate reports the board outcome: the winning mark if any full line is
// held by one player, PlayerTie if the board is full without a winner, and
// EmptyCell while the game can still continue. A line completed by the move
// that fills the last cell is a win, not a tie.
func (that Board) Evaluate() string {
	for _, line := range that.winLines() {
		first := that.Cells[line[0]]
		if first == EmptyCell {
			continue
		}

		won := true
		for _, cell := range line[1:] {
			if that.Cells[cell] != first {
				won = false
				break
			}
		}

		if won {
			return first
		}
	}

	for _, cell := range that.Cells {
		if cell == EmptyCell {
			return EmptyCell
		}
	}

	return PlayerTie
}

func (that Board) IsDecided() bool {
	return that.Evaluate() != EmptyCell
}

func (that Board) Copy() Board {
	cells := make([]string, len(that.Cells))
	copy(cells, that.Cells)

	return Board{Size: that.Size, Cells: cells}
}

// winLines enumerates every full row, column and both diagonals.
func (that Board) winLines() [][]int {
	n := that.Size
	lines := make([][]int, 0, 2*n+2)

	for row := 0; row < n; row++ {
		line := make([]int, n)
		for col := 0; col < n; col++ {
			line[col] = row*n + col
		}
		lines = append(lines, line)
	}

	for col := 0; col < n; col++ {
		line := make([]int, n)
		for row := 0; row < n; row++ {
			line[row] = row*n + col
		}
		lines = append(lines, line)
	}

	diag := make([]int, n)
	antiDiag := make([]int, n)
	for i := 0; i < n; i++ {
		diag[i] = i*n + i
		antiDiag[i] = i*n + (n - 1 - i)
	}

	return append(lines, diag, antiDiag)
}

func toggleMark(mark string) string {
	if mark == PlayerX {
		return PlayerO
	}
	return PlayerX
}
