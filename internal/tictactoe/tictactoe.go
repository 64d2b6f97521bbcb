// Package tictactoe is the game collaborator for standby nodes and clients:
// move legality, win detection and a plain text rendering of the board.
package tictactoe

import (
	"fmt"
	"strings"

	"github.com/ngrok/standby"
)

const (
	X standby.Actor = 'X'
	O standby.Actor = 'O'
)

// Rules implements standby.Rules for tic-tac-toe.
type Rules struct{}

var _ standby.Rules = Rules{}

// IsLegal reports whether (row, col) is on the board and unoccupied.
func (Rules) IsLegal(b standby.Board, row, col int) bool {
	return standby.InBounds(row, col) && b[row][col] == standby.Empty
}

// Apply places actor at (row, col). The caller checks IsLegal first.
func (Rules) Apply(b standby.Board, row, col int, actor standby.Actor) standby.Board {
	b[row][col] = actor
	return b
}

// IsTerminal reports whether either side has three in a row, or the board is
// full.
func (Rules) IsTerminal(b standby.Board) bool {
	return Winner(b) != standby.Empty || Full(b)
}

// Full reports whether no cell is empty.
func Full(b standby.Board) bool {
	for _, row := range b {
		for _, cell := range row {
			if cell == standby.Empty {
				return false
			}
		}
	}
	return true
}

// Winner returns the side with three in a row, or standby.Empty.
func Winner(b standby.Board) standby.Actor {
	for _, a := range []standby.Actor{X, O} {
		if wins(b, a) {
			return a
		}
	}
	return standby.Empty
}

func wins(b standby.Board, a standby.Actor) bool {
	for i := 0; i < standby.BoardSize; i++ {
		if b[i][0] == a && b[i][1] == a && b[i][2] == a {
			return true
		}
		if b[0][i] == a && b[1][i] == a && b[2][i] == a {
			return true
		}
	}
	if b[0][0] == a && b[1][1] == a && b[2][2] == a {
		return true
	}
	return b[0][2] == a && b[1][1] == a && b[2][0] == a
}

// Other returns the opposing side.
func Other(a standby.Actor) standby.Actor {
	if a == X {
		return O
	}
	return X
}

// ParseCell parses a cell such as "A1" or "c3": a row letter A-C followed by
// a column digit 1-3.
func ParseCell(s string) (row, col int, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'A' || s[0] > 'C' || s[1] < '1' || s[1] > '3' {
		return 0, 0, fmt.Errorf("invalid cell %q, expected e.g. A1 or B2", s)
	}
	return int(s[0] - 'A'), int(s[1] - '1'), nil
}

// Render draws the board with row letters and column numbers.
func Render(b standby.Board) string {
	var sb strings.Builder
	sb.WriteString("   1 2 3\n")
	sb.WriteString("  -------\n")
	for r, row := range b {
		fmt.Fprintf(&sb, " %c| ", 'A'+r)
		for _, cell := range row {
			fmt.Fprintf(&sb, "%c ", cell)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
