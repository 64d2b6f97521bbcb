package standby

// BoardSize is the number of rows and columns of the replicated board.
const BoardSize = 3

// Actor tags the side that owns a cell. The core treats it as opaque.
type Actor byte

// Empty marks an unoccupied cell.
const Empty Actor = ' '

func (a Actor) String() string {
	return string(rune(a))
}

// Board is the replicated snapshot. It is a value type; copies are
// independent.
type Board [BoardSize][BoardSize]Actor

// NewBoard returns a board with every cell Empty.
func NewBoard() Board {
	var b Board
	for r := range b {
		for c := range b[r] {
			b[r][c] = Empty
		}
	}
	return b
}

// InBounds reports whether (row, col) addresses a cell.
func InBounds(row, col int) bool {
	return row >= 0 && row < BoardSize && col >= 0 && col < BoardSize
}

// Rules is the game collaborator. The core owns no game logic: it asks Rules
// whether a move is legal, how it changes the board, and whether the game is
// over.
type Rules interface {
	IsLegal(b Board, row, col int) bool
	Apply(b Board, row, col int, actor Actor) Board
	IsTerminal(b Board) bool
}

// cells returns one State message per cell, in row-major order.
func (b Board) cells() []State {
	states := make([]State, 0, BoardSize*BoardSize)
	for r := range b {
		for c := range b[r] {
			states = append(states, State{Row: r, Col: c, Actor: b[r][c]})
		}
	}
	return states
}
