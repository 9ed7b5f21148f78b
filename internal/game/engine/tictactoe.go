package engine

// TicTacToeType is the registry key of the tic-tac-toe ruleset.
const TicTacToeType = "tictactoe"

// ticTacToeCells is the number of cells on the 3x3 board.
const ticTacToeCells = 9

// winningLines lists the three rows, three columns and two diagonals.
var winningLines = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// WinningLines returns a copy of the eight winning index triples.
func WinningLines() [8][3]int {
	return winningLines
}

// TicTacToe is the 3x3 reference ruleset.
//
// Invariant: a non-empty cell never changes until Reset.
type TicTacToe struct {
	board  [ticTacToeCells]Symbol
	status Status
	turn   Symbol
	winner string
}

// NewTicTacToe returns a playing board with X to move.
func NewTicTacToe() *TicTacToe {
	t := &TicTacToe{}
	t.Reset(SymbolX)
	return t
}

// NewTicTacToeEngine adapts NewTicTacToe to Factory.
func NewTicTacToeEngine() Engine {
	return NewTicTacToe()
}

// MakeMove implements Engine.
func (t *TicTacToe) MakeMove(index int, symbol Symbol) bool {
	if index < 0 || index >= ticTacToeCells {
		return false
	}
	if t.board[index] != SymbolNone || t.status != StatusPlaying || t.turn != symbol {
		return false
	}
	t.board[index] = symbol
	t.checkTerminal()
	if t.status == StatusPlaying {
		t.turn = t.turn.Other()
	}
	return true
}

func (t *TicTacToe) checkTerminal() {
	for _, line := range winningLines {
		a := t.board[line[0]]
		if a != SymbolNone && a == t.board[line[1]] && a == t.board[line[2]] {
			t.status = StatusFinished
			t.winner = string(a)
			return
		}
	}
	for _, c := range t.board {
		if c == SymbolNone {
			return
		}
	}
	t.status = StatusFinished
	t.winner = Draw
}

// Reset implements Engine. An invalid start symbol falls back to X.
func (t *TicTacToe) Reset(start Symbol) {
	if !start.Valid() {
		start = SymbolX
	}
	t.board = [ticTacToeCells]Symbol{}
	t.status = StatusPlaying
	t.winner = ""
	t.turn = start
}

// State implements Engine.
func (t *TicTacToe) State() State {
	board := make([]Symbol, ticTacToeCells)
	copy(board, t.board[:])
	return State{
		Board:  board,
		Status: t.status,
		Turn:   t.turn,
		Winner: t.winner,
	}
}
