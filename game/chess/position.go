package chess

import "fmt"

// Side identifies which seat is to move.
type Side string

const (
	// FirstSide is the creator's seat and moves first (white).
	FirstSide Side = "first-side"
	// SecondSide is the joiner's seat (black).
	SecondSide Side = "second-side"
)

// StartingPosition is the standard initial position in FEN.
const StartingPosition = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == FirstSide || s == SecondSide
}

// Opponent returns the other side. An unknown side yields FirstSide.
func (s Side) Opponent() Side {
	if s == FirstSide {
		return SecondSide
	}
	return FirstSide
}

// ParseSide converts a wire value into a Side.
func ParseSide(v string) (Side, error) {
	s := Side(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown side %q", v)
	}
	return s, nil
}

func (s Side) String() string {
	return string(s)
}
