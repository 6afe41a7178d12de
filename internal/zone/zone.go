// Package zone implements a player's private card zones: hand, library,
// graveyard, battlefield and exile.
package zone

import (
	"errors"
	"fmt"
	"strings"
)

// Zone names one of the five card containers a player owns.
type Zone string

const (
	Hand        Zone = "hand"
	Library     Zone = "library"
	Graveyard   Zone = "graveyard"
	Battlefield Zone = "battlefield"
	Exile       Zone = "exile"
)

// All lists the zones in display order.
var All = []Zone{Hand, Library, Graveyard, Battlefield, Exile}

var (
	// ErrEmptyLibrary is returned when drawing from an empty library.
	ErrEmptyLibrary = errors.New("no cards left in library")
	// ErrCardNotFound is returned when a card is not in the stated zone.
	ErrCardNotFound = errors.New("card not found in zone")
	// ErrUnknownZone is returned for zone names outside the five above.
	ErrUnknownZone = errors.New("unknown zone")
	// ErrInvalidDeck is returned when a deck cannot be expanded into cards.
	ErrInvalidDeck = errors.New("invalid deck")
)

// ParseZone converts a wire name into a Zone.
func ParseZone(name string) (Zone, error) {
	z := Zone(strings.ToLower(strings.TrimSpace(name)))
	if !z.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	return z, nil
}

// Valid reports whether z is one of the five zones.
func (z Zone) Valid() bool {
	switch z {
	case Hand, Library, Graveyard, Battlefield, Exile:
		return true
	}
	return false
}

func (z Zone) String() string {
	return string(z)
}

// Position selects where a card lands when it is put into the library.
type Position int

const (
	PositionBottom Position = iota
	PositionTop
)

// PositionFromHint maps the optional wire position to a Position:
// 0 means top of library, anything else (or nothing) means bottom.
func PositionFromHint(hint *int) Position {
	if hint != nil && *hint == 0 {
		return PositionTop
	}
	return PositionBottom
}

func (p Position) String() string {
	if p == PositionTop {
		return "top"
	}
	return "bottom"
}
