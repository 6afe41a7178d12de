package zone

import (
	"fmt"
	"strings"
)

// Card is a single card instance owned by one player. Metadata fields are
// passed through from the catalog untouched.
type Card struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FaceDown   bool   `json:"faceDown"`
	ImageURL   string `json:"imageUrl,omitempty"`
	ManaCost   string `json:"manaCost,omitempty"`
	TypeLine   string `json:"type,omitempty"`
	OracleText string `json:"oracleText,omitempty"`
}

// DeckCard is one line of a deck list.
type DeckCard struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	ImageURL   string `json:"imageUrl,omitempty"`
	ManaCost   string `json:"manaCost,omitempty"`
	TypeLine   string `json:"type,omitempty"`
	OracleText string `json:"oracleText,omitempty"`
}

// MaxDeckSize bounds the number of card instances a deck may expand to.
const MaxDeckSize = 500

// Deck is an imported deck definition.
type Deck struct {
	Name  string     `json:"name"`
	Cards []DeckCard `json:"cards"`
}

// Size returns the number of card instances the deck expands to.
func (d *Deck) Size() int {
	total := 0
	for _, c := range d.Cards {
		total += c.Quantity
	}
	return total
}

// Validate rejects decks that cannot be expanded.
func (d *Deck) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil deck", ErrInvalidDeck)
	}
	if len(d.Cards) == 0 {
		return fmt.Errorf("%w: deck %q has no cards", ErrInvalidDeck, d.Name)
	}
	total := 0
	for i, c := range d.Cards {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: entry %d has no name", ErrInvalidDeck, i)
		}
		if c.Quantity <= 0 {
			return fmt.Errorf("%w: %q has quantity %d", ErrInvalidDeck, c.Name, c.Quantity)
		}
		if c.Quantity > MaxDeckSize-total {
			return fmt.Errorf("%w: deck %q exceeds %d cards", ErrInvalidDeck, d.Name, MaxDeckSize)
		}
		total += c.Quantity
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate the stored definition.
func (d *Deck) clone() *Deck {
	if d == nil {
		return nil
	}
	cp := &Deck{Name: d.Name, Cards: make([]DeckCard, len(d.Cards))}
	copy(cp.Cards, d.Cards)
	return cp
}

func (c DeckCard) instance(id string) Card {
	return Card{
		ID:         id,
		Name:       c.Name,
		FaceDown:   true,
		ImageURL:   c.ImageURL,
		ManaCost:   c.ManaCost,
		TypeLine:   c.TypeLine,
		OracleText: c.OracleText,
	}
}
