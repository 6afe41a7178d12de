// Package catalog resolves deck-source references into deck lists. It is the
// boundary to third-party card catalogs; everything behind Adapter may block
// on the network.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/magefree/tabletop-server/internal/zone"
)

// Adapter resolves a deck URL into a deck definition.
type Adapter interface {
	Resolve(ctx context.Context, deckURL string) (*zone.Deck, error)
}

// ErrorKind classifies import failures.
type ErrorKind string

const (
	KindInvalidSource ErrorKind = "invalid_source"
	KindNotFound      ErrorKind = "not_found"
	KindTimeout       ErrorKind = "timeout"
	KindUpstream      ErrorKind = "upstream"
)

// Error is the typed failure returned by every Adapter in this package.
type Error struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("deck import %s: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("deck import %s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is the short status shown to the player who asked for the import.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindInvalidSource:
		return "That doesn't look like a supported deck link"
	case KindNotFound:
		return "Deck not found"
	case KindTimeout:
		return "Deck import timed out, try again"
	default:
		return "Deck service unavailable, try again later"
	}
}

// KindOf returns the kind of a catalog error, or KindUpstream for anything else.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUpstream
}

// UserMessage maps any error returned by an Adapter to a player-facing status.
func UserMessage(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.UserMessage()
	}
	return (&Error{Kind: KindOf(err)}).UserMessage()
}

func cloneDeck(d *zone.Deck) *zone.Deck {
	if d == nil {
		return nil
	}
	cp := &zone.Deck{Name: d.Name, Cards: make([]zone.DeckCard, len(d.Cards))}
	copy(cp.Cards, d.Cards)
	return cp
}
