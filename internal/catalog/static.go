package catalog

import (
	"context"
	"strings"

	"github.com/magefree/tabletop-server/internal/zone"
)

// StaticAdapter returns the same deck for every non-empty URL.
type StaticAdapter struct {
	deck *zone.Deck
}

// NewStaticAdapter returns an adapter that always resolves to deck.
func NewStaticAdapter(deck *zone.Deck) *StaticAdapter {
	return &StaticAdapter{deck: cloneDeck(deck)}
}

// NewPlaceholderAdapter returns the sample deck used when no catalog
// provider is configured.
func NewPlaceholderAdapter() *StaticAdapter {
	return NewStaticAdapter(&zone.Deck{
		Name: "Sample Deck",
		Cards: []zone.DeckCard{
			{Name: "Lightning Bolt", Quantity: 4, ManaCost: "{R}", TypeLine: "Instant", OracleText: "Lightning Bolt deals 3 damage to any target."},
			{Name: "Mountain", Quantity: 20, TypeLine: "Basic Land — Mountain"},
		},
	})
}

// Resolve implements Adapter.
func (a *StaticAdapter) Resolve(ctx context.Context, deckURL string) (*zone.Deck, error) {
	if strings.TrimSpace(deckURL) == "" {
		return nil, &Error{Kind: KindInvalidSource, URL: deckURL}
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindOf(err), URL: deckURL, Err: err}
	}
	return cloneDeck(a.deck), nil
}
