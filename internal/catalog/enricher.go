package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/magefree/tabletop-server/internal/zone"
	"go.uber.org/zap"
)

// CardMetadata is the display data kept for a card name.
type CardMetadata struct {
	Name       string `db:"name"`
	ManaCost   string `db:"mana_cost"`
	TypeLine   string `db:"card_type"`
	OracleText string `db:"rules_text"`
	ImageURL   string `db:"image_url"`
}

// CardLookup finds metadata for a set of card names.
type CardLookup interface {
	LookupCards(ctx context.Context, names []string) (map[string]CardMetadata, error)
}

// PostgresCardLookup reads card metadata from the cards table populated by
// scripts/import_cards.go.
type PostgresCardLookup struct {
	pool *pgxpool.Pool
}

// NewPostgresCardLookup connects to databaseURL and verifies the connection.
func NewPostgresCardLookup(ctx context.Context, databaseURL string) (*PostgresCardLookup, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create card database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping card database: %w", err)
	}
	return &PostgresCardLookup{pool: pool}, nil
}

const lookupCardsSQL = `
SELECT DISTINCT ON (name)
	name,
	COALESCE(mana_cost, '') AS mana_cost,
	COALESCE(card_type, '') AS card_type,
	COALESCE(rules_text, '') AS rules_text,
	COALESCE(image_url, '') AS image_url
FROM cards
WHERE name = ANY($1)
ORDER BY name, set_code`

// LookupCards implements CardLookup.
func (l *PostgresCardLookup) LookupCards(ctx context.Context, names []string) (map[string]CardMetadata, error) {
	rows, err := l.pool.Query(ctx, lookupCardsSQL, names)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}

	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[CardMetadata])
	if err != nil {
		return nil, fmt.Errorf("failed to scan cards: %w", err)
	}

	byName := make(map[string]CardMetadata, len(found))
	for _, meta := range found {
		byName[meta.Name] = meta
	}
	return byName, nil
}

// Close releases the connection pool.
func (l *PostgresCardLookup) Close() {
	l.pool.Close()
}

// Enricher fills in missing display metadata on resolved decks.
// Lookup failures never fail the import.
type Enricher struct {
	next   Adapter
	lookup CardLookup
	logger *zap.Logger
}

// NewEnricher decorates next with metadata from lookup.
func NewEnricher(next Adapter, lookup CardLookup, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{next: next, lookup: lookup, logger: logger}
}

// Resolve implements Adapter.
func (e *Enricher) Resolve(ctx context.Context, deckURL string) (*zone.Deck, error) {
	deck, err := e.next.Resolve(ctx, deckURL)
	if err != nil {
		return nil, err
	}

	missing := make([]string, 0)
	for _, c := range deck.Cards {
		if c.ManaCost == "" || c.TypeLine == "" || c.OracleText == "" || c.ImageURL == "" {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) == 0 {
		return deck, nil
	}

	meta, err := e.lookup.LookupCards(ctx, missing)
	if err != nil {
		e.logger.Warn("card metadata lookup failed",
			zap.String("deck_url", deckURL),
			zap.Int("cards", len(missing)),
			zap.Error(err),
		)
		return deck, nil
	}

	for i := range deck.Cards {
		m, ok := meta[deck.Cards[i].Name]
		if !ok {
			continue
		}
		c := &deck.Cards[i]
		c.ManaCost = firstNonEmpty(c.ManaCost, m.ManaCost)
		c.TypeLine = firstNonEmpty(c.TypeLine, m.TypeLine)
		c.OracleText = firstNonEmpty(c.OracleText, m.OracleText)
		c.ImageURL = firstNonEmpty(c.ImageURL, m.ImageURL)
	}
	return deck, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
