package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/magefree/tabletop-server/internal/zone"
	"go.uber.org/zap"
)

// DefaultMoxfieldAPI is the public Moxfield API root.
const DefaultMoxfieldAPI = "https://api2.moxfield.com"

const maxDeckResponseBytes = 8 << 20

var moxfieldDeckID = regexp.MustCompile(`^[A-Za-z0-9_-]{4,64}$`)

// MoxfieldClient resolves moxfield.com deck links.
type MoxfieldClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewMoxfieldClient creates a client against baseURL (DefaultMoxfieldAPI when
// empty). A nil httpClient gets a client with a 30s timeout.
func NewMoxfieldClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *MoxfieldClient {
	if baseURL == "" {
		baseURL = DefaultMoxfieldAPI
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MoxfieldClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

type moxfieldCard struct {
	Name       string `json:"name"`
	ManaCost   string `json:"mana_cost"`
	TypeLine   string `json:"type_line"`
	OracleText string `json:"oracle_text"`
	ScryfallID string `json:"scryfall_id"`
}

type moxfieldEntry struct {
	Quantity int          `json:"quantity"`
	Card     moxfieldCard `json:"card"`
}

type moxfieldDeck struct {
	Name       string                   `json:"name"`
	Commanders map[string]moxfieldEntry `json:"commanders"`
	Mainboard  map[string]moxfieldEntry `json:"mainboard"`
}

// ParseMoxfieldDeckID extracts the public deck id from a moxfield deck URL.
func ParseMoxfieldDeckID(deckURL string) (string, error) {
	raw := strings.TrimSpace(deckURL)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "moxfield.com" {
		return "", fmt.Errorf("unsupported host %q", u.Hostname())
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "decks" || !moxfieldDeckID.MatchString(parts[1]) {
		return "", fmt.Errorf("unsupported path %q", u.Path)
	}
	return parts[1], nil
}

// Resolve implements Adapter.
func (c *MoxfieldClient) Resolve(ctx context.Context, deckURL string) (*zone.Deck, error) {
	deckID, err := ParseMoxfieldDeckID(deckURL)
	if err != nil {
		return nil, &Error{Kind: KindInvalidSource, URL: deckURL, Err: err}
	}

	endpoint := fmt.Sprintf("%s/v2/decks/all/%s", c.baseURL, url.PathEscape(deckID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, URL: deckURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := KindUpstream
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, URL: deckURL, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("moxfield response",
		zap.String("deck_id", deckID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Kind: KindNotFound, URL: deckURL}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &Error{Kind: KindUpstream, URL: deckURL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var payload moxfieldDeck
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDeckResponseBytes)).Decode(&payload); err != nil {
		kind := KindUpstream
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, URL: deckURL, Err: fmt.Errorf("decode deck: %w", err)}
	}

	deck := &zone.Deck{Name: payload.Name}
	deck.Cards = append(deck.Cards, moxfieldSection(payload.Commanders)...)
	deck.Cards = append(deck.Cards, moxfieldSection(payload.Mainboard)...)
	if deck.Name == "" {
		deck.Name = deckID
	}
	if err := deck.Validate(); err != nil {
		return nil, &Error{Kind: KindNotFound, URL: deckURL, Err: err}
	}
	return deck, nil
}

// moxfieldSection converts one board into deck lines, sorted by name so the
// result does not depend on map order.
func moxfieldSection(section map[string]moxfieldEntry) []zone.DeckCard {
	names := make([]string, 0, len(section))
	for name := range section {
		names = append(names, name)
	}
	sort.Strings(names)

	cards := make([]zone.DeckCard, 0, len(names))
	for _, key := range names {
		entry := section[key]
		if entry.Quantity <= 0 {
			continue
		}
		name := entry.Card.Name
		if name == "" {
			name = key
		}
		cards = append(cards, zone.DeckCard{
			Name:       name,
			Quantity:   entry.Quantity,
			ImageURL:   scryfallImageURL(entry.Card.ScryfallID),
			ManaCost:   entry.Card.ManaCost,
			TypeLine:   entry.Card.TypeLine,
			OracleText: entry.Card.OracleText,
		})
	}
	return cards
}

func scryfallImageURL(id string) string {
	if len(id) < 2 {
		return ""
	}
	return fmt.Sprintf("https://cards.scryfall.io/normal/front/%c/%c/%s.jpg", id[0], id[1], id)
}
