package zone

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// DefaultInitialHandSize is the opening hand drawn when no size is given.
const DefaultInitialHandSize = 7

// ShuffleFunc permutes n elements through swap. rand.Shuffle satisfies it.
type ShuffleFunc func(n int, swap func(i, j int))

// Option configures a Store.
type Option func(*Store)

// WithShuffle replaces the shuffle used by ImportDeck and ShuffleLibrary.
func WithShuffle(fn ShuffleFunc) Option {
	return func(s *Store) {
		if fn != nil {
			s.shuffle = fn
		}
	}
}

// WithIDGenerator replaces the card id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Snapshot is a copy of all five zones. It is only ever handed to the
// owning player.
type Snapshot struct {
	Hand        []Card `json:"hand"`
	Library     []Card `json:"library"`
	Graveyard   []Card `json:"graveyard"`
	Battlefield []Card `json:"battlefield"`
	Exile       []Card `json:"exile"`
}

// Counts is the public, content-free summary of a Store.
type Counts struct {
	Hand        int `json:"hand"`
	Library     int `json:"library"`
	Graveyard   int `json:"graveyard"`
	Battlefield int `json:"battlefield"`
	Exile       int `json:"exile"`
}

// DeckInfo describes the imported deck and how much of it is still undrawn.
type DeckInfo struct {
	Name           string `json:"name"`
	TotalCards     int    `json:"totalCards"`
	RemainingCards int    `json:"remainingCards"`
}

// Store holds one player's zones. Every exported method is atomic.
type Store struct {
	mu      sync.RWMutex
	zones   map[Zone][]Card
	deck    *Deck
	shuffle ShuffleFunc
	newID   func() string
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		zones:   make(map[Zone][]Card, len(All)),
		shuffle: rand.Shuffle,
		newID:   uuid.NewString,
	}
	for _, z := range All {
		s.zones[z] = make([]Card, 0)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportDeck expands deck into face-down cards, shuffles them and installs
// them as the library. All other zones are emptied. On error nothing changes.
func (s *Store) ImportDeck(deck *Deck) error {
	if err := deck.Validate(); err != nil {
		return err
	}

	library := make([]Card, 0, deck.Size())
	for _, entry := range deck.Cards {
		for i := 0; i < entry.Quantity; i++ {
			library = append(library, entry.instance(s.newID()))
		}
	}
	s.shuffle(len(library), func(i, j int) {
		library[i], library[j] = library[j], library[i]
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, z := range All {
		s.zones[z] = make([]Card, 0)
	}
	s.zones[Library] = library
	s.deck = deck.clone()
	return nil
}

// DrawOne moves the top card of the library into the hand and returns it.
func (s *Store) DrawOne() (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawLocked()
}

func (s *Store) drawLocked() (Card, error) {
	library := s.zones[Library]
	if len(library) == 0 {
		return Card{}, ErrEmptyLibrary
	}

	card := library[0]
	s.zones[Library] = library[1:]
	card.FaceDown = false
	s.zones[Hand] = append(s.zones[Hand], card)
	return card, nil
}

// DrawInitialHand draws up to count cards, stopping early when the library
// runs out. A non-positive count draws DefaultInitialHandSize.
func (s *Store) DrawInitialHand(count int) []Card {
	if count <= 0 {
		count = DefaultInitialHandSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count = min(count, len(s.zones[Library]))
	drawn := make([]Card, 0, count)
	for i := 0; i < count; i++ {
		card, err := s.drawLocked()
		if err != nil {
			break
		}
		drawn = append(drawn, card)
	}
	return drawn
}

// MoveCard transfers a card between zones. Cards entering the library are
// turned face down and placed according to pos; cards entering any other
// zone are revealed and appended.
func (s *Store) MoveCard(cardID string, from, to Zone, pos Position) (Card, error) {
	if !from.Valid() {
		return Card{}, fmt.Errorf("%w: %q", ErrUnknownZone, from)
	}
	if !to.Valid() {
		return Card{}, fmt.Errorf("%w: %q", ErrUnknownZone, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	source := s.zones[from]
	idx := indexOf(source, cardID)
	if idx < 0 {
		return Card{}, fmt.Errorf("%w: %s in %s", ErrCardNotFound, cardID, from)
	}

	card := source[idx]
	rest := make([]Card, 0, len(source)-1)
	rest = append(rest, source[:idx]...)
	rest = append(rest, source[idx+1:]...)
	s.zones[from] = rest

	card.FaceDown = to == Library
	if to == Library && pos == PositionTop {
		s.zones[to] = append([]Card{card}, s.zones[to]...)
	} else {
		s.zones[to] = append(s.zones[to], card)
	}
	return card, nil
}

// ShuffleLibrary uniformly permutes the library.
func (s *Store) ShuffleLibrary() {
	s.mu.Lock()
	defer s.mu.Unlock()

	library := s.zones[Library]
	s.shuffle(len(library), func(i, j int) {
		library[i], library[j] = library[j], library[i]
	})
}

// Zones returns a deep copy of every zone.
func (s *Store) Zones() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Hand:        cloneCards(s.zones[Hand]),
		Library:     cloneCards(s.zones[Library]),
		Graveyard:   cloneCards(s.zones[Graveyard]),
		Battlefield: cloneCards(s.zones[Battlefield]),
		Exile:       cloneCards(s.zones[Exile]),
	}
}

// Counts returns the number of cards in each zone.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Counts{
		Hand:        len(s.zones[Hand]),
		Library:     len(s.zones[Library]),
		Graveyard:   len(s.zones[Graveyard]),
		Battlefield: len(s.zones[Battlefield]),
		Exile:       len(s.zones[Exile]),
	}
}

// Deck returns a copy of the imported deck, if any.
func (s *Store) Deck() (*Deck, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deck.clone(), s.deck != nil
}

// DeckInfo reports the imported deck's name, size and undrawn card count.
func (s *Store) DeckInfo() (DeckInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.deck == nil {
		return DeckInfo{}, false
	}
	return DeckInfo{
		Name:           s.deck.Name,
		TotalCards:     s.deck.Size(),
		RemainingCards: len(s.zones[Library]),
	}, true
}

// Remaining returns the number of cards left in the library.
func (s *Store) Remaining() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.zones[Library])
}

// Verify checks that every card id appears once across all zones and that
// exactly the library cards are face down.
func (s *Store) Verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]Zone)
	for _, z := range All {
		for _, c := range s.zones[z] {
			if prev, dup := seen[c.ID]; dup {
				return fmt.Errorf("card %s present in both %s and %s", c.ID, prev, z)
			}
			seen[c.ID] = z
			if c.FaceDown != (z == Library) {
				return fmt.Errorf("card %s in %s has faceDown=%t", c.ID, z, c.FaceDown)
			}
		}
	}
	return nil
}

func indexOf(cards []Card, id string) int {
	for i, c := range cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func cloneCards(cards []Card) []Card {
	out := make([]Card, len(cards))
	copy(out, cards)
	return out
}
