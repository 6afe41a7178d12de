package session

import "github.com/magefree/tabletop-server/internal/zone"

// DeckImported is sent to the importer once its library has been replaced.
type DeckImported struct {
	Deck *zone.Deck `json:"deck"`
}

// CardDrawn is sent to the drawing player.
type CardDrawn struct {
	Card           zone.Card `json:"card"`
	RemainingCards int       `json:"remainingCards"`
}

// ZonesUpdated carries a player's private zone contents to that player only.
type ZonesUpdated struct {
	Zones zone.Snapshot `json:"zones"`
}

// LibraryShuffled confirms a shuffle to the owner.
type LibraryShuffled struct {
	RemainingCards int `json:"remainingCards"`
}
