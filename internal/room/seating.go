package room

// Seats holds the players shown either side of the player on turn: the
// previous turn on the left, the next turn on the right.
type Seats struct {
	Left  *Member `json:"left"`
	Right *Member `json:"right"`
}

// OnTurnPlayer returns the member at TurnOrder[CurrentTurnIndex]. It reports
// false when no turn is active, the index is out of range, or the seated
// connection has left the room.
func OnTurnPlayer(state GameState, roster []Member) (Member, bool) {
	idx, ok := turnIndex(state)
	if !ok {
		return Member{}, false
	}
	return seatAt(state, roster, idx)
}

// PreviousTurnPlayer returns the member seated before the player on turn,
// wrapping around the turn order.
func PreviousTurnPlayer(state GameState, roster []Member) (Member, bool) {
	idx, ok := turnIndex(state)
	if !ok {
		return Member{}, false
	}
	n := len(state.TurnOrder)
	return seatAt(state, roster, (idx-1+n)%n)
}

// NextTurnPlayer returns the member seated after the player on turn.
func NextTurnPlayer(state GameState, roster []Member) (Member, bool) {
	idx, ok := turnIndex(state)
	if !ok {
		return Member{}, false
	}
	return seatAt(state, roster, (idx+1)%len(state.TurnOrder))
}

// PreviewSeats returns the previous and next players. Both are nil when
// fewer than two players are seated.
func PreviewSeats(state GameState, roster []Member) Seats {
	if len(state.TurnOrder) < 2 {
		return Seats{}
	}

	var seats Seats
	if left, ok := PreviousTurnPlayer(state, roster); ok {
		seats.Left = &left
	}
	if right, ok := NextTurnPlayer(state, roster); ok {
		seats.Right = &right
	}
	return seats
}

func turnIndex(state GameState) (int, bool) {
	if state.CurrentTurnIndex == nil {
		return 0, false
	}
	idx := *state.CurrentTurnIndex
	if idx < 0 || idx >= len(state.TurnOrder) {
		return 0, false
	}
	return idx, true
}

func seatAt(state GameState, roster []Member, idx int) (Member, bool) {
	id := state.TurnOrder[idx]
	for _, m := range roster {
		if m.ConnectionID == id {
			return m, true
		}
	}
	return Member{}, false
}
