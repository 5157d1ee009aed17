package entity

// Card is one card of the shared pool. ID is stable for the lifetime of a
// round so clients can animate the same card across snapshots.
type Card struct {
	ID       string `json:"id"`
	Value    int    `json:"value"`
	Revealed bool   `json:"revealed"`

	// InTransit marks a card that has been picked up and not yet placed
	// (top of a pile, mid-swap).
	InTransit bool `json:"in_transit,omitempty"`
}
