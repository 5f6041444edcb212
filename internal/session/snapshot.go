package session

import (
	"context"

	"github.com/hpungsan/tote/internal/cart"
)

// Snapshot is the presentable view of a cart shared by the CLI, MCP and web surfaces.
type Snapshot struct {
	Phase         Phase            `json:"phase"`
	Items         []cart.LineItem  `json:"items"`
	TotalQuantity int              `json:"total_quantity"`
	Subtotal      float64          `json:"subtotal"`
	GuestItems    []cart.GuestItem `json:"guest_items,omitempty"`
}

// Snapshot captures the current state. With includeGuest the persisted guest
// record is attached, which may disagree with Items on quantities.
func (s *ShoppingCart) Snapshot(ctx context.Context, includeGuest bool) Snapshot {
	s.mu.RLock()
	state, phase := s.state, s.phase
	s.mu.RUnlock()

	snap := Snapshot{
		Phase:         phase,
		Items:         state.Items(),
		TotalQuantity: state.TotalQuantity(),
		Subtotal:      state.Subtotal(),
	}
	if includeGuest {
		snap.GuestItems = s.guest.Load(ctx)
	}
	return snap
}
