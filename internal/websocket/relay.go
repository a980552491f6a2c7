package websocket

import (
	"context"

	"github.com/dukerupert/cartsync/internal/model"
	"github.com/dukerupert/cartsync/internal/state"
)

const (
	entityShoppingList = "shopping_list"
	actionChanged      = "changed"
	actionSnapshot     = "snapshot"
)

// SnapshotMessage wraps the container's current state.
func SnapshotMessage(c *state.Container) Message {
	snap := c.Snapshot()
	msg := NewMessage(entityShoppingList, actionSnapshot, snap.Version, "")
	msg.State = &snap
	return msg
}

// Relay broadcasts every container change, with the resulting state, until
// ctx is done.
func (h *Hub) Relay(ctx context.Context, c *state.Container) error {
	changes, cancel := c.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ch, ok := <-changes:
			if !ok {
				return nil
			}
			if h.ClientCount() == 0 {
				continue
			}
			h.Broadcast(changeMessage(ch, c.Snapshot()))
		}
	}
}

func changeMessage(ch state.Change, snap model.Snapshot) Message {
	msg := NewMessage(entityShoppingList, actionChanged, ch.Version, ch.Reason)
	msg.State = &snap
	return msg
}
