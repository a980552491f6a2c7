package state

import (
	"github.com/dukerupert/cartsync/internal/grocery"
	"github.com/dukerupert/cartsync/internal/model"
)

// resolvedLocked returns the item's checked state; an override wins over
// the item's own flag.
func (c *Container) resolvedLocked(item model.Item) bool {
	if checked, ok := c.overrides[item.ID]; ok {
		return checked
	}
	return item.Checked
}

// Resolved returns the checked state of an item in the current list.
func (c *Container) Resolved(itemID model.ID) (checked, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.working.Item(itemID)
	if i < 0 {
		return false, false
	}
	return c.resolvedLocked(c.working.Items[i]), true
}

// Stats returns completion statistics for the current list.
func (c *Container) Stats() model.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.working == nil {
		return model.NewStats(0, 0)
	}
	completed := 0
	for _, item := range c.working.Items {
		if c.resolvedLocked(item) {
			completed++
		}
	}
	return model.NewStats(len(c.working.Items), completed)
}

// ItemsByCategory groups the current list's items by category in order of
// first appearance. Items without a label are categorized by name.
func (c *Container) ItemsByCategory() []model.CategoryGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.working == nil {
		return []model.CategoryGroup{}
	}
	index := make(map[string]int)
	groups := []model.CategoryGroup{}
	for _, item := range c.working.Items {
		cat := item.Category
		if cat == "" {
			cat = grocery.Categorize(item.Name)
		}
		item.Checked = c.resolvedLocked(item)
		i, ok := index[cat]
		if !ok {
			i = len(groups)
			index[cat] = i
			groups = append(groups, model.CategoryGroup{Category: cat})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}

// CurrentList returns a copy of the working list with resolved checked
// states, or nil when no list is loaded.
func (c *Container) CurrentList() *model.ShoppingList {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

func (c *Container) currentLocked() *model.ShoppingList {
	if c.working == nil {
		return nil
	}
	list := c.working.Clone()
	for i := range list.Items {
		list.Items[i].Checked = c.resolvedLocked(list.Items[i])
	}
	return list
}

func (c *Container) Offline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.OfflineMode
}

func (c *Container) SyncState() model.SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncLocked()
}

func (c *Container) syncLocked() model.SyncState {
	s := c.status
	if s.LastSync != nil {
		t := *s.LastSync
		s.LastSync = &t
	}
	return s
}

// PendingActions returns a copy of the queue in order.
func (c *Container) PendingActions() []model.PendingAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.PendingAction(nil), c.queue...)
}

func (c *Container) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Snapshot returns a consistent copy of the UI-visible state.
func (c *Container) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := model.Snapshot{
		Version:      c.version,
		List:         c.currentLocked(),
		CheckedItems: make(map[model.ID]bool, len(c.overrides)),
		Sync:         c.syncLocked(),
		Pending:      len(c.queue),
	}
	for id, checked := range c.overrides {
		snap.CheckedItems[id] = checked
	}
	return snap
}
