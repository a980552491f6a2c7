// Package state holds the shopping-list state the UI renders: the
// authoritative list, the optimistic working copy, checked overrides, sync
// status and the pending action queue.
package state

import (
	"sync"
	"time"

	"github.com/dukerupert/cartsync/internal/model"
)

const subscriberBuffer = 16

// Change is emitted once per committed transition.
type Change struct {
	Version uint64 `json:"version"`
	Reason  string `json:"reason"`
}

// Change reasons.
const (
	ReasonListReplaced = "list_replaced"
	ReasonListPatched  = "list_patched"
	ReasonItemToggled  = "item_toggled"
	ReasonBulkToggled  = "bulk_toggled"
	ReasonReverted     = "reverted"
	ReasonQueued       = "action_queued"
	ReasonSync         = "sync_state"
	ReasonDrained      = "queue_drained"
	ReasonRestored     = "restored"
)

// Token identifies an in-flight request for a set of items.
type Token struct {
	seq   uint64
	items []model.ID
}

// Container is the single source of truth for the shopping list. All access
// goes through its methods; it is safe for concurrent use.
type Container struct {
	mu sync.Mutex

	server    *model.ShoppingList
	working   *model.ShoppingList
	overrides map[model.ID]bool
	cached    map[model.ID]*model.ShoppingList
	status    model.SyncState
	queue     []model.PendingAction

	requestSeq uint64
	itemSeq    map[model.ID]uint64

	version uint64
	subs    map[chan Change]struct{}
	now     func() time.Time
}

func New() *Container {
	return &Container{
		overrides: make(map[model.ID]bool),
		cached:    make(map[model.ID]*model.ShoppingList),
		itemSeq:   make(map[model.ID]uint64),
		subs:      make(map[chan Change]struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe returns a channel of changes and a function that cancels the
// subscription. A subscriber that falls behind misses changes rather than
// blocking the container.
func (c *Container) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// commit bumps the version and notifies subscribers. Caller holds c.mu.
func (c *Container) commit(reason string) {
	c.version++
	ev := Change{Version: c.version, Reason: reason}
	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SetCurrentList replaces the authoritative list and the working copy. The
// list's checked flags are merged into the override map; overrides for items
// not in the list are kept.
func (c *Container) SetCurrentList(list *model.ShoppingList) {
	if list == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCurrentLocked(list)
	c.commit(ReasonListReplaced)
}

func (c *Container) setCurrentLocked(list *model.ShoppingList) {
	c.server = list.Clone()
	c.working = list.Clone()
	c.cached[list.ID] = list.Clone()
	for _, item := range list.Items {
		c.overrides[item.ID] = item.Checked
	}
}

// PruneOverrides drops overrides for items that are not in the current list.
func (c *Container) PruneOverrides() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.working == nil {
		return 0
	}
	removed := 0
	for id := range c.overrides {
		if c.working.Item(id) < 0 {
			delete(c.overrides, id)
			removed++
		}
	}
	if removed > 0 {
		c.commit(ReasonListReplaced)
	}
	return removed
}

// ToggleItem sets an item's checked state. With optimistic set, the override
// and the working copy change immediately. While offline a ToggleItem action
// is queued. It returns false, changing nothing, when the item is not in the
// current list.
func (c *Container) ToggleItem(itemID model.ID, checked, optimistic bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.working.Item(itemID) < 0 {
		return false
	}
	if optimistic {
		c.applyLocked(itemID, checked)
	}
	if c.status.OfflineMode {
		c.queue = append(c.queue, model.NewPendingAction(c.working.ID, model.ToggleItem{ItemID: itemID, Checked: checked}))
		c.stampLocked(itemID)
	}
	c.commit(ReasonItemToggled)
	return true
}

// BulkToggleItems applies a batch as one transition. Updates for unknown
// items are dropped; it returns false when none remain. While offline a
// single BulkToggle action is queued for the batch.
func (c *Container) BulkToggleItems(updates []model.ItemToggle, optimistic bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	known := c.knownLocked(updates)
	if len(known) == 0 {
		return false
	}
	if optimistic {
		for _, u := range known {
			c.applyLocked(u.ItemID, u.Checked)
		}
	}
	if c.status.OfflineMode {
		c.queue = append(c.queue, model.NewPendingAction(c.working.ID, model.BulkToggle{Items: known}))
		ids := make([]model.ID, len(known))
		for i, u := range known {
			ids[i] = u.ItemID
		}
		c.stampLocked(ids...)
	}
	c.commit(ReasonBulkToggled)
	return true
}

// Revert restores previous item states without queuing anything.
func (c *Container) Revert(previous []model.ItemToggle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	known := c.knownLocked(previous)
	if len(known) == 0 {
		return
	}
	for _, u := range known {
		c.applyLocked(u.ItemID, u.Checked)
	}
	c.commit(ReasonReverted)
}

func (c *Container) knownLocked(updates []model.ItemToggle) []model.ItemToggle {
	known := make([]model.ItemToggle, 0, len(updates))
	for _, u := range updates {
		if c.working.Item(u.ItemID) >= 0 {
			known = append(known, u)
		}
	}
	return known
}

func (c *Container) applyLocked(itemID model.ID, checked bool) {
	c.overrides[itemID] = checked
	if i := c.working.Item(itemID); i >= 0 {
		c.working.Items[i].Checked = checked
	}
}

// UpdateListData merges a server-confirmed partial update. It is a no-op
// when the patch targets a different list than the current one.
func (c *Container) UpdateListData(patch model.ListPatch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server == nil || c.server.ID != patch.ID {
		return false
	}
	merged := c.server.Clone()
	if patch.Name != nil {
		merged.Name = *patch.Name
	}
	if patch.CreatedAt != nil {
		merged.CreatedAt = *patch.CreatedAt
	}
	if patch.Items == nil {
		// Name or date only: keep the overrides of in-flight toggles.
		c.installLocked(merged)
		c.cached[merged.ID] = merged.Clone()
	} else {
		merged.Items = patch.Items
		c.setCurrentLocked(merged)
	}
	c.commit(ReasonListPatched)
	return true
}

// QueueRegenerate records a regenerate request that could not be sent.
func (c *Container) QueueRegenerate(preserveChecked bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.working == nil {
		return false
	}
	c.queue = append(c.queue, model.NewPendingAction(c.working.ID, model.Regenerate{PreserveChecked: preserveChecked}))
	c.commit(ReasonQueued)
	return true
}

func (c *Container) SetOffline(offline bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.OfflineMode == offline {
		return
	}
	c.status.OfflineMode = offline
	c.commit(ReasonSync)
}

func (c *Container) SetError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Error = msg
	c.commit(ReasonSync)
}

func (c *Container) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.Error == "" {
		return
	}
	c.status.Error = ""
	c.commit(ReasonSync)
}

// CommitDrain removes the first n queued actions after they were replayed,
// stamps the sync time and leaves offline mode. Actions queued while the
// drain was in flight stay queued. A non-nil list becomes the current list.
func (c *Container) CommitDrain(n int, list *model.ShoppingList) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.queue) {
		n = len(c.queue)
	}
	c.queue = append([]model.PendingAction(nil), c.queue[n:]...)
	now := c.now()
	c.status.LastSync = &now
	c.status.OfflineMode = false
	c.status.Error = ""
	if list != nil && (c.working == nil || c.working.ID == list.ID) {
		c.setCurrentLocked(list)
		// Re-apply what is still queued so it stays visible.
		for _, p := range c.queue {
			for _, t := range model.Toggles(p.Action) {
				if c.working.Item(t.ItemID) >= 0 {
					c.applyLocked(t.ItemID, t.Checked)
				}
			}
		}
	}
	c.commit(ReasonDrained)
}

// BeginRequest stamps a new request for the given items.
func (c *Container) BeginRequest(items ...model.ID) Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Token{seq: c.stampLocked(items...), items: append([]model.ID(nil), items...)}
}

// stampLocked starts a new sequence for items. A queued action stamps its
// items too, so a response to an older request cannot replace the queued
// intent.
func (c *Container) stampLocked(items ...model.ID) uint64 {
	c.requestSeq++
	for _, id := range items {
		c.itemSeq[id] = c.requestSeq
	}
	return c.requestSeq
}

// IsLatest reports whether no newer request has started for any item the
// token covers.
func (c *Container) IsLatest(t Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range t.items {
		if c.itemSeq[id] > t.seq {
			return false
		}
	}
	return true
}

// UseCached makes the cached copy of a list current without touching the
// overrides, so unconfirmed toggles stay visible. It reports whether a cached
// copy existed.
func (c *Container) UseCached(listID model.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.cached[listID]
	if !ok {
		return false
	}
	c.installLocked(list)
	c.commit(ReasonListReplaced)
	return true
}

// installLocked sets list as current and applies existing overrides to the
// working copy.
func (c *Container) installLocked(list *model.ShoppingList) {
	c.server = list.Clone()
	c.working = list.Clone()
	for i := range c.working.Items {
		if checked, ok := c.overrides[c.working.Items[i].ID]; ok {
			c.working.Items[i].Checked = checked
		}
	}
}

// Restore loads persisted state, typically once at startup.
func (c *Container) Restore(ps model.PersistedState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, checked := range ps.CheckedItems {
		c.overrides[id] = checked
	}
	for id, list := range ps.CachedLists {
		c.cached[id] = list.Clone()
	}
	if list, ok := c.cached[ps.CurrentListID]; ok {
		c.installLocked(list)
	}
	c.status.LastSync = ps.LastSync
	c.queue = append([]model.PendingAction(nil), ps.PendingActions...)
	if len(c.queue) > 0 {
		// Unconfirmed work from a previous session means we never saw the
		// server accept it.
		c.status.OfflineMode = true
	}
	c.commit(ReasonRestored)
}

// Persisted returns the durable subset of the state.
func (c *Container) Persisted() model.PersistedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps := model.PersistedState{
		CheckedItems:   make(map[model.ID]bool, len(c.overrides)),
		CachedLists:    make(map[model.ID]*model.ShoppingList, len(c.cached)),
		PendingActions: append([]model.PendingAction(nil), c.queue...),
	}
	for id, checked := range c.overrides {
		ps.CheckedItems[id] = checked
	}
	for id, list := range c.cached {
		ps.CachedLists[id] = list.Clone()
	}
	if c.working != nil {
		ps.CurrentListID = c.working.ID
	}
	if c.status.LastSync != nil {
		t := *c.status.LastSync
		ps.LastSync = &t
	}
	return ps
}
