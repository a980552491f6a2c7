package model

import "time"

type SyncState struct {
	OfflineMode bool       `json:"offline_mode"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Snapshot is a copy of the UI-visible state at one version.
type Snapshot struct {
	Version      uint64        `json:"version"`
	List         *ShoppingList `json:"list"`
	CheckedItems map[ID]bool   `json:"checked_items"`
	Sync         SyncState     `json:"sync"`
	Pending      int           `json:"pending_actions"`
}

// PersistedState is the subset of state that survives restarts.
type PersistedState struct {
	CheckedItems   map[ID]bool
	CachedLists    map[ID]*ShoppingList
	CurrentListID  ID
	LastSync       *time.Time
	PendingActions []PendingAction
}
