package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/cartsync/internal/model"
)

const (
	metaCurrentList = "current_list_id"
	metaLastSync    = "last_sync"
)

// SyncStore persists the durable part of the shopping-list state.
type SyncStore struct {
	db *sql.DB
}

func NewSyncStore(db *sql.DB) *SyncStore {
	return &SyncStore{db: db}
}

// Load reads the persisted state. An empty database yields empty state.
func (s *SyncStore) Load(ctx context.Context) (model.PersistedState, error) {
	ps := model.PersistedState{
		CheckedItems: make(map[model.ID]bool),
		CachedLists:  make(map[model.ID]*model.ShoppingList),
	}

	if err := s.loadChecked(ctx, &ps); err != nil {
		return ps, err
	}
	if err := s.loadLists(ctx, &ps); err != nil {
		return ps, err
	}
	if err := s.loadPending(ctx, &ps); err != nil {
		return ps, err
	}
	if err := s.loadMeta(ctx, &ps); err != nil {
		return ps, err
	}
	return ps, nil
}

func (s *SyncStore) loadChecked(ctx context.Context, ps *model.PersistedState) error {
	rows, err := s.db.QueryContext(ctx, `SELECT item_id, checked FROM checked_items`)
	if err != nil {
		return fmt.Errorf("load checked items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var checked bool
		if err := rows.Scan(&id, &checked); err != nil {
			return fmt.Errorf("scan checked item: %w", err)
		}
		ps.CheckedItems[model.ID(id)] = checked
	}
	return rows.Err()
}

func (s *SyncStore) loadLists(ctx context.Context, ps *model.PersistedState) error {
	rows, err := s.db.QueryContext(ctx, `SELECT list_id, data FROM cached_lists`)
	if err != nil {
		return fmt.Errorf("load cached lists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return fmt.Errorf("scan cached list: %w", err)
		}
		var list model.ShoppingList
		if err := json.Unmarshal([]byte(data), &list); err != nil {
			return fmt.Errorf("decode cached list %s: %w", id, err)
		}
		ps.CachedLists[model.ID(id)] = &list
	}
	return rows.Err()
}

func (s *SyncStore) loadPending(ctx context.Context, ps *model.PersistedState) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, list_id, type, payload, created_at FROM pending_actions ORDER BY position`,
	)
	if err != nil {
		return fmt.Errorf("load pending actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p model.PendingAction
		var listID, kind, payload string
		if err := rows.Scan(&p.ID, &listID, &kind, &payload, &p.CreatedAt); err != nil {
			return fmt.Errorf("scan pending action: %w", err)
		}
		a, err := model.DecodeAction(model.ActionKind(kind), []byte(payload))
		if err != nil {
			return fmt.Errorf("pending action %s: %w", p.ID, err)
		}
		p.ListID = model.ID(listID)
		p.Action = a
		ps.PendingActions = append(ps.PendingActions, p)
	}
	return rows.Err()
}

func (s *SyncStore) loadMeta(ctx context.Context, ps *model.PersistedState) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM sync_meta`)
	if err != nil {
		return fmt.Errorf("load sync meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan sync meta: %w", err)
		}
		switch key {
		case metaCurrentList:
			ps.CurrentListID = model.ID(value)
		case metaLastSync:
			t, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return fmt.Errorf("parse last sync: %w", err)
			}
			ps.LastSync = &t
		}
	}
	return rows.Err()
}

// Save replaces the persisted state in a single transaction.
func (s *SyncStore) Save(ctx context.Context, ps model.PersistedState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"checked_items", "cached_lists", "pending_actions", "sync_meta"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for id, checked := range ps.CheckedItems {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO checked_items (item_id, checked) VALUES (?, ?)`, string(id), checked,
		); err != nil {
			return fmt.Errorf("insert checked item: %w", err)
		}
	}

	now := time.Now().UTC()
	for id, list := range ps.CachedLists {
		data, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("encode cached list %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cached_lists (list_id, data, updated_at) VALUES (?, ?, ?)`, string(id), string(data), now,
		); err != nil {
			return fmt.Errorf("insert cached list: %w", err)
		}
	}

	for i, p := range ps.PendingActions {
		payload, err := json.Marshal(p.Action)
		if err != nil {
			return fmt.Errorf("encode pending action %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pending_actions (position, id, list_id, type, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			i, p.ID, string(p.ListID), string(p.Action.Kind()), string(payload), p.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert pending action: %w", err)
		}
	}

	meta := map[string]string{}
	if ps.CurrentListID != "" {
		meta[metaCurrentList] = string(ps.CurrentListID)
	}
	if ps.LastSync != nil {
		meta[metaLastSync] = ps.LastSync.UTC().Format(time.RFC3339Nano)
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_meta (key, value) VALUES (?, ?)`, key, value,
		); err != nil {
			return fmt.Errorf("insert sync meta: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
