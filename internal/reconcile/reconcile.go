// Package reconcile sends shopping-list mutations to the backend and replays
// the pending action queue.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/model"
	"github.com/dukerupert/cartsync/internal/state"
)

// Backend is the subset of the backend client the reconciler needs.
type Backend interface {
	GetList(ctx context.Context, listID model.ID) (*model.ShoppingList, error)
	ToggleItem(ctx context.Context, listID, itemID model.ID, checked bool) (*model.ShoppingList, error)
	BulkToggle(ctx context.Context, listID model.ID, items []model.ItemToggle) (*model.ShoppingList, error)
	Regenerate(ctx context.Context, listID model.ID, preserveChecked bool) (*model.ShoppingList, error)
}

type Reconciler struct {
	backend  Backend
	state    *state.Container
	logger   *slog.Logger
	draining atomic.Bool
}

func New(b Backend, c *state.Container, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		backend: b,
		state:   c,
		logger:  logger,
	}
}

// Fetch returns the authoritative copy of a list.
func (r *Reconciler) Fetch(ctx context.Context, listID model.ID) (*model.ShoppingList, error) {
	return r.backend.GetList(ctx, listID)
}

func (r *Reconciler) ToggleItem(ctx context.Context, listID, itemID model.ID, checked bool) (*model.ShoppingList, error) {
	return r.backend.ToggleItem(ctx, listID, itemID, checked)
}

func (r *Reconciler) BulkToggle(ctx context.Context, listID model.ID, items []model.ItemToggle) (*model.ShoppingList, error) {
	return r.backend.BulkToggle(ctx, listID, items)
}

// Regenerate rebuilds the list on the server. When the server confirms
// without returning the list, it is fetched.
func (r *Reconciler) Regenerate(ctx context.Context, listID model.ID, preserveChecked bool) (*model.ShoppingList, error) {
	list, err := r.backend.Regenerate(ctx, listID, preserveChecked)
	if err != nil {
		return nil, err
	}
	if list != nil {
		return list, nil
	}
	list, err = r.backend.GetList(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("fetch regenerated list: %w", err)
	}
	return list, nil
}

// DrainResult describes one Drain call.
type DrainResult struct {
	// Drained is the number of queued actions that were confirmed.
	Drained int `json:"drained"`
	// Requests is the number of backend requests sent.
	Requests int `json:"requests"`
	// Skipped is set when another drain was already running.
	Skipped bool `json:"skipped,omitempty"`
}

// batch holds the flattened toggles for one list.
type batch struct {
	listID model.ID
	order  []model.ID
	values map[model.ID]bool
}

func (b *batch) add(t model.ItemToggle) {
	if _, ok := b.values[t.ItemID]; !ok {
		b.order = append(b.order, t.ItemID)
	}
	b.values[t.ItemID] = t.Checked
}

func (b *batch) toggles() []model.ItemToggle {
	out := make([]model.ItemToggle, len(b.order))
	for i, id := range b.order {
		out[i] = model.ItemToggle{ItemID: id, Checked: b.values[id]}
	}
	return out
}

// plan flattens the queue into one toggle batch per list, in order of first
// appearance, and picks the last queued regenerate.
func plan(queue []model.PendingAction) ([]*batch, *model.PendingAction) {
	var batches []*batch
	byList := make(map[model.ID]*batch)
	var regen *model.PendingAction
	for i := range queue {
		p := queue[i]
		if _, ok := p.Action.(model.Regenerate); ok {
			regen = &queue[i]
			continue
		}
		toggles := model.Toggles(p.Action)
		if len(toggles) == 0 {
			continue
		}
		b, ok := byList[p.ListID]
		if !ok {
			b = &batch{listID: p.ListID, values: make(map[model.ID]bool)}
			byList[p.ListID] = b
			batches = append(batches, b)
		}
		for _, t := range toggles {
			b.add(t)
		}
	}
	return batches, regen
}

// Drain replays the pending queue. The queue is only trimmed when every
// request succeeds; on failure it is left intact, the error is recorded and
// a connectivity failure puts the container in offline mode. A call made
// while another drain is running returns immediately.
func (r *Reconciler) Drain(ctx context.Context) (DrainResult, error) {
	if !r.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true}, nil
	}
	defer r.draining.Store(false)

	queue := r.state.PendingActions()
	if len(queue) == 0 {
		return DrainResult{}, nil
	}

	batches, regen := plan(queue)
	results := make(map[model.ID]*model.ShoppingList)
	var res DrainResult

	for _, b := range batches {
		list, err := r.backend.BulkToggle(ctx, b.listID, b.toggles())
		res.Requests++
		if err != nil {
			return res, r.fail(fmt.Errorf("replay toggles for list %s: %w", b.listID, err), err)
		}
		results[list.ID] = list
	}

	if regen != nil {
		a := regen.Action.(model.Regenerate)
		list, err := r.Regenerate(ctx, regen.ListID, a.PreserveChecked)
		res.Requests++
		if err != nil {
			return res, r.fail(fmt.Errorf("replay regenerate for list %s: %w", regen.ListID, err), err)
		}
		results[list.ID] = list
	}

	var current *model.ShoppingList
	if cur := r.state.CurrentList(); cur != nil {
		current = results[cur.ID]
	}
	r.state.CommitDrain(len(queue), current)
	if regen != nil && current != nil {
		r.state.PruneOverrides()
	}

	res.Drained = len(queue)
	r.logger.Info("pending actions drained", "actions", res.Drained, "requests", res.Requests)
	return res, nil
}

func (r *Reconciler) fail(wrapped, cause error) error {
	r.state.SetError(backend.Message(cause))
	if backend.IsConnectivity(cause) {
		r.state.SetOffline(true)
	}
	r.logger.Warn("drain failed", "error", wrapped, "outcome", backend.Classify(cause))
	return wrapped
}
