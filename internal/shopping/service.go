// Package shopping exposes the user intents on the shopping list: toggling
// items, bulk toggles, regeneration and loading. Each intent is applied to
// local state first and then confirmed against the backend.
package shopping

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/model"
	"github.com/dukerupert/cartsync/internal/reconcile"
	"github.com/dukerupert/cartsync/internal/state"
)

var (
	ErrNoList      = errors.New("no shopping list loaded")
	ErrUnknownItem = errors.New("item not in current list")
	ErrEmptyBatch  = errors.New("no items to toggle")
)

// Outcome reports what happened to an intent.
type Outcome string

const (
	// Committed means the backend confirmed the change.
	Committed Outcome = "committed"
	// Queued means the change is applied locally and waits for connectivity.
	Queued Outcome = "queued"
	// Rejected means the backend refused the change and it was rolled back.
	Rejected Outcome = "rejected"
	// Stale means a newer request for the same items superseded this one.
	Stale Outcome = "stale"
)

// Reports are backend payloads passed through unmodified.
type Reports interface {
	Statistics(ctx context.Context, listID model.ID) (json.RawMessage, error)
	History(ctx context.Context, listID model.ID, page, perPage int) (json.RawMessage, error)
	ExportData(ctx context.Context, listID model.ID, body json.RawMessage) (json.RawMessage, error)
}

type Service struct {
	state      *state.Container
	reconciler *reconcile.Reconciler
	reports    Reports
	logger     *slog.Logger
}

func NewService(c *state.Container, r *reconcile.Reconciler, reports Reports, logger *slog.Logger) *Service {
	return &Service{
		state:      c,
		reconciler: r,
		reports:    reports,
		logger:     logger,
	}
}

// ToggleItem sets one item's checked state.
func (s *Service) ToggleItem(ctx context.Context, itemID model.ID, checked bool) (Outcome, error) {
	list := s.state.CurrentList()
	if list == nil {
		return "", ErrNoList
	}
	prev, ok := s.state.Resolved(itemID)
	if !ok {
		return "", ErrUnknownItem
	}

	if s.state.Offline() {
		s.state.ToggleItem(itemID, checked, true)
		return Queued, nil
	}

	s.state.ToggleItem(itemID, checked, true)
	tok := s.state.BeginRequest(itemID)
	server, err := s.reconciler.ToggleItem(ctx, list.ID, itemID, checked)

	return s.settle(tok, server, err, []model.ItemToggle{{ItemID: itemID, Checked: prev}}, func() {
		s.state.ToggleItem(itemID, checked, true)
	}), nil
}

// BulkToggle sets several items' checked states as one intent. Updates for
// items not in the current list are ignored.
func (s *Service) BulkToggle(ctx context.Context, updates []model.ItemToggle) (Outcome, error) {
	list := s.state.CurrentList()
	if list == nil {
		return "", ErrNoList
	}
	if len(updates) == 0 {
		return "", ErrEmptyBatch
	}

	var known, previous []model.ItemToggle
	var ids []model.ID
	for _, u := range updates {
		prev, ok := s.state.Resolved(u.ItemID)
		if !ok {
			continue
		}
		known = append(known, u)
		previous = append(previous, model.ItemToggle{ItemID: u.ItemID, Checked: prev})
		ids = append(ids, u.ItemID)
	}
	if len(known) == 0 {
		return "", ErrUnknownItem
	}

	if s.state.Offline() {
		s.state.BulkToggleItems(known, true)
		return Queued, nil
	}

	s.state.BulkToggleItems(known, true)
	tok := s.state.BeginRequest(ids...)
	server, err := s.reconciler.BulkToggle(ctx, list.ID, known)

	return s.settle(tok, server, err, previous, func() {
		s.state.BulkToggleItems(known, true)
	}), nil
}

// settle applies the backend result of an optimistic toggle. reapply is
// called after offline mode is engaged, which queues the change.
func (s *Service) settle(tok state.Token, server *model.ShoppingList, err error, previous []model.ItemToggle, reapply func()) Outcome {
	latest := s.state.IsLatest(tok)

	switch backend.Classify(err) {
	case backend.OutcomeSuccess:
		if !latest {
			s.logger.Debug("discarding stale response", "list_id", server.ID)
			return Stale
		}
		s.state.SetCurrentList(server)
		s.state.ClearError()
		return Committed

	case backend.OutcomeConnectivityError:
		s.logger.Warn("backend unreachable, queuing change", "error", err)
		if !latest {
			s.state.SetError(backend.Message(err))
			s.state.SetOffline(true)
			return Stale
		}
		s.state.Revert(previous)
		s.state.SetError(backend.Message(err))
		s.state.SetOffline(true)
		reapply()
		return Queued

	default:
		s.logger.Warn("backend rejected change", "error", err)
		s.state.SetError(backend.Message(err))
		if !latest {
			return Stale
		}
		s.state.Revert(previous)
		return Rejected
	}
}

// Regenerate asks the backend to rebuild the current list. There is no
// optimistic change; while offline the request is queued.
func (s *Service) Regenerate(ctx context.Context, preserveChecked bool) (Outcome, error) {
	list := s.state.CurrentList()
	if list == nil {
		return "", ErrNoList
	}

	if s.state.Offline() {
		s.state.QueueRegenerate(preserveChecked)
		return Queued, nil
	}

	server, err := s.reconciler.Regenerate(ctx, list.ID, preserveChecked)
	switch backend.Classify(err) {
	case backend.OutcomeSuccess:
		s.state.SetCurrentList(server)
		s.state.PruneOverrides()
		s.state.ClearError()
		return Committed, nil
	case backend.OutcomeConnectivityError:
		s.logger.Warn("backend unreachable, queuing regenerate", "error", err)
		s.state.SetError(backend.Message(err))
		s.state.SetOffline(true)
		s.state.QueueRegenerate(preserveChecked)
		return Queued, nil
	default:
		s.logger.Warn("regenerate rejected", "error", err)
		s.state.SetError(backend.Message(err))
		return Rejected, nil
	}
}

// Load makes listID the current list. When the backend is unreachable the
// cached copy is used, if there is one.
func (s *Service) Load(ctx context.Context, listID model.ID) (Outcome, error) {
	list, err := s.reconciler.Fetch(ctx, listID)
	switch backend.Classify(err) {
	case backend.OutcomeSuccess:
		s.state.SetCurrentList(list)
		s.state.ClearError()
		return Committed, nil
	case backend.OutcomeConnectivityError:
		s.state.SetError(backend.Message(err))
		s.state.SetOffline(true)
		if s.state.UseCached(listID) {
			s.logger.Info("backend unreachable, using cached list", "list_id", listID)
			return Queued, nil
		}
		return Rejected, nil
	default:
		s.state.SetError(backend.Message(err))
		return Rejected, nil
	}
}

// Drain replays queued actions.
func (s *Service) Drain(ctx context.Context) (reconcile.DrainResult, error) {
	return s.reconciler.Drain(ctx)
}

func (s *Service) Statistics(ctx context.Context, listID model.ID) (json.RawMessage, error) {
	return s.reports.Statistics(ctx, listID)
}

func (s *Service) History(ctx context.Context, listID model.ID, page, perPage int) (json.RawMessage, error) {
	return s.reports.History(ctx, listID, page, perPage)
}

func (s *Service) ExportData(ctx context.Context, listID model.ID, body json.RawMessage) (json.RawMessage, error) {
	return s.reports.ExportData(ctx, listID, body)
}
