package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/model"
	"github.com/dukerupert/cartsync/internal/state"
)

type bulkCall struct {
	ListID model.ID
	Items  []model.ItemToggle
}

type fakeBackend struct {
	mu         sync.Mutex
	bulk       []bulkCall
	regenerate []bool
	gets       int
	err        error
	regenList  bool

	// block, when set, makes BulkToggle signal started and wait.
	started chan struct{}
	release chan struct{}
}

func serverList(id model.ID) *model.ShoppingList {
	return &model.ShoppingList{
		ID: id,
		Items: []model.Item{
			{ID: "1", Name: "Eggs"},
			{ID: "2", Name: "Spinach"},
			{ID: "3", Name: "Oats"},
		},
	}
}

func (f *fakeBackend) GetList(ctx context.Context, listID model.ID) (*model.ShoppingList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	return serverList(listID), nil
}

func (f *fakeBackend) ToggleItem(ctx context.Context, listID, itemID model.ID, checked bool) (*model.ShoppingList, error) {
	return f.BulkToggle(ctx, listID, []model.ItemToggle{{ItemID: itemID, Checked: checked}})
}

func (f *fakeBackend) BulkToggle(ctx context.Context, listID model.ID, items []model.ItemToggle) (*model.ShoppingList, error) {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulk = append(f.bulk, bulkCall{ListID: listID, Items: items})
	if f.err != nil {
		return nil, f.err
	}
	list := serverList(listID)
	for _, t := range items {
		if i := list.Item(t.ItemID); i >= 0 {
			list.Items[i].Checked = t.Checked
		}
	}
	return list, nil
}

func (f *fakeBackend) Regenerate(ctx context.Context, listID model.ID, preserveChecked bool) (*model.ShoppingList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regenerate = append(f.regenerate, preserveChecked)
	if f.err != nil {
		return nil, f.err
	}
	if !f.regenList {
		return nil, nil
	}
	return serverList(listID), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offlineContainer() *state.Container {
	c := state.New()
	c.SetCurrentList(serverList("10"))
	c.SetOffline(true)
	return c
}

func TestDrainFlattensToOneBulkRequest(t *testing.T) {
	c := offlineContainer()
	c.ToggleItem("1", true, true)
	c.ToggleItem("2", true, true)
	c.BulkToggleItems([]model.ItemToggle{{ItemID: "1", Checked: false}, {ItemID: "3", Checked: true}}, true)

	fb := &fakeBackend{}
	r := New(fb, c, discardLogger())

	res, err := r.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if res.Drained != 3 || res.Requests != 1 {
		t.Errorf("result = %+v", res)
	}
	want := []bulkCall{{
		ListID: "10",
		Items: []model.ItemToggle{
			{ItemID: "1", Checked: false},
			{ItemID: "2", Checked: true},
			{ItemID: "3", Checked: true},
		},
	}}
	if diff := cmp.Diff(want, fb.bulk); diff != "" {
		t.Errorf("bulk calls (-want +got):\n%s", diff)
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", c.PendingCount())
	}
	s := c.SyncState()
	if s.OfflineMode || s.LastSync == nil || s.Error != "" {
		t.Errorf("sync state = %+v", s)
	}
}

func TestDrainReplaysLastRegenerate(t *testing.T) {
	c := offlineContainer()
	c.QueueRegenerate(false)
	c.ToggleItem("2", true, true)
	c.QueueRegenerate(true)

	fb := &fakeBackend{}
	r := New(fb, c, discardLogger())

	res, err := r.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(fb.bulk) != 1 {
		t.Errorf("bulk requests = %d, want 1", len(fb.bulk))
	}
	if diff := cmp.Diff([]bool{true}, fb.regenerate); diff != "" {
		t.Errorf("regenerate calls (-want +got):\n%s", diff)
	}
	if fb.gets != 1 {
		t.Errorf("gets = %d, want 1 (regenerate returned no list)", fb.gets)
	}
	if res.Requests != 2 || res.Drained != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestDrainFailureKeepsQueue(t *testing.T) {
	c := offlineContainer()
	c.ToggleItem("1", true, true)
	c.ToggleItem("2", true, true)
	c.SetOffline(false)

	fb := &fakeBackend{err: &backend.ConnectivityError{Op: "bulk toggle", Err: errors.New("connection refused")}}
	r := New(fb, c, discardLogger())

	if _, err := r.Drain(context.Background()); err == nil {
		t.Fatal("expected drain error")
	}
	if c.PendingCount() != 2 {
		t.Errorf("pending = %d, want 2", c.PendingCount())
	}
	s := c.SyncState()
	if !s.OfflineMode || s.Error == "" {
		t.Errorf("sync state = %+v", s)
	}
}

func TestDrainApplicationErrorStaysOnline(t *testing.T) {
	c := offlineContainer()
	c.ToggleItem("1", true, true)
	c.SetOffline(false)

	fb := &fakeBackend{err: &backend.ApplicationError{Status: 500, Message: "boom"}}
	r := New(fb, c, discardLogger())

	if _, err := r.Drain(context.Background()); err == nil {
		t.Fatal("expected drain error")
	}
	if c.Offline() {
		t.Error("application error must not engage offline mode")
	}
	if c.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1", c.PendingCount())
	}
}

func TestDrainEmptyQueueSendsNothing(t *testing.T) {
	c := state.New()
	fb := &fakeBackend{}
	r := New(fb, c, discardLogger())

	res, err := r.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if res.Requests != 0 || len(fb.bulk) != 0 {
		t.Errorf("empty drain sent requests: %+v", res)
	}
}

func TestConcurrentDrainsCoalesce(t *testing.T) {
	c := offlineContainer()
	c.ToggleItem("1", true, true)

	fb := &fakeBackend{started: make(chan struct{}), release: make(chan struct{})}
	r := New(fb, c, discardLogger())

	done := make(chan error)
	go func() {
		_, err := r.Drain(context.Background())
		done <- err
	}()
	<-fb.started

	res, err := r.Drain(context.Background())
	if err != nil || !res.Skipped {
		t.Errorf("second drain = %+v, %v; want skipped", res, err)
	}

	close(fb.release)
	if err := <-done; err != nil {
		t.Fatalf("first drain: %v", err)
	}
	if len(fb.bulk) != 1 {
		t.Errorf("bulk requests = %d, want 1", len(fb.bulk))
	}
}

func TestRegenerateFetchesWhenListMissing(t *testing.T) {
	fb := &fakeBackend{}
	r := New(fb, state.New(), discardLogger())

	list, err := r.Regenerate(context.Background(), "10", true)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if list == nil || fb.gets != 1 {
		t.Errorf("list = %v, gets = %d", list, fb.gets)
	}

	fb.regenList = true
	if _, err := r.Regenerate(context.Background(), "10", true); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if fb.gets != 1 {
		t.Errorf("gets = %d, want no extra fetch", fb.gets)
	}
}
