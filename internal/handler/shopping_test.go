package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/model"
	"github.com/dukerupert/cartsync/internal/reconcile"
	"github.com/dukerupert/cartsync/internal/shopping"
	"github.com/dukerupert/cartsync/internal/state"
)

// fakeAPI is a minimal shopping-list backend.
type fakeAPI struct {
	mu      sync.Mutex
	list    model.ShoppingList
	rejectN int
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /shopping-lists/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.PathValue("id") != "10" {
			writeError(w, http.StatusNotFound, "list not found")
			return
		}
		writeJSON(w, http.StatusOK, f.list)
	})
	mux.HandleFunc("PATCH /shopping-lists/10/items/{item}/toggle", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.rejectN > 0 {
			f.rejectN--
			writeError(w, http.StatusConflict, "list archived")
			return
		}
		var body struct {
			Checked bool `json:"checked"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if i := f.list.Item(model.ID(r.PathValue("item"))); i >= 0 {
			f.list.Items[i].Checked = body.Checked
		}
		writeJSON(w, http.StatusOK, map[string]any{"shopping_list": f.list})
	})
	mux.HandleFunc("GET /shopping-lists/10/history", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"page":` + r.URL.Query().Get("page") + `}`))
	})
	return mux
}

type recordingSignaler struct {
	online, offline int
}

func (s *recordingSignaler) Online()  { s.online++ }
func (s *recordingSignaler) Offline() { s.offline++ }

type testEnv struct {
	mux     *http.ServeMux
	state   *state.Container
	api     *fakeAPI
	signals *recordingSignaler
}

func setupShoppingHandler(t *testing.T) *testEnv {
	t.Helper()
	api := &fakeAPI{list: model.ShoppingList{
		ID:   "10",
		Name: "Week 12",
		Items: []model.Item{
			{ID: "1", Name: "Chicken breast", Category: "Protein"},
			{ID: "2", Name: "Spinach", Category: "Produce"},
		},
	}}
	server := httptest.NewServer(api.handler(t))
	t.Cleanup(server.Close)

	client, err := backend.NewClient(backend.Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := state.New()
	svc := shopping.NewService(c, reconcile.New(client, c, logger), client, logger)
	signals := &recordingSignaler{}
	h := NewShoppingHandler(svc, c, signals, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/shopping-list", h.Get)
	mux.HandleFunc("GET /api/shopping-list/stats", h.Stats)
	mux.HandleFunc("GET /api/shopping-list/categories", h.Categories)
	mux.HandleFunc("POST /api/shopping-lists/{list_id}/load", h.Load)
	mux.HandleFunc("PATCH /api/shopping-list/items/{item_id}/toggle", h.ToggleItem)
	mux.HandleFunc("PATCH /api/shopping-list/bulk-toggle", h.BulkToggle)
	mux.HandleFunc("POST /api/connectivity", h.Connectivity)
	mux.HandleFunc("GET /api/shopping-lists/{list_id}/history", h.History)

	return &testEnv{mux: mux, state: c, api: api, signals: signals}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func TestToggleBeforeLoad(t *testing.T) {
	env := setupShoppingHandler(t)

	rec := env.do(t, http.MethodPatch, "/api/shopping-list/items/1/toggle", `{"checked":true}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestLoadToggleStats(t *testing.T) {
	env := setupShoppingHandler(t)

	rec := env.do(t, http.MethodPost, "/api/shopping-lists/10/load", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("load status = %d: %s", rec.Code, rec.Body)
	}

	rec = env.do(t, http.MethodPatch, "/api/shopping-list/items/2/toggle", `{"checked":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d: %s", rec.Code, rec.Body)
	}
	var resp mutationResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome != shopping.Committed {
		t.Errorf("outcome = %s", resp.Outcome)
	}
	if !resp.State.CheckedItems["2"] {
		t.Error("item 2 should be checked in returned state")
	}

	rec = env.do(t, http.MethodGet, "/api/shopping-list/stats", "")
	var stats model.Stats
	json.NewDecoder(rec.Body).Decode(&stats)
	if stats != (model.Stats{Total: 2, Completed: 1, Percentage: 50}) {
		t.Errorf("stats = %+v", stats)
	}

	rec = env.do(t, http.MethodGet, "/api/shopping-list/categories", "")
	var groups []model.CategoryGroup
	json.NewDecoder(rec.Body).Decode(&groups)
	if len(groups) != 2 || groups[0].Category != "Protein" {
		t.Errorf("groups = %+v", groups)
	}
}

func TestToggleRejected(t *testing.T) {
	env := setupShoppingHandler(t)
	env.do(t, http.MethodPost, "/api/shopping-lists/10/load", "")
	env.api.rejectN = 1

	rec := env.do(t, http.MethodPatch, "/api/shopping-list/items/1/toggle", `{"checked":true}`)
	var resp mutationResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Outcome != shopping.Rejected {
		t.Errorf("outcome = %s, want rejected", resp.Outcome)
	}
	if resp.State.CheckedItems["1"] {
		t.Error("rejected toggle should be rolled back")
	}
	if resp.State.Sync.Error != "list archived" {
		t.Errorf("error = %q", resp.State.Sync.Error)
	}
}

func TestToggleValidation(t *testing.T) {
	env := setupShoppingHandler(t)
	env.do(t, http.MethodPost, "/api/shopping-lists/10/load", "")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"missing checked", "/api/shopping-list/items/1/toggle", `{}`, http.StatusBadRequest},
		{"bad json", "/api/shopping-list/items/1/toggle", `{`, http.StatusBadRequest},
		{"unknown item", "/api/shopping-list/items/99/toggle", `{"checked":true}`, http.StatusNotFound},
		{"empty bulk", "/api/shopping-list/bulk-toggle", `{"items":[]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPatch, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestLoadUnknownList(t *testing.T) {
	env := setupShoppingHandler(t)

	rec := env.do(t, http.MethodPost, "/api/shopping-lists/11/load", "")
	var resp mutationResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Outcome != shopping.Rejected || resp.State.Sync.OfflineMode {
		t.Errorf("response = %+v", resp)
	}
}

func TestConnectivitySignal(t *testing.T) {
	env := setupShoppingHandler(t)

	env.do(t, http.MethodPost, "/api/connectivity", `{"online":false}`)
	env.do(t, http.MethodPost, "/api/connectivity", `{"online":true}`)
	if env.signals.offline != 1 || env.signals.online != 1 {
		t.Errorf("signals = %+v", env.signals)
	}

	rec := env.do(t, http.MethodPost, "/api/connectivity", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHistoryPassThrough(t *testing.T) {
	env := setupShoppingHandler(t)

	rec := env.do(t, http.MethodGet, "/api/shopping-lists/10/history?page=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"page":3}` {
		t.Errorf("body = %s", got)
	}

	rec = env.do(t, http.MethodGet, "/api/shopping-lists/10/history?page=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestBackendErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&backend.ConnectivityError{Op: "history", Err: context.DeadlineExceeded}, http.StatusServiceUnavailable},
		{&backend.ApplicationError{Status: 404, Message: "not found"}, http.StatusNotFound},
		{&backend.ApplicationError{Message: "bad payload"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeBackendError(rec, tt.err)
		if rec.Code != tt.status {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.status)
		}
	}
}
