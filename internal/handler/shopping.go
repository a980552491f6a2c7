package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/cartsync/internal/model"
	"github.com/dukerupert/cartsync/internal/shopping"
	"github.com/dukerupert/cartsync/internal/state"
)

// Signaler receives connectivity events from the UI.
type Signaler interface {
	Online()
	Offline()
}

type ShoppingHandler struct {
	svc     *shopping.Service
	state   *state.Container
	monitor Signaler
	logger  *slog.Logger
}

func NewShoppingHandler(svc *shopping.Service, c *state.Container, monitor Signaler, logger *slog.Logger) *ShoppingHandler {
	return &ShoppingHandler{svc: svc, state: c, monitor: monitor, logger: logger}
}

type mutationResponse struct {
	Outcome shopping.Outcome `json:"outcome"`
	State   model.Snapshot   `json:"state"`
}

func (h *ShoppingHandler) respond(w http.ResponseWriter, out shopping.Outcome, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Outcome: out, State: h.state.Snapshot()})
}

// detach keeps a mutation running if the UI drops the request; the
// optimistic change is already applied and has to be settled.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *ShoppingHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Snapshot())
}

func (h *ShoppingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Stats())
}

func (h *ShoppingHandler) Categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.ItemsByCategory())
}

func (h *ShoppingHandler) Load(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(r, "list_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid list_id")
		return
	}
	out, err := h.svc.Load(detach(r), listID)
	h.respond(w, out, err)
}

func (h *ShoppingHandler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "item_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid item_id")
		return
	}
	var req struct {
		Checked *bool `json:"checked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Checked == nil {
		writeError(w, http.StatusBadRequest, "checked is required")
		return
	}

	out, err := h.svc.ToggleItem(detach(r), itemID, *req.Checked)
	h.respond(w, out, err)
}

func (h *ShoppingHandler) BulkToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []model.ItemToggle `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	out, err := h.svc.BulkToggle(detach(r), req.Items)
	h.respond(w, out, err)
}

func (h *ShoppingHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PreserveChecked bool `json:"preserve_checked_items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	out, err := h.svc.Regenerate(detach(r), req.PreserveChecked)
	h.respond(w, out, err)
}

func (h *ShoppingHandler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Drain(detach(r))
	if err != nil {
		h.logger.Warn("manual sync failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"result": res,
			"error":  err.Error(),
			"state":  h.state.Snapshot(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": res,
		"state":  h.state.Snapshot(),
	})
}

func (h *ShoppingHandler) Connectivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Online == nil {
		writeError(w, http.StatusBadRequest, "online is required")
		return
	}
	if *req.Online {
		h.monitor.Online()
	} else {
		h.monitor.Offline()
	}
	writeJSON(w, http.StatusOK, h.state.SyncState())
}

func (h *ShoppingHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(r, "list_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid list_id")
		return
	}
	raw, err := h.svc.Statistics(r.Context(), listID)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (h *ShoppingHandler) History(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(r, "list_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid list_id")
		return
	}
	page, perPage := 1, 20
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = n
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid per_page")
			return
		}
		perPage = n
	}

	raw, err := h.svc.History(r.Context(), listID, page, perPage)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (h *ShoppingHandler) ExportData(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(r, "list_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid list_id")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	raw, err := h.svc.ExportData(r.Context(), listID, body)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}
