package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/model"
	"github.com/dukerupert/cartsync/internal/shopping"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps precondition errors from the shopping service.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shopping.ErrNoList), errors.Is(err, shopping.ErrUnknownItem):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// writeBackendError maps a failed pass-through call.
func writeBackendError(w http.ResponseWriter, err error) {
	var ae *backend.ApplicationError
	switch {
	case backend.IsConnectivity(err):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &ae) && ae.Status >= 400:
		writeError(w, ae.Status, ae.Message)
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func pathID(r *http.Request, name string) (model.ID, bool) {
	raw := strings.TrimSpace(r.PathValue(name))
	if raw == "" {
		return "", false
	}
	return model.NormalizeID(raw), true
}
