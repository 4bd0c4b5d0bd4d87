package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	httpmiddleware "github.com/wolfman30/frontdesk-dispatch/internal/http/middleware"
	"github.com/wolfman30/frontdesk-dispatch/internal/settings"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

// AdminSettingsHandler reads and replaces the active phone settings.
type AdminSettingsHandler struct {
	store  settings.Store
	logger *logging.Logger
}

func NewAdminSettingsHandler(store settings.Store, logger *logging.Logger) *AdminSettingsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminSettingsHandler{store: store, logger: logger}
}

// Get returns the active version, or the compiled-in defaults when none is saved.
func (h *AdminSettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	current, err := h.store.Current(r.Context())
	switch {
	case errors.Is(err, settings.ErrNotConfigured):
		writeJSON(w, http.StatusOK, settings.Defaults())
	case err != nil:
		h.logger.Error("load phone settings failed", "error", err)
		jsonError(w, "failed to load settings", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, current)
	}
}

// Put saves a new version. Invalid input never replaces the active version.
func (h *AdminSettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var in settings.PhoneSettings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if operator, ok := httpmiddleware.OperatorFromContext(r.Context()); ok {
		in.UpdatedBy = operator
	}
	saved, err := h.store.Save(r.Context(), in)
	if err != nil {
		if errors.Is(err, settings.ErrInvalid) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("save phone settings failed", "error", err)
		jsonError(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	h.logger.Info("phone settings updated", "version", saved.Version, "updated_by", saved.UpdatedBy)
	writeJSON(w, http.StatusOK, saved)
}
