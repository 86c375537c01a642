// Package api exposes the bridge operations over HTTP for polling clients:
// command submission, device status snapshots and the device listing.
package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/camlink/gimbal-bridge/internal/domain"
	"github.com/camlink/gimbal-bridge/internal/service"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// maxControlBody bounds the accepted control request size.
const maxControlBody = 4096

// Handler serves the bridge HTTP API.
type Handler struct {
	dispatcher *service.Dispatcher
	facade     *service.Facade
	logger     zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(dispatcher *service.Dispatcher, facade *service.Facade, logger zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		facade:     facade,
		logger:     logger.With().Str("component", "http-api").Logger(),
	}
}

// Register attaches the API routes to a mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/gimbal/control", h.ControlHandler)
	mux.HandleFunc("/api/gimbal/status", h.StatusHandler)
	mux.HandleFunc("/api/devices", h.DevicesHandler)
}

// controlResponse is the envelope returned for control requests.
type controlResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Command *service.CommandAck `json:"command,omitempty"`
}

// ControlHandler accepts a control envelope and dispatches it.
// Validation failures come back as 400 with the offending field named;
// transport failures as 503, so callers know which are retryable.
func (h *Handler) ControlHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, controlResponse{
			Success: false,
			Message: "method not allowed",
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxControlBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, controlResponse{
			Success: false,
			Message: "failed to read request body",
		})
		return
	}

	req, err := domain.ParseControl(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, controlResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		req.ClientID = clientID
	}

	ack, err := h.dispatcher.SendControl(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case domain.IsValidation(err):
			status = http.StatusBadRequest
		case domain.IsTransport(err):
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, controlResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, controlResponse{
		Success: true,
		Message: "command dispatched",
		Command: ack,
	})
}

// StatusHandler returns the snapshot of one device (?client_id=) or all.
func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")

	resp, err := h.facade.Status(clientID)
	if err != nil {
		if errors.Is(err, domain.ErrDeviceNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"error":     "device not found",
				"client_id": clientID,
				"timestamp": time.Now(),
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// DevicesHandler returns the device listing.
func (h *Handler) DevicesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.facade.List())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
