package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
)

// NewHandler serves any Gateway over the robot wire contract:
// GET /robot/status, POST /robot/command, PUT /robot/coordinates.
// It lets the mock stand in for real hardware behind the live client.
func NewHandler(gw Gateway, log logr.Logger) http.Handler {
	h := &wireHandler{gw: gw, log: log}
	r := chi.NewRouter()
	r.Get(statusPath, h.status)
	r.Post(commandPath, h.command)
	r.Put(coordinatesPath, h.coordinates)
	return r
}

type wireHandler struct {
	gw  Gateway
	log logr.Logger
}

func (h *wireHandler) status(w http.ResponseWriter, r *http.Request) {
	payload, err := h.gw.FetchStatus(r.Context())
	if err != nil {
		h.log.Error(err, "fetch status")
		writeJSON(w, http.StatusBadGateway, ackResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *wireHandler) command(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Error: "invalid request body"})
		return
	}
	h.log.V(1).Info("command received", "command", req.Command, "request_id", r.Header.Get(requestIDHeader))

	result, err := h.gw.SendCommand(r.Context(), req.Command)
	if err != nil {
		var invalid *ValidationError
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusBadRequest, commandResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadGateway, commandResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{
		Success:   true,
		NewStatus: string(result.NewStatus),
		Message:   result.Message,
	})
}

func (h *wireHandler) coordinates(w http.ResponseWriter, r *http.Request) {
	var req coordinatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ackResponse{Error: "invalid request body"})
		return
	}
	if err := h.gw.UpdateCoordinates(r.Context(), req.Coordinates); err != nil {
		writeJSON(w, http.StatusBadGateway, ackResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Success: true, Message: "Coordinates updated successfully"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
