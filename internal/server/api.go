package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"github.com/joshp123/agrobot/internal/gateway"
	"github.com/joshp123/agrobot/internal/logging"
	"github.com/joshp123/agrobot/internal/mirror"
	"github.com/joshp123/agrobot/internal/rate"
	"github.com/joshp123/agrobot/internal/robot"
)

// Controller is what the robot API drives.
type Controller interface {
	ViewSource
	Refresh(ctx context.Context) error
	SendCommand(ctx context.Context, command string) (gateway.CommandResult, error)
	UpdateCoordinates(ctx context.Context, coords []robot.Coordinate) error
	DismissNotice() bool
}

type commandRequest struct {
	Command string `json:"command"`
}

type coordinatesRequest struct {
	Coordinates []robot.Coordinate `json:"coordinates"`
}

type dismissResponse struct {
	Dismissed bool `json:"dismissed"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type robotAPI struct {
	ctrl Controller
	log  logr.Logger
	now  func() time.Time
}

// APIHandler serves the robot under /robot. Mount it under /api.
func APIHandler(ctrl Controller, log logr.Logger, now func() time.Time) http.Handler {
	if now == nil {
		now = time.Now
	}
	h := &robotAPI{ctrl: ctrl, log: log, now: now}
	r := chi.NewRouter()
	r.Route("/robot", func(r chi.Router) {
		r.Get("/", h.getRobot)
		r.Get("/events", h.events)
		r.Post("/refresh", h.refresh)
		r.Post("/command", h.command)
		r.Put("/coordinates", h.coordinates)
		r.Delete("/notice", h.dismiss)
	})
	return r
}

func (h *robotAPI) getRobot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.View().Snapshot(h.now()))
}

func (h *robotAPI) refresh(w http.ResponseWriter, r *http.Request) {
	// A client hanging up must not turn into a robot failure.
	if err := h.ctrl.Refresh(context.WithoutCancel(r.Context())); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.View().Snapshot(h.now()))
}

func (h *robotAPI) command(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "validation"})
		return
	}
	result, err := h.ctrl.SendCommand(context.WithoutCancel(r.Context()), req.Command)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *robotAPI) coordinates(w http.ResponseWriter, r *http.Request) {
	var req coordinatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "validation"})
		return
	}
	if err := h.ctrl.UpdateCoordinates(context.WithoutCancel(r.Context()), req.Coordinates); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.View().Snapshot(h.now()))
}

func (h *robotAPI) dismiss(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dismissResponse{Dismissed: h.ctrl.DismissNotice()})
}

func (h *robotAPI) writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorIfNotCanceled(h.log, err, "robot api request failed", "status", status)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func classify(err error) (int, string) {
	var invalid *gateway.ValidationError
	var limited rate.RateLimitError
	var transport *gateway.TransportError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, mirror.ErrStopped):
		return http.StatusServiceUnavailable, "stopped"
	case errors.As(err, &limited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.As(err, &transport):
		return http.StatusBadGateway, "transport"
	case logging.IsContextCancellation(err):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
