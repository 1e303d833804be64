package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/schooltrack/internal/tracking/domain"
	"github.com/example/schooltrack/internal/tracking/service"
)

// HTTP exposes the vehicle tracking REST surface.
type HTTP struct {
	svc       *service.Service
	directory domain.VehicleDirectory
}

// NewHTTP constructs a handler. directory may be nil when no vehicle
// directory backend is configured.
func NewHTTP(svc *service.Service, directory domain.VehicleDirectory) *HTTP {
	return &HTTP{svc: svc, directory: directory}
}

// Router builds the chi router with all endpoints and middlewares.
// writeGuard, when non-nil, wraps the location write endpoint only; read
// endpoints stay open.
func (h *HTTP) Router(writeGuard func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if writeGuard != nil {
		r.With(writeGuard).Post("/vehicles/location", h.updateLocation)
	} else {
		r.Post("/vehicles/location", h.updateLocation)
	}
	r.Get("/vehicles/{vehicleID}/location", h.latestLocation)
	r.Get("/vehicles/by-driver/{driverID}", h.vehicleByDriver)
	return r
}

func (h *HTTP) updateLocation(w http.ResponseWriter, r *http.Request) {
	var raw domain.RawUpdate
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	loc, err := h.svc.HandleUpdate(r.Context(), raw)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			// The legacy backend answered 200 here; strict rejection is
			// deliberate so drivers learn their update was discarded.
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":   "invalid location update",
				"details": verr.Error(),
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "failed to store location",
			"details": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Location updated successfully",
		"timestamp": loc.Timestamp,
	})
}

func (h *HTTP) latestLocation(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleID")
	loc, err := h.svc.Latest(r.Context(), vehicleID)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"message": "No location data found for this vehicle",
		})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "failed to fetch location",
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *HTTP) vehicleByDriver(w http.ResponseWriter, r *http.Request) {
	if h.directory == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "vehicle directory not configured"})
		return
	}
	driverID := chi.URLParam(r, "driverID")
	vehicleID, err := h.directory.VehicleByDriver(r.Context(), driverID)
	if errors.Is(err, domain.ErrVehicleNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Vehicle not found for this driver."})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "failed to fetch vehicle",
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"vehicle_id": vehicleID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
