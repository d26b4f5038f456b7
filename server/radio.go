package server

import (
	"errors"
	"net/http"

	"github.com/trackside/f1radio-cache/service"
	"github.com/trackside/f1radio-cache/telemetry"
)

// handleSessionRadios serves a page of radio messages for one session.
// Query params: driver_number, page, per_page, use_cache (default true).
func (s *Server) handleSessionRadios(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "radio_session")

	sessionKey, ok := pathInt(w, r, "sessionKey")
	if !ok {
		return
	}
	driverNumber, ok := queryInt(w, r, "driver_number", 0)
	if !ok {
		return
	}
	page, ok := queryInt(w, r, "page", 0)
	if !ok {
		return
	}
	perPage, ok := queryInt(w, r, "per_page", 0)
	if !ok {
		return
	}
	useCache, ok := queryBool(w, r, "use_cache", true)
	if !ok {
		return
	}

	result, err := s.coordinator.SessionRadios(r.Context(), service.SessionRadiosQuery{
		SessionKey:   sessionKey,
		DriverNumber: driverNumber,
		Page:         page,
		PerPage:      perPage,
		UseCache:     useCache,
	})
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	setRadioCacheResult(r, result, useCache)
	writeJSON(w, http.StatusOK, result)
}

// handleLatestRadios serves recent radio messages from the most recent
// session. Query params: driver_number, limit.
func (s *Server) handleLatestRadios(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "radio_latest")

	driverNumber, ok := queryInt(w, r, "driver_number", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}

	result, err := s.coordinator.LatestRadios(r.Context(), driverNumber, limit)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	setRadioCacheResult(r, result, true)
	writeJSON(w, http.StatusOK, result)
}

// handleDriverRadios serves a page of one driver's radio messages,
// fetched upstream. Query params: session_key, meeting_key, page,
// per_page.
func (s *Server) handleDriverRadios(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "radio_driver")
	telemetry.SetCacheResult(r, telemetry.CacheNA)

	driverNumber, ok := pathInt(w, r, "driverNumber")
	if !ok {
		return
	}
	sessionKey, ok := queryInt(w, r, "session_key", 0)
	if !ok {
		return
	}
	meetingKey, ok := queryInt(w, r, "meeting_key", 0)
	if !ok {
		return
	}
	page, ok := queryInt(w, r, "page", 0)
	if !ok {
		return
	}
	perPage, ok := queryInt(w, r, "per_page", 0)
	if !ok {
		return
	}

	result, err := s.coordinator.DriverRadios(r.Context(), service.DriverRadiosQuery{
		DriverNumber: driverNumber,
		SessionKey:   sessionKey,
		MeetingKey:   meetingKey,
		Page:         page,
		PerPage:      perPage,
	})
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSync caches a session's radio messages on demand. Query param:
// force_refresh.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "radio_sync")

	sessionKey, ok := pathInt(w, r, "sessionKey")
	if !ok {
		return
	}
	force, ok := queryBool(w, r, "force_refresh", false)
	if !ok {
		return
	}

	result, err := s.coordinator.Sync(r.Context(), sessionKey, force)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	if result.Action == "cache_used" {
		telemetry.SetCacheResult(r, telemetry.CacheHit)
	} else {
		telemetry.SetCacheResult(r, telemetry.CacheMiss)
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCacheStatus reports all cached sessions with totals.
func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "radio_cache_status")
	telemetry.SetCacheResult(r, telemetry.CacheNA)

	status, err := s.coordinator.CacheStatus(r.Context())
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// serviceError maps coordinator errors onto HTTP status codes.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "%v", err)
}

func setRadioCacheResult(r *http.Request, page *service.RadioPage, useCache bool) {
	switch {
	case !useCache:
		telemetry.SetCacheResult(r, telemetry.CacheBypass)
	case page.FromCache:
		telemetry.SetCacheResult(r, telemetry.CacheHit)
	default:
		telemetry.SetCacheResult(r, telemetry.CacheMiss)
	}
}
