package server

import (
	"net/http"

	"github.com/trackside/f1radio-cache/service"
	"github.com/trackside/f1radio-cache/telemetry"
)

// handleSessions lists sessions. Query params: year, meeting_key,
// session_name, use_cache (default true).
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "sessions")

	year, ok := queryInt(w, r, "year", 0)
	if !ok {
		return
	}
	meetingKey, ok := queryInt(w, r, "meeting_key", 0)
	if !ok {
		return
	}
	useCache, ok := queryBool(w, r, "use_cache", true)
	if !ok {
		return
	}

	sessions, fromCache, err := s.coordinator.Sessions(r.Context(), service.SessionsQuery{
		Year:        year,
		MeetingKey:  meetingKey,
		SessionName: r.URL.Query().Get("session_name"),
		UseCache:    useCache,
	})
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	if fromCache {
		telemetry.SetCacheResult(r, telemetry.CacheHit)
	} else {
		telemetry.SetCacheResult(r, telemetry.CacheMiss)
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleLatestSession returns the most recent session.
func (s *Server) handleLatestSession(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "session_latest")

	session, err := s.coordinator.LatestSession(r.Context())
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleSessionByKey returns one session.
func (s *Server) handleSessionByKey(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "session_detail")

	sessionKey, ok := pathInt(w, r, "sessionKey")
	if !ok {
		return
	}

	session, err := s.coordinator.SessionByKey(r.Context(), sessionKey)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleSessionSummary returns a session with its drivers and radios.
func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "session_summary")

	sessionKey, ok := pathInt(w, r, "sessionKey")
	if !ok {
		return
	}

	summary, err := s.coordinator.SessionSummary(r.Context(), sessionKey)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleMeetings lists meetings. Query param: year.
func (s *Server) handleMeetings(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "meetings")

	year, ok := queryInt(w, r, "year", 0)
	if !ok {
		return
	}

	meetings, err := s.coordinator.Meetings(r.Context(), year)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meetings)
}

// handleMeetingDetail returns one meeting with its sessions.
func (s *Server) handleMeetingDetail(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "meeting_detail")

	meetingKey, ok := pathInt(w, r, "meetingKey")
	if !ok {
		return
	}

	detail, err := s.coordinator.MeetingDetail(r.Context(), meetingKey)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleDrivers lists the drivers of a session. Query param:
// session_key (defaults to the latest session).
func (s *Server) handleDrivers(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "drivers")

	sessionKey, ok := queryInt(w, r, "session_key", 0)
	if !ok {
		return
	}

	drivers, err := s.coordinator.Drivers(r.Context(), sessionKey)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drivers)
}

// handleDriverByNumber returns one driver. Query param: session_key
// (defaults to the latest session).
func (s *Server) handleDriverByNumber(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "driver_detail")

	driverNumber, ok := pathInt(w, r, "driverNumber")
	if !ok {
		return
	}
	sessionKey, ok := queryInt(w, r, "session_key", 0)
	if !ok {
		return
	}

	driver, err := s.coordinator.DriverByNumber(r.Context(), sessionKey, driverNumber)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, driver)
}

// handleDriverStats aggregates a driver's radio activity, optionally
// narrowed by session_key or meeting_key.
func (s *Server) handleDriverStats(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "driver_stats")
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

	stats, err := s.coordinator.DriverStats(r.Context(), driverNumber, sessionKey, meetingKey)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
