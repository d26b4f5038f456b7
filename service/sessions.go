package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/trackside/f1radio-cache/openf1"
	"github.com/trackside/f1radio-cache/store"
)

// SessionsQuery describes a session list lookup.
type SessionsQuery struct {
	Year        int
	MeetingKey  int
	SessionName string
	UseCache    bool
}

// Sessions returns sessions matching the query. Only fully unfiltered
// lookups consult or refresh the cached session list; meeting or name
// filters always go upstream so narrow queries never mask the full
// list. A year filter is applied in memory after loading.
func (c *Coordinator) Sessions(ctx context.Context, q SessionsQuery) ([]openf1.Session, bool, error) {
	cacheable := q.MeetingKey == 0 && q.SessionName == ""

	if q.UseCache && cacheable {
		if cached := c.cache.LoadSessions(ctx); len(cached) > 0 {
			filtered := filterByYear(cached, q.Year)
			if len(filtered) > 0 {
				return filtered, true, nil
			}
			// the cached list may simply predate this year
		}
	}

	sessions, err := c.upstream.Sessions(ctx, openf1.SessionsQuery{
		MeetingKey:  q.MeetingKey,
		SessionName: q.SessionName,
		Year:        q.Year,
	})
	if err != nil {
		return nil, false, fmt.Errorf("fetching sessions: %w", err)
	}

	sortSessionsDesc(sessions)

	if cacheable && q.Year == 0 {
		c.cache.SaveSessions(ctx, sessions)
	}
	return sessions, false, nil
}

// SessionByKey returns a single session by its key.
func (c *Coordinator) SessionByKey(ctx context.Context, sessionKey int) (*openf1.Session, error) {
	sessions, _, err := c.Sessions(ctx, SessionsQuery{UseCache: true})
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].SessionKey == sessionKey {
			return &sessions[i], nil
		}
	}
	return nil, fmt.Errorf("session %d: %w", sessionKey, ErrNotFound)
}

// LatestSession returns the most recent session known upstream.
func (c *Coordinator) LatestSession(ctx context.Context) (*openf1.Session, error) {
	session := c.upstream.LatestSession(ctx)
	if session == nil {
		return nil, fmt.Errorf("no recent session: %w", ErrNotFound)
	}
	return session, nil
}

// SessionSummary returns the session with its drivers and radios.
func (c *Coordinator) SessionSummary(ctx context.Context, sessionKey int) (*openf1.SessionSummary, error) {
	summary, err := c.upstream.SessionSummary(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("building summary for session %d: %w", sessionKey, err)
	}
	if summary.Session == nil {
		return nil, fmt.Errorf("session %d: %w", sessionKey, ErrNotFound)
	}
	return summary, nil
}

// Meetings returns meetings for a year, most recent first.
func (c *Coordinator) Meetings(ctx context.Context, year int) ([]openf1.Meeting, error) {
	meetings, err := c.upstream.Meetings(ctx, openf1.MeetingsQuery{Year: year})
	if err != nil {
		return nil, fmt.Errorf("fetching meetings: %w", err)
	}
	sort.SliceStable(meetings, func(i, j int) bool {
		return meetings[i].DateStart.After(meetings[j].DateStart.Time)
	})
	return meetings, nil
}

// MeetingDetail is a meeting with its sessions.
type MeetingDetail struct {
	Meeting      openf1.Meeting   `json:"meeting"`
	Sessions     []openf1.Session `json:"sessions"`
	SessionCount int              `json:"session_count"`
}

// MeetingDetail returns one meeting and its sessions in schedule order.
// The meeting is looked up independently of its sessions, so a meeting
// with no sessions yet still resolves with an empty list.
func (c *Coordinator) MeetingDetail(ctx context.Context, meetingKey int) (*MeetingDetail, error) {
	meetings, err := c.upstream.Meetings(ctx, openf1.MeetingsQuery{})
	if err != nil {
		return nil, fmt.Errorf("fetching meetings: %w", err)
	}

	var meeting *openf1.Meeting
	for i := range meetings {
		if meetings[i].MeetingKey == meetingKey {
			meeting = &meetings[i]
			break
		}
	}
	if meeting == nil {
		return nil, fmt.Errorf("meeting %d: %w", meetingKey, ErrNotFound)
	}

	sessions, err := c.upstream.Sessions(ctx, openf1.SessionsQuery{MeetingKey: meetingKey})
	if err != nil {
		return nil, fmt.Errorf("fetching sessions for meeting %d: %w", meetingKey, err)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].DateStart.Before(sessions[j].DateStart.Time)
	})

	return &MeetingDetail{
		Meeting:      *meeting,
		Sessions:     sessions,
		SessionCount: len(sessions),
	}, nil
}

// Drivers returns the drivers of a session sorted by car number. With
// sessionKey zero the latest session is used.
func (c *Coordinator) Drivers(ctx context.Context, sessionKey int) ([]openf1.Driver, error) {
	if sessionKey == 0 {
		session := c.upstream.LatestSession(ctx)
		if session == nil {
			return nil, fmt.Errorf("no recent session: %w", ErrNotFound)
		}
		sessionKey = session.SessionKey
	}

	drivers, err := c.upstream.Drivers(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("fetching drivers: %w", err)
	}
	sort.SliceStable(drivers, func(i, j int) bool {
		return drivers[i].DriverNumber < drivers[j].DriverNumber
	})
	return drivers, nil
}

// DriverByNumber returns one driver from a session by car number.
func (c *Coordinator) DriverByNumber(ctx context.Context, sessionKey, driverNumber int) (*openf1.Driver, error) {
	drivers, err := c.Drivers(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	for i := range drivers {
		if drivers[i].DriverNumber == driverNumber {
			return &drivers[i], nil
		}
	}
	return nil, fmt.Errorf("driver %d: %w", driverNumber, ErrNotFound)
}

// DriverSessionStats aggregates one driver's radios within one session.
type DriverSessionStats struct {
	SessionKey int            `json:"session_key"`
	RadioCount int            `json:"radio_count"`
	FirstRadio openf1.UTCTime `json:"first_radio"`
	LastRadio  openf1.UTCTime `json:"last_radio"`
}

// DriverStats aggregates a driver's radio activity across sessions.
type DriverStats struct {
	Driver        *openf1.Driver       `json:"driver"`
	TotalRadios   int                  `json:"total_radios"`
	SessionsCount int                  `json:"sessions_count"`
	SessionStats  []DriverSessionStats `json:"session_stats"`
	LatestRadio   *openf1.UTCTime      `json:"latest_radio"`
}

// DriverStats computes a driver's radio totals from a driver-filtered
// upstream fetch, optionally narrowed to one session or meeting. An
// unknown driver number yields ErrNotFound.
func (c *Coordinator) DriverStats(ctx context.Context, driverNumber, sessionKey, meetingKey int) (*DriverStats, error) {
	driver, err := c.DriverByNumber(ctx, sessionKey, driverNumber)
	if err != nil {
		return nil, err
	}

	radios, err := c.upstream.TeamRadio(ctx, openf1.RadioQuery{
		SessionKey:   sessionKey,
		DriverNumber: driverNumber,
		MeetingKey:   meetingKey,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching radios for driver %d: %w", driverNumber, err)
	}

	stats := &DriverStats{
		Driver:       driver,
		TotalRadios:  len(radios),
		SessionStats: []DriverSessionStats{},
	}

	bySession := make(map[int][]openf1.RadioMessage)
	for _, radio := range radios {
		bySession[radio.SessionKey] = append(bySession[radio.SessionKey], radio)

		if stats.LatestRadio == nil || radio.Date.After(stats.LatestRadio.Time) {
			latest := radio.Date
			stats.LatestRadio = &latest
		}
	}

	for key, sessionRadios := range bySession {
		sortRadiosDesc(sessionRadios)
		stats.SessionStats = append(stats.SessionStats, DriverSessionStats{
			SessionKey: key,
			RadioCount: len(sessionRadios),
			FirstRadio: sessionRadios[len(sessionRadios)-1].Date,
			LastRadio:  sessionRadios[0].Date,
		})
	}
	sort.SliceStable(stats.SessionStats, func(i, j int) bool {
		return stats.SessionStats[i].SessionKey > stats.SessionStats[j].SessionKey
	})
	stats.SessionsCount = len(stats.SessionStats)

	return stats, nil
}

// CacheStatus summarizes what is currently cached on disk.
type CacheStatus struct {
	CachedSessions int               `json:"cached_sessions"`
	TotalRadios    int               `json:"total_radios"`
	TotalSizeBytes int64             `json:"total_size_bytes"`
	Sessions       []store.EntryInfo `json:"sessions"`
}

// CacheStatus reports every cached session with aggregate totals.
func (c *Coordinator) CacheStatus(ctx context.Context) (*CacheStatus, error) {
	entries, err := c.cache.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing cache entries: %w", err)
	}

	status := &CacheStatus{
		CachedSessions: len(entries),
		Sessions:       entries,
	}
	for _, entry := range entries {
		status.TotalRadios += entry.RadioCount
		status.TotalSizeBytes += entry.FileSize
	}
	if status.Sessions == nil {
		status.Sessions = []store.EntryInfo{}
	}
	return status, nil
}

func filterByYear(sessions []openf1.Session, year int) []openf1.Session {
	if year == 0 {
		return sessions
	}
	out := make([]openf1.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Year == year {
			out = append(out, s)
		}
	}
	return out
}

func sortSessionsDesc(sessions []openf1.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].DateStart.After(sessions[j].DateStart.Time)
	})
}
