// Package service decides, per request, whether to answer from the
// local cache or fetch from the upstream API, and shapes the results
// for the HTTP layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/singleflight"

	"github.com/trackside/f1radio-cache/openf1"
	"github.com/trackside/f1radio-cache/store"
)

// ErrNotFound indicates the requested entity does not exist upstream
// or in the cache.
var ErrNotFound = errors.New("not found")

const (
	defaultPerPage = 50
	maxPerPage     = 200

	defaultLatestLimit = 20
	maxLatestLimit     = 100
)

// Upstream is the slice of the OpenF1 client the coordinator needs.
type Upstream interface {
	Meetings(ctx context.Context, q openf1.MeetingsQuery) ([]openf1.Meeting, error)
	Sessions(ctx context.Context, q openf1.SessionsQuery) ([]openf1.Session, error)
	Drivers(ctx context.Context, sessionKey int) ([]openf1.Driver, error)
	TeamRadio(ctx context.Context, q openf1.RadioQuery) ([]openf1.RadioMessage, error)
	LatestSession(ctx context.Context) *openf1.Session
	SessionSummary(ctx context.Context, sessionKey int) (*openf1.SessionSummary, error)
}

// Cache is the slice of the store the coordinator needs.
type Cache interface {
	SaveRadios(ctx context.Context, sessionKey int, radios []openf1.RadioMessage) bool
	LoadRadios(ctx context.Context, sessionKey int) []openf1.RadioMessage
	SaveSessions(ctx context.Context, sessions []openf1.Session) bool
	LoadSessions(ctx context.Context) []openf1.Session
	Entries(ctx context.Context) ([]store.EntryInfo, error)
}

// Coordinator answers queries from cache when possible and falls back
// to the upstream API, writing fresh results back to the cache.
type Coordinator struct {
	upstream Upstream
	cache    Cache
	logger   *slog.Logger

	// collapses concurrent upstream fetches for the same key
	fetches singleflight.Group
}

// Option is a function that configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used by the coordinator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a coordinator over the given upstream client and cache.
func New(upstream Upstream, cache Cache, opts ...Option) *Coordinator {
	c := &Coordinator{
		upstream: upstream,
		cache:    cache,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionRadiosQuery describes a paged team radio lookup.
type SessionRadiosQuery struct {
	SessionKey   int
	DriverNumber int
	Page         int
	PerPage      int
	UseCache     bool
}

// SessionInfo is the compact session header attached to radio responses.
type SessionInfo struct {
	SessionKey  int            `json:"session_key"`
	SessionName string         `json:"session_name"`
	Location    string         `json:"location"`
	DateStart   openf1.UTCTime `json:"date_start"`
}

// RadioPage is one page of team radio messages.
type RadioPage struct {
	SessionKey  int                   `json:"session_key"`
	SessionInfo *SessionInfo          `json:"session_info,omitempty"`
	Radios      []openf1.RadioMessage `json:"radios"`
	Total       int                   `json:"total"`
	Page        int                   `json:"page"`
	PerPage     int                   `json:"per_page"`
	FromCache   bool                  `json:"-"`
}

// SyncResult reports the outcome of an explicit sync request.
type SyncResult struct {
	Message    string `json:"message"`
	SessionKey int    `json:"session_key"`
	RadioCount int    `json:"radio_count"`
	Action     string `json:"action"`
}

type fetchResult struct {
	radios []openf1.RadioMessage
	saved  bool
}

// fetchAndCacheRadios fetches the full radio list for a session from
// upstream and writes it back to the cache. Concurrent calls for the
// same session share one upstream request.
func (c *Coordinator) fetchAndCacheRadios(ctx context.Context, sessionKey int) ([]openf1.RadioMessage, bool, error) {
	v, err, _ := c.fetches.Do(fmt.Sprintf("radios/%d", sessionKey), func() (any, error) {
		radios, err := c.upstream.TeamRadio(ctx, openf1.RadioQuery{SessionKey: sessionKey})
		if err != nil {
			return nil, err
		}
		sortRadiosDesc(radios)
		saved := c.cache.SaveRadios(ctx, sessionKey, radios)
		if !saved {
			c.logger.Warn("serving radios without cache write", "session_key", sessionKey)
		}
		return fetchResult{radios: radios, saved: saved}, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("fetching team radio for session %d: %w", sessionKey, err)
	}
	res := v.(fetchResult)
	return res.radios, res.saved, nil
}

// SessionRadios returns a page of radio messages for a session,
// serving from cache when it holds messages and the query allows it.
func (c *Coordinator) SessionRadios(ctx context.Context, q SessionRadiosQuery) (*RadioPage, error) {
	page, perPage := normalizePage(q.Page, q.PerPage)

	var radios []openf1.RadioMessage
	fromCache := false

	if q.UseCache {
		if cached := c.cache.LoadRadios(ctx, q.SessionKey); len(cached) > 0 {
			radios = cached
			fromCache = true
		}
	}

	if !fromCache {
		fetched, _, err := c.fetchAndCacheRadios(ctx, q.SessionKey)
		if err != nil {
			return nil, err
		}
		radios = fetched
	}

	if q.DriverNumber > 0 {
		radios = filterByDriver(radios, q.DriverNumber)
	}

	total := len(radios)
	return &RadioPage{
		SessionKey: q.SessionKey,
		Radios:     paginate(radios, page, perPage),
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		FromCache:  fromCache,
	}, nil
}

// Sync ensures a session's radio messages are cached. With force set
// it always refetches. Unlike the read path, a failed cache write here
// is an error, since persisting is the whole point of the call.
func (c *Coordinator) Sync(ctx context.Context, sessionKey int, force bool) (*SyncResult, error) {
	if !force {
		if cached := c.cache.LoadRadios(ctx, sessionKey); len(cached) > 0 {
			return &SyncResult{
				Message:    fmt.Sprintf("session %d already cached", sessionKey),
				SessionKey: sessionKey,
				RadioCount: len(cached),
				Action:     "cache_used",
			}, nil
		}
	}

	radios, saved, err := c.fetchAndCacheRadios(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if !saved {
		return nil, fmt.Errorf("failed to persist radios for session %d", sessionKey)
	}

	return &SyncResult{
		Message:    fmt.Sprintf("synced session %d", sessionKey),
		SessionKey: sessionKey,
		RadioCount: len(radios),
		Action:     "synced",
	}, nil
}

// DriverRadiosQuery describes a driver-scoped radio lookup.
type DriverRadiosQuery struct {
	DriverNumber int
	SessionKey   int
	MeetingKey   int
	Page         int
	PerPage      int
}

// DriverRadios fetches one driver's radio messages straight from
// upstream, optionally narrowed by session or meeting. Driver-scoped
// results are partial views, so they are never read from or written to
// the cache.
func (c *Coordinator) DriverRadios(ctx context.Context, q DriverRadiosQuery) (*RadioPage, error) {
	page, perPage := normalizePage(q.Page, q.PerPage)

	radios, err := c.upstream.TeamRadio(ctx, openf1.RadioQuery{
		SessionKey:   q.SessionKey,
		DriverNumber: q.DriverNumber,
		MeetingKey:   q.MeetingKey,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching radios for driver %d: %w", q.DriverNumber, err)
	}

	sortRadiosDesc(radios)

	return &RadioPage{
		SessionKey: q.SessionKey,
		Radios:     paginate(radios, page, perPage),
		Total:      len(radios),
		Page:       page,
		PerPage:    perPage,
	}, nil
}

// LatestRadios returns up to limit radio messages from the most recent
// session, newest first.
func (c *Coordinator) LatestRadios(ctx context.Context, driverNumber, limit int) (*RadioPage, error) {
	if limit <= 0 {
		limit = defaultLatestLimit
	}
	if limit > maxLatestLimit {
		limit = maxLatestLimit
	}

	session := c.upstream.LatestSession(ctx)
	if session == nil {
		return nil, fmt.Errorf("no recent session: %w", ErrNotFound)
	}

	page, err := c.SessionRadios(ctx, SessionRadiosQuery{
		SessionKey:   session.SessionKey,
		DriverNumber: driverNumber,
		Page:         1,
		PerPage:      maxPerPage,
		UseCache:     true,
	})
	if err != nil {
		return nil, err
	}

	if len(page.Radios) > limit {
		page.Radios = page.Radios[:limit]
	}
	page.PerPage = limit
	page.SessionInfo = &SessionInfo{
		SessionKey:  session.SessionKey,
		SessionName: session.SessionName,
		Location:    session.Location,
		DateStart:   session.DateStart,
	}
	return page, nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// paginate slices out one page. Pages beyond the end are empty, never
// an error.
func paginate(radios []openf1.RadioMessage, page, perPage int) []openf1.RadioMessage {
	start := (page - 1) * perPage
	if start >= len(radios) {
		return []openf1.RadioMessage{}
	}
	end := start + perPage
	if end > len(radios) {
		end = len(radios)
	}
	return radios[start:end]
}

func filterByDriver(radios []openf1.RadioMessage, driverNumber int) []openf1.RadioMessage {
	out := make([]openf1.RadioMessage, 0, len(radios))
	for _, r := range radios {
		if r.DriverNumber == driverNumber {
			out = append(out, r)
		}
	}
	return out
}

func sortRadiosDesc(radios []openf1.RadioMessage) {
	sort.SliceStable(radios, func(i, j int) bool {
		return radios[i].Date.After(radios[j].Date.Time)
	})
}
