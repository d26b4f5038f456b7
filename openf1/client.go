package openf1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/trackside/f1radio-cache/telemetry"
)

const (
	// DefaultBaseURL is the default OpenF1 API base URL.
	DefaultBaseURL = "https://api.openf1.org/v1"

	// DefaultTimeout is the default timeout for upstream requests.
	DefaultTimeout = 30 * time.Second
)

// Upstream fetches F1 data from the OpenF1 API. It holds no persistent
// state beyond its HTTP connection pool.
type Upstream struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures an Upstream.
type Option func(*Upstream)

// WithBaseURL sets the upstream API base URL.
func WithBaseURL(u string) Option {
	return func(c *Upstream) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Upstream) {
		c.client = client
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Upstream) {
		c.logger = logger
	}
}

// NewUpstream creates a new OpenF1 API client.
func NewUpstream(opts ...Option) *Upstream {
	c := &Upstream{
		baseURL: DefaultBaseURL,
		client: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: telemetry.NewFetchTransport(nil, "openf1"),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a GET against one upstream resource and decodes the JSON
// array response into out.
func (c *Upstream) get(ctx context.Context, resource string, params url.Values, out any) error {
	reqURL := c.baseURL + "/" + resource
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upstream returned %d for %s: %s", resp.StatusCode, resource, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", resource, err)
	}
	return nil
}

// MeetingsQuery filters a meetings fetch. Zero values are omitted.
type MeetingsQuery struct {
	Year int
}

// Meetings fetches race weekends, optionally filtered by season year.
func (c *Upstream) Meetings(ctx context.Context, q MeetingsQuery) ([]Meeting, error) {
	params := url.Values{}
	setIntParam(params, "year", q.Year)

	var meetings []Meeting
	if err := c.get(ctx, "meetings", params, &meetings); err != nil {
		return nil, err
	}
	return meetings, nil
}

// SessionsQuery filters a sessions fetch. Zero values are omitted.
type SessionsQuery struct {
	MeetingKey  int
	SessionName string
	Year        int
}

// Sessions fetches track sessions, filtered server-side by whichever
// parameters are non-zero.
func (c *Upstream) Sessions(ctx context.Context, q SessionsQuery) ([]Session, error) {
	params := url.Values{}
	setIntParam(params, "meeting_key", q.MeetingKey)
	if q.SessionName != "" {
		params.Set("session_name", q.SessionName)
	}
	setIntParam(params, "year", q.Year)

	var sessions []Session
	if err := c.get(ctx, "sessions", params, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Drivers fetches competitor profiles. A zero sessionKey returns drivers
// across all sessions.
func (c *Upstream) Drivers(ctx context.Context, sessionKey int) ([]Driver, error) {
	params := url.Values{}
	setIntParam(params, "session_key", sessionKey)

	var drivers []Driver
	if err := c.get(ctx, "drivers", params, &drivers); err != nil {
		return nil, err
	}
	return drivers, nil
}

// RadioQuery filters a team-radio fetch. Zero values are omitted.
type RadioQuery struct {
	SessionKey   int
	DriverNumber int
	MeetingKey   int
}

// TeamRadio fetches team-radio transmissions. Timestamps are normalized
// to UTC on decode.
func (c *Upstream) TeamRadio(ctx context.Context, q RadioQuery) ([]RadioMessage, error) {
	params := url.Values{}
	setIntParam(params, "session_key", q.SessionKey)
	setIntParam(params, "driver_number", q.DriverNumber)
	setIntParam(params, "meeting_key", q.MeetingKey)

	var radios []RadioMessage
	if err := c.get(ctx, "team_radio", params, &radios); err != nil {
		return nil, err
	}
	return radios, nil
}

// LatestSession returns the session with the maximum start timestamp, or
// nil if the upstream has none. Fail-soft: any internal failure is logged
// and converted to nil rather than propagated, since "no latest session"
// is a valid business state.
//
// The lookup has no year or end-date bound, so the result may be a
// session that started long ago with nothing currently live. That is
// inherited behavior, kept on purpose.
func (c *Upstream) LatestSession(ctx context.Context) *Session {
	sessions, err := c.Sessions(ctx, SessionsQuery{})
	if err != nil {
		c.logger.Error("fetching sessions for latest lookup", "error", err)
		return nil
	}
	if len(sessions) == 0 {
		return nil
	}

	latest := sessions[0]
	for _, s := range sessions[1:] {
		if s.DateStart.After(latest.DateStart.Time) {
			latest = s
		}
	}
	return &latest
}

// SessionSummary fetches the session, its drivers, and its radios
// concurrently and assembles them once all three complete. The session
// field is nil when the key is unknown upstream.
func (c *Upstream) SessionSummary(ctx context.Context, sessionKey int) (*SessionSummary, error) {
	var (
		sessions []Session
		drivers  []Driver
		radios   []RadioMessage

		sessionsErr error
		driversErr  error
		radiosErr   error

		wg sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		sessions, sessionsErr = c.Sessions(ctx, SessionsQuery{})
	}()
	go func() {
		defer wg.Done()
		drivers, driversErr = c.Drivers(ctx, sessionKey)
	}()
	go func() {
		defer wg.Done()
		radios, radiosErr = c.TeamRadio(ctx, RadioQuery{SessionKey: sessionKey})
	}()
	wg.Wait()

	if err := errors.Join(sessionsErr, driversErr, radiosErr); err != nil {
		return nil, fmt.Errorf("assembling summary for session %d: %w", sessionKey, err)
	}

	var session *Session
	for i := range sessions {
		if sessions[i].SessionKey == sessionKey {
			session = &sessions[i]
			break
		}
	}

	withRadios := make(map[int]struct{})
	for _, r := range radios {
		if r.DriverNumber != 0 {
			withRadios[r.DriverNumber] = struct{}{}
		}
	}

	return &SessionSummary{
		Session:           session,
		Drivers:           drivers,
		Radios:            radios,
		RadioCount:        len(radios),
		DriversWithRadios: len(withRadios),
	}, nil
}

func setIntParam(params url.Values, name string, v int) {
	if v != 0 {
		params.Set(name, strconv.Itoa(v))
	}
}
