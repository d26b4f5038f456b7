package telemetry

import (
	"context"
	"io"
	"net/http"
	"time"
)

// FetchTransport is an http.RoundTripper that records an upstream fetch
// metric per request, labelled with the API name it was built for. The
// duration covers the full exchange including reading the body, so the
// metric is only emitted once the response body is closed.
type FetchTransport struct {
	api  string
	base http.RoundTripper
}

// NewFetchTransport wraps base with fetch metrics for the named API.
// A nil base falls back to http.DefaultTransport.
func NewFetchTransport(base http.RoundTripper, api string) *FetchTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &FetchTransport{api: api, base: base}
}

func (t *FetchTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		outcome := "error"
		if req.Context().Err() != nil {
			outcome = "canceled"
		}
		RecordUpstreamFetch(req.Context(), t.api, time.Since(start), 0, outcome)
		return nil, err
	}

	resp.Body = &meteredBody{
		ReadCloser: resp.Body,
		ctx:        req.Context(),
		api:        t.api,
		start:      start,
		outcome:    fetchOutcome(resp.StatusCode),
	}
	return resp, nil
}

// fetchOutcome buckets a response status for the outcome attribute.
func fetchOutcome(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "success"
	}
}

// meteredBody counts bytes as the caller drains the body and records
// the fetch on the first Close. Close may be called more than once.
type meteredBody struct {
	io.ReadCloser

	ctx     context.Context
	api     string
	start   time.Time
	outcome string
	bytes   int64
	done    bool
}

func (b *meteredBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.bytes += int64(n)
	return n, err
}

func (b *meteredBody) Close() error {
	if !b.done {
		b.done = true
		RecordUpstreamFetch(b.ctx, b.api, time.Since(b.start), b.bytes, b.outcome)
	}
	return b.ReadCloser.Close()
}
