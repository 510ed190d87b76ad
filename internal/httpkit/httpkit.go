// Package httpkit builds the HTTP clients errand uses to reach model
// providers.
//
// Clients carry no overall timeout: every model call already runs under
// the turn's per-call deadline, and a second clock here would only cut
// long completions short. What the client does bound is connection setup
// and the wait for response headers.
package httpkit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/nugget/errand/internal/buildinfo"
)

const (
	dialTimeout     = 10 * time.Second
	tlsTimeout      = 10 * time.Second
	idleConnTimeout = 90 * time.Second
	maxIdlePerHost  = 4

	// DefaultHeaderTimeout allows for a cold local model to load before
	// the first byte of the reply.
	DefaultHeaderTimeout = 2 * time.Minute

	drainLimit = 4 << 10
	errorLimit = 2 << 10
)

// Option adjusts a client built by NewClient.
type Option func(*options)

type options struct {
	headerTimeout time.Duration
	retries       int
	retryDelay    time.Duration
	logger        *slog.Logger
}

// HeaderTimeout bounds the wait between sending a request and receiving
// response headers.
func HeaderTimeout(d time.Duration) Option {
	return func(o *options) { o.headerTimeout = d }
}

// Retry resends a request up to n more times when the connection could
// not be established at all. Nothing has reached the server in that case,
// so a retried chat call cannot be applied twice.
func Retry(n int, delay time.Duration) Option {
	return func(o *options) {
		o.retries = n
		o.retryDelay = delay
	}
}

// Logger receives retry diagnostics.
func Logger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewClient returns a client for one model provider.
func NewClient(opts ...Option) *http.Client {
	o := options{headerTimeout: DefaultHeaderTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	var rt http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   tlsTimeout,
		ResponseHeaderTimeout: o.headerTimeout,
		IdleConnTimeout:       idleConnTimeout,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		ForceAttemptHTTP2:     true,
	}
	rt = agentHeader{next: rt, value: buildinfo.UserAgent()}
	if o.retries > 0 {
		rt = &redial{next: rt, retries: o.retries, delay: o.retryDelay, logger: o.logger}
	}
	return &http.Client{Transport: rt}
}

// agentHeader sets User-Agent when the caller has not.
type agentHeader struct {
	next  http.RoundTripper
	value string
}

func (a agentHeader) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return a.next.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", a.value)
	return a.next.RoundTrip(r)
}

// redial retries requests whose connection was refused or unroutable.
type redial struct {
	next    http.RoundTripper
	retries int
	delay   time.Duration
	logger  *slog.Logger
}

func (r *redial) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	rewindable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	for attempt := 1; attempt <= r.retries && notConnected(err) && rewindable; attempt++ {
		if r.logger != nil {
			r.logger.Debug("provider unreachable, retrying",
				"url", req.URL.Redacted(), "attempt", attempt, "error", err)
		}
		t := time.NewTimer(r.delay)
		select {
		case <-req.Context().Done():
			t.Stop()
			return nil, req.Context().Err()
		case <-t.C:
		}

		again := req.Clone(req.Context())
		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, fmt.Errorf("rewind request body: %w", berr)
			}
			again.Body = body
		}
		resp, err = r.next.RoundTrip(again)
		if err == nil && r.logger != nil {
			r.logger.Info("provider reachable after retry", "url", req.URL.Redacted(), "attempts", attempt+1)
		}
	}
	return resp, err
}

// notConnected reports whether err happened before a connection existed.
// A reset is not included: the server may already have acted on it.
func notConnected(err error) bool {
	return err != nil && (errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH))
}

// Close drains a bounded amount of rc so the connection can be reused,
// then closes it. A nil rc is ignored.
func Close(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, drainLimit))
	_ = rc.Close()
}

// ErrorText reads the start of an error response for logs and error
// messages, then closes rc.
func ErrorText(rc io.ReadCloser) string {
	if rc == nil {
		return ""
	}
	b, err := io.ReadAll(io.LimitReader(rc, errorLimit))
	Close(rc)
	if err != nil {
		return fmt.Sprintf("(unreadable error body: %v)", err)
	}
	return string(b)
}
