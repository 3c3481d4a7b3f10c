// Package client calls the data, auth and push services over HTTP. Any
// non-200 answer comes back as a *StatusError carrying the upstream code
// unchanged.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// ErrMalformedResponse is returned when an upstream 200 body has the wrong shape.
var ErrMalformedResponse = errors.New("malformed upstream response")

// StatusError is a non-200 upstream answer.
type StatusError struct {
	Service string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s service answered %d %s", e.Service, e.Code, http.StatusText(e.Code))
}

// StatusCode returns the upstream status of err, if it carries one.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// Response is a raw upstream answer.
type Response struct {
	Status int
	Body   []byte
}

// Options tune a Client.
type Options struct {
	Timeout time.Duration
	// Trip the breaker once FailureRatio of at least MinRequests calls fail.
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// DefaultOptions mirrors the breaker settings used for the HTTP middleware.
func DefaultOptions() Options {
	return Options{
		Timeout:      10 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.8,
		OpenTimeout:  30 * time.Second,
	}
}

// Client sends requests to one upstream service through a circuit breaker.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func New(service, baseURL string, opts Options, log *zap.Logger) *Client {
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		log:     log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    service,
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < opts.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= opts.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// Do sends method to /seg1/seg2/... with body encoded as JSON when non-nil.
// Transport failures and an open breaker are returned as errors; every HTTP
// answer, whatever its status, is returned as a Response. Only transport
// failures count against the breaker.
func (c *Client) Do(ctx context.Context, method string, body any, segments ...string) (*Response, error) {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	target := c.baseURL + "/" + strings.Join(escaped, "/")

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s request body: %w", c.service, err)
		}
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, method, target, payload)
	})
	if err != nil {
		c.log.Error("upstream call failed",
			zap.String("service", c.service),
			zap.String("method", method),
			zap.String("operation", operation(segments)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w", method, c.service, err)
	}
	return out.(*Response), nil
}

// operation names a call in logs without its arguments, which may carry
// capability tokens.
func operation(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, redactURL(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := chimiddleware.GetReqID(ctx); id != "" {
		req.Header.Set(chimiddleware.RequestIDHeader, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, redactURL(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{Status: resp.StatusCode, Body: data}, nil
}

// redactURL drops the request URL from a *url.Error.
func redactURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

// expect turns a non-want status into a *StatusError.
func (c *Client) expect(resp *Response, want ...int) error {
	for _, w := range want {
		if resp.Status == w {
			return nil
		}
	}
	return &StatusError{Service: c.service, Code: resp.Status}
}
