// Package integration holds the HTTP clients for the services that own
// doctors, addresses, users, session types and timings.
package integration

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

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/tiny-steps/schedule-service/internal/appointment"
)

// errNotFound marks a 404 inside the breaker so it is not counted as a failure.
var errNotFound = errors.New("remote resource not found")

// client is a JSON-over-HTTP client guarded by a circuit breaker.
type client struct {
	name    string
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

func newClient(name, baseURL string, timeout time.Duration, log zerolog.Logger) *client {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 >= counts.Requests
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do runs one request through the breaker. out, when non-nil, receives the decoded body.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			buf, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			reader = bytes.NewReader(buf)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, errNotFound
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
		}
		return nil, nil
	})

	if err == nil || errors.Is(err, errNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s service: %v", appointment.ErrIntegration, c.name, err)
}

// exists treats any 2xx as present and 404 as absent.
func (c *client) exists(ctx context.Context, path string) (bool, error) {
	err := c.do(ctx, http.MethodGet, path, nil, nil, nil)
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	return err == nil, err
}

// getBool reads a bare JSON boolean. 404 reads as false.
func (c *client) getBool(ctx context.Context, path string, query url.Values) (bool, error) {
	var ok bool
	err := c.do(ctx, http.MethodGet, path, query, nil, &ok)
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ok, nil
}
