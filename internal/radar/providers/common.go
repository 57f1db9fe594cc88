package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// HTTPClientConfig bundles the HTTP client and per-call settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Timeout time.Duration
	Headers map[string]string
}

var (
	// ErrTransport covers network, DNS and timeout failures.
	ErrTransport = errors.New("transport failure")

	// ErrServer covers HTTP responses with status 400-599.
	ErrServer = errors.New("server failure")

	errNoHTTPClient = errors.New("http client not configured")
)

// StatusError carries the HTTP status of a failed response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d from %s", ErrServer, e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error {
	return ErrServer
}

// fetchBytes performs a single GET through the failure counter and returns
// the response body. Status codes 400-599 are failures even though the
// transport succeeded. There are no retries.
func fetchBytes(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	rawURL string,
	headers map[string]string,
) ([]byte, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}

	target, err := encodeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.Do(req)
		if execErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, execErr)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 600 {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: target}
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrTransport, readErr)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}

// encodeURL percent-encodes rawURL unless it is already encoded.
func encodeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", rawURL)
	}
	return u.String(), nil
}

// failureLogEvery controls how often a run of consecutive failures is logged.
const failureLogEvery = 5

// newBreaker returns a breaker that only counts failures. It never trips, so
// every request reaches the network regardless of earlier failures.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 1 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures%failureLogEvery == 0 {
				log.Printf("%s: %d consecutive failures (%d of %d requests in window)",
					name, counts.ConsecutiveFailures, counts.TotalFailures, counts.Requests)
			}
			return false
		},
	})
}
