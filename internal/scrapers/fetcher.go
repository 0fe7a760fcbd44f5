package scrapers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	userAgent = "gokino/1.0"
	// Upper bound for a programme page or API document
	maxBodySize = 20 * 1024 * 1024
)

// ErrSourceUnavailable wraps network and HTTP failures of a source
var ErrSourceUnavailable = errors.New("source unavailable")

// Fetcher performs source HTTP requests with retries
type Fetcher struct {
	httpClient      *http.Client
	retries         int
	initialInterval time.Duration
	logger          *logrus.Logger
}

// NewFetcher creates a fetcher with a per-request timeout and a retry budget
func NewFetcher(timeout time.Duration, retries int, logger *logrus.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retries:         retries,
		initialInterval: 500 * time.Millisecond,
		logger:          logger,
	}
}

// Timeout returns the per-request timeout
func (f *Fetcher) Timeout() time.Duration {
	return f.httpClient.Timeout
}

// Retry runs op with exponential backoff. Errors wrapped by backoff.Permanent stop retrying.
func (f *Fetcher) Retry(ctx context.Context, target string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.initialInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err != nil && attempt <= f.retries {
			f.logger.WithError(err).WithFields(logrus.Fields{
				"url":     target,
				"attempt": attempt,
			}).Debug("Source request failed, retrying")
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(f.retries)), ctx))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, target, err)
	}
	return nil
}

// Get downloads the body of target
func (f *Fetcher) Get(ctx context.Context, target string) ([]byte, error) {
	var body []byte
	err := f.Retry(ctx, target, func() error {
		var err error
		body, err = f.get(ctx, target)
		return err
	})
	return body, err
}

// GetJSON downloads target and decodes it into v
func (f *Fetcher) GetJSON(ctx context.Context, target string, v interface{}) error {
	body, err := f.Get(ctx, target)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON from %s: %w", target, err)
	}
	return nil
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("unexpected status %d", resp.StatusCode)
		// Client errors other than 429 are not retried
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}
