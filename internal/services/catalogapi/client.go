// Package catalogapi fetches the published catalog snapshot and its version marker.
package catalogapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/catalog"
)

const (
	userAgent       = "gokino/1.0"
	maxMarkerSize   = 1024
	maxSnapshotSize = 64 * 1024 * 1024 // 64MB
)

// Client wraps the catalog server's /data endpoints
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new catalog client. timeout bounds every request.
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("catalog URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog URL: %w", err)
	}

	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// FetchVersion returns the version marker of the published snapshot
func (c *Client) FetchVersion(ctx context.Context) (string, error) {
	body, err := c.get(ctx, catalog.MarkerFile, maxMarkerSize)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read version marker: %w", err)
	}

	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", fmt.Errorf("empty version marker")
	}
	return version, nil
}

// FetchSnapshot downloads and decodes the full snapshot
func (c *Client) FetchSnapshot(ctx context.Context) (*catalog.Snapshot, error) {
	body, err := c.get(ctx, catalog.DataFile, maxSnapshotSize)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	snapshot, err := catalog.Decode(body)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"version":   snapshot.Version,
		"showtimes": len(snapshot.ShowTimes),
	}).Debug("Snapshot downloaded")
	return snapshot, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}

func (c *Client) get(ctx context.Context, file string, limit int64) (io.ReadCloser, error) {
	target := c.baseURL.JoinPath("data", file).String()
	c.logger.WithField("url", target).Debug("Fetching catalog file")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("catalog server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return limitedBody{Reader: io.LimitReader(resp.Body, limit), Closer: resp.Body}, nil
}
