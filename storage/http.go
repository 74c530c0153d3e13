package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// httpFetchLimit bounds response bodies to guard against runaway mirrors.
const httpFetchLimit = 64 * 1024 * 1024

// HTTPBackend implements a read-only storage backend over plain HTTP(S).
// It serves deployments that mirror encrypted content on a static file
// host. Objects live at baseURL/<type>/<content-id>, and every fetched
// body is re-hashed against the requested content ID.
type HTTPBackend struct {
	baseURL     string
	client      *http.Client
	log         *slog.Logger
	locationURI string
}

// NewHTTPBackend creates a new read-only HTTP storage backend rooted at baseURL.
func NewHTTPBackend(baseURL string, log *slog.Logger) *HTTPBackend {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &HTTPBackend{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
		locationURI: baseURL,
	}
}

// Fetch retrieves data over HTTP and verifies it against the content ID.
func (b *HTTPBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	url := b.getObjectURL(id, contentType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, interfaces.ErrContentNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status fetching content: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, httpFetchLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Verify the content hash matches what we requested
	if hash := interfaces.ComputeID(data); !hash.Equal(id) {
		b.log.Warn("Content hash mismatch",
			slog.String("expected", id.String()),
			slog.String("actual", hash.String()))
		return nil, fmt.Errorf("content hash mismatch")
	}

	b.log.Debug("Fetched content over HTTP",
		slog.String("url", url),
		slog.Int("size", len(data)))

	return data, nil
}

// Store is not implemented for this read-only backend.
func (b *HTTPBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	// Calculate the ID for compatibility with the interface
	id := interfaces.ComputeID(data)

	return id, interfaces.ErrReadOnlyBackend
}

// Available checks if the HTTP host is reachable.
func (b *HTTPBackend) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.baseURL+"/", nil)
	if err != nil {
		b.log.Debug("Failed to create request", "err", err)
		return false
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.log.Debug("HTTP backend unavailable", "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		b.log.Debug("HTTP backend unavailable",
			slog.String("status", resp.Status))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *HTTPBackend) Name() string {
	return fmt.Sprintf("http-%s", strings.TrimPrefix(strings.TrimPrefix(b.baseURL, "https://"), "http://"))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *HTTPBackend) LocationURI() string {
	return b.locationURI
}

// getObjectURL builds the object URL for a content ID and type.
func (b *HTTPBackend) getObjectURL(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return fmt.Sprintf("%s/%s/%s", b.baseURL, contentType.String(), id.String())
}
