package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// memoryKey namespaces stored entries by content type.
type memoryKey struct {
	contentType interfaces.ContentType
	id          interfaces.ContentID
}

// MemoryBackend implements an in-process storage backend. It backs
// single-node deployments and tests where persistence is not required.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[memoryKey][]byte
	name    string
	log     *slog.Logger
}

// NewMemoryBackend creates a new in-memory storage backend. The name
// distinguishes multiple instances in logs and multi-backend setups.
func NewMemoryBackend(name string, log *slog.Logger) *MemoryBackend {
	if name == "" {
		name = "default"
	}
	return &MemoryBackend{
		entries: make(map[memoryKey][]byte),
		name:    name,
		log:     log,
	}
}

// Fetch retrieves data by its content identifier and type.
// Returns ErrContentNotFound if the entry doesn't exist.
func (b *MemoryBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	b.mu.RLock()
	data, ok := b.entries[memoryKey{contentType, id}]
	b.mu.RUnlock()

	if !ok {
		return nil, interfaces.ErrContentNotFound
	}

	// Hand out a copy so callers cannot mutate the stored entry.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Store saves data and returns its content identifier.
// The identifier is the SHA-256 hash of the data.
func (b *MemoryBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	stored := make([]byte, len(data))
	copy(stored, data)

	b.mu.Lock()
	b.entries[memoryKey{contentType, id}] = stored
	b.mu.Unlock()

	b.log.Debug("Stored content in memory",
		slog.String("backend", b.name),
		slog.String("contentID", id.String()),
		slog.Int("size", len(data)))

	return id, nil
}

// Available always reports true for the in-process backend.
func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *MemoryBackend) Name() string {
	return fmt.Sprintf("memory-%s", b.name)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *MemoryBackend) LocationURI() string {
	return fmt.Sprintf("memory://%s", b.name)
}

// Len reports the number of stored entries.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
