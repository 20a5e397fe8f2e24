package cas

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"pvchain/internal/errs"
)

// MemoryClient is the in-process storage backend used by tests and mock
// mode. It applies the same content addressing as the real client.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryClient creates an empty in-memory store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string][]byte)}
}

func (c *MemoryClient) Put(ctx context.Context, data []byte, meta Metadata) (string, error) {
	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[ref]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		c.objects[ref] = stored
	}
	return ref, nil
}

func (c *MemoryClient) Get(ctx context.Context, ref string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.objects[ref]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "cas.get", "no object for reference "+ref)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (c *MemoryClient) Close() error { return nil }

// Len reports the number of distinct objects stored.
func (c *MemoryClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}

var _ Client = (*MemoryClient)(nil)
