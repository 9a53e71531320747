package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/agentcore/internal/storage"
)

// CacheKey computes the content-addressed prompt-cache key: SHA-256 of
// "<provider>:<model>:<prompt>". The same provider/model/prompt triple
// always yields the same key; a different prompt never collides in
// practice, and the cache never needs to distinguish anything else.
func CacheKey(providerID, model, prompt string) string {
	h := sha256.Sum256([]byte(providerID + ":" + model + ":" + prompt))
	return hex.EncodeToString(h[:])
}

// cacheRecord is the on-disk shape of a cached response: schema.Message's
// tool calls round-trip through JSON fine, so no separate encoding is
// needed beyond what storage.Storage already does.
type cacheRecord struct {
	Message      *schema.Message `json:"message"`
	InputTokens  int             `json:"inputTokens"`
	OutputTokens int             `json:"outputTokens"`
}

// Cache is the prompt cache: a content-addressed, immutable store of the
// last successful response for a given provider/model/prompt key. It is
// safe to delete any entry (or the whole directory) at any time; a miss
// simply falls through to a remote call.
type Cache struct {
	store *storage.Storage
}

// NewCache creates a Cache backed by a file-storage directory.
func NewCache(basePath string) *Cache {
	return &Cache{store: storage.New(basePath)}
}

// Get returns a previously cached response, if present. Errors other than
// "not found" are treated as a miss: a corrupt cache entry never blocks a
// call, it just forces a fresh remote round-trip.
func (c *Cache) Get(ctx context.Context, key string) (*ChatResponse, bool) {
	var rec cacheRecord
	if err := c.store.Get(ctx, []string{"llm-cache", key}, &rec); err != nil {
		return nil, false
	}
	return &ChatResponse{
		Message: rec.Message,
		Usage:   Usage{InputTokens: rec.InputTokens, OutputTokens: rec.OutputTokens},
	}, true
}

// Put stores a successful response under key. Errors are never cached:
// callers only invoke Put after a successful remote call.
func (c *Cache) Put(ctx context.Context, key string, resp *ChatResponse) error {
	if resp == nil || resp.Message == nil {
		return errors.New("cannot cache an empty response")
	}
	rec := cacheRecord{
		Message:      resp.Message,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	return c.store.Put(ctx, []string{"llm-cache", key}, rec)
}

// Delete removes a cached entry; the cache makes no promise about entry
// lifetime beyond content-addressing, so deletion is always safe.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, []string{"llm-cache", key})
}
