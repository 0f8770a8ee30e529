package cache

import (
	"context"
	"fmt"
	"time"
)

// ExactCacheKey identifies one cached reply. Hash is the sha256 of the
// normalized request (model + generation params + prompt).
type ExactCacheKey struct {
	ModelID   string
	VersionID string
	Hash      string
}

// String renders the key stored in Redis or the memory map:
// exact:<MODEL_ID>:<VERSION_ID>:<HASH_HEX>
func (k ExactCacheKey) String() string {
	return fmt.Sprintf("exact:%s:%s:%s", k.ModelID, k.VersionID, k.Hash)
}

// ExactCache stores generated replies by exact request key.
// Implemented by the memory cache (dev) and the Redis cache (prod).
type ExactCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
