// cache.go implements the tiered decision cache in front of the policy
// engine. Tiers are consulted in order (process memory first, then the shared
// Redis tier when configured) and a hit in a lower tier is backfilled into the
// tiers above it. Entries carry a short TTL so rule changes take effect within
// one cache window without any invalidation protocol.
package policy

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheTier is one level of the decision cache. Implementations are
// best-effort: a tier that cannot answer reports a miss and never blocks the
// decision path on its own failures.
type CacheTier interface {
	Get(ctx context.Context, key string) (CheckResult, bool)
	Set(ctx context.Context, key string, result CheckResult, ttl time.Duration)
}

// memoryTier caps its entry count and sheds expired entries opportunistically
// on writes, so a burst of distinct subjects cannot grow it without bound.
const memoryTierMaxEntries = 10000

type memoryEntry struct {
	result    CheckResult
	expiresAt time.Time
}

// MemoryTier is the in-process cache tier.
type MemoryTier struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryTier creates an empty in-process tier.
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryTier) Get(_ context.Context, key string) (CheckResult, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return CheckResult{}, false
	}
	if m.now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return CheckResult{}, false
	}
	return entry.result, true
}

func (m *MemoryTier) Set(_ context.Context, key string, result CheckResult, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) >= memoryTierMaxEntries {
		now := m.now()
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		// Still full of live entries: drop the write rather than evict
		// entries that have not expired.
		if len(m.entries) >= memoryTierMaxEntries {
			return
		}
	}

	m.entries[key] = memoryEntry{result: result, expiresAt: m.now().Add(ttl)}
}

// RedisTier is the shared cache tier, letting multiple gateway instances
// reuse each other's policy decisions.
type RedisTier struct {
	client *redis.Client
	prefix string
}

// NewRedisTier wraps a Redis client as a cache tier. Keys are namespaced
// under the given prefix.
func NewRedisTier(client *redis.Client, prefix string) *RedisTier {
	if prefix == "" {
		prefix = "policy:decision:"
	}
	return &RedisTier{client: client, prefix: prefix}
}

func (r *RedisTier) Get(ctx context.Context, key string) (CheckResult, bool) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("policy cache redis get failed", "error", err)
		}
		return CheckResult{}, false
	}

	var result CheckResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return CheckResult{}, false
	}
	return result, true
}

func (r *RedisTier) Set(ctx context.Context, key string, result CheckResult, ttl time.Duration) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		slog.Debug("policy cache redis set failed", "error", err)
	}
}
