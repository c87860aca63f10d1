package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	memoryDefaultTTL = 24 * time.Hour
	memorySweepEvery = 5 * time.Minute
	memoryMaxEntries = 1000
)

type memoryEntry struct {
	data     []byte
	expireAt time.Time
	usedAt   time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expireAt)
}

// MemoryCache is a process-local Service. Values are stored as JSON so
// Get can decode into any destination, the same contract Redis gives.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	sweeper *time.Ticker
}

func NewMemoryCache() *MemoryCache {
	mc := &MemoryCache{
		entries: make(map[string]*memoryEntry),
		sweeper: time.NewTicker(memorySweepEvery),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = memoryDefaultTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if len(mc.entries) >= memoryMaxEntries {
		mc.evictOldest()
	}
	now := time.Now()
	mc.entries[key] = &memoryEntry{data: data, expireAt: now.Add(expiration), usedAt: now}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	e, ok := mc.entries[key]
	if !ok || e.expired(time.Now()) {
		if ok {
			delete(mc.entries, key)
		}
		return ErrCacheMiss
	}
	e.usedAt = time.Now()
	return json.Unmarshal(e.data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.entries, key)
	}
	return nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if e, ok := mc.entries[key]; ok && !e.expired(now) {
		return false, nil
	}
	mc.entries[key] = &memoryEntry{data: []byte(`"locked"`), expireAt: now.Add(ttl), usedAt: now}
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// evictOldest drops the least recently used entry; caller holds mu.
func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, e := range mc.entries {
		if oldestKey == "" || e.usedAt.Before(oldest) {
			oldestKey = key
			oldest = e.usedAt
		}
	}
	if oldestKey != "" {
		delete(mc.entries, oldestKey)
	}
}

func (mc *MemoryCache) sweep() {
	for range mc.sweeper.C {
		now := time.Now()
		mc.mu.Lock()
		for key, e := range mc.entries {
			if e.expired(now) {
				delete(mc.entries, key)
			}
		}
		mc.mu.Unlock()
	}
}

// Close stops the expiry sweeper.
func (mc *MemoryCache) Close() error {
	mc.sweeper.Stop()
	return nil
}
