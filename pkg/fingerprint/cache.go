package fingerprint

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Cache is the content-addressed result cache. Lookups and stores are safe
// under concurrent use; concurrent duplicate submissions race benignly and
// the last writer wins. Store failures are logged and swallowed: a broken
// cache degrades the pipeline to all-miss, it never fails a request.
type Cache struct {
	store Store
	ttl   time.Duration
	log   *slog.Logger
}

func NewCache(store Store, ttl time.Duration, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{store: store, ttl: ttl, log: log}
}

// Lookup returns the cached entry for fp, or a miss. Store errors, torn
// writes, and expired entries all read as misses; no error surfaces.
func (c *Cache) Lookup(ctx context.Context, fp Fingerprint) (*Entry, bool) {
	raw, found, err := c.store.Get(ctx, fp.Key())
	if err != nil {
		storeErrors.Inc()
		c.log.Warn("fingerprint.cache.get_error", "fp", fp.Short(), "error", err)
		cacheMisses.Inc()
		return nil, false
	}
	if !found {
		cacheMisses.Inc()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil || !entry.Complete() {
		// Torn or partial write; recompute rather than guess.
		c.log.Warn("fingerprint.cache.incomplete_entry", "fp", fp.Short())
		cacheMisses.Inc()
		return nil, false
	}

	cacheHits.Inc()
	c.log.Info("fingerprint.cache.hit", "fp", fp.Short(), "age", time.Since(entry.InsertedAt).Round(time.Second))
	return &entry, true
}

// Store writes the entry under fp with the cache TTL. Failures are logged
// and swallowed.
func (c *Cache) Store(ctx context.Context, fp Fingerprint, entry *Entry) {
	entry.InsertedAt = time.Now()
	raw, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn("fingerprint.cache.encode_error", "fp", fp.Short(), "error", err)
		return
	}
	if err := c.store.Set(ctx, fp.Key(), raw, c.ttl); err != nil {
		storeErrors.Inc()
		c.log.Warn("fingerprint.cache.set_error", "fp", fp.Short(), "error", err)
		return
	}
	c.log.Info("fingerprint.cache.stored", "fp", fp.Short(), "bytes", len(raw))
}
