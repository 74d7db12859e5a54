package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// resultCacheSize bounds the validation-result cache.
const resultCacheSize = 64

// resultCache is a bounded FIFO cache of validation results keyed by
// (template id, content hash). Oldest inserted key is evicted first once
// full. The key deliberately omits corpus state and current step, so a
// corpus change between two identical calls can return a stale result;
// this mirrors the upstream behavior and is documented rather than fixed.
// Single-owner access assumed; not thread-safe by design.
type resultCache struct {
	entries map[string]*ValidationResult
	order   []string
}

func newResultCache() *resultCache {
	return &resultCache{
		entries: make(map[string]*ValidationResult, resultCacheSize),
	}
}

// cacheKey computes a stable, field-order-independent key for the input.
// encoding/json sorts map keys, so two maps with the same content hash
// identically regardless of insertion order.
func cacheKey(templateID string, data map[string]any) string {
	encoded, err := json.Marshal(data)
	if err != nil {
		// Unencodable input never caches; make the key unique.
		return fmt.Sprintf("%s:uncacheable:%p", templateID, &data)
	}
	sum := sha256.Sum256(encoded)
	return templateID + ":" + hex.EncodeToString(sum[:])
}

func (c *resultCache) get(key string) *ValidationResult {
	return c.entries[key]
}

func (c *resultCache) put(key string, result *ValidationResult) {
	if _, exists := c.entries[key]; exists {
		c.entries[key] = result
		return
	}
	if len(c.order) >= resultCacheSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = result
	c.order = append(c.order, key)
}

func (c *resultCache) len() int {
	return len(c.entries)
}
