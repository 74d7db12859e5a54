package store

import (
	"log/slog"
	"time"

	"github.com/loomworks/canoncore/canon"
)

// DefaultCorpusTTL bounds how long a loaded corpus is reused before the
// store is re-read.
const DefaultCorpusTTL = 30 * time.Second

// Loader is the subset of store capability the cache needs.
type Loader interface {
	LoadAll() ([]*canon.Entity, error)
}

// CorpusCache holds the full entity corpus behind a short TTL so repeated
// rule checks do not re-read the store every call. Callers that know a
// write happened must call Invalidate. Single-owner access assumed; not
// thread-safe by design.
type CorpusCache struct {
	loader Loader
	ttl    time.Duration
	logger *slog.Logger

	entities []*canon.Entity
	loadedAt time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewCorpusCache creates a cache over the loader. A non-positive ttl uses
// DefaultCorpusTTL.
func NewCorpusCache(loader Loader, ttl time.Duration, logger *slog.Logger) *CorpusCache {
	if ttl <= 0 {
		ttl = DefaultCorpusTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CorpusCache{
		loader: loader,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Corpus returns the cached corpus, reloading when the TTL has lapsed.
func (c *CorpusCache) Corpus() ([]*canon.Entity, error) {
	if c.entities != nil && c.now().Sub(c.loadedAt) < c.ttl {
		return c.entities, nil
	}

	entities, err := c.loader.LoadAll()
	if err != nil {
		return nil, err
	}
	c.entities = entities
	c.loadedAt = c.now()
	c.logger.Debug("Entity corpus reloaded", "entities", len(entities))
	return c.entities, nil
}

// Invalidate drops the cached corpus so the next read hits the store.
func (c *CorpusCache) Invalidate() {
	c.entities = nil
	c.loadedAt = time.Time{}
}

// IDs returns the set of known entity identifiers.
func (c *CorpusCache) IDs() (map[string]bool, error) {
	entities, err := c.Corpus()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(entities))
	for _, e := range entities {
		ids[e.Metadata.ID] = true
	}
	return ids, nil
}

// Entity returns one entity from the cached corpus, or nil.
func (c *CorpusCache) Entity(id string) (*canon.Entity, error) {
	entities, err := c.Corpus()
	if err != nil {
		return nil, err
	}
	for _, e := range entities {
		if e.Metadata.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

// Claims aggregates every canon claim in the corpus into the flat claim
// corpus the similarity engine scores against.
func (c *CorpusCache) Claims() ([]canon.OwnedClaim, error) {
	entities, err := c.Corpus()
	if err != nil {
		return nil, err
	}
	var claims []canon.OwnedClaim
	for _, e := range entities {
		claims = append(claims, e.OwnedClaims()...)
	}
	return claims, nil
}
