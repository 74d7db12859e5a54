package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loomworks/canoncore/canon"
)

// FSStore keeps entity documents as JSON files under a corpus root, one
// file per entity named <id>.json. It is the desktop app's on-disk store.
type FSStore struct {
	root   string
	logger *slog.Logger
}

// NewFSStore creates a filesystem store rooted at dir, creating it if
// needed.
func NewFSStore(dir string, logger *slog.Logger) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create corpus root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FSStore{root: dir, logger: logger}, nil
}

// Root returns the corpus root directory.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) entityPath(id string) string {
	return filepath.Join(s.root, id+".json")
}

// LoadEntity reads one document by identifier.
func (s *FSStore) LoadEntity(id string) (*canon.Entity, error) {
	data, err := os.ReadFile(s.entityPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load entity %s: %w", id, err)
	}

	var entity canon.Entity
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("parse entity %s: %w", id, err)
	}
	if entity.Metadata.ID == "" {
		entity.Metadata.ID = id
	}
	return &entity, nil
}

// ListEntities walks the corpus root and returns matching summaries,
// sorted by identifier. Unreadable or malformed documents are skipped
// with a warning rather than failing the listing.
func (s *FSStore) ListEntities(filter *Filter) ([]canon.Summary, error) {
	entities, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	var summaries []canon.Summary
	for _, e := range entities {
		summary := e.Summarize()
		if filter.Match(summary) {
			summaries = append(summaries, summary)
		}
	}
	return summaries, nil
}

// Search scans names, claim text, and stringable field values.
func (s *FSStore) Search(query string) ([]canon.Summary, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	entities, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	var matches []canon.Summary
	for _, e := range entities {
		if entityMatches(e, query) {
			matches = append(matches, e.Summarize())
		}
	}
	return matches, nil
}

// LoadAll returns every entity document in the corpus, sorted by id.
func (s *FSStore) LoadAll() ([]*canon.Entity, error) {
	return s.loadAll()
}

func (s *FSStore) loadAll() ([]*canon.Entity, error) {
	var entities []*canon.Entity
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		entity, loadErr := s.LoadEntity(relID(s.root, path, id))
		if loadErr != nil {
			s.logger.Warn("Skipping unreadable entity document", "path", path, "error", loadErr)
			return nil
		}
		entities = append(entities, entity)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus root: %w", err)
	}

	sort.Slice(entities, func(i, j int) bool {
		return entities[i].Metadata.ID < entities[j].Metadata.ID
	})
	return entities, nil
}

// relID maps a file path back to its entity identifier, preserving any
// subdirectory prefix (e.g. gods/thalor -> "gods/thalor").
func relID(root, path, base string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return base
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.ToSlash(rel)
}

// SaveEntity writes a document, stamping timestamps.
func (s *FSStore) SaveEntity(entity *canon.Entity) error {
	if err := entity.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if entity.Metadata.CreatedAt.IsZero() {
		entity.Metadata.CreatedAt = now
	}
	entity.Metadata.UpdatedAt = now

	path := s.entityPath(entity.Metadata.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create entity directory: %w", err)
	}

	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", entity.Metadata.ID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write entity %s: %w", entity.Metadata.ID, err)
	}
	return nil
}

// DeleteEntity removes a document. Deleting an absent entity is not an
// error.
func (s *FSStore) DeleteEntity(id string) error {
	err := os.Remove(s.entityPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete entity %s: %w", id, err)
	}
	return nil
}

func entityMatches(e *canon.Entity, query string) bool {
	if strings.Contains(strings.ToLower(e.Name), query) {
		return true
	}
	if strings.Contains(strings.ToLower(e.Notes), query) {
		return true
	}
	for _, c := range e.Claims {
		if strings.Contains(strings.ToLower(c.Text), query) {
			return true
		}
	}
	for _, v := range e.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), query) {
			return true
		}
	}
	return false
}
