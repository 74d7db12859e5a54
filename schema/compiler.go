package schema

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrTemplateNotFound is returned when no template matches a requested
// identifier, either in the registry or by directory scan.
var ErrTemplateNotFound = errors.New("template not found")

// templateGlob matches template documents under the schema root.
const templateGlob = "**/*.json"

// Compiler loads templates and compiles them into validation models.
// Compiled models and raw template content are cached per identifier for
// the process lifetime; the template set is small and static per run, so
// there is no eviction. Not safe for concurrent use.
type Compiler struct {
	schemaDir string
	logger    *slog.Logger

	// registry maps template id to file path. Seeded lazily by scan.
	registry map[string]string
	scanned  bool

	raw    map[string][]byte
	models map[string]*CompiledModel
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CompilerOption {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// WithRegistry seeds the identifier-to-path registry, bypassing the
// directory scan for the listed identifiers.
func WithRegistry(registry map[string]string) CompilerOption {
	return func(c *Compiler) {
		for id, path := range registry {
			c.registry[id] = path
		}
	}
}

// NewCompiler creates a template compiler rooted at schemaDir.
func NewCompiler(schemaDir string, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		schemaDir: schemaDir,
		logger:    slog.Default(),
		registry:  make(map[string]string),
		raw:       make(map[string][]byte),
		models:    make(map[string]*CompiledModel),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetModel returns the compiled model for a template identifier, loading
// and compiling it on first request. Unresolvable identifiers produce
// ErrTemplateNotFound, never a raw lookup failure.
func (c *Compiler) GetModel(templateID string) (*CompiledModel, error) {
	if model, ok := c.models[templateID]; ok {
		return model, nil
	}

	tmpl, err := c.loadTemplate(templateID)
	if err != nil {
		return nil, err
	}

	model := Compile(tmpl)
	c.models[templateID] = model
	c.logger.Debug("Compiled template model",
		"template_id", templateID,
		"fields", len(model.Rules()))
	return model, nil
}

// GetTemplate returns the parsed template for an identifier.
func (c *Compiler) GetTemplate(templateID string) (*Template, error) {
	data, err := c.rawContent(templateID)
	if err != nil {
		return nil, err
	}
	return ParseTemplate(data)
}

// KnownTemplates returns the identifiers visible to the compiler, sorted.
func (c *Compiler) KnownTemplates() []string {
	c.ensureScanned()
	ids := make([]string, 0, len(c.registry))
	for id := range c.registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reload clears all caches and the scanned registry so templates are
// re-read from disk on next request.
func (c *Compiler) Reload() {
	c.registry = make(map[string]string)
	c.raw = make(map[string][]byte)
	c.models = make(map[string]*CompiledModel)
	c.scanned = false
	c.logger.Debug("Template caches cleared", "schema_dir", c.schemaDir)
}

// loadTemplate resolves and parses a template by identifier.
func (c *Compiler) loadTemplate(templateID string) (*Template, error) {
	data, err := c.rawContent(templateID)
	if err != nil {
		return nil, err
	}
	tmpl, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", templateID, err)
	}
	return tmpl, nil
}

// rawContent returns the cached raw bytes for a template, resolving the
// file through the registry or, failing that, a full directory scan that
// matches each document's own declared $id.
func (c *Compiler) rawContent(templateID string) ([]byte, error) {
	if data, ok := c.raw[templateID]; ok {
		return data, nil
	}

	path, ok := c.registry[templateID]
	if !ok {
		c.ensureScanned()
		path, ok = c.registry[templateID]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (schema dir %s)", ErrTemplateNotFound, templateID, c.schemaDir)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", templateID, err)
	}
	c.raw[templateID] = data
	return data, nil
}

// ensureScanned walks the schema directory once, mapping each document's
// declared $id to its path.
func (c *Compiler) ensureScanned() {
	if c.scanned {
		return
	}
	c.scanned = true

	fsys := os.DirFS(c.schemaDir)
	matches, err := doublestar.Glob(fsys, templateGlob)
	if err != nil {
		c.logger.Warn("Schema directory scan failed",
			"schema_dir", c.schemaDir,
			"error", err)
		return
	}

	for _, rel := range matches {
		path := filepath.Join(c.schemaDir, filepath.FromSlash(rel))
		data, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn("Skipping unreadable template file", "path", path, "error", err)
			continue
		}
		tmpl, err := ParseTemplate(data)
		if err != nil {
			c.logger.Warn("Skipping invalid template file", "path", path, "error", err)
			continue
		}
		if existing, dup := c.registry[tmpl.ID]; dup && existing != path {
			c.logger.Warn("Duplicate template id, keeping first",
				"template_id", tmpl.ID,
				"kept", existing,
				"ignored", path)
			continue
		}
		c.registry[tmpl.ID] = path
	}

	c.logger.Debug("Scanned schema directory",
		"schema_dir", c.schemaDir,
		"templates", len(c.registry))
}
