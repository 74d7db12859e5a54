// Package tools exposes the validation core to the generation service
// as a set of named tools. Every call returns a JSON payload; failures
// are structured error payloads, never panics or bare errors.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/loomworks/canoncore/canon"
	"github.com/loomworks/canoncore/graphquery"
	"github.com/loomworks/canoncore/pipeline"
	"github.com/loomworks/canoncore/schema"
	"github.com/loomworks/canoncore/store"
)

// defaultSearchLimit caps search and context listings.
const defaultSearchLimit = 20

// Definition describes a tool to the generation service.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Executor routes tool invocations to the validation core.
type Executor struct {
	compiler *schema.Compiler
	store    store.Store
	corpus   *store.CorpusCache
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor wires the tool layer over the core components.
func NewExecutor(compiler *schema.Compiler, st store.Store, corpus *store.CorpusCache, pipe *pipeline.Pipeline, opts ...Option) *Executor {
	e := &Executor{
		compiler: compiler,
		store:    st,
		corpus:   corpus,
		pipeline: pipe,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a named tool and returns its JSON payload. Unknown tool
// names and tool failures come back as structured error payloads.
func (e *Executor) Execute(ctx context.Context, name string, input map[string]any, currentStep int) string {
	e.logger.Debug("Tool invocation", "tool", name, "current_step", currentStep)

	var payload any
	var err error

	switch name {
	case "get_step_guidance":
		payload = e.getStepGuidance(input, currentStep)
	case "get_canon_context":
		payload, err = e.getCanonContext(input)
	case "generate_options":
		payload, err = e.generateOptions(input)
	case "validate_entity":
		payload, err = e.validateEntity(input)
	case "query_relationship_graph":
		payload, err = e.queryGraph(input)
	case "search_entities":
		payload, err = e.searchEntities(input)
	default:
		return errorPayload(name, fmt.Sprintf("unknown tool: %s", name))
	}

	if err != nil {
		e.logger.Warn("Tool failed", "tool", name, "error", err)
		return errorPayload(name, err.Error())
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return errorPayload(name, fmt.Sprintf("encode result: %v", err))
	}
	return string(out)
}

// Definitions lists the tools offered to the generation service.
func (e *Executor) Definitions() []Definition {
	return []Definition{
		{
			Name:        "get_step_guidance",
			Description: "Get guidance for a worldbuilding step. Without a step argument, returns guidance for the current step.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"step": map[string]any{
						"type":        "integer",
						"description": "Step number to fetch. Defaults to the current step.",
					},
				},
			},
		},
		{
			Name:        "get_canon_context",
			Description: "Get established canon relevant to a query: entity summaries and their canon claims. Use this before inventing new lore.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Keyword filter over names, claims, and fields. Empty returns the most recent entities.",
					},
					"entity_type": map[string]any{
						"type":        "string",
						"description": "Restrict to one entity type (god, settlement, species, ...).",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum entities to return (default 20).",
					},
				},
			},
		},
		{
			Name:        "generate_options",
			Description: "Get the constraints for generating option candidates for a template: declared fields, required set, enum values, and existing entity names to avoid duplicating.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"template_id": map[string]any{
						"type":        "string",
						"description": "Template identifier to generate against.",
					},
					"count": map[string]any{
						"type":        "integer",
						"description": "Number of options requested (default 3).",
					},
				},
				"required": []string{"template_id"},
			},
		},
		{
			Name:        "validate_entity",
			Description: "Run the full three-layer validation over a stored entity by ID. Returns layer reports and a human-readable summary.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"entity_id": map[string]any{
						"type":        "string",
						"description": "Identifier of the stored entity to validate.",
					},
				},
				"required": []string{"entity_id"},
			},
		},
		{
			Name:        "query_relationship_graph",
			Description: "Query the entity relationship graph. Operations: neighbors, path, orphans, stats, related.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"operation": map[string]any{
						"type": "string",
						"enum": []string{"neighbors", "path", "orphans", "stats", "related"},
					},
					"id": map[string]any{
						"type":        "string",
						"description": "Entity ID for neighbors/related.",
					},
					"from": map[string]any{
						"type":        "string",
						"description": "Path start entity ID.",
					},
					"to": map[string]any{
						"type":        "string",
						"description": "Path end entity ID.",
					},
					"depth": map[string]any{
						"type":        "integer",
						"description": "Maximum hops for related (default 2).",
					},
				},
				"required": []string{"operation"},
			},
		},
		{
			Name:        "search_entities",
			Description: "Keyword search over entity names, claims, and field values.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Search text.",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum results (default 20).",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

func (e *Executor) getStepGuidance(input map[string]any, currentStep int) any {
	step := intArg(input, "step", currentStep)
	g := guidanceFor(step)
	return map[string]any{
		"step":         g.Step,
		"title":        g.Title,
		"guidance":     g.Guidance,
		"current_step": currentStep,
	}
}

// canonContextEntry is one entity's contribution to the context payload.
type canonContextEntry struct {
	Summary canon.Summary `json:"summary"`
	Claims  []string      `json:"claims,omitempty"`
}

func (e *Executor) getCanonContext(input map[string]any) (any, error) {
	query := stringArg(input, "query")
	entityType := stringArg(input, "entity_type")
	limit := intArg(input, "limit", defaultSearchLimit)

	var summaries []canon.Summary
	var err error
	if query != "" {
		summaries, err = e.store.Search(query)
	} else {
		summaries, err = e.store.ListEntities(&store.Filter{EntityType: entityType})
	}
	if err != nil {
		return nil, fmt.Errorf("list canon: %w", err)
	}

	entries := make([]canonContextEntry, 0, len(summaries))
	for _, s := range summaries {
		if entityType != "" && s.EntityType != entityType {
			continue
		}
		if len(entries) >= limit {
			break
		}
		entry := canonContextEntry{Summary: s}
		if entity, loadErr := e.corpus.Entity(s.ID); loadErr == nil && entity != nil {
			for _, claim := range entity.OwnedClaims() {
				entry.Claims = append(entry.Claims, claim.Text)
			}
		}
		entries = append(entries, entry)
	}

	return map[string]any{
		"entities": entries,
		"total":    len(entries),
	}, nil
}

func (e *Executor) generateOptions(input map[string]any) (any, error) {
	templateID := stringArg(input, "template_id")
	if templateID == "" {
		return nil, errors.New("template_id is required")
	}
	count := intArg(input, "count", 3)

	model, err := e.compiler.GetModel(templateID)
	if err != nil {
		if errors.Is(err, schema.ErrTemplateNotFound) {
			return nil, fmt.Errorf("no template named '%s' is known", templateID)
		}
		return nil, err
	}

	// Existing names let the generator avoid duplicates up front.
	var existing []string
	if summaries, listErr := e.store.ListEntities(&store.Filter{TemplateID: templateID}); listErr == nil {
		for _, s := range summaries {
			existing = append(existing, s.Name)
		}
		sort.Strings(existing)
	}

	return map[string]any{
		"template_id":    templateID,
		"title":          model.Title,
		"count":          count,
		"constraints":    model.ConstraintHints(),
		"defaults":       model.Defaults(),
		"existing_names": existing,
	}, nil
}

func (e *Executor) validateEntity(input map[string]any) (any, error) {
	id := stringArg(input, "entity_id")
	if id == "" {
		return nil, errors.New("entity_id is required")
	}

	entity, err := e.store.LoadEntity(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("no entity with id '%s' exists", id)
		}
		return nil, fmt.Errorf("load entity: %w", err)
	}

	return e.pipeline.CheckEntity(entity), nil
}

func (e *Executor) queryGraph(input map[string]any) (any, error) {
	operation := stringArg(input, "operation")

	entities, err := e.corpus.Corpus()
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	graph := graphquery.Build(entities)

	switch operation {
	case "neighbors":
		id := stringArg(input, "id")
		if id == "" {
			return nil, errors.New("id is required for neighbors")
		}
		return map[string]any{"id": id, "neighbors": graph.Neighbors(id)}, nil
	case "path":
		from, to := stringArg(input, "from"), stringArg(input, "to")
		if from == "" || to == "" {
			return nil, errors.New("from and to are required for path")
		}
		path := graph.Path(from, to)
		return map[string]any{"from": from, "to": to, "path": path, "found": path != nil}, nil
	case "orphans":
		return map[string]any{"orphans": graph.Orphans()}, nil
	case "stats":
		return graph.ComputeStats(), nil
	case "related":
		id := stringArg(input, "id")
		if id == "" {
			return nil, errors.New("id is required for related")
		}
		depth := intArg(input, "depth", 2)
		return map[string]any{"id": id, "depth": depth, "related": graph.Related(id, depth)}, nil
	default:
		return nil, fmt.Errorf("unknown graph operation: %s", operation)
	}
}

func (e *Executor) searchEntities(input map[string]any) (any, error) {
	query := stringArg(input, "query")
	if query == "" {
		return nil, errors.New("query is required")
	}
	limit := intArg(input, "limit", defaultSearchLimit)

	summaries, err := e.store.Search(query)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}

	return map[string]any{
		"query":   query,
		"results": summaries,
		"total":   len(summaries),
	}, nil
}

// errorPayload builds the structured error JSON contract.
func errorPayload(tool, message string) string {
	out, _ := json.Marshal(map[string]any{
		"error": message,
		"tool":  tool,
	})
	return string(out)
}

func stringArg(input map[string]any, key string) string {
	if s, ok := input[key].(string); ok {
		return s
	}
	return ""
}

func intArg(input map[string]any, key string, fallback int) int {
	switch v := input[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}
