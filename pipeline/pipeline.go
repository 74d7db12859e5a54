package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/loomworks/canoncore/canon"
	"github.com/loomworks/canoncore/drift"
	"github.com/loomworks/canoncore/rules"
	"github.com/loomworks/canoncore/schema"
	"github.com/loomworks/canoncore/similarity"
	"github.com/loomworks/canoncore/store"
)

// semanticWarnThreshold is the similarity score above which an existing
// claim is surfaced as a potential conflict warning.
const semanticWarnThreshold = 0.5

// Pipeline orchestrates one validation pass per entity or response.
// Single-owner access assumed: one orchestrating call site at a time.
type Pipeline struct {
	compiler *schema.Compiler
	checker  *rules.Checker
	engine   *similarity.Engine
	detector *drift.Detector
	corpus   *store.CorpusCache
	cache    *resultCache
	logger   *slog.Logger

	// currentStep anchors topic-drift detection to the workflow step
	// the user is on.
	currentStep int

	// similarityTopN caps similar-claim matches; 0 means the engine
	// default.
	similarityTopN int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithCurrentStep sets the workflow step for topic-drift detection.
func WithCurrentStep(step int) Option {
	return func(p *Pipeline) {
		p.currentStep = step
	}
}

// WithSimilarityTopN caps the similar-claim matches the semantic layer
// requests per validation.
func WithSimilarityTopN(n int) Option {
	return func(p *Pipeline) {
		p.similarityTopN = n
	}
}

// New creates a validation pipeline over the given components.
func New(compiler *schema.Compiler, checker *rules.Checker, engine *similarity.Engine,
	detector *drift.Detector, corpus *store.CorpusCache, opts ...Option) *Pipeline {
	p := &Pipeline{
		compiler:    compiler,
		checker:     checker,
		engine:      engine,
		detector:    detector,
		corpus:      corpus,
		cache:       newResultCache(),
		logger:      slog.Default(),
		currentStep: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetCurrentStep moves the workflow step anchor.
func (p *Pipeline) SetCurrentStep(step int) {
	p.currentStep = step
}

// InvalidateCorpus drops the entity-corpus cache. Call after any
// external write so cross-reference checks see the new state.
func (p *Pipeline) InvalidateCorpus() {
	p.corpus.Invalidate()
}

// ValidateEntity runs the composite entity validation: schema, rules,
// and non-blocking semantic warnings. Identical (template, content)
// inputs within the bounded cache window return the cached result.
func (p *Pipeline) ValidateEntity(data map[string]any, templateID string) *ValidationResult {
	key := cacheKey(templateID, data)
	if cached := p.cache.get(key); cached != nil {
		p.logger.Debug("Validation result served from cache", "template_id", templateID)
		return cached
	}

	result := &ValidationResult{}
	entity := canon.FromMap(data, templateID)

	// Schema layer.
	result.Issues = append(result.Issues, p.schemaIssues(data, templateID)...)

	// Rule layer; runs regardless of schema outcome in the composite
	// check (the gated layering lives in CheckEntity).
	ruleRes := p.checker.CheckRules(entity)
	for _, msg := range ruleRes.Errors {
		result.Issues = append(result.Issues, Issue{
			Layer:    LayerRules,
			Severity: SeverityError,
			Message:  msg,
		})
	}

	// Semantic warnings are advisory and never block.
	matches, conflicts := p.semanticContext(entity)
	result.SimilarClaims = matches
	result.Conflicts = conflicts
	for _, m := range matches {
		if m.Score >= semanticWarnThreshold {
			result.Issues = append(result.Issues, Issue{
				Layer:    LayerSemantic,
				Severity: SeverityWarning,
				Message: fmt.Sprintf("New content closely resembles existing canon from %s: %q",
					m.Claim.EntityName, m.Claim.Text),
			})
		}
	}
	for _, c := range conflicts {
		result.Issues = append(result.Issues, Issue{
			Layer:    LayerSemantic,
			Severity: SeverityWarning,
			Message:  c.Message,
		})
	}

	// A display name is a baseline structural requirement regardless of
	// template.
	if entity.Name == "" {
		result.Issues = append(result.Issues, Issue{
			Layer:    LayerSchema,
			Severity: SeverityError,
			Message:  "Entity has no name or title",
			Field:    "name",
		})
	}

	result.Passed = result.ErrorCount() == 0
	result.NeedsRetry = !result.Passed
	result.HumanMessage = formatCompositeMessage(result)

	p.cache.put(key, result)
	return result
}

// schemaIssues validates data against the template model, converting
// schema errors and unresolvable templates into layered issues.
func (p *Pipeline) schemaIssues(data map[string]any, templateID string) []Issue {
	model, err := p.compiler.GetModel(templateID)
	if err != nil {
		msg := fmt.Sprintf("Template '%s' could not be loaded", templateID)
		if errors.Is(err, schema.ErrTemplateNotFound) {
			msg = fmt.Sprintf("No template named '%s' is known; check the template identifier", templateID)
		}
		return []Issue{{
			Layer:    LayerSchema,
			Severity: SeverityError,
			Message:  msg,
		}}
	}

	res := model.Validate(data)
	issues := make([]Issue, 0, len(res.Errors))
	for _, msg := range res.Errors {
		issues = append(issues, Issue{
			Layer:    LayerSchema,
			Severity: SeverityError,
			Message:  msg,
			Field:    extractFieldPath(msg),
		})
	}
	return issues
}

// ValidateResponse runs only the drift detector over free text.
// An empty response is an explicit failure, never a silent pass.
func (p *Pipeline) ValidateResponse(text string) *ValidationResult {
	result := &ValidationResult{}

	if text == "" {
		result.Issues = append(result.Issues, Issue{
			Layer:    LayerDrift,
			Severity: SeverityError,
			Message:  "Generation service returned an empty response",
		})
		result.NeedsRetry = true
		result.HumanMessage = "The response was empty. Nothing was changed."
		return result
	}

	flags := p.detector.Detect(text, p.currentStep)
	result.DriftFlags = flags
	result.Issues = fromDrift(flags)
	result.Passed = result.ErrorCount() == 0
	result.NeedsRetry = !result.Passed
	result.HumanMessage = formatDriftMessage(result)
	return result
}

// ValidateOptions validates the shape of an option payload and
// recursively validates any embedded template-tagged sub-documents,
// prefixing nested issue paths with the option index.
func (p *Pipeline) ValidateOptions(payload any) *ValidationResult {
	result := &ValidationResult{}

	flags := p.detector.DetectFormat(payload)
	result.DriftFlags = flags
	result.Issues = fromDrift(flags)

	options := optionList(payload)
	if len(options) == 0 && result.ErrorCount() == 0 {
		result.Issues = append(result.Issues, Issue{
			Layer:    LayerDrift,
			Severity: SeverityError,
			Message:  "At least one option is required",
		})
	}

	for i, item := range options {
		option, ok := item.(map[string]any)
		if !ok {
			continue
		}
		templateID, ok := option["template_id"].(string)
		if !ok || templateID == "" {
			continue
		}
		nested := p.ValidateEntity(optionEntityData(option), templateID)
		for _, issue := range nested.Issues {
			issue.Field = prefixField(i, issue.Field)
			result.Issues = append(result.Issues, issue)
		}
	}

	result.Passed = result.ErrorCount() == 0
	result.NeedsRetry = !result.Passed
	result.HumanMessage = formatDriftMessage(result)
	return result
}

func optionList(payload any) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		if opts, ok := v["options"].([]any); ok {
			return opts
		}
	}
	return nil
}

// optionEntityData strips the option envelope keys so only the embedded
// entity document is validated. A title doubles as the name when the
// option carries no explicit one.
func optionEntityData(option map[string]any) map[string]any {
	data := make(map[string]any, len(option))
	for k, v := range option {
		if k == "template_id" || k == "title" {
			continue
		}
		data[k] = v
	}
	if _, hasName := data["name"]; !hasName {
		if title, ok := option["title"].(string); ok && title != "" {
			data["name"] = title
		}
	}
	return data
}

func prefixField(index int, field string) string {
	if field == "" {
		return fmt.Sprintf("%d", index)
	}
	return fmt.Sprintf("%d.%s", index, field)
}

// semanticContext computes the similarity matches and keyword conflicts
// for an entity's claims. Failures degrade to empty context; the
// semantic layer never blocks on infrastructure.
func (p *Pipeline) semanticContext(entity *canon.Entity) ([]similarity.Match, []Conflict) {
	newClaims := claimTexts(entity)
	if len(newClaims) == 0 {
		return nil, nil
	}

	matches, err := p.engine.FindSimilar(newClaims, entity.Metadata.ID, p.similarityTopN)
	if err != nil {
		p.logger.Warn("Similarity analysis skipped", "entity", entity.Name, "error", err)
		return nil, nil
	}
	return matches, p.findConflicts(entity, newClaims)
}

// claimTexts gathers the entity's claim texts, synthesizing a domain
// declaration from the domain_primary field so field-only entities still
// participate in domain-conflict detection.
func claimTexts(entity *canon.Entity) []string {
	var texts []string
	for _, c := range entity.Claims {
		if c.Text != "" {
			texts = append(texts, c.Text)
		}
	}
	if domain := entity.StringField("domain_primary"); domain != "" {
		texts = append(texts, fmt.Sprintf("%s's primary domain is %s", entity.Name, domain))
	}
	return texts
}

// domainClaimPattern extracts the declared domain from claims like
// "Thalor's primary domain is storms".
var domainClaimPattern = regexp.MustCompile(`(?i)primary domain is ([a-z][a-z -]*[a-z]|[a-z])`)

// findConflicts detects keyword-level canon conflicts, currently the
// duplicate_domain rule: two distinct entities claiming the same primary
// domain.
func (p *Pipeline) findConflicts(entity *canon.Entity, newClaims []string) []Conflict {
	domains := make(map[string]bool)
	for _, text := range newClaims {
		for _, m := range domainClaimPattern.FindAllStringSubmatch(text, -1) {
			domains[normalizeDomain(m[1])] = true
		}
	}
	if len(domains) == 0 {
		return nil
	}

	existing, err := p.corpus.Claims()
	if err != nil {
		p.logger.Warn("Conflict detection skipped", "error", err)
		return nil
	}

	var conflicts []Conflict
	seen := make(map[string]bool)
	for _, claim := range existing {
		if claim.EntityID == entity.Metadata.ID {
			continue
		}
		for _, m := range domainClaimPattern.FindAllStringSubmatch(claim.Text, -1) {
			domain := normalizeDomain(m[1])
			if !domains[domain] || seen[claim.EntityID+":"+domain] {
				continue
			}
			seen[claim.EntityID+":"+domain] = true
			conflicts = append(conflicts, Conflict{
				Type:    "duplicate_domain",
				Message: fmt.Sprintf("%s and %s both claim the primary domain '%s'", entity.Name, claim.EntityName, domain),
				EntityA: entity.Name,
				EntityB: claim.EntityName,
			})
		}
	}
	return conflicts
}

func normalizeDomain(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Field-path extraction heuristics over schema error text.
var (
	quotedRequiredPattern = regexp.MustCompile(`^'([^']+)' is required`)
	dollarPathPattern     = regexp.MustCompile(`\$\.([A-Za-z0-9_.]+)`)
	fieldQuotePattern     = regexp.MustCompile(`Field '([^']+)'`)
)

// extractFieldPath pulls a field name out of a schema error sentence.
func extractFieldPath(msg string) string {
	if m := quotedRequiredPattern.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if m := dollarPathPattern.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if m := fieldQuotePattern.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}
