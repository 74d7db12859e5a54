package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loomworks/canoncore/canon"
	"github.com/loomworks/canoncore/drift"
	"github.com/loomworks/canoncore/rules"
	"github.com/loomworks/canoncore/schema"
	"github.com/loomworks/canoncore/similarity"
	"github.com/loomworks/canoncore/store"
)

// newTestPipeline wires a full pipeline over temp storage and returns
// the store for seeding.
func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, *store.FSStore) {
	t.Helper()

	schemaDir := t.TempDir()
	templates := map[string]string{
		"god.json": `{
			"$id": "god-profile",
			"title": "God",
			"required": ["domain_primary", "alignment", "symbol", "relationships", "pantheon_id"],
			"fields": [
				{"name": "domain_primary", "kind": "string"},
				{"name": "alignment", "kind": "enum", "values": ["good", "neutral", "evil"]},
				{"name": "alignment_nuance", "kind": "string"},
				{"name": "symbol", "kind": "string"},
				{"name": "lifespan", "kind": "string"},
				{"name": "relationships", "kind": "array", "items": "object"},
				{"name": "pantheon_id", "kind": "string", "ref_kind": "pantheon"}
			]
		}`,
		"settlement.json": `{
			"$id": "settlement-profile",
			"title": "Settlement",
			"fields": [
				{"name": "population", "kind": "integer"},
				{"name": "founded", "kind": "integer"},
				{"name": "dissolved", "kind": "integer"}
			]
		}`,
	}
	for file, doc := range templates {
		if err := os.WriteFile(filepath.Join(schemaDir, file), []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	fsStore, err := store.NewFSStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	compiler := schema.NewCompiler(schemaDir)
	corpus := store.NewCorpusCache(fsStore, time.Hour, nil)
	checker := rules.NewChecker(compiler, corpus, nil)
	engine := similarity.NewEngine(corpus, nil)
	detector := drift.NewDetector(corpus, nil)
	return New(compiler, checker, engine, detector, corpus, opts...), fsStore
}

func validGodData() map[string]any {
	return map[string]any{
		"id":             "god-thalor",
		"name":           "Thalor",
		"domain_primary": "storms",
		"alignment":      "neutral",
		"symbol":         "a forked bolt",
		"relationships":  []any{},
		"pantheon_id":    "god-thalor",
	}
}

func TestValidateEntityMissingRequiredFields(t *testing.T) {
	p, _ := newTestPipeline(t)

	res := p.ValidateEntity(map[string]any{"name": "Empty God"}, "god-profile")
	if res.Passed {
		t.Fatal("expected failure")
	}
	if !res.NeedsRetry {
		t.Error("failure must request retry")
	}

	// One human-readable error per missing field, with the field name
	// extracted for structured consumers.
	missing := map[string]bool{}
	for _, issue := range res.Issues {
		if issue.Layer == LayerSchema && issue.Severity == SeverityError {
			missing[issue.Field] = true
			if strings.Contains(issue.Message, "goroutine") {
				t.Errorf("traceback leaked: %q", issue.Message)
			}
		}
	}
	for _, field := range []string{"domain_primary", "alignment", "symbol", "relationships", "pantheon_id"} {
		if !missing[field] {
			t.Errorf("no schema error attributed to field %s (got %v)", field, missing)
		}
	}
}

func TestValidateEntityMissingName(t *testing.T) {
	p, _ := newTestPipeline(t)
	data := validGodData()
	delete(data, "name")

	res := p.ValidateEntity(data, "god-profile")
	if res.Passed {
		t.Fatal("missing name must always fail")
	}
	found := false
	for _, issue := range res.Issues {
		if issue.Field == "name" && issue.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("expected baseline name error, got %v", res.Issues)
	}
}

func TestValidateEntityUnknownTemplate(t *testing.T) {
	p, _ := newTestPipeline(t)
	res := p.ValidateEntity(validGodData(), "no-such-template")
	if res.Passed {
		t.Fatal("unknown template must fail")
	}
	if !strings.Contains(res.Issues[0].Message, "no-such-template") {
		t.Errorf("expected a human explanation naming the template, got %q", res.Issues[0].Message)
	}
}

func TestValidateEntityCacheIdempotence(t *testing.T) {
	p, _ := newTestPipeline(t)

	first := p.ValidateEntity(validGodData(), "god-profile")
	second := p.ValidateEntity(validGodData(), "god-profile")
	if first != second {
		t.Error("identical input within the cache window must return the cached result")
	}

	// Field order must not matter: cacheKey is content-based. Same
	// entries as validGodData, listed in a different order.
	reordered := map[string]any{
		"pantheon_id":    "god-thalor",
		"relationships":  []any{},
		"symbol":         "a forked bolt",
		"alignment":      "neutral",
		"domain_primary": "storms",
		"name":           "Thalor",
		"id":             "god-thalor",
	}
	third := p.ValidateEntity(reordered, "god-profile")
	if third != first {
		t.Error("cache key must be order-independent")
	}
}

func TestValidationResultCacheBound(t *testing.T) {
	p, _ := newTestPipeline(t)

	for i := 0; i < resultCacheSize*2; i++ {
		data := validGodData()
		data["symbol"] = fmt.Sprintf("symbol-%d", i)
		p.ValidateEntity(data, "god-profile")
	}
	if p.cache.len() > resultCacheSize {
		t.Errorf("cache holds %d entries, bound is %d", p.cache.len(), resultCacheSize)
	}

	// Oldest entry was evicted: revalidating it misses the cache and
	// produces a fresh result value.
	data := validGodData()
	data["symbol"] = "symbol-0"
	fresh := p.ValidateEntity(data, "god-profile")
	if fresh == nil || !fresh.Passed {
		t.Error("revalidation after eviction must still pass")
	}
}

func TestDuplicateDomainConflict(t *testing.T) {
	p, fsStore := newTestPipeline(t)

	existing := &canon.Entity{
		Metadata: canon.Metadata{ID: "god-varn", TemplateID: "god-profile"},
		Name:     "Varn",
		Claims:   []canon.Claim{{Text: "Varn's primary domain is storms"}},
	}
	if err := fsStore.SaveEntity(existing); err != nil {
		t.Fatal(err)
	}

	entity := &canon.Entity{
		Metadata: canon.Metadata{ID: "god-thalor", TemplateID: "god-profile"},
		Name:     "Thalor",
		Fields: map[string]any{
			"domain_primary": "storms",
			"alignment":      "neutral",
			"symbol":         "bolt",
			"pantheon_id":    "god-thalor",
		},
		Claims: []canon.Claim{{Text: "Thalor's primary domain is storms"}},
	}

	res := p.CheckEntity(entity)
	if !res.Passed {
		t.Fatalf("structural layers should pass: %+v", res)
	}
	found := false
	for _, c := range res.Conflicts {
		if c.Type == "duplicate_domain" &&
			strings.Contains(c.Message, "Thalor") && strings.Contains(c.Message, "Varn") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected duplicate_domain conflict naming both entities, got %+v", res.Conflicts)
	}
	if !res.NeedsLLMReview || res.ReviewPrompt == "" {
		t.Error("conflicts must request deep review with a prompt attached")
	}
}

func TestSimilarityTopNCap(t *testing.T) {
	p, fsStore := newTestPipeline(t, WithSimilarityTopN(1))

	for _, id := range []string{"god-varn", "god-selu"} {
		existing := &canon.Entity{
			Metadata: canon.Metadata{ID: id, TemplateID: "god-profile"},
			Name:     id,
			Claims:   []canon.Claim{{Text: "The storm god rules the western coast"}},
		}
		if err := fsStore.SaveEntity(existing); err != nil {
			t.Fatal(err)
		}
	}

	entity := &canon.Entity{
		Metadata: canon.Metadata{ID: "god-thalor", TemplateID: "god-profile"},
		Name:     "Thalor",
		Fields: map[string]any{
			"domain_primary": "storms",
			"alignment":      "neutral",
			"symbol":         "bolt",
			"pantheon_id":    "god-thalor",
		},
		Claims: []canon.Claim{{Text: "The storm god rules the western coast"}},
	}

	res := p.CheckEntity(entity)
	if !res.Passed {
		t.Fatalf("structural layers should pass: %+v", res)
	}
	// Both existing claims overlap, but the configured cap keeps one.
	if len(res.SimilarClaims) != 1 {
		t.Errorf("similar claims = %d, want 1 (capped)", len(res.SimilarClaims))
	}
}

func TestCheckEntityLayerGating(t *testing.T) {
	p, _ := newTestPipeline(t)

	// Layer 1 failure: rules and semantic must report skipped.
	broken := &canon.Entity{
		Metadata: canon.Metadata{ID: "god-x", TemplateID: "god-profile"},
		Name:     "Xel",
		Fields:   map[string]any{"alignment": "chaotic"},
	}
	res := p.CheckEntity(broken)
	if res.Passed {
		t.Fatal("schema failure must fail the full check")
	}
	if res.Schema.Status != LayerFailed {
		t.Errorf("schema status = %s", res.Schema.Status)
	}
	if res.Rules.Status != LayerSkipped || res.Semantic.Status != LayerSkipped {
		t.Errorf("downstream layers must be skipped, got rules=%s semantic=%s",
			res.Rules.Status, res.Semantic.Status)
	}
	if !strings.Contains(res.HumanMessage, "data structure") {
		t.Errorf("layer-1 guidance must emphasize data structure: %q", res.HumanMessage)
	}
	if !strings.Contains(res.HumanMessage, "Nothing was changed") {
		t.Errorf("failure message must carry the nothing-changed assurance: %q", res.HumanMessage)
	}
}

func TestCheckEntityRuleLayerGating(t *testing.T) {
	p, _ := newTestPipeline(t)

	entity := &canon.Entity{
		Metadata: canon.Metadata{ID: "town-bad", TemplateID: "settlement-profile"},
		Name:     "Bad Settlement",
		Fields:   map[string]any{"population": float64(-500)},
	}
	res := p.CheckEntity(entity)
	if res.Passed {
		t.Fatal("rule failure must fail the full check")
	}
	if res.Schema.Status != LayerPassed || res.Rules.Status != LayerFailed {
		t.Errorf("expected schema pass + rules fail, got %s/%s", res.Schema.Status, res.Rules.Status)
	}
	if res.Semantic.Status != LayerSkipped {
		t.Errorf("semantic layer must be skipped, got %s", res.Semantic.Status)
	}
	if !strings.Contains(res.HumanMessage, "OPTIONS") {
		t.Errorf("layer-2 guidance must offer remediation options: %q", res.HumanMessage)
	}
}

func TestCheckEntitySeesFreshCorpus(t *testing.T) {
	p, fsStore := newTestPipeline(t)

	entity := &canon.Entity{
		Metadata: canon.Metadata{ID: "god-thalor", TemplateID: "god-profile"},
		Name:     "Thalor",
		Fields: map[string]any{
			"domain_primary": "storms",
			"alignment":      "neutral",
			"symbol":         "bolt",
			"pantheon_id":    "pantheon-aesir",
		},
	}

	// Reference target does not exist yet.
	if res := p.CheckEntity(entity); res.Passed {
		t.Fatal("expected rule failure for unknown pantheon")
	}

	// Write the target; the full check must see it without an explicit
	// invalidation call.
	pantheon := &canon.Entity{
		Metadata: canon.Metadata{ID: "pantheon-aesir", TemplateID: "settlement-profile"},
		Name:     "The Aesir",
	}
	if err := fsStore.SaveEntity(pantheon); err != nil {
		t.Fatal(err)
	}
	if res := p.CheckEntity(entity); !res.Passed {
		t.Errorf("expected pass after target written, got %q", res.HumanMessage)
	}
}

func TestValidateResponse(t *testing.T) {
	p, _ := newTestPipeline(t)

	empty := p.ValidateResponse("")
	if empty.Passed || !empty.NeedsRetry {
		t.Error("empty response must fail and request retry")
	}

	fine := p.ValidateResponse("The storm god rules the western coast.")
	if !fine.Passed {
		t.Errorf("plain response should pass, got %v", fine.Issues)
	}

	// Drift warnings do not block.
	drifty := p.ValidateResponse("We will cover pantheon politics in step 9.")
	if !drifty.Passed {
		t.Errorf("warning-only drift must not block, got %v", drifty.Issues)
	}
	if len(drifty.Issues) == 0 {
		t.Error("expected a topic-drift warning")
	}
}

func TestValidateOptions(t *testing.T) {
	p, _ := newTestPipeline(t)

	empty := p.ValidateOptions([]any{})
	if empty.Passed {
		t.Error("empty options payload must fail")
	}

	malformed := p.ValidateOptions([]any{"not an object"})
	if malformed.Passed {
		t.Error("non-object option must fail")
	}

	ok := p.ValidateOptions([]any{map[string]any{"title": "A quiet fishing town"}})
	if !ok.Passed {
		t.Errorf("plain option should pass, got %v", ok.Issues)
	}
}

func TestValidateOptionsNestedEntity(t *testing.T) {
	p, _ := newTestPipeline(t)

	res := p.ValidateOptions([]any{
		map[string]any{
			"title":       "Thalor option",
			"template_id": "god-profile",
			"name":        "Thalor",
			// Required god fields missing: nested validation must flag
			// them with the option index prefixed.
		},
	})
	if res.Passed {
		t.Fatal("nested entity validation must fail")
	}
	prefixed := false
	for _, issue := range res.Issues {
		if strings.HasPrefix(issue.Field, "0.") {
			prefixed = true
		}
	}
	if !prefixed {
		t.Errorf("nested issue fields must carry the option index, got %+v", res.Issues)
	}
}

func TestExtractFieldPath(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"'domain_primary' is required", "domain_primary"},
		{"value at $.symbol is invalid", "symbol"},
		{"Field 'alignment' must be one of [good, evil]", "alignment"},
		{"something unrecognizable", ""},
	}
	for _, tt := range tests {
		if got := extractFieldPath(tt.msg); got != tt.want {
			t.Errorf("extractFieldPath(%q) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}
