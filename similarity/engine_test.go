package similarity

import (
	"math"
	"testing"

	"github.com/loomworks/canoncore/canon"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "lower-cases and strips punctuation",
			text: "Thalor's primary domain is STORMS!",
			want: []string{"thalor", "primary", "domain", "storms"},
		},
		{
			name: "drops stop words and single characters",
			text: "the god of a storm, I am",
			want: []string{"god", "storm", "am"},
		},
		{
			name: "empty input",
			text: "  ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for _, tok := range tt.want {
				if !got[tok] {
					t.Errorf("missing token %q in %v", tok, got)
				}
			}
		})
	}
}

func TestJaccard(t *testing.T) {
	a := Tokenize("storm god of thunder")
	b := Tokenize("storm god of rain")
	// tokens: {storm, god, thunder} vs {storm, god, rain}: 2/4.
	if got := Jaccard(a, b); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Jaccard = %f, want 0.5", got)
	}
	if got := Jaccard(a, a); got != 1.0 {
		t.Errorf("self similarity = %f, want 1.0", got)
	}
	if got := Jaccard(a, map[string]bool{}); got != 0 {
		t.Errorf("empty set similarity = %f, want 0", got)
	}
}

type staticClaims []canon.OwnedClaim

func (s staticClaims) Claims() ([]canon.OwnedClaim, error) {
	return s, nil
}

func TestFindSimilarRanksAndExcludes(t *testing.T) {
	corpus := staticClaims{
		{EntityID: "god-thalor", EntityName: "Thalor", Text: "Thalor's primary domain is storms"},
		{EntityID: "god-mirra", EntityName: "Mirra", Text: "Mirra's primary domain is storms"},
		{EntityID: "god-vel", EntityName: "Vel", Text: "Vel tends the orchards of the dead"},
		{EntityID: "town-kel", EntityName: "Kel", Text: "Kel was founded on a storm-scoured cliff"},
	}
	engine := NewEngine(corpus, nil)

	matches, err := engine.FindSimilar(
		[]string{"Thalor's primary domain is storms"}, "god-thalor", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 {
		t.Fatal("expected matches")
	}

	// Own claims excluded.
	for _, m := range matches {
		if m.Claim.EntityID == "god-thalor" {
			t.Errorf("excluded entity's claim returned: %+v", m)
		}
	}

	// The near-duplicate ranks first with the shared vocabulary attached.
	if matches[0].Claim.EntityID != "god-mirra" {
		t.Errorf("expected god-mirra first, got %+v", matches[0])
	}
	if len(matches[0].Keywords) == 0 {
		t.Error("expected matching keywords on top match")
	}

	// Scores descend.
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("matches not sorted descending at %d", i)
		}
	}
}

func TestFindSimilarUnionScoring(t *testing.T) {
	// No single new claim overlaps the old claim strongly, but their
	// combined vocabulary does; the union score must catch it.
	corpus := staticClaims{
		{EntityID: "e1", EntityName: "One", Text: "iron mines beneath the frozen mountain"},
	}
	engine := NewEngine(corpus, nil)

	matches, err := engine.FindSimilar(
		[]string{"iron mines under the city", "the frozen mountain pass"}, "", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected union-score match, got %v", matches)
	}
}

func TestFindSimilarFloorAndTopN(t *testing.T) {
	corpus := staticClaims{
		{EntityID: "e1", Text: "completely unrelated verdant jungle canopy"},
		{EntityID: "e2", Text: "storm season rites"},
		{EntityID: "e3", Text: "storm court politics"},
		{EntityID: "e4", Text: "storm harbor tolls"},
	}
	engine := NewEngine(corpus, nil)

	matches, err := engine.FindSimilar([]string{"the storm god"}, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected topN=2 matches, got %d", len(matches))
	}
	for _, m := range matches {
		if m.Claim.EntityID == "e1" {
			t.Error("zero-overlap claim should fall below the floor")
		}
	}
}

func TestFindSimilarEmptyNewClaims(t *testing.T) {
	engine := NewEngine(staticClaims{{EntityID: "e1", Text: "anything"}}, nil)
	matches, err := engine.FindSimilar(nil, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if matches != nil {
		t.Errorf("expected no matches for empty input, got %v", matches)
	}
}
