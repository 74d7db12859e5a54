package similarity

import (
	"log/slog"
	"sort"

	"github.com/loomworks/canoncore/canon"
)

const (
	// DefaultTopN is the match count returned when the caller asks for 0.
	DefaultTopN = 15

	// scoreFloor drops matches with effectively no overlap.
	scoreFloor = 0.05
)

// Match is one existing claim scored against the new claims.
type Match struct {
	Claim canon.OwnedClaim `json:"claim"`
	Score float64          `json:"score"`
	// Keywords is the shared token set that produced the score.
	Keywords []string `json:"keywords,omitempty"`
}

// ClaimSource supplies the flat claim corpus.
type ClaimSource interface {
	Claims() ([]canon.OwnedClaim, error)
}

// Engine ranks existing canon claims by keyword similarity to new claims.
type Engine struct {
	source ClaimSource
	logger *slog.Logger
}

// NewEngine creates a similarity engine over a claim source.
func NewEngine(source ClaimSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{source: source, logger: logger}
}

// FindSimilar scores every existing claim (excluding the target entity's
// own) against the new claims and returns the top matches.
//
// Each existing claim scores the maximum of (a) its best similarity
// against any single new claim and (b) its similarity against the union
// of all new-claim tokens. The per-claim max catches a new claim closely
// restating one old claim; the union score catches vocabulary that is
// diffusely similar to an old claim without matching any single one.
func (e *Engine) FindSimilar(newClaims []string, excludeEntityID string, topN int) ([]Match, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}

	newSets := make([]map[string]bool, 0, len(newClaims))
	for _, claim := range newClaims {
		set := Tokenize(claim)
		if len(set) > 0 {
			newSets = append(newSets, set)
		}
	}
	if len(newSets) == 0 {
		return nil, nil
	}
	unionSet := Union(newSets...)

	existing, err := e.source.Claims()
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, claim := range existing {
		if claim.EntityID == excludeEntityID {
			continue
		}
		claimSet := Tokenize(claim.Text)
		if len(claimSet) == 0 {
			continue
		}

		best := Jaccard(claimSet, unionSet)
		bestSet := unionSet
		for _, set := range newSets {
			if score := Jaccard(claimSet, set); score > best {
				best = score
				bestSet = set
			}
		}
		if best <= scoreFloor {
			continue
		}

		matches = append(matches, Match{
			Claim:    claim,
			Score:    best,
			Keywords: Intersection(claimSet, bestSet),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topN {
		matches = matches[:topN]
	}

	e.logger.Debug("Claim similarity computed",
		"new_claims", len(newClaims),
		"corpus_claims", len(existing),
		"matches", len(matches))
	return matches, nil
}
