// Package fusion combines the heuristic and AI opinions into the published
// trust score and shapes the audit record for it.
package fusion

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/listing-trust/internal/model"
)

// Fusion weights.
const (
	HeuristicWeight = 0.45
	TextWeight      = 0.45
	ImageWeight     = 0.10
)

// Fuse computes the published result. Flags and fixes are concatenated
// heuristic first, in order, without deduplication.
func Fuse(listingID string, h model.HeuristicResult, ai model.AIReview, evaluatedAt time.Time) model.PublishedResult {
	score := HeuristicWeight*float64(h.Score) + TextWeight*ai.TextScore + ImageWeight*ai.ImageScore
	if math.IsNaN(score) {
		score = 0
	}
	trust := int(math.Round(math.Max(0, math.Min(100, score))))

	flags := make([]model.Flag, 0, len(h.Flags)+len(ai.Flags))
	flags = append(append(flags, h.Flags...), ai.Flags...)
	fixes := make([]model.SuggestedFix, 0, len(h.SuggestedFixes)+len(ai.SuggestedFixes))
	fixes = append(append(fixes, h.SuggestedFixes...), ai.SuggestedFixes...)

	return model.PublishedResult{
		ListingID:      listingID,
		TrustScore:     trust,
		HeuristicScore: h.Score,
		SubScores:      h.SubScores,
		AIReview:       ai,
		Flags:          flags,
		SuggestedFixes: fixes,
		Signature:      h.Signature,
		EvaluatedAt:    evaluatedAt.UTC(),
	}
}

// Audit shapes the write-once audit record for a published result. An
// empty id gets a fresh UUID.
func Audit(res model.PublishedResult, userID, id string) model.TrustAudit {
	if id == "" {
		id = uuid.NewString()
	}
	return model.TrustAudit{
		ID:             id,
		UserID:         userID,
		ListingID:      res.ListingID,
		TrustScore:     res.TrustScore,
		SubScores:      res.SubScores,
		Flags:          append([]model.Flag(nil), res.Flags...),
		SuggestedFixes: append([]model.SuggestedFix(nil), res.SuggestedFixes...),
		Signature:      res.Signature,
		EvaluatedAt:    res.EvaluatedAt,
	}
}
