// Package match scores how relevant a listing is to a user's preferences.
package match

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/textutil"
)

// Score components and bounds.
const (
	Baseline           = 60
	CategoryBonus      = 12
	PriceBonus         = 10
	BargainBonus       = 4
	LocationBonus      = 8
	MinScore           = 40
	MaxScore           = 98
	BidirectionalScore = 80

	// bargainRatio is the share of max price that earns BargainBonus.
	bargainRatio = 0.6
)

// Score computes the match result for one listing. It is pure: listings
// are scored independently of each other. A nil listing earns the baseline.
func Score(prefs model.MatchPreferences, l *model.Listing) model.MatchResult {
	score := Baseline
	if l == nil {
		return model.MatchResult{Score: score}
	}

	if l.Category != "" && slices.ContainsFunc(prefs.Types, func(t string) bool {
		return strings.EqualFold(strings.TrimSpace(t), l.Category)
	}) {
		score += CategoryBonus
	}

	if prefs.MaxPrice != nil && l.Price != nil {
		maxPrice, price := *prefs.MaxPrice, *l.Price
		if price <= maxPrice {
			score += PriceBonus
			if price <= bargainRatio*maxPrice {
				score += BargainBonus
			}
		}
	}

	if textutil.ContainsFold(l.Place(), prefs.Location) {
		score += LocationBonus
	}

	score = max(MinScore, min(MaxScore, score))
	return model.MatchResult{
		ListingID:     l.ID,
		Score:         score,
		Bidirectional: score >= BidirectionalScore,
	}
}

// Rank scores listings on up to workers goroutines and returns the results
// ordered by score descending, then listing id. Nil listings are skipped.
func Rank(ctx context.Context, prefs model.MatchPreferences, listings []*model.Listing, workers int) ([]model.MatchResult, error) {
	if workers <= 0 {
		workers = 1
	}

	results := make([]model.MatchResult, len(listings))
	scored := make([]bool, len(listings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, l := range listings {
		if l == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = Score(prefs, l)
			scored[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.MatchResult, 0, len(listings))
	for i, r := range results {
		if scored[i] {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b model.MatchResult) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return strings.Compare(a.ListingID, b.ListingID)
	})
	return out, nil
}
