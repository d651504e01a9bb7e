package scorer

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/textutil"
)

// Flag codes emitted by the heuristic.
const (
	FlagDateSwap         = "DATE_SWAP"
	FlagPastStart        = "PAST_START"
	FlagFarStart         = "FAR_START"
	FlagNonPositivePrice = "NON_POSITIVE_PRICE"
	FlagMissingPrice     = "MISSING_PRICE"
	FlagPriceOutlier     = "PRICE_OUTLIER"
	FlagSuspiciousTerms  = "SUSPICIOUS_TERMS"
	FlagNoImages         = "NO_IMAGES"
	FlagHeuristicError   = "HEUR_ERROR"
)

// Scorer computes HeuristicResults. It holds no mutable state and is safe
// for concurrent use.
type Scorer struct {
	cfg   Config
	terms []termMatcher
	key   []byte
	now   func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithSigningKey switches the signature from SHA-256 to HMAC-SHA256.
func WithSigningKey(key string) Option {
	return func(s *Scorer) {
		if key != "" {
			s.key = []byte(key)
		}
	}
}

// WithClock overrides the clock used for date checks.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// New creates a Scorer after validating cfg.
func New(cfg Config, opts ...Option) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &Scorer{cfg: cfg, terms: compileTerms(cfg.SuspiciousTerms), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Score computes the heuristic result for l. It is deterministic for a
// fixed clock: identical listings produce identical results and signatures.
func (s *Scorer) Score(l *model.Listing) model.HeuristicResult {
	var (
		flags []model.Flag
		fixes []model.SuggestedFix
	)

	completeness, missing := s.completeness(l)
	for _, field := range missing {
		fixes = append(fixes, model.SuggestedFix{Field: field, Suggestion: missingSuggestion(field)})
	}

	consistency, f, fx := s.consistency(l)
	flags, fixes = append(flags, f...), append(fixes, fx...)

	plausibility, f, fx := s.plausibility(l)
	flags, fixes = append(flags, f...), append(fixes, fx...)

	risk, f := s.risk(l)
	flags = append(flags, f...)

	if len(l.Images) == 0 {
		flags = append(flags, model.Flag{Code: FlagNoImages, Message: "listing has no images"})
		fixes = append(fixes, model.SuggestedFix{
			Field:      "images",
			Suggestion: "add at least one photo of the ticket or booking confirmation with personal data hidden",
		})
	}

	combined := s.cfg.ConsistencyWeight*consistency +
		s.cfg.PlausibilityWeight*plausibility +
		s.cfg.CompletenessWeight*completeness - risk
	score := percent(combined)

	return model.HeuristicResult{
		Consistency:  consistency,
		Plausibility: plausibility,
		Completeness: completeness,
		RiskPenalty:  risk,
		Score:        score,
		SubScores: model.SubScores{
			Consistency:  percent(consistency),
			Plausibility: percent(plausibility),
			Completeness: percent(completeness),
		},
		Flags:          flags,
		SuggestedFixes: fixes,
		Signature:      s.Sign(l, score),
	}
}

// SafeScore runs Score and converts any internal fault into the zeroed
// neutral result with a HEUR_ERROR flag, so callers can always continue.
func (s *Scorer) SafeScore(l *model.Listing) (res model.HeuristicResult) {
	defer func() {
		if r := recover(); r != nil {
			err := eris.Errorf("scorer: heuristic panicked: %v", r)
			zap.L().Error("scorer: heuristic fault, using neutral result", zap.Error(err))
			res = neutralResult(err)
		}
	}()
	if l == nil {
		return neutralResult(eris.Wrap(model.ErrInvalidInput, "scorer: nil listing"))
	}
	return s.Score(l)
}

func neutralResult(err error) model.HeuristicResult {
	return model.HeuristicResult{
		Flags: []model.Flag{{Code: FlagHeuristicError, Message: err.Error()}},
	}
}

// requiredFields lists the fields completeness is measured over.
func requiredFields(category string) []string {
	fields := []string{"description", "price", "startDate"}
	switch {
	case model.IsLodging(category):
		fields = append(fields, "endDate", "destination")
	case model.IsTransit(category):
		fields = append(fields, "origin", "destination")
	}
	return fields
}

func (s *Scorer) completeness(l *model.Listing) (float64, []string) {
	required := requiredFields(l.Category)
	var missing []string
	for _, field := range required {
		if !present(l, field) {
			missing = append(missing, field)
		}
	}
	return float64(len(required)-len(missing)) / float64(len(required)), missing
}

func present(l *model.Listing, field string) bool {
	switch field {
	case "description":
		return strings.TrimSpace(l.Description) != ""
	case "price":
		return l.Price != nil
	case "startDate":
		return l.StartDate != nil
	case "endDate":
		return l.EndDate != nil
	case "origin":
		return strings.TrimSpace(l.Origin) != ""
	case "destination":
		// A hotel usually carries a location rather than a destination.
		return strings.TrimSpace(l.Destination) != "" || strings.TrimSpace(l.Location) != ""
	}
	return false
}

func missingSuggestion(field string) string {
	switch field {
	case "description":
		return "describe what is being sold and any conditions of the transfer"
	case "price":
		return "state the asking price"
	case "startDate":
		return "add the travel or check-in date"
	case "endDate":
		return "add the check-out date"
	case "origin":
		return "add the departure city or station"
	case "destination":
		return "add the destination or hotel location"
	}
	return "add " + field
}

func (s *Scorer) consistency(l *model.Listing) (float64, []model.Flag, []model.SuggestedFix) {
	score := 1.0
	var (
		flags []model.Flag
		fixes []model.SuggestedFix
	)

	if l.StartDate != nil && l.EndDate != nil && l.EndDate.Before(*l.StartDate) {
		score -= s.cfg.DateSwapPenalty
		flags = append(flags, model.Flag{
			Code:    FlagDateSwap,
			Message: fmt.Sprintf("end date %s is before start date %s", l.EndDate, l.StartDate),
		})
		fixes = append(fixes, model.SuggestedFix{Field: "endDate", Suggestion: "check that start and end dates are not swapped"})
	}

	if l.StartDate != nil {
		now := s.now().UTC()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		start := l.StartDate.Time
		if start.Before(today.AddDate(0, 0, -s.cfg.PastStartDays)) {
			score -= s.cfg.PastStartPenalty
			flags = append(flags, model.Flag{
				Code:    FlagPastStart,
				Message: fmt.Sprintf("start date %s is in the past", l.StartDate),
			})
		}
		if start.After(today.AddDate(0, 0, s.cfg.FarStartDays)) {
			score -= s.cfg.FarStartPenalty
			flags = append(flags, model.Flag{
				Code:    FlagFarStart,
				Message: fmt.Sprintf("start date %s is more than %d days away", l.StartDate, s.cfg.FarStartDays),
			})
		}
	}

	return math.Max(0, score), flags, fixes
}

func (s *Scorer) plausibility(l *model.Listing) (float64, []model.Flag, []model.SuggestedFix) {
	score := 1.0
	var (
		flags []model.Flag
		fixes []model.SuggestedFix
	)

	if l.Price == nil {
		score -= s.cfg.MissingPricePenalty
		flags = append(flags, model.Flag{Code: FlagMissingPrice, Message: "listing has no price"})
		return math.Max(0, score), flags, fixes
	}

	price := *l.Price
	if price <= 0 {
		score -= s.cfg.NonPositivePricePenalty
		flags = append(flags, model.Flag{
			Code:    FlagNonPositivePrice,
			Message: fmt.Sprintf("price %.2f is not positive", price),
		})
		fixes = append(fixes, model.SuggestedFix{Field: "price", Suggestion: "enter the real asking price"})
	}
	if ceiling, ok := s.priceCeiling(l.Category); ok && price > ceiling {
		score -= s.cfg.OutlierPenalty
		flags = append(flags, model.Flag{
			Code:    FlagPriceOutlier,
			Message: fmt.Sprintf("price %.2f is above the usual %.0f for %s", price, ceiling, l.Category),
		})
	}

	return math.Max(0, score), flags, fixes
}

// priceCeiling returns the outlier threshold for a category, if it has one.
func (s *Scorer) priceCeiling(category string) (float64, bool) {
	switch {
	case model.IsLodging(category):
		return s.cfg.LodgingPriceMax, true
	case model.IsGroundTransit(category):
		return s.cfg.GroundTransitPriceMax, true
	case category == model.CategoryFlight:
		return s.cfg.FlightPriceMax, true
	}
	return 0, false
}

func (s *Scorer) risk(l *model.Listing) (float64, []model.Flag) {
	hits := matchTerms(s.terms, l.Title, l.Description)
	if len(hits) == 0 {
		return 0, nil
	}
	penalty := math.Min(s.cfg.RiskCap, s.cfg.RiskPerTerm*float64(len(hits)))
	return penalty, []model.Flag{{
		Code:    FlagSuspiciousTerms,
		Message: "suspicious terms: " + strings.Join(hits, ", "),
	}}
}

// termMatcher is one lexicon term and its word-bounded pattern.
type termMatcher struct {
	term    string
	pattern *regexp.Regexp
}

// compileTerms folds and deduplicates terms, keeping lexicon order. A term
// matches only as whole words, so "urgent" does not match "insurgent".
func compileTerms(terms []string) []termMatcher {
	seen := make(map[string]bool, len(terms))
	out := make([]termMatcher, 0, len(terms))
	for _, term := range terms {
		folded := textutil.Fold(strings.TrimSpace(term))
		if folded == "" || seen[folded] {
			continue
		}
		seen[folded] = true
		out = append(out, termMatcher{
			term:    term,
			pattern: regexp.MustCompile(`(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(folded) + `(?:$|[^\p{L}\p{N}])`),
		})
	}
	return out
}

// matchTerms returns the terms found in texts, ignoring case and accents,
// in lexicon order.
func matchTerms(terms []termMatcher, texts ...string) []string {
	combined := textutil.Fold(strings.Join(texts, " "))
	if strings.TrimSpace(combined) == "" {
		return nil
	}

	var matched []string
	for _, t := range terms {
		if t.pattern.MatchString(combined) {
			matched = append(matched, t.term)
		}
	}
	return matched
}

// percent scales a [0,1] value to an integer percentage, clamping first.
func percent(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(100 * math.Max(0, math.Min(1, v))))
}
