// Package scorer implements the deterministic heuristic trust score for a
// listing and the integrity signature that makes stored scores auditable.
package scorer

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config holds the weights, thresholds and lexicon of the heuristic.
type Config struct {
	// Weights of the combined score (sum = 1).
	ConsistencyWeight  float64 `yaml:"consistency_weight"`
	PlausibilityWeight float64 `yaml:"plausibility_weight"`
	CompletenessWeight float64 `yaml:"completeness_weight"`

	// Consistency penalties.
	DateSwapPenalty  float64 `yaml:"date_swap_penalty"`
	PastStartPenalty float64 `yaml:"past_start_penalty"`
	FarStartPenalty  float64 `yaml:"far_start_penalty"`
	PastStartDays    int     `yaml:"past_start_days"`
	FarStartDays     int     `yaml:"far_start_days"`

	// Plausibility penalties and per-category price ceilings.
	NonPositivePricePenalty float64 `yaml:"non_positive_price_penalty"`
	MissingPricePenalty     float64 `yaml:"missing_price_penalty"`
	OutlierPenalty          float64 `yaml:"outlier_penalty"`
	LodgingPriceMax         float64 `yaml:"lodging_price_max"`
	GroundTransitPriceMax   float64 `yaml:"ground_transit_price_max"`
	FlightPriceMax          float64 `yaml:"flight_price_max"`

	// Risk penalty.
	RiskPerTerm     float64  `yaml:"risk_per_term"`
	RiskCap         float64  `yaml:"risk_cap"`
	SuspiciousTerms []string `yaml:"suspicious_terms"`
}

// DefaultConfig returns the production heuristic. Weights sum to 1.
func DefaultConfig() Config {
	return Config{
		ConsistencyWeight:  0.40,
		PlausibilityWeight: 0.35,
		CompletenessWeight: 0.25,

		DateSwapPenalty:  0.6,
		PastStartPenalty: 0.4,
		FarStartPenalty:  0.2,
		PastStartDays:    1,
		FarStartDays:     540,

		NonPositivePricePenalty: 0.6,
		MissingPricePenalty:     0.2,
		OutlierPenalty:          0.3,
		LodgingPriceMax:         5000,
		GroundTransitPriceMax:   400,
		FlightPriceMax:          4000,

		RiskPerTerm: 0.1,
		RiskCap:     0.5,
		SuspiciousTerms: []string{
			// Payment outside the platform.
			"wire transfer", "western union", "moneygram", "gift card",
			"bitcoin", "crypto", "postepay", "bonifico", "friends and family",
			"amici e parenti",
			// Moving the conversation off-platform.
			"whatsapp", "telegram", "contact me directly", "scrivimi in privato",
			// Urgency and fake guarantees.
			"urgent", "urgente", "pay now", "act fast", "100% guaranteed",
			"guaranteed refund", "garantito al 100",
		},
	}
}

// LoadConfig overlays the YAML document in r on DefaultConfig and validates
// the result. Unknown keys are rejected; an empty document yields the
// defaults.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, eris.Wrap(err, "scorer: decode config")
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads a heuristic override file. An empty path returns
// DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "scorer: open config %s", path)
	}
	defer f.Close() //nolint:errcheck
	return LoadConfig(f)
}

// WeightSum returns the sum of the combined-score weights.
func WeightSum(c Config) float64 {
	return c.ConsistencyWeight + c.PlausibilityWeight + c.CompletenessWeight
}

// ValidateConfig checks that a Config is internally consistent.
func ValidateConfig(c Config) error {
	var errs []string

	weights := []struct {
		name string
		v    float64
	}{
		{"consistency_weight", c.ConsistencyWeight},
		{"plausibility_weight", c.PlausibilityWeight},
		{"completeness_weight", c.CompletenessWeight},
	}
	for _, w := range weights {
		if w.v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", w.name))
		}
	}

	// Weights must sum to 1 (allow tolerance for floating-point).
	if sum := WeightSum(c); math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.3f", sum))
	}

	penalties := []struct {
		name string
		v    float64
	}{
		{"date_swap_penalty", c.DateSwapPenalty},
		{"past_start_penalty", c.PastStartPenalty},
		{"far_start_penalty", c.FarStartPenalty},
		{"non_positive_price_penalty", c.NonPositivePricePenalty},
		{"missing_price_penalty", c.MissingPricePenalty},
		{"outlier_penalty", c.OutlierPenalty},
		{"risk_per_term", c.RiskPerTerm},
		{"risk_cap", c.RiskCap},
	}
	for _, p := range penalties {
		if p.v < 0 || p.v > 1 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 1", p.name))
		}
	}

	if c.PastStartDays < 0 {
		errs = append(errs, "past_start_days must be >= 0")
	}
	if c.FarStartDays <= 0 {
		errs = append(errs, "far_start_days must be > 0")
	}
	if c.LodgingPriceMax <= 0 || c.GroundTransitPriceMax <= 0 || c.FlightPriceMax <= 0 {
		errs = append(errs, "price ceilings must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
