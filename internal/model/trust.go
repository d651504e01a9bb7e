package model

import "time"

// Flag is an advisory finding attached to a score. Flags never drive
// control flow.
type Flag struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuggestedFix tells the listing owner how to improve a field.
type SuggestedFix struct {
	Field      string `json:"field"`
	Suggestion string `json:"suggestion"`
}

// SubScores are the heuristic sub-scores scaled to 0..100.
type SubScores struct {
	Consistency  int `json:"consistency"`
	Plausibility int `json:"plausibility"`
	Completeness int `json:"completeness"`
}

// HeuristicResult is the deterministic output of the heuristic scorer.
type HeuristicResult struct {
	Consistency    float64        `json:"consistencyRaw"`
	Plausibility   float64        `json:"plausibilityRaw"`
	Completeness   float64        `json:"completenessRaw"`
	RiskPenalty    float64        `json:"riskPenalty"`
	Score          int            `json:"score"`
	SubScores      SubScores      `json:"subScores"`
	Flags          []Flag         `json:"flags"`
	SuggestedFixes []SuggestedFix `json:"suggestedFixes"`
	Signature      string         `json:"signature"`
}

// ReviewStatus records how an AIReview was produced.
type ReviewStatus string

const (
	ReviewOK             ReviewStatus = "ok"
	ReviewUnconfigured   ReviewStatus = "unconfigured"
	ReviewUnavailable    ReviewStatus = "unavailable"
	ReviewSchemaFallback ReviewStatus = "schema_fallback"
)

// AIReview is the secondary opinion from the reasoning service, or the
// deterministic fallback that replaced it.
type AIReview struct {
	TextScore      float64        `json:"textScore"`
	ImageScore     float64        `json:"imageScore"`
	Flags          []Flag         `json:"flags"`
	SuggestedFixes []SuggestedFix `json:"suggestedFixes"`
	Status         ReviewStatus   `json:"status"`
}

// PublishedResult is what the caller receives for a scoring request.
type PublishedResult struct {
	ListingID      string         `json:"listingId,omitempty"`
	TrustScore     int            `json:"trustScore"`
	HeuristicScore int            `json:"heuristicScore"`
	SubScores      SubScores      `json:"subScores"`
	AIReview       AIReview       `json:"aiReview"`
	Flags          []Flag         `json:"flags"`
	SuggestedFixes []SuggestedFix `json:"suggestedFixes"`
	Signature      string         `json:"signature"`
	EvaluatedAt    time.Time      `json:"evaluatedAt"`
}

// TrustAudit is the write-once record of one successful fusion.
type TrustAudit struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId,omitempty"`
	ListingID      string         `json:"listingId,omitempty"`
	TrustScore     int            `json:"trustScore"`
	SubScores      SubScores      `json:"subScores"`
	Flags          []Flag         `json:"flags"`
	SuggestedFixes []SuggestedFix `json:"suggestedFixes"`
	Signature      string         `json:"signature"`
	EvaluatedAt    time.Time      `json:"evaluatedAt"`
}

// RateBucket is the fixed-window counter for one identity.
type RateBucket struct {
	Count   int64     `json:"count"`
	ResetAt time.Time `json:"resetAt"`
}

// Expired reports whether the window has closed at now.
func (b RateBucket) Expired(now time.Time) bool {
	return now.After(b.ResetAt)
}
