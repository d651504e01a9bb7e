package model

// MatchPreferences is a user's stated interest profile.
type MatchPreferences struct {
	Types    []string `json:"types"`
	MaxPrice *float64 `json:"maxPrice,omitempty"`
	Location string   `json:"location,omitempty"`
}

// MatchResult is the relevance of one listing to a preference profile.
type MatchResult struct {
	ListingID     string `json:"listingId"`
	Score         int    `json:"score"`
	Bidirectional bool   `json:"bidirectional"`
}
