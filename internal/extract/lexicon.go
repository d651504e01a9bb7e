package extract

import (
	"regexp"
	"strings"
)

// Intent lexicons, matched on folded text at word boundaries. When both
// match, the sell side wins.
var (
	sellTerms = []string{
		"selling", "sell", "for sale", "transferring", "transfer my",
		"vendo", "vendesi", "cedo", "in vendita", "offro",
	}
	buyTerms = []string{
		"looking for", "buying", "buy", "wanted", "wtb",
		"cerco", "cercasi", "compro", "acquisto",
	}
)

// categoryFamily is one category and the terms that identify it.
type categoryFamily struct {
	category string
	pattern  *regexp.Regexp
}

// categoryFamilies is ordered by precedence: train > hotel > flight.
var categoryFamilies = []categoryFamily{
	{"train", termPattern([]string{
		"train", "trains", "rail", "railway", "treno", "treni",
		"trenitalia", "italo", "frecciarossa", "frecciargento", "intercity", "eurostar",
	})},
	// Bare words such as room, night or booking also appear in travel
	// listings, so only qualified forms identify lodging.
	{"hotel", termPattern([]string{
		"hotel", "albergo", "hostel", "ostello", "b&b", "bed and breakfast",
		"resort", "airbnb", "agriturismo", "booking.com",
		"double room", "single room", "twin room",
		"camera doppia", "camera singola", "camera matrimoniale", "stanza doppia",
	})},
	{"flight", termPattern([]string{
		"flight", "flights", "volo", "voli", "plane", "aereo",
		"airline", "boarding pass", "ryanair", "easyjet", "wizz",
	})},
}

// stopwords are capitalized words that start a sentence or name a ticket
// rather than a place. They are trimmed from the front of location runs.
var stopwords = map[string]bool{
	"vendo": true, "cedo": true, "cerco": true, "compro": true, "offro": true,
	"selling": true, "buying": true, "looking": true, "wanted": true,
	"biglietto": true, "biglietti": true, "ticket": true, "tickets": true,
	"treno": true, "train": true, "volo": true, "flight": true, "hotel": true,
	"albergo": true, "da": true, "from": true, "a": true, "to": true,
}

var (
	sellPattern = termPattern(sellTerms)
	buyPattern  = termPattern(buyTerms)
)

// termPattern compiles terms into a single word-bounded alternation.
func termPattern(terms []string) *regexp.Regexp {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}])`)
}
