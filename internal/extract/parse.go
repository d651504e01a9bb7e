// Package extract recovers structured listing fields from free text and
// reconciles them across conversation turns.
package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/textutil"
)

const capRun = `\p{Lu}[\p{L}'’]*(?:[ \t]+\p{Lu}[\p{L}'’]*)*`

var (
	arrowRe = regexp.MustCompile(`(` + capRun + `)(?:[ \t]*(?:->|→|=>|>)[ \t]*|[ \t]+[-–—][ \t]+)(` + capRun + `)`)
	fromToRe = regexp.MustCompile(`(?:^|[^\p{L}])(?i:from|da)[ \t]+(` + capRun + `)[ \t]+(?i:to|a)[ \t]+(` + capRun + `)`)

	dateRe = regexp.MustCompile(`(?:^|[^\d])(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4}|\d{2})(?:$|[^\d])`)

	holderRe = regexp.MustCompile(`(?i:\bnamed[ \t]*:|\bregistered[ \t]+to|\bintestat[oa][ \t]+a|\bnominativo[ \t]*:)[ \t]*(` + capRun + `)`)

	amount        = `\d{1,3}(?:[.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`
	currencyToken = `€|\$|£|(?i:\b(?:eur|euro|euros|usd|dollars?|gbp|pounds?|sterline|chf)\b)`
	priceBeforeRe = regexp.MustCompile(`(` + currencyToken + `)[ \t]*(` + amount + `)`)
	priceAfterRe  = regexp.MustCompile(`(` + amount + `)[ \t]*(` + currencyToken + `)`)
	bareRe        = regexp.MustCompile(`(?i:\b(?:price|prezzo|costs?|costo|asking)\b)[ \t]*:?[ \t]*(` + amount + `)`)
)

var currencyCodes = map[string]string{
	"€": "EUR", "eur": "EUR", "euro": "EUR", "euros": "EUR",
	"$": "USD", "usd": "USD", "dollar": "USD", "dollars": "USD",
	"£": "GBP", "gbp": "GBP", "pound": "GBP", "pounds": "GBP", "sterline": "GBP",
	"chf": "CHF",
}

// Parse runs one deterministic extraction pass over text. It never fails;
// fields with no evidence stay nil. baseCurrency is used for a price found
// without a currency marker.
func Parse(text, baseCurrency string) model.ExtractedFields {
	var f model.ExtractedFields
	folded := textutil.Fold(text)

	f.Intent = parseIntent(folded)
	f.Category = parseCategory(folded)
	f.Origin, f.Destination = parseLocations(text)
	f.StartDate, f.EndDate = parseDates(text)
	f.HolderName = parseHolder(text)
	f.Price, f.Currency = parsePrice(text, baseCurrency)
	return f
}

func parseIntent(folded string) *string {
	switch {
	case sellPattern.MatchString(folded):
		return model.String(model.IntentOffer)
	case buyPattern.MatchString(folded):
		return model.String(model.IntentSeek)
	default:
		return nil
	}
}

func parseCategory(folded string) *string {
	for _, fam := range categoryFamilies {
		if fam.pattern.MatchString(folded) {
			return model.String(fam.category)
		}
	}
	return nil
}

func parseLocations(text string) (origin, destination *string) {
	for _, re := range []*regexp.Regexp{arrowRe, fromToRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			a, b := trimPlace(m[1]), trimPlace(m[2])
			if a != "" && b != "" {
				return model.String(a), model.String(b)
			}
		}
	}
	return nil, nil
}

// trimPlace drops leading stopwords from a capitalized run, so
// "Vendo Roma" becomes "Roma".
func trimPlace(run string) string {
	words := strings.Fields(run)
	for len(words) > 0 && stopwords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

func parseDates(text string) (start, end *model.Date) {
	var found []model.Date
	// Matches consume one separator character on each side, so adjacent
	// dates separated by a single character are scanned from each index.
	for i := 0; i < len(text) && len(found) < 2; {
		loc := dateRe.FindStringSubmatchIndex(text[i:])
		if loc == nil {
			break
		}
		day, _ := strconv.Atoi(text[i+loc[2] : i+loc[3]])
		month, _ := strconv.Atoi(text[i+loc[4] : i+loc[5]])
		yearTok := text[i+loc[6] : i+loc[7]]
		year, _ := strconv.Atoi(yearTok)
		if len(yearTok) == 2 {
			if year < 70 {
				year += 2000
			} else {
				year += 1900
			}
		}
		if d, ok := model.NewDate(year, time.Month(month), day); ok {
			found = append(found, d)
		}
		i += loc[7]
	}

	if len(found) > 0 {
		start = &found[0]
	}
	if len(found) > 1 {
		end = &found[1]
	}
	return start, end
}

func parseHolder(text string) *string {
	m := holderRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return model.String(strings.TrimSpace(m[1]))
}

func parsePrice(text, baseCurrency string) (*float64, *string) {
	before := priceBeforeRe.FindStringSubmatchIndex(text)
	after := priceAfterRe.FindStringSubmatchIndex(text)

	switch {
	case before != nil && (after == nil || before[0] <= after[0]):
		return priced(text[before[4]:before[5]], text[before[2]:before[3]])
	case after != nil:
		return priced(text[after[2]:after[3]], text[after[4]:after[5]])
	}

	if m := bareRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[1]); ok {
			return &v, model.String(strings.ToUpper(baseCurrency))
		}
	}
	return nil, nil
}

func priced(num, cur string) (*float64, *string) {
	v, ok := parseAmount(num)
	if !ok {
		return nil, nil
	}
	code, ok := currencyCodes[strings.ToLower(cur)]
	if !ok {
		return &v, nil
	}
	return &v, model.String(code)
}

// parseAmount reads a number that may use '.' or ',' for both thousands
// and decimals. A final separator followed by one or two digits is the
// decimal point.
func parseAmount(s string) (float64, bool) {
	last := strings.LastIndexAny(s, ".,")
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case i == last && len(s)-last-1 <= 2:
			b.WriteByte('.')
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
