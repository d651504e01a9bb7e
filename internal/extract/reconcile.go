package extract

import (
	"math"
	"strings"

	"github.com/sells-group/listing-trust/internal/model"
)

// fieldRule merges one field of next into dst. The rule is the same for
// every field: a non-nil value in next replaces dst's value, a nil value in
// next leaves dst untouched.
type fieldRule struct {
	name  string
	merge func(dst *model.ExtractedFields, next model.ExtractedFields)
	set   func(f model.ExtractedFields) bool
}

func rule[T any](name string, field func(*model.ExtractedFields) **T) fieldRule {
	return fieldRule{
		name: name,
		merge: func(dst *model.ExtractedFields, next model.ExtractedFields) {
			if v := *field(&next); v != nil {
				*field(dst) = v
			}
		},
		set: func(f model.ExtractedFields) bool { return *field(&f) != nil },
	}
}

// fieldRules is the fixed field list the reducer walks.
var fieldRules = []fieldRule{
	rule("intent", func(f *model.ExtractedFields) **string { return &f.Intent }),
	rule("category", func(f *model.ExtractedFields) **string { return &f.Category }),
	rule("origin", func(f *model.ExtractedFields) **string { return &f.Origin }),
	rule("destination", func(f *model.ExtractedFields) **string { return &f.Destination }),
	rule("startDate", func(f *model.ExtractedFields) **model.Date { return &f.StartDate }),
	rule("endDate", func(f *model.ExtractedFields) **model.Date { return &f.EndDate }),
	rule("departDate", func(f *model.ExtractedFields) **model.Date { return &f.DepartDate }),
	rule("arriveDate", func(f *model.ExtractedFields) **model.Date { return &f.ArriveDate }),
	rule("checkIn", func(f *model.ExtractedFields) **model.Date { return &f.CheckIn }),
	rule("checkOut", func(f *model.ExtractedFields) **model.Date { return &f.CheckOut }),
	rule("holderName", func(f *model.ExtractedFields) **string { return &f.HolderName }),
	rule("price", func(f *model.ExtractedFields) **float64 { return &f.Price }),
	rule("currency", func(f *model.ExtractedFields) **string { return &f.Currency }),
}

// override returns next when set, else prior.
func override[T any](prior, next *T) *T {
	if next != nil {
		return next
	}
	return prior
}

// FieldNames lists the fields the reducer walks, in order.
func FieldNames() []string {
	names := make([]string, len(fieldRules))
	for i, r := range fieldRules {
		names[i] = r.name
	}
	return names
}

// Merge folds next into prior field by field. Merge(a, empty) == a.
func Merge(prior, next model.ExtractedFields) model.ExtractedFields {
	out := prior
	for _, r := range fieldRules {
		r.merge(&out, next)
	}
	return out
}

// Fill sets only the fields of base that are nil, taking them from extra.
func Fill(base, extra model.ExtractedFields) model.ExtractedFields {
	return Merge(extra, base)
}

// Filled names the fields that are nil in before and set in after.
func Filled(before, after model.ExtractedFields) []string {
	var names []string
	for _, r := range fieldRules {
		if !r.set(before) && r.set(after) {
			names = append(names, r.name)
		}
	}
	return names
}

// Reconcile merges a new extraction into the prior turn's state and
// normalizes the result. Aliases in next are folded into its start/end
// first, so a date from this turn replaces the prior date under every name.
func Reconcile(prior, next model.ExtractedFields) model.ExtractedFields {
	category := next.Category
	if category == nil {
		category = prior.Category
	}
	foldAliases(&next, strings.ToLower(strings.TrimSpace(deref(category))))
	return Normalize(Merge(prior, next))
}

// Normalize canonicalizes field values: intent is restricted to the enum,
// category is lowercased, currency is an uppercase ISO code, price is a
// non-negative finite number, and date aliases are derived by category.
// Values that cannot be canonicalized become nil.
func Normalize(f model.ExtractedFields) model.ExtractedFields {
	f.Intent = normalizeIntent(f.Intent)
	f.Category = mapString(f.Category, strings.ToLower)
	f.Currency = normalizeCurrency(f.Currency)
	f.Origin = mapString(f.Origin, nil)
	f.Destination = mapString(f.Destination, nil)
	f.HolderName = mapString(f.HolderName, nil)

	if f.Price != nil {
		p := *f.Price
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			f.Price = nil
		}
	}

	deriveAliases(&f)
	return f
}

func normalizeIntent(v *string) *string {
	if v == nil {
		return nil
	}
	switch s := strings.ToUpper(strings.TrimSpace(*v)); s {
	case model.IntentSeek, model.IntentOffer:
		return &s
	default:
		return nil
	}
}

func normalizeCurrency(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if code, ok := currencyCodes[strings.ToLower(s)]; ok {
		return &code
	}
	s = strings.ToUpper(s)
	if len(s) != 3 {
		return nil
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return nil
		}
	}
	return &s
}

// mapString trims v and applies fn; blank values become nil.
func mapString(v *string, fn func(string) string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if fn != nil {
		s = fn(s)
	}
	if s == "" {
		return nil
	}
	return &s
}

// aliasPairs returns the synonym pair for a category: depart/arrive for
// travel, check-in/check-out for lodging, nil for anything else.
func aliasPairs(f *model.ExtractedFields, category string) (start, end **model.Date) {
	switch {
	case model.IsTransit(category):
		return &f.DepartDate, &f.ArriveDate
	case model.IsLodging(category):
		return &f.CheckIn, &f.CheckOut
	default:
		return nil, nil
	}
}

// foldAliases fills empty start/end from the category's aliases. Without a
// known category any alias feeds them.
func foldAliases(f *model.ExtractedFields, category string) {
	if start, end := aliasPairs(f, category); start != nil {
		f.StartDate = override(*start, f.StartDate)
		f.EndDate = override(*end, f.EndDate)
		return
	}
	f.StartDate = override(override(f.CheckIn, f.DepartDate), f.StartDate)
	f.EndDate = override(override(f.CheckOut, f.ArriveDate), f.EndDate)
}

// deriveAliases makes start/end the source of truth: once they are
// resolved, the category's aliases are rewritten from them. Without a known
// category only aliases that are already set are rewritten.
func deriveAliases(f *model.ExtractedFields) {
	category := deref(f.Category)
	foldAliases(f, category)

	if start, end := aliasPairs(f, category); start != nil {
		*start, *end = f.StartDate, f.EndDate
		return
	}
	for _, a := range []**model.Date{&f.DepartDate, &f.CheckIn} {
		if *a != nil && f.StartDate != nil {
			*a = f.StartDate
		}
	}
	for _, a := range []**model.Date{&f.ArriveDate, &f.CheckOut} {
		if *a != nil && f.EndDate != nil {
			*a = f.EndDate
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Gap names used by Missing.
const (
	GapCategory = "category"
	GapDate     = "date"
	GapLocation = "location"
	GapIntent   = "intent"
)

// Missing lists the gaps that trigger escalation to the AI extractor.
func Missing(f model.ExtractedFields) []string {
	var gaps []string
	if f.Category == nil {
		gaps = append(gaps, GapCategory)
	}
	if !f.HasDate() {
		gaps = append(gaps, GapDate)
	}
	if !f.HasLocation() {
		gaps = append(gaps, GapLocation)
	}
	if f.Intent == nil {
		gaps = append(gaps, GapIntent)
	}
	return gaps
}
