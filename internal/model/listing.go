// Package model defines the data types shared across the trust pipeline.
package model

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Sentinel errors visible to callers of the pipeline.
var (
	// ErrInvalidInput is returned for payloads rejected before scoring.
	ErrInvalidInput = eris.New("invalid input")
	// ErrListingNotFound is returned when a listing id is unknown to the store.
	ErrListingNotFound = eris.New("listing not found")
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day, always in UTC.
type Date struct {
	time.Time
}

// NewDate returns the date for the given year, month and day. It reports
// false when the combination is not a real calendar date.
func NewDate(year int, month time.Month, day int) (Date, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, false
	}
	return Date{t}, true
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, eris.Wrapf(ErrInvalidInput, "date %q", s)
	}
	return Date{t}, nil
}

// MustDate parses s and panics on failure. Intended for fixtures.
func MustDate(s string) *Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "YYYY-MM-DD". Malformed dates are invalid input.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return eris.Wrap(ErrInvalidInput, "date must be a string")
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText keeps text encoders (YAML, CSV) on the date-only format.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses "YYYY-MM-DD".
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// Category names understood by the scorers. Other lowercase values are
// accepted and scored with the base rules.
const (
	CategoryTrain  = "train"
	CategoryBus    = "bus"
	CategoryFlight = "flight"
	CategoryHotel  = "hotel"
)

// IsLodging reports whether the category books accommodation.
func IsLodging(category string) bool {
	return category == CategoryHotel
}

// IsGroundTransit reports whether the category is a surface ticket.
func IsGroundTransit(category string) bool {
	return category == CategoryTrain || category == CategoryBus
}

// IsTransit reports whether the category is any travel ticket.
func IsTransit(category string) bool {
	return IsGroundTransit(category) || category == CategoryFlight
}

// Listing limits enforced by Validate.
const (
	MaxTitleLen       = 300
	MaxDescriptionLen = 10000
	MaxImages         = 50
)

// Listing is the read-only snapshot of a marketplace listing that the
// scoring pipeline works on.
type Listing struct {
	ID          string   `json:"id,omitempty"`
	Category    string   `json:"category,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Origin      string   `json:"origin,omitempty"`
	Destination string   `json:"destination,omitempty"`
	Location    string   `json:"location,omitempty"`
	StartDate   *Date    `json:"startDate,omitempty"`
	EndDate     *Date    `json:"endDate,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Images      []string `json:"images"`
}

// Validate rejects payloads the scorers cannot reason about. Missing
// fields are not errors; they lower completeness instead.
func (l *Listing) Validate() error {
	if l == nil {
		return eris.Wrap(ErrInvalidInput, "listing is required")
	}
	if len(l.Title) > MaxTitleLen {
		return eris.Wrapf(ErrInvalidInput, "title exceeds %d bytes", MaxTitleLen)
	}
	if len(l.Description) > MaxDescriptionLen {
		return eris.Wrapf(ErrInvalidInput, "description exceeds %d bytes", MaxDescriptionLen)
	}
	if l.Category != "" && l.Category != strings.ToLower(strings.TrimSpace(l.Category)) {
		return eris.Wrapf(ErrInvalidInput, "category %q must be lowercase", l.Category)
	}
	if l.Price != nil && (math.IsNaN(*l.Price) || math.IsInf(*l.Price, 0)) {
		return eris.Wrap(ErrInvalidInput, "price must be finite")
	}
	if len(l.Images) > MaxImages {
		return eris.Wrapf(ErrInvalidInput, "at most %d images", MaxImages)
	}
	for i, img := range l.Images {
		if strings.TrimSpace(img) == "" {
			return eris.Wrapf(ErrInvalidInput, "image %d is empty", i)
		}
	}
	return nil
}

// Place returns the free-form location used for matching, preferring the
// explicit location over the destination.
func (l *Listing) Place() string {
	if l.Location != "" {
		return l.Location
	}
	return l.Destination
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// String returns a pointer to s.
func String(s string) *string { return &s }
