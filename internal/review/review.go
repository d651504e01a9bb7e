// Package review asks the reasoning service for a second opinion on a
// listing and replaces any unusable answer with a deterministic fallback.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-trust/internal/metrics"
	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/reasoning"
	"github.com/sells-group/listing-trust/internal/resilience"
)

// Advisory flags added when the AI opinion is replaced.
const (
	FlagUnavailable    = "AI_UNAVAILABLE"
	FlagSchemaFallback = "AI_SCHEMA_FALLBACK"
)

// MaxPreviewFlags bounds the heuristic flags shared with the reviewer.
const MaxPreviewFlags = 5

// maxImageRefs bounds the image references sent in the prompt.
const maxImageRefs = 5

const systemPrompt = `You review second-hand travel ticket and hotel booking listings for a marketplace.
Score how credible the text is (textScore) and how credible the images are as proof of a real booking (imageScore), each 0 to 100.
Report concrete problems as flags with a short UPPER_SNAKE code and a message, and concrete improvements as suggestedFixes naming the listing field.
A heuristic score is provided for context; form your own opinion.`

// responseSchema is strict-mode compatible.
var responseSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["textScore","imageScore","flags","suggestedFixes"],
  "properties": {
    "textScore": {"type": "number", "minimum": 0, "maximum": 100},
    "imageScore": {"type": "number", "minimum": 0, "maximum": 100},
    "flags": {"type": "array", "items": {
      "type": "object", "additionalProperties": false, "required": ["code","message"],
      "properties": {"code": {"type": "string"}, "message": {"type": "string"}}}},
    "suggestedFixes": {"type": "array", "items": {
      "type": "object", "additionalProperties": false, "required": ["field","suggestion"],
      "properties": {"field": {"type": "string"}, "suggestion": {"type": "string"}}}}
  }
}`)

// Preview is the part of the heuristic result the reviewer may see.
type Preview struct {
	Score int          `json:"score"`
	Flags []model.Flag `json:"flags"`
}

// NewPreview trims a heuristic result down to its score and first flags.
func NewPreview(h model.HeuristicResult) Preview {
	flags := h.Flags
	if len(flags) > MaxPreviewFlags {
		flags = flags[:MaxPreviewFlags]
	}
	return Preview{Score: h.Score, Flags: append([]model.Flag(nil), flags...)}
}

// Reviewer produces AIReviews. It never returns an error.
type Reviewer struct {
	reasoner reasoning.Reasoner
}

// New creates a Reviewer. A nil reasoner always yields the unconfigured
// fallback.
func New(r reasoning.Reasoner) *Reviewer {
	return &Reviewer{reasoner: r}
}

// Review returns the reasoning service's validated opinion on l, or the
// fallback matching the failure. Any panic below is converted into the
// unavailable fallback.
func (rv *Reviewer) Review(ctx context.Context, l *model.Listing, preview Preview) (out model.AIReview) {
	hasImages := l != nil && len(l.Images) > 0
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("review: reviewer panicked", zap.Any("panic", r))
			out = Unavailable(preview.Score, hasImages)
		}
		metrics.ReviewsTotal.WithLabelValues(string(out.Status)).Inc()
	}()

	if rv.reasoner == nil {
		return Unconfigured(preview.Score, hasImages)
	}

	prompt, err := buildPrompt(l, preview)
	if err != nil {
		zap.L().Warn("review: build prompt", zap.Error(err))
		return Unavailable(preview.Score, hasImages)
	}

	text, err := rv.reasoner.Complete(ctx, reasoning.Request{
		Purpose:    "review",
		System:     systemPrompt,
		Prompt:     prompt,
		SchemaName: "trust_review",
		Schema:     responseSchema,
		MaxTokens:  600,
	})
	if err != nil {
		if errors.Is(err, resilience.ErrUnconfigured) {
			return Unconfigured(preview.Score, hasImages)
		}
		zap.L().Warn("review: reasoning call failed, using fallback",
			zap.String("listing_id", listingID(l)), zap.Error(err))
		return Unavailable(preview.Score, hasImages)
	}

	review, err := ValidateReview(text)
	if err != nil {
		zap.L().Warn("review: response rejected, using fallback",
			zap.String("listing_id", listingID(l)), zap.Error(err))
		return SchemaFallback(preview.Score, hasImages)
	}
	return review
}

// Unconfigured is the fallback when no reasoning service is configured.
func Unconfigured(heuristic int, hasImages bool) model.AIReview {
	return model.AIReview{
		TextScore:  math.Max(55, float64(heuristic-5)),
		ImageScore: imageFallback(hasImages, 65, 40),
		Status:     model.ReviewUnconfigured,
	}
}

// Unavailable is the fallback for a failed, timed-out or rejected call.
func Unavailable(heuristic int, hasImages bool) model.AIReview {
	r := Unconfigured(heuristic, hasImages)
	r.Flags = []model.Flag{{Code: FlagUnavailable, Message: "AI review unavailable, conservative estimate used"}}
	r.Status = model.ReviewUnavailable
	return r
}

// SchemaFallback is the fallback for a response that failed validation.
func SchemaFallback(heuristic int, hasImages bool) model.AIReview {
	return model.AIReview{
		TextScore:  math.Max(50, float64(heuristic-10)),
		ImageScore: imageFallback(hasImages, 60, 35),
		Flags:      []model.Flag{{Code: FlagSchemaFallback, Message: "AI review was malformed and ignored"}},
		Status:     model.ReviewSchemaFallback,
	}
}

func imageFallback(hasImages bool, with, without float64) float64 {
	if hasImages {
		return with
	}
	return without
}

func listingID(l *model.Listing) string {
	if l == nil {
		return ""
	}
	return l.ID
}

// promptListing is the listing as the reviewer sees it. Images are
// reduced to a count plus the first few references.
type promptListing struct {
	Category    string      `json:"category,omitempty"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Origin      string      `json:"origin,omitempty"`
	Destination string      `json:"destination,omitempty"`
	Location    string      `json:"location,omitempty"`
	StartDate   *model.Date `json:"startDate,omitempty"`
	EndDate     *model.Date `json:"endDate,omitempty"`
	Price       *float64    `json:"price,omitempty"`
	Currency    string      `json:"currency,omitempty"`
	ImageCount  int         `json:"imageCount"`
	Images      []string    `json:"images,omitempty"`
}

func buildPrompt(l *model.Listing, preview Preview) (string, error) {
	if l == nil {
		return "", eris.New("review: nil listing")
	}
	pl := promptListing{
		Category:    l.Category,
		Title:       l.Title,
		Description: l.Description,
		Origin:      l.Origin,
		Destination: l.Destination,
		Location:    l.Location,
		StartDate:   l.StartDate,
		EndDate:     l.EndDate,
		Price:       l.Price,
		Currency:    l.Currency,
		ImageCount:  len(l.Images),
	}
	if n := min(len(l.Images), maxImageRefs); n > 0 {
		pl.Images = l.Images[:n]
	}

	listingJSON, err := json.Marshal(pl)
	if err != nil {
		return "", eris.Wrap(err, "review: marshal listing")
	}
	previewJSON, err := json.Marshal(preview)
	if err != nil {
		return "", eris.Wrap(err, "review: marshal preview")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Listing:\n%s\n\nHeuristic preview:\n%s\n", listingJSON, previewJSON)
	return b.String(), nil
}
