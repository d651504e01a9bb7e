package review

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/reasoning"
)

// response mirrors responseSchema. Pointers distinguish a missing score
// from a zero score.
type response struct {
	TextScore      *float64             `json:"textScore"`
	ImageScore     *float64             `json:"imageScore"`
	Flags          []model.Flag         `json:"flags"`
	SuggestedFixes []model.SuggestedFix `json:"suggestedFixes"`
}

// Validate implements reasoning.Validator.
func (r *response) Validate() error {
	var errs []string
	if err := checkScore("textScore", r.TextScore); err != "" {
		errs = append(errs, err)
	}
	if err := checkScore("imageScore", r.ImageScore); err != "" {
		errs = append(errs, err)
	}
	for i, f := range r.Flags {
		if strings.TrimSpace(f.Code) == "" || strings.TrimSpace(f.Message) == "" {
			errs = append(errs, fmt.Sprintf("flags[%d] needs code and message", i))
		}
	}
	for i, f := range r.SuggestedFixes {
		if strings.TrimSpace(f.Field) == "" || strings.TrimSpace(f.Suggestion) == "" {
			errs = append(errs, fmt.Sprintf("suggestedFixes[%d] needs field and suggestion", i))
		}
	}
	if len(errs) > 0 {
		return eris.New(strings.Join(errs, "; "))
	}
	return nil
}

func checkScore(name string, v *float64) string {
	switch {
	case v == nil:
		return name + " is required"
	case math.IsNaN(*v) || *v < 0 || *v > 100:
		return fmt.Sprintf("%s %v outside [0,100]", name, *v)
	}
	return ""
}

// ValidateReview decodes text as a review response. Anything that does not
// conform exactly is rejected with resilience.ErrSchemaViolation; a
// partially valid response is never used.
func ValidateReview(text string) (model.AIReview, error) {
	var r response
	if err := reasoning.DecodeStrict(text, &r); err != nil {
		return model.AIReview{}, err
	}
	return model.AIReview{
		TextScore:      *r.TextScore,
		ImageScore:     *r.ImageScore,
		Flags:          r.Flags,
		SuggestedFixes: r.SuggestedFixes,
		Status:         model.ReviewOK,
	}, nil
}
