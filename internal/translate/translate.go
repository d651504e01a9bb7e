// Package translate renders listing text in another language through the
// reasoning service, falling back to the source text on any failure.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/reasoning"
	"github.com/sells-group/listing-trust/internal/resilience"
)

// Translation statuses.
const (
	StatusOK           = "ok"
	StatusSkipped      = "skipped"
	StatusUnconfigured = "unconfigured"
	StatusUnavailable  = "unavailable"
	StatusInvalid      = "schema_violation"
)

// MaxTextLen bounds the text accepted for translation.
const MaxTextLen = model.MaxDescriptionLen

const systemPrompt = `You translate marketplace listings for travel tickets and hotel bookings.
Translate the user's text faithfully. Keep names, places, dates, prices and currency symbols unchanged.
Reply with the translation only.`

var responseSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["text"],
  "properties": {"text": {"type": "string"}}
}`)

// Result is a translation or the untouched source text.
type Result struct {
	Text       string `json:"text"`
	Target     string `json:"target"`
	Translated bool   `json:"translated"`
	Status     string `json:"status"`
}

type response struct {
	Text *string `json:"text"`
}

func (r *response) Validate() error {
	if r.Text == nil || strings.TrimSpace(*r.Text) == "" {
		return eris.Wrap(resilience.ErrSchemaViolation, "text is required")
	}
	return nil
}

// Translator translates text. It never fails once the input is valid.
type Translator struct {
	reasoner reasoning.Reasoner
}

// New creates a Translator. A nil reasoner always passes text through.
func New(r reasoning.Reasoner) *Translator {
	return &Translator{reasoner: r}
}

// ParseTarget canonicalizes a BCP 47 language tag such as "en" or "pt-BR".
func ParseTarget(target string) (language.Tag, error) {
	tag, err := language.Parse(strings.TrimSpace(target))
	if err != nil || tag == language.Und {
		return language.Und, eris.Wrapf(model.ErrInvalidInput, "target language %q", target)
	}
	return tag, nil
}

// Translate renders text in target. Malformed input yields
// model.ErrInvalidInput; a reasoning failure returns the source text with
// Translated false.
func (t *Translator) Translate(ctx context.Context, text, target string) (Result, error) {
	tag, err := ParseTarget(target)
	if err != nil {
		return Result{}, err
	}
	if len(text) > MaxTextLen {
		return Result{}, eris.Wrapf(model.ErrInvalidInput, "text exceeds %d bytes", MaxTextLen)
	}

	res := Result{Text: text, Target: tag.String(), Status: StatusSkipped}
	if strings.TrimSpace(text) == "" {
		return res, nil
	}
	if t.reasoner == nil {
		res.Status = StatusUnconfigured
		return res, nil
	}

	out, err := t.reasoner.Complete(ctx, reasoning.Request{
		Purpose:    "translate",
		System:     systemPrompt,
		Prompt:     "Translate into " + display.English.Tags().Name(tag) + " (" + tag.String() + "):\n\n" + text,
		SchemaName: "translation",
		Schema:     responseSchema,
		MaxTokens:  2 * (len(text)/3 + 64),
	})
	if err != nil {
		res.Status = StatusUnavailable
		if errors.Is(err, resilience.ErrUnconfigured) {
			res.Status = StatusUnconfigured
		}
		zap.L().Debug("translate: passthrough", zap.String("status", res.Status), zap.Error(err))
		return res, nil
	}

	var r response
	if err := reasoning.DecodeStrict(out, &r); err != nil {
		zap.L().Warn("translate: response rejected", zap.Error(err))
		res.Status = StatusInvalid
		return res, nil
	}

	res.Text = *r.Text
	res.Translated = true
	res.Status = StatusOK
	return res, nil
}
