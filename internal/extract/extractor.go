package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/listing-trust/internal/metrics"
	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/reasoning"
	"github.com/sells-group/listing-trust/internal/resilience"
)

// AI fallback outcomes recorded on Result.AIStatus.
const (
	AISkipped      = "skipped"
	AIOK           = "ok"
	AIUnconfigured = "unconfigured"
	AIUnavailable  = "unavailable"
	AIInvalid      = "schema_violation"
)

const aiSystemPrompt = `You extract structured fields from marketplace messages about travel tickets and hotel bookings.
Only report facts stated in the message. Use null for anything not stated.
intent is OFFER when the author sells or transfers, SEEK when the author wants to buy.
Dates are ISO calendar dates (YYYY-MM-DD). price is a number without currency symbols.`

// aiSchema is strict-mode compatible: every property required, nullable by type.
var aiSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["intent","category","origin","destination","startDate","endDate","departDate","arriveDate","checkIn","checkOut","holderName","price","currency"],
  "properties": {
    "intent": {"type": ["string","null"], "enum": ["SEEK","OFFER",null]},
    "category": {"type": ["string","null"]},
    "origin": {"type": ["string","null"]},
    "destination": {"type": ["string","null"]},
    "startDate": {"type": ["string","null"]},
    "endDate": {"type": ["string","null"]},
    "departDate": {"type": ["string","null"]},
    "arriveDate": {"type": ["string","null"]},
    "checkIn": {"type": ["string","null"]},
    "checkOut": {"type": ["string","null"]},
    "holderName": {"type": ["string","null"]},
    "price": {"type": ["number","null"]},
    "currency": {"type": ["string","null"]}
  }
}`)

// Result is the reconciled state after one conversational turn.
type Result struct {
	Fields model.ExtractedFields `json:"fields"`
	// Missing lists the gaps left by deterministic extraction.
	Missing   []string `json:"missing,omitempty"`
	Escalated bool     `json:"escalated"`
	AIStatus  string   `json:"aiStatus"`
	AIFilled  []string `json:"aiFilled,omitempty"`
}

// Extractor runs deterministic extraction and, when the completeness gate
// finds gaps, asks the reasoning service to fill them.
type Extractor struct {
	reasoner     reasoning.Reasoner
	baseCurrency string
	aiFallback   bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithReasoner enables the AI fallback through r.
func WithReasoner(r reasoning.Reasoner) Option {
	return func(e *Extractor) {
		e.reasoner = r
		e.aiFallback = r != nil
	}
}

// WithBaseCurrency sets the currency assumed for unmarked prices.
func WithBaseCurrency(code string) Option {
	return func(e *Extractor) {
		if code != "" {
			e.baseCurrency = strings.ToUpper(code)
		}
	}
}

// New creates an Extractor. Without WithReasoner it never escalates.
func New(opts ...Option) *Extractor {
	e := &Extractor{baseCurrency: "EUR"}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Parse runs a single deterministic pass with the extractor's base currency.
func (e *Extractor) Parse(text string) model.ExtractedFields {
	return Parse(text, e.baseCurrency)
}

// Extract parses text, reconciles it with prior, and escalates remaining
// gaps to the AI extractor. It never fails: any AI problem leaves the
// deterministic result unchanged. AI output only fills nil fields.
func (e *Extractor) Extract(ctx context.Context, text string, prior *model.ExtractedFields) Result {
	var base model.ExtractedFields
	if prior != nil {
		base = *prior
	}
	fields := Reconcile(base, e.Parse(text))

	res := Result{Fields: fields, Missing: Missing(fields), AIStatus: AISkipped}
	if len(res.Missing) == 0 || !e.aiFallback {
		metrics.ExtractionsTotal.WithLabelValues("deterministic").Inc()
		return res
	}

	res.Escalated = true
	metrics.ExtractionsTotal.WithLabelValues("escalated").Inc()

	ai, status := e.askAI(ctx, text, fields, res.Missing)
	res.AIStatus = status
	if status != AIOK {
		return res
	}

	filled := Normalize(Fill(fields, Normalize(ai)))
	res.AIFilled = Filled(fields, filled)
	res.Fields = filled
	if len(res.AIFilled) > 0 {
		metrics.ExtractionsTotal.WithLabelValues("ai_filled").Inc()
	}
	return res
}

func (e *Extractor) askAI(ctx context.Context, text string, known model.ExtractedFields, missing []string) (model.ExtractedFields, string) {
	knownJSON, err := json.Marshal(known)
	if err != nil {
		return model.ExtractedFields{}, AIInvalid
	}

	var prompt strings.Builder
	prompt.WriteString("Message:\n")
	prompt.WriteString(text)
	prompt.WriteString("\n\nAlready extracted (keep, do not contradict):\n")
	prompt.Write(knownJSON)
	prompt.WriteString("\n\nStill missing: ")
	prompt.WriteString(strings.Join(missing, ", "))

	out, err := e.reasoner.Complete(ctx, reasoning.Request{
		Purpose:    "extract",
		System:     aiSystemPrompt,
		Prompt:     prompt.String(),
		SchemaName: "extracted_fields",
		Schema:     aiSchema,
		MaxTokens:  400,
	})
	if err != nil {
		status := AIUnavailable
		if errors.Is(err, resilience.ErrUnconfigured) {
			status = AIUnconfigured
		}
		zap.L().Debug("extract: ai fallback skipped", zap.String("status", status), zap.Error(err))
		return model.ExtractedFields{}, status
	}

	var ai model.ExtractedFields
	if err := reasoning.DecodeStrict(out, &ai); err != nil {
		zap.L().Warn("extract: ai fallback response rejected", zap.Error(err))
		return model.ExtractedFields{}, AIInvalid
	}
	return ai, AIOK
}
