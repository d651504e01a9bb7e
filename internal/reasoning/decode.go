package reasoning

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-trust/internal/resilience"
)

// Validator is implemented by response types with constraints beyond
// their JSON shape.
type Validator interface {
	Validate() error
}

// DecodeStrict decodes exactly one JSON object from text into v. Unknown
// fields, trailing data and anything but an object are schema violations.
// When v implements Validator its verdict is part of the decision.
func DecodeStrict(text string, v any) error {
	body := stripFences(text)
	if !strings.HasPrefix(body, "{") {
		return eris.Wrap(resilience.ErrSchemaViolation, "response is not a JSON object")
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return eris.Wrapf(resilience.ErrSchemaViolation, "decode: %v", err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return eris.Wrap(resilience.ErrSchemaViolation, "trailing data after JSON object")
	}

	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return eris.Wrapf(resilience.ErrSchemaViolation, "validate: %v", err)
		}
	}
	return nil
}

// stripFences removes a surrounding markdown code fence, which some
// models add even in JSON mode. Prose around the object is not removed.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
