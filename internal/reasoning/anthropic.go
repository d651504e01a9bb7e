package reasoning

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-trust/pkg/anthropic"
)

// Anthropic completes requests with the Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic wraps an anthropic client.
func NewAnthropic(client anthropic.Client, model string) *Anthropic {
	return &Anthropic{client: client, model: model}
}

// Name implements Reasoner.
func (a *Anthropic) Name() string { return "anthropic" }

// Complete implements Reasoner.
func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   int64(req.MaxTokens),
		System:      []anthropic.SystemBlock{{Text: schemaInstruction(req.System, req.Schema), Cached: true}},
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", classify(err, anthropic.StatusCode(err))
	}
	resp.Usage.LogUsage(a.model, req.Purpose)
	if resp.StopReason == "max_tokens" {
		return "", eris.Errorf("anthropic: %s response truncated", req.Purpose)
	}
	return resp.Text(), nil
}
