package reasoning

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Gemini completes requests with Google's GenAI API in JSON mode.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini backend. An empty baseURL uses the public API.
func NewGemini(ctx context.Context, apiKey, baseURL, model string) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &Gemini{client: client, model: model}, nil
}

// Name implements Reasoner.
func (g *Gemini) Name() string { return "gemini" }

// Complete implements Reasoner.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	var temp float32
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(schemaInstruction(req.System, req.Schema), genai.RoleUser),
			ResponseMIMEType:  "application/json",
			MaxOutputTokens:   int32(req.MaxTokens),
			Temperature:       &temp,
		},
	)
	if err != nil {
		return "", classify(eris.Wrap(err, "gemini: generate content"), geminiStatus(err))
	}
	return resp.Text(), nil
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}
