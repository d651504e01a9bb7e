package translate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/reasoning"
	"github.com/sells-group/listing-trust/internal/reasoning/reasoningtest"
)

const source = "Vendo biglietto Frecciarossa Roma -> Milano, 15/10/2025, 39 euro"

func TestTranslate_OK(t *testing.T) {
	fake := &reasoningtest.Fake{Response: "```json\n{\"text\":\"Selling Frecciarossa ticket Roma -> Milano, 15/10/2025, 39 euro\"}\n```"}
	tr := New(reasoningtest.Guard(fake))

	res, err := tr.Translate(context.Background(), source, "EN")
	require.NoError(t, err)
	assert.True(t, res.Translated)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "en", res.Target)
	assert.True(t, strings.HasPrefix(res.Text, "Selling"))

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "translate", reqs[0].Purpose)
	assert.Contains(t, reqs[0].Prompt, "Translate into English (en)")
	assert.Contains(t, reqs[0].Prompt, source)
}

func TestTranslate_Passthrough(t *testing.T) {
	tests := []struct {
		name   string
		r      reasoning.Reasoner
		status string
	}{
		{"no reasoner", nil, StatusUnconfigured},
		{"unconfigured guard", reasoning.NewGuard(nil, reasoning.GuardConfig{}), StatusUnconfigured},
		{"transport failure", reasoningtest.Guard(&reasoningtest.Fake{Err: errors.New("connection reset by peer")}), StatusUnavailable},
		{"not json", &reasoningtest.Fake{Response: "Selling a ticket"}, StatusInvalid},
		{"extra field", &reasoningtest.Fake{Response: `{"text":"x","lang":"en"}`}, StatusInvalid},
		{"empty text", &reasoningtest.Fake{Response: `{"text":"  "}`}, StatusInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(tt.r).Translate(context.Background(), source, "en")
			require.NoError(t, err)
			assert.False(t, res.Translated)
			assert.Equal(t, source, res.Text)
			assert.Equal(t, tt.status, res.Status)
		})
	}
}

func TestTranslate_EmptyTextSkipsCall(t *testing.T) {
	fake := &reasoningtest.Fake{Response: `{"text":"x"}`}

	res, err := New(fake).Translate(context.Background(), "   ", "it")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Zero(t, fake.Calls())
}

func TestTranslate_InvalidInput(t *testing.T) {
	tr := New(nil)

	for _, target := range []string{"", "not a language", "und"} {
		_, err := tr.Translate(context.Background(), source, target)
		require.Error(t, err, target)
		assert.True(t, errors.Is(err, model.ErrInvalidInput), target)
	}

	_, err := tr.Translate(context.Background(), strings.Repeat("x", MaxTextLen+1), "en")
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestParseTarget(t *testing.T) {
	tag, err := ParseTarget(" pt-br ")
	require.NoError(t, err)
	assert.Equal(t, "pt-BR", tag.String())
}
