package review_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/reasoning"
	"github.com/sells-group/listing-trust/internal/reasoning/reasoningtest"
	"github.com/sells-group/listing-trust/internal/review"
)

func listing(images ...string) *model.Listing {
	return &model.Listing{
		ID:          "l-1",
		Category:    "train",
		Title:       "Italo Napoli Roma",
		Description: "Smart seat",
		Price:       model.Float(30),
		Images:      images,
	}
}

func preview(score int) review.Preview {
	return review.Preview{Score: score}
}

func TestReview_OK(t *testing.T) {
	t.Parallel()

	fake := &reasoningtest.Fake{Response: `{"textScore":82,"imageScore":70,
"flags":[{"code":"VAGUE_SEAT","message":"seat number missing"}],
"suggestedFixes":[{"field":"description","suggestion":"add coach and seat"}]}`}
	rv := review.New(reasoningtest.Guard(fake))

	got := rv.Review(context.Background(), listing("a.jpg"), preview(90))
	assert.Equal(t, model.ReviewOK, got.Status)
	assert.InDelta(t, 82.0, got.TextScore, 0.0001)
	assert.InDelta(t, 70.0, got.ImageScore, 0.0001)
	require.Len(t, got.Flags, 1)
	assert.Equal(t, "VAGUE_SEAT", got.Flags[0].Code)
	require.Len(t, got.SuggestedFixes, 1)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "review", reqs[0].Purpose)
	assert.Contains(t, reqs[0].Prompt, `"imageCount":1`)
	assert.Contains(t, reqs[0].Prompt, `"score":90`)
}

func TestReview_Unconfigured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		rv     *review.Reviewer
		score  int
		images []string
		text   float64
		image  float64
	}{
		{"nil reasoner high score", review.New(nil), 90, []string{"a.jpg"}, 85, 65},
		{"nil reasoner floor", review.New(nil), 30, nil, 55, 40},
		{"guard without backend", review.New(reasoning.NewGuard(nil, reasoning.GuardConfig{})), 70, nil, 65, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rv.Review(context.Background(), listing(tt.images...), preview(tt.score))
			assert.Equal(t, model.ReviewUnconfigured, got.Status)
			assert.InDelta(t, tt.text, got.TextScore, 0.0001)
			assert.InDelta(t, tt.image, got.ImageScore, 0.0001)
			assert.Empty(t, got.Flags)
		})
	}
}

func TestReview_TransportFailure(t *testing.T) {
	t.Parallel()

	fake := &reasoningtest.Fake{Err: errors.New("dial tcp: connection refused")}
	rv := review.New(reasoningtest.Guard(fake))

	got := rv.Review(context.Background(), listing(), preview(80))
	assert.Equal(t, model.ReviewUnavailable, got.Status)
	assert.InDelta(t, 75.0, got.TextScore, 0.0001)
	assert.InDelta(t, 40.0, got.ImageScore, 0.0001)
	require.Len(t, got.Flags, 1)
	assert.Equal(t, review.FlagUnavailable, got.Flags[0].Code)
}

func TestReview_TimeoutIsUnavailable(t *testing.T) {
	t.Parallel()

	fake := &reasoningtest.Fake{Response: `{}`, Delay: time.Second}
	guard := reasoning.NewGuard(fake, reasoning.GuardConfig{Timeout: 20 * time.Millisecond})
	rv := review.New(guard)

	start := time.Now()
	got := rv.Review(context.Background(), listing("a.jpg"), preview(60))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, model.ReviewUnavailable, got.Status)
	assert.InDelta(t, 65.0, got.ImageScore, 0.0001)
}

func TestReview_SchemaViolation(t *testing.T) {
	t.Parallel()

	bad := []string{
		`not json at all`,
		`{"textScore":80}`,
		`{"textScore":80,"imageScore":120,"flags":[],"suggestedFixes":[]}`,
		`{"textScore":"80","imageScore":70,"flags":[],"suggestedFixes":[]}`,
		`{"textScore":80,"imageScore":70,"flags":[{"code":"","message":"x"}],"suggestedFixes":[]}`,
		`{"textScore":80,"imageScore":70,"flags":[],"suggestedFixes":[],"confidence":0.9}`,
		`{"textScore":80,"imageScore":70,"flags":[],"suggestedFixes":[]} trailing`,
		`[{"textScore":80,"imageScore":70}]`,
	}
	for _, resp := range bad {
		fake := &reasoningtest.Fake{Response: resp}
		rv := review.New(reasoningtest.Guard(fake))

		got := rv.Review(context.Background(), listing("a.jpg"), preview(40))
		assert.Equal(t, model.ReviewSchemaFallback, got.Status, resp)
		assert.InDelta(t, 50.0, got.TextScore, 0.0001, resp)
		assert.InDelta(t, 60.0, got.ImageScore, 0.0001, resp)
		require.Len(t, got.Flags, 1, resp)
		assert.Equal(t, review.FlagSchemaFallback, got.Flags[0].Code, resp)
	}
}

func TestReview_SchemaFallbackUsesHeuristic(t *testing.T) {
	t.Parallel()

	fake := &reasoningtest.Fake{Response: `{}`}
	got := review.New(reasoningtest.Guard(fake)).Review(context.Background(), listing(), preview(95))
	assert.InDelta(t, 85.0, got.TextScore, 0.0001)
	assert.InDelta(t, 35.0, got.ImageScore, 0.0001)
}

func TestReview_NilListingNeverPanics(t *testing.T) {
	t.Parallel()

	fake := &reasoningtest.Fake{Response: `{}`}
	got := review.New(reasoningtest.Guard(fake)).Review(context.Background(), nil, preview(50))
	assert.Equal(t, model.ReviewUnavailable, got.Status)
	assert.Zero(t, fake.Calls())
}

func TestNewPreview_CapsFlags(t *testing.T) {
	t.Parallel()

	h := model.HeuristicResult{Score: 42}
	for _, code := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		h.Flags = append(h.Flags, model.Flag{Code: code, Message: code})
	}
	p := review.NewPreview(h)
	assert.Equal(t, 42, p.Score)
	require.Len(t, p.Flags, review.MaxPreviewFlags)
	assert.Equal(t, "E", p.Flags[4].Code)

	p.Flags[0].Code = "changed"
	assert.Equal(t, "A", h.Flags[0].Code, "preview does not alias the result")
}

func TestValidateReview(t *testing.T) {
	t.Parallel()

	got, err := review.ValidateReview("```json\n{\"textScore\":0,\"imageScore\":100,\"flags\":[],\"suggestedFixes\":[]}\n```")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got.TextScore, 0.0001)
	assert.Equal(t, model.ReviewOK, got.Status)

	_, err = review.ValidateReview(`{"textScore":-1,"imageScore":10,"flags":[],"suggestedFixes":[]}`)
	assert.Error(t, err)
}
