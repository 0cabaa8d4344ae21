package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel plays back canned responses, holding the last one once the
// queue runs out
type fakeModel struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.responses[idx]}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func TestFixTo100(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c int
		wantA   int
		wantB   int
		wantC   int
	}{
		{
			name: "Already 100",
			a:    60, b: 30, c: 10,
			wantA: 60, wantB: 30, wantC: 10,
		},
		{
			name: "Short by one, largest first",
			a:    40, b: 30, c: 29,
			wantA: 41, wantB: 30, wantC: 29,
		},
		{
			name: "Short by one, largest in middle",
			a:    30, b: 40, c: 29,
			wantA: 30, wantB: 41, wantC: 29,
		},
		{
			name: "Short by one, largest last",
			a:    20, b: 30, c: 49,
			wantA: 20, wantB: 30, wantC: 50,
		},
		{
			name: "Three-way tie adjusts the first",
			a:    33, b: 33, c: 33,
			wantA: 34, wantB: 33, wantC: 33,
		},
		{
			name: "Over 100 shrinks the largest",
			a:    50, b: 50, c: 1,
			wantA: 49, wantB: 50, wantC: 1,
		},
		{
			name: "All zero",
			a:    0, b: 0, c: 0,
			wantA: 100, wantB: 0, wantC: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, c := fixTo100(tt.a, tt.b, tt.c)
			assert.Equal(t, tt.wantA, a)
			assert.Equal(t, tt.wantB, b)
			assert.Equal(t, tt.wantC, c)
			assert.Equal(t, 100, a+b+c)
		})
	}
}

func TestClassifyNet(t *testing.T) {
	tests := []struct {
		name     string
		positive int
		negative int
		expected string
	}{
		{
			name:     "Strongly positive",
			positive: 100, negative: 0,
			expected: "positive",
		},
		{
			name:     "Net 70 is positive",
			positive: 80, negative: 10,
			expected: "positive",
		},
		{
			name:     "Net 60 is still neutral",
			positive: 70, negative: 10,
			expected: "neutral",
		},
		{
			name:     "Net 40 is neutral",
			positive: 50, negative: 10,
			expected: "neutral",
		},
		{
			name:     "Net 39 is negative",
			positive: 69, negative: 30,
			expected: "negative",
		},
		{
			name:     "Split opinion lands negative",
			positive: 45, negative: 45,
			expected: "negative",
		},
		{
			name:     "Strongly negative",
			positive: 0, negative: 100,
			expected: "negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyNet(tt.positive, tt.negative))
		})
	}
}

func TestOpenAILabeler_LabelComment(t *testing.T) {
	model := &fakeModel{responses: []string{
		`{"sentiment_positive":80,"sentiment_neutral":15,"sentiment_negative":5,
		  "attribute_discussed":"battery life",
		  "attribute_sentiment_positive":10,"attribute_sentiment_neutral":20,"attribute_sentiment_negative":70}`,
	}}
	labeler := &OpenAILabeler{client: model}

	labels, err := labeler.LabelComment(context.Background(), "Battery lasts forever but charging is slow")
	require.NoError(t, err)

	assert.Equal(t, "positive", labels.Sentiment)
	assert.Equal(t, "battery life", labels.AttributeDiscussed)
	assert.Equal(t, "negative", labels.AttributeSentiment)
	assert.Equal(t, 1, model.calls)
}

func TestOpenAILabeler_NormalizesDriftedTriads(t *testing.T) {
	// 70+10+10 = 90; the largest bucket absorbs the gap, flipping the
	// net score from 60 (neutral) to 70 (positive)
	model := &fakeModel{responses: []string{
		`{"sentiment_positive":70,"sentiment_neutral":10,"sentiment_negative":10,
		  "attribute_discussed":"price",
		  "attribute_sentiment_positive":34,"attribute_sentiment_neutral":33,"attribute_sentiment_negative":33}`,
	}}
	labeler := &OpenAILabeler{client: model}

	labels, err := labeler.LabelComment(context.Background(), "Worth every cent")
	require.NoError(t, err)
	assert.Equal(t, "positive", labels.Sentiment)
}

func TestOpenAILabeler_RetriesMalformedJSON(t *testing.T) {
	model := &fakeModel{responses: []string{
		"the model rambled instead of answering",
		"```json\n{\"sentiment_positive\":10,\"sentiment_neutral\":10,\"sentiment_negative\":80,\"attribute_discussed\":\"design\",\"attribute_sentiment_positive\":0,\"attribute_sentiment_neutral\":0,\"attribute_sentiment_negative\":100}\n```",
	}}
	labeler := &OpenAILabeler{client: model}

	labels, err := labeler.LabelComment(context.Background(), "Looks cheap")
	require.NoError(t, err)
	assert.Equal(t, "negative", labels.Sentiment)
	assert.Equal(t, "design", labels.AttributeDiscussed)
	assert.Equal(t, 2, model.calls)
}

func TestOpenAILabeler_GivesUpAfterThreeAttempts(t *testing.T) {
	model := &fakeModel{responses: []string{"still not json"}}
	labeler := &OpenAILabeler{client: model}

	_, err := labeler.LabelComment(context.Background(), "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode sentiment response")
	assert.Equal(t, 3, model.calls)
}

func TestOpenAILabeler_ModelError(t *testing.T) {
	model := &fakeModel{err: errors.New("rate limited")}
	labeler := &OpenAILabeler{client: model}

	_, err := labeler.LabelComment(context.Background(), "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyze comment")
}

func TestOpenAILabeler_EmptyAttributeDefaultsToGeneral(t *testing.T) {
	model := &fakeModel{responses: []string{
		`{"sentiment_positive":100,"sentiment_neutral":0,"sentiment_negative":0,
		  "attribute_discussed":"  ",
		  "attribute_sentiment_positive":100,"attribute_sentiment_neutral":0,"attribute_sentiment_negative":0}`,
	}}
	labeler := &OpenAILabeler{client: model}

	labels, err := labeler.LabelComment(context.Background(), "Love it")
	require.NoError(t, err)
	assert.Equal(t, "general", labels.AttributeDiscussed)
}
