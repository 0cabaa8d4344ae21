package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Labels is the outcome of sentiment analysis for one comment
type Labels struct {
	Sentiment          string
	AttributeDiscussed string
	AttributeSentiment string
}

// Labeler scores a single comment's sentiment
type Labeler interface {
	LabelComment(ctx context.Context, text string) (*Labels, error)
}

// attributeVocab lists the product attributes the model may pick from.
var attributeVocab = []string{
	"battery life",
	"price",
	"design",
	"durability",
	"performance",
	"ease of use",
	"reliability",
	"software",
	"customer support",
	"accessories",
	"general",
}

// sentimentScores matches the JSON shape the model is asked for. Both
// triads are whole-number percentages summing to 100.
type sentimentScores struct {
	SentimentPositive          int    `json:"sentiment_positive"`
	SentimentNeutral           int    `json:"sentiment_neutral"`
	SentimentNegative          int    `json:"sentiment_negative"`
	AttributeDiscussed         string `json:"attribute_discussed"`
	AttributeSentimentPositive int    `json:"attribute_sentiment_positive"`
	AttributeSentimentNeutral  int    `json:"attribute_sentiment_neutral"`
	AttributeSentimentNegative int    `json:"attribute_sentiment_negative"`
}

// OpenAILabeler implements Labeler with an OpenAI chat model in JSON mode
type OpenAILabeler struct {
	client llms.Model
}

// NewOpenAILabeler creates a labeler backed by the given chat model
func NewOpenAILabeler(apiKey, model string) (*OpenAILabeler, error) {
	client, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &OpenAILabeler{client: client}, nil
}

func (l *OpenAILabeler) LabelComment(ctx context.Context, text string) (*Labels, error) {
	system := "You are a strict JSON API. Return only a JSON object with the integer fields " +
		"sentiment_positive, sentiment_neutral, sentiment_negative, attribute_sentiment_positive, " +
		"attribute_sentiment_neutral and attribute_sentiment_negative as whole-number percentages " +
		"(each triad summing to 100), plus the string field attribute_discussed. " +
		"Pick the single most relevant product attribute from this list; if unclear choose 'general': " +
		strings.Join(attributeVocab, ", ") + "."

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(system),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(fmt.Sprintf("Comment: %q", text)),
			},
		},
	}

	// Try up to 3 times in case of malformed JSON
	var scores sentimentScores
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		response, err := l.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			return nil, fmt.Errorf("analyze comment: %w", err)
		}
		if len(response.Choices) == 0 {
			return nil, fmt.Errorf("analyze comment: model returned no choices")
		}

		raw := strings.TrimSpace(response.Choices[0].Content)
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(raw, "```")

		if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &scores); err != nil {
			lastErr = err
			logrus.Warnf("Malformed sentiment response (attempt %d): %v", attempt+1, err)
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, fmt.Errorf("decode sentiment response: %w", lastErr)
	}

	sp, _, sn := fixTo100(scores.SentimentPositive, scores.SentimentNeutral, scores.SentimentNegative)
	ap, _, an := fixTo100(scores.AttributeSentimentPositive, scores.AttributeSentimentNeutral, scores.AttributeSentimentNegative)

	attribute := strings.TrimSpace(scores.AttributeDiscussed)
	if attribute == "" {
		attribute = "general"
	}

	return &Labels{
		Sentiment:          classifyNet(sp, sn),
		AttributeDiscussed: attribute,
		AttributeSentiment: classifyNet(ap, an),
	}, nil
}

// fixTo100 nudges a percentage triad whose sum drifted off 100 by adjusting
// its largest bucket.
func fixTo100(a, b, c int) (int, int, int) {
	total := a + b + c
	if total == 100 {
		return a, b, c
	}
	delta := 100 - total
	switch {
	case a >= b && a >= c:
		a += delta
	case b >= c:
		b += delta
	default:
		c += delta
	}
	return a, b, c
}

// classifyNet maps a triad onto a label by its net score (positive minus
// negative): below 40 negative, 40 to 60 neutral, above 60 positive.
func classifyNet(positive, negative int) string {
	net := positive - negative
	if net < 40 {
		return "negative"
	}
	if net <= 60 {
		return "neutral"
	}
	return "positive"
}
