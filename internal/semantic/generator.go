package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator produces a natural-language answer from grounding context
type Generator interface {
	GenerateAnswer(ctx context.Context, question string, contextLines []string) (string, error)
}

// OpenAIGenerator implements Generator with an OpenAI chat model
type OpenAIGenerator struct {
	client llms.Model
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a generator backed by the given chat model
func NewOpenAIGenerator(apiKey, model string) (*OpenAIGenerator, error) {
	client, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &OpenAIGenerator{client: client}, nil
}

func (g *OpenAIGenerator) GenerateAnswer(ctx context.Context, question string, contextLines []string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following user comments to answer the user question. Be concise and factual.\n\nComments:\n%s\n\nQuestion: %s",
		strings.Join(contextLines, "\n"), question)

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
			},
		},
	}

	response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(0.3), llms.WithMaxTokens(300))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("generate answer: model returned no choices")
	}

	return strings.TrimSpace(response.Choices[0].Content), nil
}
