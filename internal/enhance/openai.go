// Package enhance refines a machine translation for clinical accuracy. A
// failed or empty enhancement is a normal fallback path for callers, never a
// pipeline failure.
package enhance

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a medical translation reviewer. Given an original " +
	"sentence and its draft translation, return only the improved translation " +
	"using correct clinical terminology in the target language. Return the " +
	"draft unchanged if it is already accurate. Do not add commentary."

// OpenAIClient refines translations with a chat-completion model.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{client: openai.NewClient(apiKey), model: model}
}

// Enhance returns the refined translation. Callers fall back to the draft
// translation on any error.
func (c *OpenAIClient) Enhance(ctx context.Context, original, translated, sourceLang, targetLang string) (string, error) {
	prompt := fmt.Sprintf("Source language: %s\nTarget language: %s\nOriginal: %s\nDraft translation: %s",
		sourceLang, targetLang, original, translated)
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("enhance: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("enhance: empty choices")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("enhance: empty completion")
	}
	return out, nil
}
