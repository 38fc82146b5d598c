package definer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// GPTResponse is the structured answer requested from the model.
type GPTResponse struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a local proxy.
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

type GPTDefiner struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewGPTDefiner(cfg Config, logger *zap.Logger) *GPTDefiner {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &GPTDefiner{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

func (d *GPTDefiner) Define(ctx context.Context, term, passage string) (string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", fmt.Errorf("empty term: %w", ErrUnavailable)
	}

	prompt := fmt.Sprintf(`Define the term below for a student's study notes in one or two plain sentences.
Use the passage, if given, to pick the right meaning.

Return the response as a JSON object with this structure:
{
    "term": "the_term",
    "definition": "short_definition"
}

Term: %s
Passage: %s`, term, passage)

	resp, err := d.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: d.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   d.maxTokens,
			Temperature: float32(d.temperature),
		},
	)
	if err != nil {
		d.logger.Error("Failed to get GPT response", zap.Error(err), zap.String("term", term))
		return "", fmt.Errorf("defining %q: %v: %w", term, err, ErrUnavailable)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("defining %q: empty response: %w", term, ErrUnavailable)
	}

	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	var gptResponse GPTResponse
	if err := json.Unmarshal([]byte(response), &gptResponse); err != nil || strings.TrimSpace(gptResponse.Definition) == "" {
		// Fall back to the raw text when the model ignores the format
		d.logger.Warn("Failed to parse GPT response",
			zap.Error(err),
			zap.String("response", response))
		if response == "" {
			return "", fmt.Errorf("defining %q: empty response: %w", term, ErrUnavailable)
		}
		return response, nil
	}
	return strings.TrimSpace(gptResponse.Definition), nil
}
