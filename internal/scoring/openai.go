package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIScorer grades answers through an OpenAI-compatible chat completion
// API. Answers without text or whose question has no guideline are not
// scored.
type OpenAIScorer struct {
	api       *openai.Client
	model     string
	threshold float64
}

// NewOpenAIScorer creates a scorer for an OpenAI-compatible endpoint.
// An empty baseURL means the public OpenAI API.
func NewOpenAIScorer(baseURL, apiKey, modelName string, threshold float64) *OpenAIScorer {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIScorer{
		api:       openai.NewClientWithConfig(config),
		model:     modelName,
		threshold: threshold,
	}
}

// Ping verifies the model endpoint is reachable.
func (s *OpenAIScorer) Ping(ctx context.Context) error {
	if _, err := s.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (s *OpenAIScorer) Score(ctx context.Context, block ContextBlock) (*Result, error) {
	if strings.TrimSpace(block.AnswerText) == "" || strings.TrimSpace(block.Guideline) == "" {
		return nil, nil
	}

	resp, err := s.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: graderSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildScoringPrompt(block)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: chat completion: %v", ErrScoringUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: model returned no choices", ErrScoringUnavailable)
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("scorer response", "raw", raw)

	var out struct {
		Score     float64 `json:"score"`
		Rationale string  `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: parse model response: %v", ErrScoringUnavailable, err)
	}

	score := clampScore(out.Score)
	rationale := strings.TrimSpace(out.Rationale)
	if rationale == "" {
		rationale = "Scored by LLM."
	}
	return &Result{Score: score, Rationale: rationale, LowQuality: score < s.threshold}, nil
}
