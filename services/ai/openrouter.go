package aisvc

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/enlighten-ed/backend/core"
)

// systemPrompt frames every completion; the assistant backs lecturers in the
// portal's AI chat panel.
const systemPrompt = "You are an AI chatbot that aids a lecturer. Be helpful and generate focused and short responses."

const temperature = 0.7

// Service produces assistant replies for the AI chat endpoint.
type Service interface {
	Chat(ctx context.Context, message string) (string, error)
}

// openRouterService talks to OpenRouter through its OpenAI-compatible API.
type openRouterService struct {
	llm    *openai.LLM
	logger core.Logger
}

var _ Service = (*openRouterService)(nil)

func NewOpenRouterService(logger core.Logger, conf *core.Config) (*openRouterService, error) {
	llm, err := openai.New(
		openai.WithBaseURL(conf.AI.BaseURL),
		openai.WithToken(conf.AI.APIKey),
		openai.WithModel(conf.AI.Model),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating openrouter client")
	}
	return &openRouterService{llm: llm, logger: logger}, nil
}

func (svc *openRouterService) Chat(ctx context.Context, message string) (string, error) {
	resp, err := svc.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
			llms.TextParts(schema.ChatMessageTypeHuman, message),
		},
		llms.WithTemperature(temperature),
	)
	if err != nil {
		return "", errors.Wrap(err, "generating completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return resp.Choices[0].Content, nil
}
