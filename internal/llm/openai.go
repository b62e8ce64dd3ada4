package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"gwi.com/chatbot-backend/internal/errs"
)

type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider creates a provider for the OpenAI chat completions API.
// baseURL may point at any OpenAI-compatible endpoint; empty keeps the
// official one.
func NewOpenAIProvider(apiKey, baseURL, defaultModel string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	if len(req.Turns) == 0 {
		return nil, errs.Newf(errs.ErrInvalidArgument, "prompt is empty")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Turns))
	for _, turn := range req.Turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(turn.Role),
			Content: turn.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrUpstream, err, "openai chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errs.Wrap(errs.ErrUpstream, fmt.Errorf("no choices in response"), "openai chat completion failed")
	}

	reportedModel := resp.Model
	if reportedModel == "" {
		reportedModel = model
	}
	return &Completion{
		Content:          resp.Choices[0].Message.Content,
		Model:            reportedModel,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func openAIRole(role Role) string {
	switch role {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
