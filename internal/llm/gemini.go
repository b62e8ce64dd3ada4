package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"gwi.com/chatbot-backend/internal/errs"
)

type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
	log          zerolog.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey, defaultModel string, logger zerolog.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiProvider{
		client:       client,
		defaultModel: defaultModel,
		log:          logger,
	}, nil
}

func (p *GeminiProvider) Close() {
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			p.log.Error().Err(err).Msg("error closing GenAI client")
		} else {
			p.log.Info().Msg("GenAI client closed")
		}
	}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	system, history, last, err := toGeminiContents(req.Turns)
	if err != nil {
		return nil, err
	}

	modelName := req.Model
	if modelName == "" {
		modelName = p.defaultModel
	}
	model := p.client.GenerativeModel(modelName)
	model.SystemInstruction = system

	chatSession := model.StartChat()
	chatSession.History = history

	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUpstream, err, "gemini chat SendMessage failed")
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errs.Newf(errs.ErrUpstream, "gemini response was empty or had no valid candidates")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			p.log.Debug().Str("part_type", fmt.Sprintf("%T", part)).Msg("skipping non-text gemini response part")
		}
	}
	if responseText.Len() == 0 {
		return nil, errs.Newf(errs.ErrUpstream, "gemini response had no text parts")
	}

	completion := &Completion{
		Content: responseText.String(),
		Model:   modelName,
	}
	if resp.UsageMetadata != nil {
		completion.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		completion.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return completion, nil
}

// toGeminiContents splits a transcript into Gemini's shape: system turns
// become the system instruction, the final user turn is what gets sent, and
// everything in between is chat history.
func toGeminiContents(turns []Turn) (*genai.Content, []*genai.Content, *genai.Content, error) {
	if len(turns) == 0 {
		return nil, nil, nil, errs.Newf(errs.ErrInvalidArgument, "prompt history is empty")
	}
	lastTurn := turns[len(turns)-1]
	if lastTurn.Role != RoleUser {
		return nil, nil, nil, errs.Newf(errs.ErrInvalidArgument, "last turn is not from the user")
	}

	var systemParts []genai.Part
	var history []*genai.Content
	for _, turn := range turns[:len(turns)-1] {
		switch turn.Role {
		case RoleSystem:
			systemParts = append(systemParts, genai.Text(turn.Content))
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(turn.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(turn.Content)}})
		}
	}

	var system *genai.Content
	if len(systemParts) > 0 {
		system = &genai.Content{Parts: systemParts}
	}
	last := &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(lastTurn.Content)}}
	return system, history, last, nil
}
