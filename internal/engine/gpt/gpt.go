package gpt

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/exam-paper-app/papergen/internal/engine"
	"github.com/exam-paper-app/papergen/internal/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = openai.GPT4oMini

// Engine talks to an OpenAI-compatible API (OpenAI itself or a self-hosted
// server such as Ollama or vLLM behind a custom base URL).
type Engine struct {
	api   *openai.Client
	model string
}

// New creates the engine. A missing API key is a fatal precondition.
func New(baseURL, apiKey, modelName string) (*Engine, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("API_KEY is not defined")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Engine{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}, nil
}

func (e *Engine) Name() string { return "gpt" }

// AnalyzeImages sends the instruction and image parts as one vision-style
// user message with base64 data URLs.
func (e *Engine) AnalyzeImages(ctx context.Context, req engine.AnalysisRequest) (string, error) {
	resp, err := e.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: visionParts(req),
			},
		},
		MaxTokens: req.MaxOutputTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// ComposeText sends a single text prompt. The chat API exposes no top-k
// parameter, so req.TopK is not applied here.
func (e *Engine) ComposeText(ctx context.Context, req engine.CompositionRequest) (string, error) {
	resp, err := e.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func visionParts(req engine.AnalysisRequest) []openai.ChatMessagePart {
	parts := make([]openai.ChatMessagePart, 0, len(req.Parts)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: req.Instruction,
	})
	for _, p := range req.Parts {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL(p),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return parts
}

func dataURL(p model.EncodedImagePart) string {
	return "data:" + p.MimeType + ";base64," + p.Data
}
