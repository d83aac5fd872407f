package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/exam-paper-app/papergen/internal/engine"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.0-flash"

// Engine talks to the Gemini API.
type Engine struct {
	client *genai.Client
	model  string
}

// New creates the Gemini engine. A missing API key is a fatal precondition:
// no request may be attempted without one.
func New(ctx context.Context, apiKey, modelName string) (*Engine, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("API_KEY is not defined")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Engine{client: cl, model: modelName}, nil
}

// Close releases the underlying client.
func (e *Engine) Close() error { return e.client.Close() }

func (e *Engine) Name() string { return "gemini" }

// AnalyzeImages sends the instruction followed by every image part, in order,
// as one multimodal request and returns the response text.
func (e *Engine) AnalyzeImages(ctx context.Context, req engine.AnalysisRequest) (string, error) {
	m := e.client.GenerativeModel(e.model)
	m.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: ptrInt32(int32(req.MaxOutputTokens)),
	}

	parts := make([]genai.Part, 0, len(req.Parts)+1)
	parts = append(parts, genai.Text(req.Instruction))
	for _, p := range req.Parts {
		raw, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return "", fmt.Errorf("decode image part: %w", err)
		}
		parts = append(parts, &genai.Blob{MIMEType: p.MimeType, Data: raw})
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	return firstText(resp), nil
}

// ComposeText sends a single text prompt with the composition sampling
// parameters and returns the response text.
func (e *Engine) ComposeText(ctx context.Context, req engine.CompositionRequest) (string, error) {
	m := e.client.GenerativeModel(e.model)
	m.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: ptrInt32(int32(req.MaxOutputTokens)),
		Temperature:     ptrFloat32(req.Temperature),
		TopP:            ptrFloat32(req.TopP),
		TopK:            ptrInt32(int32(req.TopK)),
	}

	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", err
	}
	return firstText(resp), nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
