// Package exam runs the two-stage generation pipeline: analyze uploaded
// textbook images into a summary, then compose an exam paper from the
// summary and the teacher's settings.
package exam

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/exam-paper-app/papergen/internal/encode"
	"github.com/exam-paper-app/papergen/internal/engine"
	"github.com/exam-paper-app/papergen/internal/model"
)

// Fixed user-facing strings. The exact wording is part of the product
// contract and is asserted by tests; do not reword casually.
const (
	// FallbackSummary replaces an empty analysis result so composition never
	// runs on an empty summary.
	FallbackSummary = "No specific insights extracted from images."

	analysisFailedMsg      = "Failed to analyze images. Please try again."
	invalidCredentialMsg   = "API key might be invalid or not selected. Please select a valid key."
	compositionFallbackMsg = "Failed to generate the exam paper. Please try again."

	// credentialErrSignature marks a composition failure caused by an
	// invalid or unselected API key.
	credentialErrSignature = "Requested entity was not found."
)

const (
	analysisMaxTokens      = 500
	compositionMaxTokens   = 4096
	compositionTemperature = 0.7
	compositionTopP        = 0.95
	compositionTopK        = 40
)

var (
	// ErrAnalysisFailed is surfaced for any analysis-stage service failure.
	// The underlying cause is logged, never shown to the user.
	ErrAnalysisFailed = errors.New(analysisFailedMsg)

	// ErrInvalidCredential is surfaced for credential-shaped composition
	// failures, after the refresher has been triggered.
	ErrInvalidCredential = errors.New(invalidCredentialMsg)

	// ErrNoImages is returned when a generation is requested without images.
	ErrNoImages = errors.New("at least one image is required")
)

// CredentialRefresher lets the host prompt the user to select a fresh API
// key. The composer invokes it once when a composition failure matches the
// credential signature.
type CredentialRefresher interface {
	RequestCredentialRefresh(ctx context.Context)
}

// Recorder receives generation lifecycle updates for the audit trail.
// Recording is best-effort: failures are logged and never abort a generation.
type Recorder interface {
	CreateGeneration(rec model.GenerationRecord) error
	UpdateGenerationStatus(id string, status model.GenerationStatus) error
	FinishGeneration(id string, status model.GenerationStatus, errText string) error
}

// Generator orchestrates one generation invocation: encode the images,
// analyze them, compose the paper. The two network calls are strictly
// sequential; every failure is terminal for the invocation.
type Generator struct {
	engine    engine.Engine
	refresher CredentialRefresher
	recorder  Recorder
}

// NewGenerator creates a Generator. refresher and recorder may be nil.
func NewGenerator(eng engine.Engine, refresher CredentialRefresher, recorder Recorder) *Generator {
	if refresher == nil {
		refresher = noopRefresher{}
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Generator{engine: eng, refresher: refresher, recorder: recorder}
}

// Generate runs the full pipeline and returns the raw composed paper.
// Intermediate values (encoded parts, summary) are invocation-scoped and
// discarded on return; the generated content is never persisted.
func (g *Generator) Generate(ctx context.Context, settings model.ExamSettings, images []model.UploadedImage) (model.GeneratedExam, error) {
	if len(images) == 0 {
		return model.GeneratedExam{}, ErrNoImages
	}

	rec := model.GenerationRecord{
		ID:         uuid.NewString(),
		Settings:   settings,
		ImageCount: len(images),
		Status:     model.GenerationEncoding,
		CreatedAt:  time.Now(),
	}
	if err := g.recorder.CreateGeneration(rec); err != nil {
		slog.Warn("record generation start", "id", rec.ID, "error", err)
	}

	parts, err := encode.All(ctx, images)
	if err != nil {
		g.finish(rec.ID, err)
		return model.GeneratedExam{}, err
	}

	g.step(rec.ID, model.GenerationAnalyzing)
	summary, err := g.analyze(ctx, settings, parts)
	if err != nil {
		g.finish(rec.ID, err)
		return model.GeneratedExam{}, err
	}

	g.step(rec.ID, model.GenerationComposing)
	content, err := g.compose(ctx, settings, summary)
	if err != nil {
		g.finish(rec.ID, err)
		return model.GeneratedExam{}, err
	}

	g.finish(rec.ID, nil)
	return model.GeneratedExam{Content: content}, nil
}

// analyze sends the multimodal analysis request. A service failure is logged
// and replaced with the generic analysis error; an empty result is not an
// error and yields the fixed fallback summary instead.
func (g *Generator) analyze(ctx context.Context, settings model.ExamSettings, parts []model.EncodedImagePart) (string, error) {
	text, err := g.engine.AnalyzeImages(ctx, engine.AnalysisRequest{
		Instruction:     BuildAnalysisPrompt(settings),
		Parts:           parts,
		MaxOutputTokens: analysisMaxTokens,
	})
	if err != nil {
		slog.Error("analysis stage failed", "engine", g.engine.Name(), "error", err)
		return "", ErrAnalysisFailed
	}
	if strings.TrimSpace(text) == "" {
		slog.Info("analysis returned no text, using fallback summary")
		return FallbackSummary, nil
	}
	return text, nil
}

// compose sends the composition request and returns the raw response text.
// Credential-shaped failures trigger the refresher and a distinct error;
// other failures surface the underlying message verbatim.
func (g *Generator) compose(ctx context.Context, settings model.ExamSettings, summary string) (string, error) {
	text, err := g.engine.ComposeText(ctx, engine.CompositionRequest{
		Prompt:          BuildCompositionPrompt(settings, summary),
		MaxOutputTokens: compositionMaxTokens,
		Temperature:     compositionTemperature,
		TopP:            compositionTopP,
		TopK:            compositionTopK,
	})
	if err != nil {
		slog.Error("composition stage failed", "engine", g.engine.Name(), "error", err)
		if strings.Contains(err.Error(), credentialErrSignature) {
			g.refresher.RequestCredentialRefresh(ctx)
			return "", ErrInvalidCredential
		}
		if msg := err.Error(); strings.TrimSpace(msg) != "" {
			return "", errors.New(msg)
		}
		return "", errors.New(compositionFallbackMsg)
	}
	return text, nil
}

func (g *Generator) step(id string, status model.GenerationStatus) {
	if err := g.recorder.UpdateGenerationStatus(id, status); err != nil {
		slog.Warn("record generation step", "id", id, "status", status, "error", err)
	}
}

func (g *Generator) finish(id string, genErr error) {
	status := model.GenerationDone
	errText := ""
	if genErr != nil {
		status = model.GenerationFailed
		errText = genErr.Error()
	}
	if err := g.recorder.FinishGeneration(id, status, errText); err != nil {
		slog.Warn("record generation finish", "id", id, "error", err)
	}
}

type noopRefresher struct{}

func (noopRefresher) RequestCredentialRefresh(context.Context) {}

type noopRecorder struct{}

func (noopRecorder) CreateGeneration(model.GenerationRecord) error { return nil }

func (noopRecorder) UpdateGenerationStatus(string, model.GenerationStatus) error { return nil }

func (noopRecorder) FinishGeneration(string, model.GenerationStatus, string) error { return nil }
