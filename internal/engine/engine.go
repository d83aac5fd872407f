// Package engine abstracts the external generative service behind a small
// interface so the exam pipeline can run against different backends.
package engine

import (
	"context"

	"github.com/exam-paper-app/papergen/internal/model"
)

// AnalysisRequest is the multimodal request sent during the analysis stage:
// one instruction text segment followed by the encoded image parts, in order.
type AnalysisRequest struct {
	Instruction     string
	Parts           []model.EncodedImagePart
	MaxOutputTokens int
}

// CompositionRequest is the text-only request sent during the composition
// stage. TopK is ignored by backends whose API has no top-k knob.
type CompositionRequest struct {
	Prompt          string
	MaxOutputTokens int
	Temperature     float32
	TopP            float32
	TopK            int
}

// Engine is a text/multimodal generation backend. Both calls return the raw
// text field of the service response; an empty string with a nil error means
// the service answered but produced no text.
type Engine interface {
	Name() string
	AnalyzeImages(ctx context.Context, req AnalysisRequest) (string, error)
	ComposeText(ctx context.Context, req CompositionRequest) (string, error)
}
