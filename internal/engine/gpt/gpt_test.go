package gpt

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/exam-paper-app/papergen/internal/engine"
	"github.com/exam-paper-app/papergen/internal/model"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("", "", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
	if err.Error() != "API_KEY is not defined" {
		t.Errorf("error = %q, want 'API_KEY is not defined'", err.Error())
	}
}

func TestVisionPartsOrderAndDataURLs(t *testing.T) {
	req := engine.AnalysisRequest{
		Instruction: "Summarize these pages.",
		Parts: []model.EncodedImagePart{
			{MimeType: "image/png", Data: "AAAA"},
			{MimeType: "image/jpeg", Data: "BBBB"},
		},
	}

	parts := visionParts(req)
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	if parts[0].Type != openai.ChatMessagePartTypeText || parts[0].Text != req.Instruction {
		t.Errorf("first part should be the instruction text, got %+v", parts[0])
	}
	wantURLs := []string{
		"data:image/png;base64,AAAA",
		"data:image/jpeg;base64,BBBB",
	}
	for i, want := range wantURLs {
		p := parts[i+1]
		if p.Type != openai.ChatMessagePartTypeImageURL {
			t.Fatalf("part %d: type = %q, want image_url", i+1, p.Type)
		}
		if p.ImageURL.URL != want {
			t.Errorf("part %d: url = %q, want %q", i+1, p.ImageURL.URL, want)
		}
	}
}
