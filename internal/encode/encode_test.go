package encode

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/exam-paper-app/papergen/internal/model"
)

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestAllPreservesOrderAndRoundTrips(t *testing.T) {
	blobs := [][]byte{
		[]byte("page one bytes"),
		{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a},
		[]byte("third page, plenty of text on it"),
	}
	mimes := []string{"image/jpeg", "image/png", "image/webp"}

	var images []model.UploadedImage
	for i, b := range blobs {
		images = append(images, model.UploadedImage{
			Name:     fmt.Sprintf("page-%d", i+1),
			MimeType: mimes[i],
			Data:     bytes.NewReader(b),
		})
	}

	parts, err := All(context.Background(), images)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(parts) != len(blobs) {
		t.Fatalf("expected %d parts, got %d", len(blobs), len(parts))
	}
	for i, p := range parts {
		if p.MimeType != mimes[i] {
			t.Errorf("part %d: mime = %q, want %q", i, p.MimeType, mimes[i])
		}
		decoded, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			t.Fatalf("part %d: decode: %v", i, err)
		}
		if !bytes.Equal(decoded, blobs[i]) {
			t.Errorf("part %d: round trip mismatch", i)
		}
	}
}

func TestAllFailsFastOnReadError(t *testing.T) {
	readErr := errors.New("disk vanished")
	images := []model.UploadedImage{
		{Name: "ok", MimeType: "image/png", Data: strings.NewReader("fine")},
		{Name: "broken", MimeType: "image/png", Data: errReader{err: readErr}},
		{Name: "also ok", MimeType: "image/png", Data: strings.NewReader("fine too")},
	}

	parts, err := All(context.Background(), images)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, readErr) {
		t.Errorf("expected wrapped read error, got %v", err)
	}
	if parts != nil {
		t.Errorf("expected no partial result, got %d parts", len(parts))
	}
}

func TestAllEmptyBatch(t *testing.T) {
	_, err := All(context.Background(), nil)
	if !errors.Is(err, ErrNoImages) {
		t.Errorf("expected ErrNoImages, got %v", err)
	}
}
