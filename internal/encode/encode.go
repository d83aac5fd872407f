package encode

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/exam-paper-app/papergen/internal/model"
)

// ErrNoImages is returned when a batch contains no images to encode.
var ErrNoImages = errors.New("no images to encode")

// All reads every uploaded image and returns one base64-encoded part per
// image, preserving input order. Reads run concurrently; the first read error
// fails the whole batch and no partial result is returned. No retry.
func All(ctx context.Context, images []model.UploadedImage) ([]model.EncodedImagePart, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	parts := make([]model.EncodedImagePart, len(images))
	g, ctx := errgroup.WithContext(ctx)
	for i, img := range images {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := io.ReadAll(img.Data)
			if err != nil {
				return fmt.Errorf("read image %q: %w", img.Name, err)
			}
			parts[i] = model.EncodedImagePart{
				MimeType: img.MimeType,
				Data:     base64.StdEncoding.EncodeToString(data),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}
