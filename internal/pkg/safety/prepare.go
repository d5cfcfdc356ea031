package safety

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

const (
	// maxSourceBytes bounds how much of an upload is read for classification.
	maxSourceBytes = 20 << 20
	jpegQuality    = 85
)

// ImageSource opens stored images for classification.
type ImageSource interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// loadImage reads an image and, when its longest side exceeds maxSide, fits it
// into maxSide x maxSide and re-encodes it as JPEG. Formats that cannot be
// decoded locally are passed through unchanged for the remote classifier.
func loadImage(ctx context.Context, src ImageSource, loc Locator, maxSide int) ([]byte, error) {
	rc, err := src.Open(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxSourceBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxSourceBytes)
	}

	if maxSide <= 0 {
		return data, nil
	}
	return downscale(data, maxSide)
}

func downscale(data []byte, maxSide int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data, nil
	}

	b := img.Bounds()
	if b.Dx() <= maxSide && b.Dy() <= maxSide {
		return data, nil
	}

	fitted := imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode downscaled image: %w", err)
	}
	return buf.Bytes(), nil
}
