// render.go turns a source image into a derived rendition according to a
// format specification: resize (exact dimensions, aspect ignored), crop (fill
// the frame, trim overflow from an anchor position), or fit (shrink to fit
// inside the frame, aspect preserved).
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/media-gateway/media-gateway/internal/db/models"
)

// ErrRender wraps any decode, transform, or encode failure so callers can
// distinguish a bad rendition from a missing source.
var ErrRender = errors.New("render failed")

// CropMode is the parsed rendition strategy.
type CropMode int

const (
	CropResize CropMode = iota
	CropCrop
	CropFit
)

// ParseCropMode maps the stored crop_mode string to a CropMode. Unknown
// values are a render failure, not a silent default.
func ParseCropMode(s string) (CropMode, error) {
	switch s {
	case models.CropModeResize:
		return CropResize, nil
	case models.CropModeCrop:
		return CropCrop, nil
	case models.CropModeFit:
		return CropFit, nil
	default:
		return 0, fmt.Errorf("%w: unknown crop mode %q", ErrRender, s)
	}
}

// Render decodes src, applies the format's dimensions and crop mode, and
// encodes the result in the format's output extension.
func Render(src io.Reader, format *models.Format) ([]byte, error) {
	mode, err := ParseCropMode(format.CropMode)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrRender, err)
	}

	var out image.Image
	switch mode {
	case CropResize:
		out = imaging.Resize(img, format.Width, format.Height, imaging.Lanczos)
	case CropCrop:
		out = imaging.Fill(img, format.Width, format.Height, anchorFor(format.CropPosition), imaging.Lanczos)
	case CropFit:
		out = imaging.Fit(img, format.Width, format.Height, imaging.Lanczos)
	}

	encoded, err := encode(out, format)
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

func encode(img image.Image, format *models.Format) ([]byte, error) {
	f, err := outputFormat(format.Extension)
	if err != nil {
		return nil, err
	}

	var opts []imaging.EncodeOption
	if f == imaging.JPEG {
		quality := format.Quality
		if quality <= 0 || quality > 100 {
			quality = 85
		}
		opts = append(opts, imaging.JPEGQuality(quality))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, f, opts...); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrRender, err)
	}
	return buf.Bytes(), nil
}

func outputFormat(extension string) (imaging.Format, error) {
	f, err := imaging.FormatFromExtension(strings.TrimPrefix(extension, "."))
	if err != nil {
		return 0, fmt.Errorf("%w: unsupported output extension %q", ErrRender, extension)
	}
	return f, nil
}

// ContentType returns the MIME type for a format's output extension.
func ContentType(extension string) string {
	switch strings.ToLower(strings.TrimPrefix(extension, ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tif", "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// anchorFor maps a crop position string to an anchor. Unknown or empty
// positions anchor at the center.
func anchorFor(position string) imaging.Anchor {
	switch strings.ToLower(position) {
	case "top":
		return imaging.Top
	case "bottom":
		return imaging.Bottom
	case "left":
		return imaging.Left
	case "right":
		return imaging.Right
	case "top-left", "topleft":
		return imaging.TopLeft
	case "top-right", "topright":
		return imaging.TopRight
	case "bottom-left", "bottomleft":
		return imaging.BottomLeft
	case "bottom-right", "bottomright":
		return imaging.BottomRight
	default:
		return imaging.Center
	}
}
