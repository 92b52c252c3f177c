// Package photo processes uploaded player photos: decode, enforce the 4:5
// portrait aspect, and re-encode as JPEG within the target size band. It also
// runs the background upload pipeline.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strconv"
	"strings"
	"time"

	"github.com/adrium/goheif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned for content outside jpeg/png/webp/heic.
var ErrUnsupportedFormat = errors.New("photo: unsupported image format")

// Output size band in bytes.
const (
	minOutputBytes = 200 * 1024
	maxOutputBytes = 500 * 1024
)

// JPEG quality search range.
const (
	minQuality = 60
	maxQuality = 95
)

// heicIntermediateQuality is the quality for the HEIC-to-JPEG conversion
// before optimization.
const heicIntermediateQuality = 90

// Result is an optimized photo ready for upload.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	Quality     int

	// FallbackOriginal is set when optimization failed and Data carries the
	// unmodified upload.
	FallbackOriginal bool

	// Summary is the optimization metadata attached to the stored object.
	Summary map[string]string
}

// Optimize decodes the upload, crops to exactly 4:5 around the center,
// scales to the target size, and re-encodes as JPEG inside the size band. On
// any processing failure the original bytes are returned with the fallback
// flagged in the summary.
func Optimize(data []byte, originalExt string) (*Result, error) {
	img, format, err := decode(data, originalExt)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			return nil, err
		}
		return fallback(data, originalExt, err), nil
	}

	bounds := img.Bounds()
	targetW, targetH := targetDimensions(bounds.Dx(), bounds.Dy())

	cropped := cropToPortrait(img)
	scaled := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), cropped, cropped.Bounds(), draw.Over, nil)

	encoded, quality, err := encodeWithinBand(scaled)
	if err != nil {
		return fallback(data, originalExt, err), nil
	}

	return &Result{
		Data:        encoded,
		ContentType: "image/jpeg",
		Width:       targetW,
		Height:      targetH,
		Quality:     quality,
		Summary: map[string]string{
			"aspect_ratio_enforced": "4:5",
			"original_extension":    normalizeExt(originalExt),
			"original_format":       format,
			"original_width":        strconv.Itoa(bounds.Dx()),
			"original_height":       strconv.Itoa(bounds.Dy()),
			"target_width":          strconv.Itoa(targetW),
			"target_height":         strconv.Itoa(targetH),
			"jpeg_quality":          strconv.Itoa(quality),
			// image/jpeg only emits baseline JPEGs, so large outputs are not
			// progressively encoded.
			"progressive":       "false",
			"fallback_original": "false",
			"optimized_at":      time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func fallback(data []byte, originalExt string, cause error) *Result {
	return &Result{
		Data:             data,
		ContentType:      contentTypeForExt(originalExt),
		FallbackOriginal: true,
		Summary: map[string]string{
			"original_extension": normalizeExt(originalExt),
			"fallback_original":  "true",
			"fallback_reason":    cause.Error(),
			"optimized_at":       time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// decode handles jpeg, png and webp through the registered decoders and heic
// explicitly. HEIC sources pass through an intermediate JPEG at quality 90.
func decode(data []byte, originalExt string) (image.Image, string, error) {
	if isHEIC(data, originalExt) {
		img, err := goheif.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decode heic: %w", err)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: heicIntermediateQuality}); err != nil {
			return nil, "", fmt.Errorf("convert heic to jpeg: %w", err)
		}
		converted, _, err := image.Decode(bytes.NewReader(buf.Bytes()))
		if err != nil {
			return nil, "", fmt.Errorf("re-decode converted jpeg: %w", err)
		}
		return converted, "heic", nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", ErrUnsupportedFormat
	}
	switch format {
	case "jpeg", "png", "webp":
		return img, format, nil
	default:
		return nil, "", ErrUnsupportedFormat
	}
}

// targetDimensions picks the output size from the source dimensions: small
// sources upscale to 600x750, large ones downscale to 1200x1500, everything
// else lands on 800x1000.
func targetDimensions(w, h int) (int, int) {
	if w < 600 || h < 600 {
		return 600, 750
	}
	if min(w, h) >= 2000 {
		return 1200, 1500
	}
	return 800, 1000
}

// cropToPortrait center-crops the image to exactly a 4:5 width:height ratio.
func cropToPortrait(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// Widest 4:5 window that fits.
	cropW := w
	cropH := cropW * 5 / 4
	if cropH > h {
		cropH = h
		cropW = cropH * 4 / 5
	}

	x0 := bounds.Min.X + (w-cropW)/2
	y0 := bounds.Min.Y + (h-cropH)/2
	rect := image.Rect(x0, y0, x0+cropW, y0+cropH)

	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	out := image.NewRGBA(image.Rect(0, 0, cropW, cropH))
	draw.Copy(out, image.Point{}, img, rect, draw.Over, nil)
	return out
}

// encodeWithinBand binary-searches the JPEG quality so the output lands in
// the 200-500 KB band. When the image cannot reach the band at any quality,
// the nearest achievable size wins.
func encodeWithinBand(img image.Image) ([]byte, int, error) {
	encode := func(quality int) ([]byte, error) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	lo, hi := minQuality, maxQuality
	var bestUnder, bestOver []byte
	underQuality, overQuality := 0, 0

	for lo <= hi {
		mid := (lo + hi) / 2
		out, err := encode(mid)
		if err != nil {
			return nil, 0, err
		}
		size := len(out)
		switch {
		case size < minOutputBytes:
			if len(out) > len(bestUnder) {
				bestUnder, underQuality = out, mid
			}
			lo = mid + 1
		case size > maxOutputBytes:
			if bestOver == nil || len(out) < len(bestOver) {
				bestOver, overQuality = out, mid
			}
			hi = mid - 1
		default:
			return out, mid, nil
		}
	}
	// The band is unreachable for this image; take the nearest size.
	if bestUnder != nil {
		return bestUnder, underQuality, nil
	}
	if bestOver != nil {
		return bestOver, overQuality, nil
	}
	return nil, 0, errors.New("jpeg encode produced no output")
}

func isHEIC(data []byte, ext string) bool {
	e := normalizeExt(ext)
	if e == ".heic" || e == ".heif" {
		return true
	}
	// ISO BMFF: "ftyp" box with a heic/heix/mif1 brand.
	if len(data) > 12 && string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		switch brand {
		case "heic", "heix", "hevc", "mif1", "msf1":
			return true
		}
	}
	return false
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func contentTypeForExt(ext string) string {
	switch normalizeExt(ext) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic", ".heif":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}
