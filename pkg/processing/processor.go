package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/exists-in-image/pkg/types"
)

// Options controls how an image file is turned into a payload
type Options struct {
	// MaxDimension downscales the long side to this many pixels, 0 keeps the original
	MaxDimension int
	// Quality is the JPEG quality used when re-encoding (1-100)
	Quality int
	// ReencodeNonJPEG converts other formats to JPEG so the declared MIME type holds
	ReencodeNonJPEG bool
}

// DefaultOptions sends the file bytes untouched
func DefaultOptions() Options {
	return Options{Quality: 85}
}

// Payload is an image ready to embed in a request
type Payload struct {
	Data      []byte
	Base64    string
	MimeType  string
	Detected  string
	Reencoded bool
}

// DataURL returns the data URL for the payload
func (p *Payload) DataURL() string {
	return DataURL(p.MimeType, p.Base64)
}

// Processor handles image processing operations
type Processor struct {
	opts Options
}

// NewProcessor creates a processor that sends raw bytes
func NewProcessor() *Processor {
	return &Processor{opts: DefaultOptions()}
}

// NewProcessorWithOptions creates a processor with custom options
func NewProcessorWithOptions(opts Options) *Processor {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultOptions().Quality
	}
	return &Processor{opts: opts}
}

// LoadPayload reads an image file and base64-encodes it. The declared MIME
// type is always image/jpeg.
func (p *Processor) LoadPayload(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return p.PayloadFromBytes(data)
}

// PayloadFromBytes builds a payload from in-memory image data
func (p *Processor) PayloadFromBytes(data []byte) (*Payload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image is empty")
	}

	detected := mimetype.Detect(data)
	payload := &Payload{
		Data:     data,
		MimeType: types.DefaultMimeType,
		Detected: detected.String(),
	}

	isJPEG := detected.Is(types.DefaultMimeType)
	if p.opts.MaxDimension > 0 || (p.opts.ReencodeNonJPEG && !isJPEG) {
		img, err := decodeImageFromBytes(data)
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		oversized := p.opts.MaxDimension > 0 && (b.Dx() > p.opts.MaxDimension || b.Dy() > p.opts.MaxDimension)
		if oversized || !isJPEG {
			encoded, err := p.prepareImage(img)
			if err != nil {
				return nil, fmt.Errorf("failed to re-encode image: %w", err)
			}
			payload.Data = encoded
			payload.Reencoded = true
		}
	}

	payload.Base64 = base64.StdEncoding.EncodeToString(payload.Data)
	return payload, nil
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeImageFromBytes(data)
}

// prepareImage downscales to MaxDimension and encodes as JPEG
func (p *Processor) prepareImage(img image.Image) ([]byte, error) {
	if maxDim := p.opts.MaxDimension; maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.opts.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func decodeImageFromBytes(data []byte) (image.Image, error) {
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// DataURL formats base64 content as data:<mime>;base64,<data>
func DataURL(mimeType, b64 string) string {
	return "data:" + mimeType + ";base64," + b64
}

// ParseDataURL splits a base64 data URL into its MIME type and decoded bytes
func ParseDataURL(url string) (string, []byte, error) {
	if !strings.HasPrefix(url, "data:") {
		return "", nil, fmt.Errorf("not a data URL")
	}
	header, payload, ok := strings.Cut(url[len("data:"):], ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL has no payload")
	}
	mimeType, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" {
		return "", nil, fmt.Errorf("unsupported data URL encoding %q", encoding)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 data: %w", err)
	}
	return mimeType, data, nil
}
