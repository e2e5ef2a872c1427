package processing

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/catvsdog/pkg/types"
)

// maxDownload caps images fetched from URLs
const maxDownload = 32 << 20

// Options controls how a file is prepared before upload
type Options struct {
	MaxSide  int    // longest side in pixels, 0 = send the original bytes
	Format   string // jpg|png|webp
	Quality  int    // 1-100, jpg and webp
	Lossless bool   // webp only
}

// ImageInfo describes a decoded upload
type ImageInfo struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bytes  int64  `json:"bytes"`
}

// Processor loads files and optionally shrinks them before upload
type Processor struct {
	httpClient *http.Client
}

// NewProcessor creates a new processor
func NewProcessor() *Processor {
	return &Processor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// LoadFile reads a file from disk as-is
func (p *Processor) LoadFile(path string) (*types.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &types.File{
		Name:        filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

// LoadURL downloads a file over http or https
func (p *Processor) LoadURL(rawURL string) (*types.File, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "catvsdog/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	name := filepath.Base(parsedURL.Path)
	if name == "." || name == "/" {
		name = "download"
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &types.File{Name: name, ContentType: ct, Data: data}, nil
}

// Load reads a file from either a path or an http(s) URL
func (p *Processor) Load(source string) (*types.File, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadURL(source)
	}
	return p.LoadFile(source)
}

// Decode decodes image bytes, with an explicit WebP fallback
func (p *Processor) Decode(data []byte) (image.Image, string, error) {
	if img, format, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, format, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, "webp", nil
	}
	return nil, "", fmt.Errorf("image: unknown or unsupported format")
}

// Info decodes the file header and reports format and dimensions
func (p *Processor) Info(file *types.File) (ImageInfo, error) {
	if file == nil {
		return ImageInfo{}, types.ErrNoFile
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(file.Data))
	if err != nil {
		img, f, derr := p.Decode(file.Data)
		if derr != nil {
			return ImageInfo{}, derr
		}
		b := img.Bounds()
		return ImageInfo{Format: f, Width: b.Dx(), Height: b.Dy(), Bytes: file.Size()}, nil
	}
	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height, Bytes: file.Size()}, nil
}

// Prepare shrinks the image so its longest side is at most opts.MaxSide and
// re-encodes it. Files that are already small enough, or that do not decode,
// are returned unchanged so the upload still goes out as picked.
func (p *Processor) Prepare(file *types.File, opts Options) (*types.File, error) {
	if file == nil || opts.MaxSide <= 0 {
		return file, nil
	}

	img, _, err := p.Decode(file.Data)
	if err != nil {
		return file, nil
	}

	b := img.Bounds()
	if b.Dx() <= opts.MaxSide && b.Dy() <= opts.MaxSide {
		return file, nil
	}
	img = imaging.Fit(img, opts.MaxSide, opts.MaxSide, imaging.Lanczos)

	var buf bytes.Buffer
	format := strings.ToLower(opts.Format)
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	var ct, ext string
	switch format {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		ct, ext = "image/png", ".png"
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(quality)}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		ct, ext = "image/webp", ".webp"
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		ct, ext = "image/jpeg", ".jpg"
	}

	name := strings.TrimSuffix(file.Name, filepath.Ext(file.Name)) + ext
	return &types.File{Name: name, ContentType: ct, Data: buf.Bytes()}, nil
}
