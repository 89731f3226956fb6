package middleware

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// DecompressConfig configures the decompression middleware.
type DecompressConfig struct {
	// MaxDecompressedSize is the maximum size of decompressed body.
	// Default: 1MB
	MaxDecompressedSize int64

	// MaxCompressedSize is the maximum size of compressed input.
	// Default: 256KB
	MaxCompressedSize int64

	// MaxCompressionRatio is the maximum allowed compression ratio.
	// If decompressed/compressed > this ratio, reject as potential zipbomb.
	// Default: 50 (50:1 ratio)
	MaxCompressionRatio float64

	// AllowedEncodings specifies which encodings are allowed.
	// Default: ["gzip", "zstd"]
	AllowedEncodings []string
}

// DefaultDecompressConfig returns the default configuration.
func DefaultDecompressConfig() *DecompressConfig {
	return &DecompressConfig{
		MaxDecompressedSize: 1 << 20,
		MaxCompressedSize:   256 << 10,
		MaxCompressionRatio: 50,
		AllowedEncodings:    []string{"gzip", "zstd"},
	}
}

// Body read errors reported through a Decompress body.
var (
	ErrUnsupportedEncoding   = errors.New("unsupported content encoding")
	ErrInvalidCompressedBody = errors.New("invalid compressed body")
)

// Decompress middleware decompresses request bodies based on Content-Encoding header.
// Supports gzip and zstd compression.
//
// Inflation happens on the first Read, so handlers run their own checks
// before any byte is consumed. Failures surface as read errors wrapping
// ErrUnsupportedEncoding or ErrInvalidCompressedBody.
//
// This middleware should be placed BEFORE body limit middleware to properly
// limit the decompressed size, not the compressed size.
//
// Example:
//
//	router.Use(middleware.Decompress(nil))
//	router.Use(middleware.BodyLimit(256 << 10))
func Decompress(config *DecompressConfig) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultDecompressConfig()
	}

	// Pre-compute allowed encodings set for O(1) lookup
	allowedSet := make(map[string]bool)
	for _, enc := range config.AllowedEncodings {
		allowedSet[strings.ToLower(enc)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip for methods without body
			if r.Method == http.MethodGet || r.Method == http.MethodHead ||
				r.Method == http.MethodOptions || r.Method == http.MethodTrace {
				next.ServeHTTP(w, r)
				return
			}

			encoding := strings.ToLower(r.Header.Get("Content-Encoding"))
			if encoding == "" || encoding == "identity" {
				next.ServeHTTP(w, r)
				return
			}

			r.Body = &inflatingBody{
				src:      r.Body,
				encoding: encoding,
				allowed:  allowedSet[encoding],
				config:   config,
			}
			r.ContentLength = -1
			r.Header.Del("Content-Encoding")

			next.ServeHTTP(w, r)
		})
	}
}

// inflatingBody decompresses src on the first Read.
type inflatingBody struct {
	src      io.ReadCloser
	encoding string
	allowed  bool
	config   *DecompressConfig

	out *bytes.Reader
	err error
}

func (b *inflatingBody) Read(p []byte) (int, error) {
	if b.out == nil && b.err == nil {
		b.inflate()
	}
	if b.err != nil {
		return 0, b.err
	}
	return b.out.Read(p)
}

func (b *inflatingBody) inflate() {
	if !b.allowed {
		b.err = fmt.Errorf("%w: %s", ErrUnsupportedEncoding, b.encoding)
		return
	}
	decompressed, err := decompressBodySafe(b.src, b.encoding, b.config)
	if err != nil {
		b.err = fmt.Errorf("%w: %w", ErrInvalidCompressedBody, err)
		return
	}
	b.out = bytes.NewReader(decompressed)
}

func (b *inflatingBody) Close() error {
	return b.src.Close()
}

// decompressBodySafe inflates body while enforcing the compressed size,
// decompressed size and ratio limits of config.
func decompressBodySafe(body io.ReadCloser, encoding string, config *DecompressConfig) ([]byte, error) {
	defer body.Close()

	compressed, err := io.ReadAll(io.LimitReader(body, config.MaxCompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read compressed body: %w", err)
	}
	if int64(len(compressed)) > config.MaxCompressedSize {
		return nil, fmt.Errorf("compressed size exceeds limit %d", config.MaxCompressedSize)
	}
	if len(compressed) == 0 {
		return []byte{}, nil
	}

	var reader io.Reader
	switch encoding {
	case "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("gzip reader error: %w", err)
		}
		defer gr.Close()
		reader = gr

	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(compressed),
			zstd.WithDecoderMaxMemory(uint64(config.MaxDecompressedSize)),
			zstd.WithDecoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("zstd reader error: %w", err)
		}
		defer zr.Close()
		reader = zr

	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}

	// One byte past the limit is enough to detect an overflow.
	out, err := io.ReadAll(io.LimitReader(reader, config.MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompression error: %w", err)
	}
	if int64(len(out)) > config.MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed size exceeds limit of %d bytes", config.MaxDecompressedSize)
	}
	if ratio := float64(len(out)) / float64(len(compressed)); ratio > config.MaxCompressionRatio {
		return nil, fmt.Errorf("compression ratio %.1f exceeds limit %.1f", ratio, config.MaxCompressionRatio)
	}
	return out, nil
}
