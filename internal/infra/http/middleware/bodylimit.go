package middleware

import (
	"errors"
	"net/http"

	"github.com/archoncouncil/api/pkg/apierror"
)

// DefaultMaxBodySize is the default maximum request body size (256KB).
const DefaultMaxBodySize = 256 << 10

// BodyLimit limits the maximum size of request bodies.
// If maxBytes is 0, DefaultMaxBodySize is used.
//
// The limit is enforced while the body is read, never up front, so the
// handler's own checks answer first. Handlers report an overflow with
// WriteBodyReadError.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead ||
				r.Method == http.MethodOptions || r.Method == http.MethodTrace {
				next.ServeHTTP(w, r)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}

// HandleBodyLimitError writes the 413 response for an oversized body.
func HandleBodyLimitError(w http.ResponseWriter, _ *http.Request) {
	apierror.New(http.StatusRequestEntityTooLarge, apierror.CodeBadRequest,
		"Payload muito grande").WriteJSON(w)
}

// WriteBodyReadError writes the client error for a body read that failed
// inside BodyLimit or Decompress. It reports false for any other error.
func WriteBodyReadError(w http.ResponseWriter, r *http.Request, err error) bool {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		HandleBodyLimitError(w, r)
	case errors.Is(err, ErrUnsupportedEncoding):
		apierror.New(http.StatusUnsupportedMediaType, apierror.CodeBadRequest,
			"Content-Encoding não suportado").WithError(err).WriteJSON(w)
	case errors.Is(err, ErrInvalidCompressedBody):
		apierror.BadRequest("Corpo comprimido inválido").WithError(err).WriteJSON(w)
	default:
		return false
	}
	return true
}
