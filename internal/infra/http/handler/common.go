// Package handler contains the HTTP handlers of the council API.
package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/archoncouncil/api/internal/infra/http/middleware"
	"github.com/archoncouncil/api/internal/security"
	"github.com/archoncouncil/api/pkg/apierror"
)

// Route names used for rate-limit keys, metrics and audit records.
const (
	RouteDecision = "archon-decision"
	RouteAuth     = "auth-validate"
	RouteTTS      = "elevenlabs-tts"
)

// MsgInvalidJSON is returned for bodies that are not valid JSON.
const MsgInvalidJSON = "JSON inválido"

// Guard bundles the security checks shared by the gated endpoints.
type Guard struct {
	Gate    *security.Gate
	Auth    *security.Authenticator
	Payload security.PayloadValidator
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readBody reads the request body and decodes it into a generic value for
// payload validation. The raw bytes are returned for typed decoding.
func readBody(r *http.Request) (any, []byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, nil, fmt.Errorf("decode body: %w", err)
	}
	return body, raw, nil
}

// writeBodyError maps a readBody failure to a client error.
func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	if middleware.WriteBodyReadError(w, r, err) {
		return
	}
	apierror.BadRequest(MsgInvalidJSON).WithError(err).WriteJSON(w)
}

// field returns body[key] when body is an object, else nil.
func field(body any, key string) any {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil
	}
	return obj[key]
}
