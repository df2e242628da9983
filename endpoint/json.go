package endpoint

import (
	"encoding/json"
	"net/http"
)

// JSONRenderer serializes a value as JSON and writes it to the response.
//
// JSONRenderer is terminal: it MUST call WriteHeader and MUST NOT call next.
//
// Content-Type is always set to "application/json". HTML characters are not
// escaped.
//
// Note: since writing the response may have already started, callers should
// treat returned encoding errors as best-effort signals.
//
// This renderer uses json.Encoder which appends a trailing newline.
type JSONRenderer struct {
	Status int
	Value  interface{}
	// Indent, when non-empty, pretty-prints the output using Indent per level.
	Indent string
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")

	status := jr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if jr.Indent != "" {
		enc.SetIndent("", jr.Indent)
	}
	return enc.Encode(jr.Value)
}
