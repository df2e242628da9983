package endpoint

import "net/http"

// StringRenderer is a renderer implementation that writes a string
// as the response body with an optional status code and content type.
//
// When ContentType is empty, StringRenderer defaults to
// "text/plain; charset=utf-8".
type StringRenderer struct {
	Status      int
	Body        string
	ContentType string
}

// setContentType ensures that a suitable Content-Type header is set for
// text-based responses. If the Content-Type header is already set, it is left
// unchanged. If contentType is empty, a default of "text/plain; charset=utf-8"
// is used.
func setContentType(w http.ResponseWriter, contentType string) {
	// Only set Content-Type if it has not already been set by an outer
	// renderer (e.g., a status or header renderer).
	if w.Header().Get("Content-Type") == "" {
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
	}
}

// Render implements Renderer for StringRenderer.
//
// StringRenderer is terminal: it MUST call WriteHeader and MUST NOT call next.
func (tr *StringRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	setContentType(w, tr.ContentType)
	status := tr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if tr.Body == "" {
		return nil
	}
	_, err := w.Write([]byte(tr.Body))
	return err
}

// PlainRenderer is a convenience wrapper for plain-text responses.
//
// It embeds StringRenderer and forces a plain-text content type.
type PlainRenderer struct {
	StringRenderer
}

// Render implements Renderer for PlainRenderer.
func (pr *PlainRenderer) Render(w http.ResponseWriter, r *http.Request) error {
	pr.StringRenderer.ContentType = "text/plain; charset=utf-8"
	return pr.StringRenderer.Render(w, r)
}

// NoContentRenderer writes a response with no body and a specific status code.
//
// If Status is 0, it defaults to http.StatusNoContent.
type NoContentRenderer struct {
	Status int
}

func (ncr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	status := ncr.Status
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	return nil
}

// RawRenderer writes pre-serialized bytes with an explicit status and header set.
//
// Unlike StringRenderer, RawRenderer never supplies a default Content-Type. When
// Header carries no Content-Type, the header is suppressed so that net/http does
// not sniff one from the body.
//
// If Status is 0, it defaults to http.StatusOK.
type RawRenderer struct {
	Status int
	Header http.Header
	Body   []byte
}

// Render implements Renderer for RawRenderer.
func (rr *RawRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	h := w.Header()
	for k, vs := range rr.Header {
		h[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if len(h.Values("Content-Type")) == 0 {
		h["Content-Type"] = nil
	}
	status := rr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(rr.Body) == 0 {
		return nil
	}
	_, err := w.Write(rr.Body)
	return err
}
