package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/heart"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "central", "meeting"
}

// DefinitionView is one central definition prepared for display.
type DefinitionView struct {
	heart.CentralDefinition
	RenderedHTML template.HTML
}

// CentralPageData is the template data for the central memory page.
type CentralPageData struct {
	PageData
	Items []DefinitionView
	Count int
}

// MeetingPageData is the template data for the meeting page.
type MeetingPageData struct {
	PageData
	Meeting    *heart.MeetingData
	SourceHTML template.HTML
	Current    *heart.AfterLanguageVersion
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string) *Renderer {
	funcMap := template.FuncMap{
		"formatMillis": formatMillis,
		"markdown":     renderMarkdown,
		"join":         strings.Join,
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"central": "central.html",
		"meeting": "meeting.html",
		"error":   "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, name string, data any) {
	r.renderPageStatus(w, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		slog.Error("template not found", "name", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("template execution failed", "name", name, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response for an HTML route, falling back to the
// JSON envelope when the client asks for JSON.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	code, status, message := describeError(err)

	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		renderJSON(w, status, errorEnvelope{Error: string(code), Message: message})
		return
	}

	r.renderPageStatus(w, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Message:    message,
	})
}

// errorEnvelope is the body of every failed API response.
type errorEnvelope struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// describeError maps err to a code, HTTP status, and client-safe message.
// INTERNAL messages are replaced so storage paths never reach the client.
func describeError(err error) (errors.ErrorCode, int, string) {
	cErr, ok := errors.As(err)
	if !ok {
		cErr = errors.NewInternal(err)
	}
	if cErr.Code == errors.ErrInternal {
		return cErr.Code, cErr.Status, "an internal error occurred"
	}
	return cErr.Code, cErr.Status, cErr.Message
}

// renderAPIError writes the JSON failure envelope for err.
func renderAPIError(w http.ResponseWriter, r *http.Request, err error) {
	code, status, message := describeError(err)
	if code == errors.ErrInternal {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "requestId", requestIDFrom(r.Context()), "err", err)
	}
	renderJSON(w, status, errorEnvelope{Error: string(code), Message: message})
}

// renderOK writes {"ok": true} merged with the JSON fields of out.
func renderOK(w http.ResponseWriter, r *http.Request, out any) {
	body := map[string]any{}
	if out != nil {
		b, err := json.Marshal(out)
		if err == nil {
			err = json.Unmarshal(b, &body)
		}
		if err != nil {
			renderAPIError(w, r, errors.NewInternal(err))
			return
		}
	}
	body["ok"] = true
	renderJSON(w, http.StatusOK, body)
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark.
// goldmark drops raw HTML by default, so the result is safe to embed.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatMillis formats a Unix millisecond timestamp as "2006-01-02 15:04" UTC.
func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}
