package server

import (
	"encoding/json"
	"net/http"

	"github.com/zot/modbind/internal/app"
	"github.com/zot/modbind/internal/binding"
)

// Page is the bound page the server previews.
type Page interface {
	HTML() (string, error)
	BodyHTML() (string, error)
	Set(name string, value any) error
	Values() (map[string]any, error)
	Bindings() ([]binding.BindingInfo, error)
	Templates() ([]app.TemplateInfo, error)
	OnChange(fn func())
}

// HTTPEndpoint handles HTTP requests.
type HTTPEndpoint struct {
	page       Page
	wsEndpoint *WebSocketEndpoint
	mux        *http.ServeMux
}

// NewHTTPEndpoint creates a new HTTP endpoint.
func NewHTTPEndpoint(page Page, wsEndpoint *WebSocketEndpoint) *HTTPEndpoint {
	h := &HTTPEndpoint{
		page:       page,
		wsEndpoint: wsEndpoint,
		mux:        http.NewServeMux(),
	}
	h.setupRoutes()
	return h
}

// setupRoutes configures HTTP routes.
func (h *HTTPEndpoint) setupRoutes() {
	h.mux.HandleFunc("GET /{$}", h.handleShell)
	h.mux.HandleFunc("GET /page", h.handlePage)
	h.mux.HandleFunc("GET /ws", h.handleWebSocket)
	h.mux.HandleFunc("GET /api/bindings", h.handleBindings)
	h.mux.HandleFunc("GET /api/templates", h.handleTemplates)
	h.mux.HandleFunc("GET /api/values", h.handleValues)
	h.mux.HandleFunc("POST /api/values", h.handleSetValue)
}

// ServeHTTP implements http.Handler.
func (h *HTTPEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *HTTPEndpoint) handleShell(w http.ResponseWriter, r *http.Request) {
	body, err := h.page.BodyHTML()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	title := "modbind"
	if values, err := h.page.Values(); err == nil {
		if t, ok := values["title"].(string); ok && t != "" {
			title = t
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := Shell(title, body).Render(r.Context(), w); err != nil {
		h.wsEndpoint.Log(0, "shell render failed: %v", err)
	}
}

func (h *HTTPEndpoint) handlePage(w http.ResponseWriter, r *http.Request) {
	html, err := h.page.HTML()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

func (h *HTTPEndpoint) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsEndpoint.HandleWebSocket(w, r)
}

func (h *HTTPEndpoint) handleBindings(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.page.Bindings()
	writeJSON(w, bindings, err)
}

func (h *HTTPEndpoint) handleTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.page.Templates()
	writeJSON(w, templates, err)
}

func (h *HTTPEndpoint) handleValues(w http.ResponseWriter, r *http.Request) {
	values, err := h.page.Values()
	writeJSON(w, values, err)
}

// handleSetValue accepts {"name": ..., "value": ...}.
func (h *HTTPEndpoint) handleSetValue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	value, err := DecodeValue(req.Value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.page.Set(req.Name, value); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
