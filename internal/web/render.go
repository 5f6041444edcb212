package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/hpungsan/tote/internal/cart"
	"github.com/hpungsan/tote/internal/errors"
	"github.com/hpungsan/tote/internal/session"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	User    string // empty for the guest cart
}

// LineView is one cart line prepared for display.
type LineView struct {
	ProductID   string
	Name        string
	Quantity    int
	UnitPrice   float64
	LineTotal   float64
	Description template.HTML
}

// CartPageData is the template data for the cart page.
type CartPageData struct {
	PageData
	Phase         session.Phase
	Lines         []LineView
	TotalQuantity int
	Subtotal      float64
	Guest         []cart.GuestItem
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
	log       *zap.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	funcMap := template.FuncMap{
		"money": formatMoney,
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"cart":  "cart.html",
		"error": "error.html",
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
		log:       log,
	}
}

// cartPage builds the cart page data from a snapshot.
func (r *Renderer) cartPage(user string, snap session.Snapshot) CartPageData {
	lines := make([]LineView, 0, len(snap.Items))
	for _, it := range snap.Items {
		lv := LineView{
			ProductID: it.ProductID,
			Name:      it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.UnitPrice * float64(it.Quantity),
		}
		if it.Product != nil {
			if it.Product.Name != "" {
				lv.Name = it.Product.Name
			}
			if it.Product.Description != "" {
				lv.Description = renderMarkdown(it.Product.Description)
			}
		}
		lines = append(lines, lv)
	}

	return CartPageData{
		PageData: PageData{
			Title:   "Cart",
			Version: r.version,
			User:    user,
		},
		Phase:         snap.Phase,
		Lines:         lines,
		TotalQuantity: snap.TotalQuantity,
		Subtotal:      snap.Subtotal,
		Guest:         snap.GuestItems,
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
		r.log.Error("template not found", zap.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.log.Error("template execution", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	tErr, ok := errors.As(err)
	if !ok {
		tErr = errors.NewInternal(err)
	}
	if tErr.Status >= 500 {
		r.log.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
	}

	status := tErr.Status
	message := tErr.Message

	if wantsJSON(req) {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    string(tErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	// Full error page
	r.renderPageStatus(w, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Message:    message,
	})
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark.
// Raw HTML in the source is dropped by goldmark's default renderer.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatMoney formats an amount with two decimals.
func formatMoney(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
