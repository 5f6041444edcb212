package web

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hpungsan/tote/internal/cart"
	"github.com/hpungsan/tote/internal/errors"
	"github.com/hpungsan/tote/internal/session"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	cart     *session.ShoppingCart
	user     string
	log      *zap.Logger
	renderer *Renderer
}

// addInput is the body of POST /cart/items, as JSON or form fields.
type addInput struct {
	ProductID   string  `json:"product_id"`
	Name        string  `json:"name,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Description string  `json:"description,omitempty"`
	Amount      int     `json:"amount,omitempty"`
}

// addResponse is the JSON result of POST /cart/items.
type addResponse struct {
	*session.AddResult
	Cart session.Snapshot `json:"cart"`
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"phase":  h.cart.Phase(),
	})
}

// HandleShow handles GET /cart. ?guest=true attaches the stored guest record.
func (h *Handlers) HandleShow(w http.ResponseWriter, r *http.Request) {
	snap := h.cart.Snapshot(r.Context(), parseBoolParam(r, "guest"))

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, snap)
		return
	}
	h.renderer.renderPage(w, "cart", h.renderer.cartPage(h.user, snap))
}

// HandleAdd handles POST /cart/items.
func (h *Handlers) HandleAdd(w http.ResponseWriter, r *http.Request) {
	input, err := parseAddInput(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if input.Amount == 0 {
		input.Amount = 1
	}

	p := cart.Product{
		ID:          input.ProductID,
		Name:        input.Name,
		Price:       input.Price,
		Description: input.Description,
	}
	result, err := h.cart.AddToCart(r.Context(), p, input.Amount, h.user)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if result.Created {
		h.log.Info("created remote cart", zap.String("user_id", h.user))
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusCreated, addResponse{
			AddResult: result,
			Cart:      h.cart.Snapshot(r.Context(), false),
		})
		return
	}
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// HandleRemove handles DELETE /cart/items/{productID} and its form fallback.
func (h *Handlers) HandleRemove(w http.ResponseWriter, r *http.Request) {
	h.handleLine(w, r, h.cart.Remove)
}

// HandleIncrement handles POST /cart/items/{productID}/increment.
func (h *Handlers) HandleIncrement(w http.ResponseWriter, r *http.Request) {
	h.handleLine(w, r, h.cart.Increment)
}

// HandleDecrement handles POST /cart/items/{productID}/decrement.
func (h *Handlers) HandleDecrement(w http.ResponseWriter, r *http.Request) {
	h.handleLine(w, r, h.cart.Decrement)
}

// HandleClear handles POST /cart/clear.
func (h *Handlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	if _, err := h.cart.Clear(r.Context(), h.user); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respondCart(w, r)
}

type lineOp func(ctx context.Context, productID, userID string) (cart.State, error)

func (h *Handlers) handleLine(w http.ResponseWriter, r *http.Request, op lineOp) {
	productID := chi.URLParam(r, "productID")
	if productID == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("product id is required"))
		return
	}
	if _, err := op(r.Context(), productID, h.user); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respondCart(w, r)
}

// respondCart answers a successful mutation: the snapshot for JSON clients,
// a redirect back to the cart page otherwise.
func (h *Handlers) respondCart(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, h.cart.Snapshot(r.Context(), false))
		return
	}
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// parseAddInput reads a JSON body or form fields.
func parseAddInput(w http.ResponseWriter, r *http.Request) (addInput, error) {
	var in addInput

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		if err := dec.Decode(&in); err != nil {
			return in, errors.NewInvalidRequest("invalid JSON body: " + err.Error())
		}
		return in, nil
	}

	if err := r.ParseForm(); err != nil {
		return in, errors.NewInvalidRequest("invalid form body")
	}
	in.ProductID = strings.TrimSpace(r.PostForm.Get("product_id"))
	in.Name = strings.TrimSpace(r.PostForm.Get("name"))
	in.Description = r.PostForm.Get("description")

	if s := r.PostForm.Get("price"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return in, errors.NewInvalidRequest("price must be a non-negative number")
		}
		in.Price = v
	}
	if s := r.PostForm.Get("amount"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return in, errors.NewInvalidRequest("amount must be an integer")
		}
		in.Amount = v
	}
	return in, nil
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
