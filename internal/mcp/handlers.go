package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/tote/internal/cart"
	"github.com/hpungsan/tote/internal/errors"
	"github.com/hpungsan/tote/internal/session"
)

// Handlers holds dependencies for MCP tool handlers. Each call works on the
// cart of its user_id, so guest and per-user lines never mix.
type Handlers struct {
	carts *session.Carts
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(carts *session.Carts) *Handlers {
	return &Handlers{carts: carts}
}

// AddRequest represents the arguments for cart_add.
type AddRequest struct {
	ProductID   string  `json:"product_id"`
	Name        string  `json:"name,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Description string  `json:"description,omitempty"`
	Amount      int     `json:"amount,omitempty"`
	UserID      string  `json:"user_id,omitempty"`
}

// ShowRequest represents the arguments for cart_show.
type ShowRequest struct {
	IncludeGuest bool   `json:"include_guest,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

// LineRequest represents the arguments for tools addressing one cart line.
type LineRequest struct {
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id,omitempty"`
}

// ClearRequest represents the arguments for cart_clear.
type ClearRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// AddResponse is the cart_add result.
type AddResponse struct {
	*session.AddResult
	Cart session.Snapshot `json:"cart"`
}

// HandleAdd handles the cart_add tool call.
func (h *Handlers) HandleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AddRequest](req)
	if err != nil {
		return errorResult(err), nil
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
	sc := h.carts.For(ctx, input.UserID)
	result, err := sc.AddToCart(ctx, p, input.Amount, input.UserID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(AddResponse{AddResult: result, Cart: sc.Snapshot(ctx, false)})
}

// HandleShow handles the cart_show tool call.
func (h *Handlers) HandleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShowRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(h.carts.For(ctx, input.UserID).Snapshot(ctx, input.IncludeGuest))
}

// HandleRemove handles the cart_remove tool call.
func (h *Handlers) HandleRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.handleLine(ctx, req, (*session.ShoppingCart).Remove)
}

// HandleIncrement handles the cart_increment tool call.
func (h *Handlers) HandleIncrement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.handleLine(ctx, req, (*session.ShoppingCart).Increment)
}

// HandleDecrement handles the cart_decrement tool call.
func (h *Handlers) HandleDecrement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.handleLine(ctx, req, (*session.ShoppingCart).Decrement)
}

type lineOp func(*session.ShoppingCart, context.Context, string, string) (cart.State, error)

func (h *Handlers) handleLine(ctx context.Context, req mcp.CallToolRequest, op lineOp) (*mcp.CallToolResult, error) {
	input, err := decode[LineRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.ProductID == "" {
		return errorResult(errors.NewInvalidRequest("product_id is required")), nil
	}
	sc := h.carts.For(ctx, input.UserID)
	if _, err := op(sc, ctx, input.ProductID, input.UserID); err != nil {
		return errorResult(err), nil
	}
	return successResult(sc.Snapshot(ctx, false))
}

// HandleClear handles the cart_clear tool call.
func (h *Handlers) HandleClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClearRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	sc := h.carts.For(ctx, input.UserID)
	if _, err := sc.Clear(ctx, input.UserID); err != nil {
		return errorResult(err), nil
	}
	return successResult(sc.Snapshot(ctx, false))
}

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if tErr, ok := errors.As(err); ok {
		msg := tErr.Message
		if err != error(tErr) {
			// keep wrapper context such as "sync: "
			msg = strings.TrimSuffix(err.Error(), tErr.Error()) + tErr.Message
		}
		errorObj := map[string]any{
			"code":    tErr.Code,
			"message": msg,
			"status":  tErr.Status,
		}
		// Internal details may carry SQL or transport errors
		if tErr.Code != errors.ErrInternal && len(tErr.Details) > 0 {
			errorObj["details"] = tErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
