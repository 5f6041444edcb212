package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/tote/internal/cart"
	"github.com/hpungsan/tote/internal/config"
	"github.com/hpungsan/tote/internal/db"
	"github.com/hpungsan/tote/internal/errors"
	"github.com/hpungsan/tote/internal/guest"
	"github.com/hpungsan/tote/internal/logging"
	"github.com/hpungsan/tote/internal/remote"
	"github.com/hpungsan/tote/internal/session"
)

// testSetup creates a guest-only cart registry backed by a temporary database.
func testSetup(t *testing.T) (*session.Carts, *config.Config) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	carts := session.NewCarts(guest.NewSQLiteStore(database, "", logging.Nop()), nil, logging.Nop())
	return carts, config.DefaultConfig()
}

// cartAPI is a minimal in-memory cart API. Requests for a user without a
// cart answer 404 until the cart is created.
type cartAPI struct {
	mu      sync.Mutex
	carts   map[string]map[string]int
	methods []string
	sets    []int
}

func newCartAPI(t *testing.T) (*cartAPI, *httptest.Server) {
	t.Helper()
	api := &cartAPI{carts: make(map[string]map[string]int)}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *cartAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.methods = append(a.methods, r.Method+" "+r.URL.Path)

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "carts":
		var body struct {
			UserID string `json:"userId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.carts[body.UserID] = make(map[string]int)
		w.WriteHeader(http.StatusCreated)
		return
	case len(parts) < 2 || parts[0] != "carts":
		w.WriteHeader(http.StatusNotFound)
		return
	}

	c, ok := a.carts[parts[1]]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"CART_NOT_FOUND","message":"no cart"}`))
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		out := remote.Cart{UserID: parts[1], Items: []cart.GuestItem{}}
		for id, amount := range c {
			out.Items = append(out.Items, cart.GuestItem{ProductID: id, Amount: amount})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	case r.Method == http.MethodPost && len(parts) == 3:
		var req remote.AddItemRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		c[req.ProductID] += req.Amount
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && len(parts) == 4:
		var body struct {
			Amount int `json:"amount"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.sets = append(a.sets, body.Amount)
		c[parts[3]] = body.Amount
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodDelete && len(parts) == 4:
		delete(c, parts[3])
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodDelete && len(parts) == 3:
		a.carts[parts[1]] = make(map[string]int)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *cartAPI) calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.methods...)
}

// setAmounts returns the amounts sent with each PUT, in order.
func (a *cartAPI) setAmounts() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.sets...)
}

func newRemoteCarts(srv *httptest.Server) *session.Carts {
	return session.NewCarts(guest.NewMemoryStore(nil), remote.New(srv.URL), logging.Nop())
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleAdd(t *testing.T) {
	carts, _ := testSetup(t)
	h := NewHandlers(carts)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name: "add guest product",
			args: map[string]any{
				"product_id": "p1",
				"name":       "Mug",
				"price":      9.5,
				"amount":     2,
			},
		},
		{
			name: "add without amount defaults to one",
			args: map[string]any{"product_id": "p2", "price": 3},
		},
		{
			name:      "add without product_id",
			args:      map[string]any{"amount": 1},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "add negative amount",
			args:      map[string]any{"product_id": "p1", "amount": -2},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "add with malformed amount",
			args:      map[string]any{"product_id": "p1", "amount": "two"},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleAdd(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}

			output := parseOutput(t, result)
			if output["guest"] != true {
				t.Errorf("guest = %v, want true", output["guest"])
			}
			if _, ok := output["cart"].(map[string]any); !ok {
				t.Errorf("expected cart snapshot in output, got %v", output)
			}
		})
	}

	// p1 was added with amount 2, p2 with the default amount.
	sc := carts.For(ctx, "")
	stored := sc.GuestItems(ctx)
	if len(stored) != 2 {
		t.Fatalf("guest record has %d items, want 2", len(stored))
	}
	if stored[0].Amount != 2 || stored[1].Amount != 1 {
		t.Errorf("guest amounts = %d,%d, want 2,1", stored[0].Amount, stored[1].Amount)
	}
	if line, _ := sc.State().Find("p1"); line.Quantity != 1 {
		t.Errorf("in-memory quantity = %d, want 1", line.Quantity)
	}
}

func TestHandleAdd_AuthenticatedCreatesCart(t *testing.T) {
	api, srv := newCartAPI(t)
	h := NewHandlers(newRemoteCarts(srv))

	result, err := h.HandleAdd(context.Background(), makeRequest(map[string]any{
		"product_id": "p1",
		"price":      4,
		"amount":     3,
		"user_id":    "u1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := parseOutput(t, result)
	if output["guest"] != false {
		t.Errorf("guest = %v, want false", output["guest"])
	}
	if output["created"] != true {
		t.Errorf("created = %v, want true", output["created"])
	}

	want := []string{"GET /carts/u1", "POST /carts/u1/items", "POST /carts", "POST /carts/u1/items"}
	got := api.calls()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestHandleShow(t *testing.T) {
	carts, _ := testSetup(t)
	h := NewHandlers(carts)
	ctx := context.Background()

	if _, err := h.HandleAdd(ctx, makeRequest(map[string]any{"product_id": "p1", "price": 2.5, "amount": 4})); err != nil {
		t.Fatalf("add: %v", err)
	}

	result, err := h.HandleShow(ctx, makeRequest(map[string]any{"include_guest": true}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := parseOutput(t, result)

	if output["total_quantity"] != float64(1) {
		t.Errorf("total_quantity = %v, want 1", output["total_quantity"])
	}
	if output["subtotal"] != 2.5 {
		t.Errorf("subtotal = %v, want 2.5", output["subtotal"])
	}
	guestItems, ok := output["guest_items"].([]any)
	if !ok || len(guestItems) != 1 {
		t.Fatalf("guest_items = %v, want one item", output["guest_items"])
	}
	if amount := guestItems[0].(map[string]any)["amount"]; amount != float64(4) {
		t.Errorf("guest amount = %v, want 4", amount)
	}

	result, err = h.HandleShow(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := parseOutput(t, result)["guest_items"]; ok {
		t.Error("guest_items should be omitted unless requested")
	}
}

func TestHandleLineTools(t *testing.T) {
	carts, _ := testSetup(t)
	h := NewHandlers(carts)
	ctx := context.Background()

	if _, err := h.HandleAdd(ctx, makeRequest(map[string]any{"product_id": "p1", "price": 1})); err != nil {
		t.Fatalf("add: %v", err)
	}

	tests := []struct {
		name      string
		handler   func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args      map[string]any
		wantQty   float64
		errorCode string
	}{
		{name: "increment", handler: h.HandleIncrement, args: map[string]any{"product_id": "p1"}, wantQty: 2},
		{name: "decrement", handler: h.HandleDecrement, args: map[string]any{"product_id": "p1"}, wantQty: 1},
		{name: "increment missing product", handler: h.HandleIncrement, args: map[string]any{"product_id": "nope"}, errorCode: "NOT_FOUND"},
		{name: "remove without product_id", handler: h.HandleRemove, args: map[string]any{}, errorCode: "INVALID_REQUEST"},
		{name: "remove", handler: h.HandleRemove, args: map[string]any{"product_id": "p1"}, wantQty: 0},
		{name: "remove again", handler: h.HandleRemove, args: map[string]any{"product_id": "p1"}, errorCode: "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.errorCode != "" {
				if !result.IsError {
					t.Fatalf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}

			output := parseOutput(t, result)
			if output["total_quantity"] != tt.wantQty {
				t.Errorf("total_quantity = %v, want %v", output["total_quantity"], tt.wantQty)
			}
		})
	}
}

func TestHandleClear(t *testing.T) {
	carts, _ := testSetup(t)
	h := NewHandlers(carts)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		if _, err := h.HandleAdd(ctx, makeRequest(map[string]any{"product_id": id})); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	result, err := h.HandleClear(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := parseOutput(t, result)
	if items, _ := output["items"].([]any); len(items) != 0 {
		t.Errorf("items = %v, want empty", output["items"])
	}
	if n := len(carts.For(ctx, "").GuestItems(ctx)); n != 0 {
		t.Errorf("guest record has %d items, want 0", n)
	}
}

func TestHandleClear_AuthenticatedWithoutRemote(t *testing.T) {
	carts, _ := testSetup(t)
	h := NewHandlers(carts)

	result, err := h.HandleClear(context.Background(), makeRequest(map[string]any{"user_id": "u1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandlers_GuestAndUserCartsAreSeparate(t *testing.T) {
	api, srv := newCartAPI(t)
	h := NewHandlers(newRemoteCarts(srv))
	ctx := context.Background()

	if result, _ := h.HandleAdd(ctx, makeRequest(map[string]any{"product_id": "guestonly", "price": 2})); result.IsError {
		t.Fatalf("guest add failed: %s", extractErrorMessage(result))
	}

	result, err := h.HandleIncrement(ctx, makeRequest(map[string]any{"product_id": "guestonly", "user_id": "7"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertErrorCode(t, result, "NOT_FOUND")

	for _, call := range api.calls() {
		if strings.HasPrefix(call, "PUT ") {
			t.Errorf("unexpected remote update %q", call)
		}
	}

	result, _ = h.HandleShow(ctx, makeRequest(nil))
	if qty := parseOutput(t, result)["total_quantity"]; qty != float64(1) {
		t.Errorf("guest total_quantity = %v, want 1", qty)
	}
	result, _ = h.HandleShow(ctx, makeRequest(map[string]any{"user_id": "7"}))
	if qty := parseOutput(t, result)["total_quantity"]; qty != float64(0) {
		t.Errorf("user total_quantity = %v, want 0", qty)
	}
}

func TestHandleLineTools_AuthenticatedUsesServerAmount(t *testing.T) {
	api, srv := newCartAPI(t)
	h := NewHandlers(newRemoteCarts(srv))
	ctx := context.Background()
	line := map[string]any{"product_id": "p1", "user_id": "u1"}

	if result, _ := h.HandleAdd(ctx, makeRequest(map[string]any{"product_id": "p1", "price": 1, "amount": 3, "user_id": "u1"})); result.IsError {
		t.Fatalf("add failed: %s", extractErrorMessage(result))
	}
	if result, _ := h.HandleIncrement(ctx, makeRequest(line)); result.IsError {
		t.Fatalf("increment failed: %s", extractErrorMessage(result))
	}
	result, _ := h.HandleDecrement(ctx, makeRequest(line))
	if result.IsError {
		t.Fatalf("decrement failed: %s", extractErrorMessage(result))
	}

	if got := api.setAmounts(); len(got) != 2 || got[0] != 4 || got[1] != 3 {
		t.Errorf("PUT amounts = %v, want [4 3]", got)
	}
	if qty := parseOutput(t, result)["total_quantity"]; qty != float64(1) {
		t.Errorf("total_quantity = %v, want 1", qty)
	}
}

func TestServerRegistration(t *testing.T) {
	carts, cfg := testSetup(t)

	s := NewServer(carts, cfg, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"cart_add",
		"cart_show",
		"cart_remove",
		"cart_increment",
		"cart_decrement",
		"cart_clear",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	carts, cfg := testSetup(t)

	cfg.DisabledTools = []string{"cart_clear", "cart_remove"}
	s := NewServer(carts, cfg, "test")
	tools := s.ListTools()

	if len(tools) != 4 {
		t.Errorf("registered tool count = %d, want 4", len(tools))
	}

	for _, name := range []string{"cart_clear", "cart_remove"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_DisabledType(t *testing.T) {
	carts, cfg := testSetup(t)

	cfg.DisabledTypes = []string{"cart"}
	s := NewServer(carts, cfg, "test")

	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (type disabled)", len(tools))
	}
}

func TestServerRegistration_DuplicateDisabled(t *testing.T) {
	carts, cfg := testSetup(t)

	cfg.DisabledTools = []string{"cart_clear", "cart_clear", "cart_clear"}
	s := NewServer(carts, cfg, "test")
	tools := s.ListTools()

	if len(tools) != 5 {
		t.Errorf("registered tool count = %d, want 5", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{name: "all valid", input: []string{"cart_add", "cart_clear"}, wantLen: 0},
		{name: "one unknown", input: []string{"cart_add", "fake_tool"}, wantLen: 1},
		{name: "all unknown", input: []string{"foo", "bar", "baz"}, wantLen: 3},
		{name: "empty list", input: []string{}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestValidateDisabledTypes(t *testing.T) {
	if unknown := ValidateDisabledTypes([]string{"cart", "orders"}); len(unknown) != 1 || unknown[0] != "orders" {
		t.Errorf("ValidateDisabledTypes() = %v, want [orders]", unknown)
	}
}

func TestGetTypeForTool(t *testing.T) {
	tests := map[string]string{
		"cart_add":       "cart",
		"cart_decrement": "cart",
		"noprefix":       "",
		"_leading":       "",
	}
	for tool, want := range tests {
		if got := GetTypeForTool(tool); got != want {
			t.Errorf("GetTypeForTool(%q) = %q, want %q", tool, got, want)
		}
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()

	if len(names) != 6 {
		t.Errorf("AllToolNames() returned %d names, want 6", len(names))
	}

	unknown := ValidateDisabledTools(names)
	if len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrappedErr := fmt.Errorf("sync: %w", errors.NewCartMissing("u1"))

	errObj := errorObject(t, errorResult(wrappedErr))

	if errObj["code"] != string(errors.ErrCartMissing) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrCartMissing)
	}
	msg := errObj["message"].(string)
	if !strings.HasPrefix(msg, "sync: ") {
		t.Errorf("message should keep wrapper context 'sync: ', got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewNotFound("abc")))

	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != "INTERNAL" {
		t.Errorf("code=%v, want INTERNAL", errObj["code"])
	}
	if errObj["message"] != "an internal error occurred" {
		t.Errorf("message=%v", errObj["message"])
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("payload has no error object: %v", payload)
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	if code := errorObj["code"]; code != expectedCode {
		t.Errorf("error code = %v, want %v", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}

func TestDecode_TypeErrorNamesField(t *testing.T) {
	_, err := decode[AddRequest](makeRequest(map[string]any{"product_id": "p1", "amount": "two"}))
	if err == nil {
		t.Fatal("expected error")
	}
	tErr, ok := errors.As(err)
	if !ok || tErr.Code != errors.ErrInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
	if !strings.Contains(tErr.Message, "amount") {
		t.Errorf("message should name the field, got %q", tErr.Message)
	}
}
