// Package remote is the HTTP client for the backend cart API used once a user
// is authenticated.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/tote/internal/cart"
	"github.com/hpungsan/tote/internal/config"
	"github.com/hpungsan/tote/internal/errors"
)

// cartNotFoundCode is the error code the API uses for a user without a cart.
const cartNotFoundCode = "CART_NOT_FOUND"

// AddItemRequest is the body of an add-to-cart call.
type AddItemRequest struct {
	ProductID string  `json:"productId"`
	Amount    int     `json:"amount"`
	Price     float64 `json:"price"`
}

// Cart is the remote cart as returned by GET /carts/{userId}.
type Cart struct {
	UserID string           `json:"userId,omitempty"`
	Items  []cart.GuestItem `json:"items"`
}

// apiError is the error body returned by the API.
type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client talks to the remote cart API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token attached to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("remote")
	return c
}

// NewFromConfig builds a client from the API settings in cfg.
func NewFromConfig(cfg *config.Config, log *zap.Logger) *Client {
	hc := &http.Client{}
	if cfg.RequestTimeoutSeconds > 0 {
		hc.Timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}
	return New(cfg.APIBaseURL, WithHTTPClient(hc), WithToken(cfg.APIToken), WithLogger(log))
}

// AddToCart adds amount units of a product to the user's cart.
// Returns a CART_MISSING error when the user has no cart yet.
func (c *Client) AddToCart(ctx context.Context, userID string, req AddItemRequest) error {
	return c.do(ctx, http.MethodPost, cartPath(userID, "items"), userID, req, nil)
}

// CreateCart creates an empty cart for the user.
func (c *Client) CreateCart(ctx context.Context, userID string) error {
	body := map[string]string{"userId": userID}
	return c.do(ctx, http.MethodPost, "/carts", userID, body, nil)
}

// GetCart returns the user's cart.
func (c *Client) GetCart(ctx context.Context, userID string) (*Cart, error) {
	var out Cart
	if err := c.do(ctx, http.MethodGet, cartPath(userID), userID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveItem drops a product from the user's cart.
func (c *Client) RemoveItem(ctx context.Context, userID, productID string) error {
	return c.do(ctx, http.MethodDelete, cartPath(userID, "items", productID), userID, nil, nil)
}

// SetQuantity sets the amount of a product already in the user's cart.
func (c *Client) SetQuantity(ctx context.Context, userID, productID string, amount int) error {
	body := map[string]int{"amount": amount}
	return c.do(ctx, http.MethodPut, cartPath(userID, "items", productID), userID, body, nil)
}

// ClearCart removes every item from the user's cart.
func (c *Client) ClearCart(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, cartPath(userID, "items"), userID, nil, nil)
}

func cartPath(userID string, parts ...string) string {
	segs := []string{"/carts", url.PathEscape(userID)}
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return strings.Join(segs, "/")
}

// do sends one request and decodes a 2xx JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path, userID string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.NewInternal(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.NewInternal(err)
	}
	requestID := newRequestID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log := c.log.With(zap.String("method", method), zap.String("path", path), zap.String("request_id", requestID))

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("remote request failed", zap.Error(err))
		return errors.NewRemote(0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.NewRemote(resp.StatusCode, fmt.Sprintf("read response: %v", err))
	}

	log.Debug("remote response", zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classify(resp.StatusCode, respBody, userID)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.NewRemote(resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}
	return nil
}

// classify maps a non-2xx response to a typed error. It never inspects the
// human-readable message to decide the error kind.
func classify(status int, body []byte, userID string) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case apiErr.Code == cartNotFoundCode, status == http.StatusNotFound:
		return errors.NewCartMissing(userID)
	case status == http.StatusUnauthorized:
		return errors.NewUnauthorized(msg)
	case status == http.StatusBadRequest:
		return errors.NewInvalidRequest(msg)
	default:
		return errors.NewRemote(status, msg)
	}
}

func newRequestID() string {
	return ulid.Make().String()
}
