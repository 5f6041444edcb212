package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a tote error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"    // 401
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrCartMissing    ErrorCode = "CART_MISSING"    // 404 (remote cart not created yet)
	ErrStorage        ErrorCode = "STORAGE"         // 500
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrRemote         ErrorCode = "REMOTE"          // 502
)

// ToteError represents a structured error with code, status, and details.
type ToteError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ToteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ToteError {
	return &ToteError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthorized creates a 401 error for a rejected or missing API token.
func NewUnauthorized(msg string) *ToteError {
	if msg == "" {
		msg = "not authorized"
	}
	return &ToteError{
		Code:    ErrUnauthorized,
		Status:  401,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing cart line.
func NewNotFound(productID string) *ToteError {
	return &ToteError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("product not in cart: %s", productID),
		Details: map[string]any{"product_id": productID},
	}
}

// NewCartMissing creates a 404 error reported when the remote cart for a user
// has not been created yet.
func NewCartMissing(userID string) *ToteError {
	return &ToteError{
		Code:    ErrCartMissing,
		Status:  404,
		Message: fmt.Sprintf("cart not found for user %s", userID),
		Details: map[string]any{"user_id": userID},
	}
}

// NewStorage creates a 500 error for guest store write failures.
func NewStorage(err error) *ToteError {
	msg := "storage error"
	if err != nil {
		msg = fmt.Sprintf("storage error: %v", err)
	}
	return &ToteError{
		Code:    ErrStorage,
		Status:  500,
		Message: msg,
	}
}

// NewRemote creates a 502 error for failed remote cart API calls.
// status is the HTTP status returned by the API (0 for transport failures).
func NewRemote(status int, msg string) *ToteError {
	details := map[string]any{}
	if status != 0 {
		details["remote_status"] = status
	}
	return &ToteError{
		Code:    ErrRemote,
		Status:  502,
		Message: msg,
		Details: details,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The original error is kept in Details so it can be logged without leaking
// to callers.
func NewInternal(err error) *ToteError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &ToteError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// As returns the ToteError in err's chain, if any.
func As(err error) (*ToteError, bool) {
	var tErr *ToteError
	if stderrors.As(err, &tErr) {
		return tErr, true
	}
	return nil, false
}

// Is checks if an error (or anything it wraps) is a ToteError with the given code.
func Is(err error, code ErrorCode) bool {
	if tErr, ok := As(err); ok {
		return tErr.Code == code
	}
	return false
}
