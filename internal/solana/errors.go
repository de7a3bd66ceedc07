package solana

import (
	"errors"
	"fmt"
)

// ErrInvalidAddress is returned when an address is not a base58 encoded 32 byte key.
var ErrInvalidAddress = errors.New("invalid address")

// JSON-RPC error codes returned by Solana nodes.
const (
	CodeInvalidParams          = -32602
	CodeInternalError          = -32603
	CodeBlockNotAvailable      = -32004
	CodeNodeUnhealthy          = -32005
	CodeTransactionHistoryGone = -32011
	CodeTooManyRequests        = 429
)

// RPCError is a JSON-RPC 2.0 error embedded in a 200 response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// HTTPStatusError is returned for non-200 HTTP responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsRPCCode reports whether err wraps an RPCError with the given code.
func IsRPCCode(err error, code int) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}

// RPCCode exposes the JSON-RPC error code to error classifiers.
func (e *RPCError) RPCCode() int {
	return e.Code
}

// HTTPStatus exposes the status code to error classifiers.
func (e *HTTPStatusError) HTTPStatus() int {
	return e.StatusCode
}
