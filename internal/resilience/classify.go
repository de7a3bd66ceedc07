package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Class buckets an error by how the executor reacts to it.
type Class int

const (
	// ClassPermanent fails immediately and never counts against the breaker.
	ClassPermanent Class = iota
	// ClassNetwork covers refused, reset and unresolvable connections.
	ClassNetwork
	// ClassTimeout covers client and request timeouts (HTTP 408 included).
	ClassTimeout
	// ClassServer covers HTTP 5xx and node-side RPC errors.
	ClassServer
	// ClassRateLimit covers HTTP 429 and rate-limit RPC errors.
	ClassRateLimit
)

func (c Class) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassTimeout:
		return "timeout"
	case ClassServer:
		return "server"
	case ClassRateLimit:
		return "rate_limit"
	default:
		return "permanent"
	}
}

// Retryable reports whether another attempt may succeed.
func (c Class) Retryable() bool {
	return c != ClassPermanent
}

// CountsAsFailure reports whether the breaker records this outcome as a failure.
func (c Class) CountsAsFailure() bool {
	return c != ClassPermanent
}

// statusCoder is implemented by HTTP status errors.
type statusCoder interface {
	HTTPStatus() int
}

// rpcCoder is implemented by JSON-RPC error objects.
type rpcCoder interface {
	RPCCode() int
}

// JSON-RPC codes that indicate a lagging or overloaded node.
var serverRPCCodes = map[int]bool{
	-32004: true, // block not available
	-32005: true, // node unhealthy / behind
	-32014: true, // block status not yet available
}

// JSON-RPC codes some providers use for throttling.
var rateLimitRPCCodes = map[int]bool{
	429:    true,
	-32429: true,
	-32029: true,
}

// Classify maps an operation error to a Class.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.HTTPStatus())
	}

	var rc rpcCoder
	if errors.As(err, &rc) {
		code := rc.RPCCode()
		switch {
		case rateLimitRPCCodes[code] || isRateLimitMessage(err.Error()):
			return ClassRateLimit
		case serverRPCCodes[code]:
			return ClassServer
		default:
			return ClassPermanent
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return ClassNetwork
	}

	return ClassPermanent
}

func classifyStatus(status int) Class {
	switch {
	case status == 429:
		return ClassRateLimit
	case status == 408:
		return ClassTimeout
	case status >= 500 && status <= 599:
		return ClassServer
	default:
		return ClassPermanent
	}
}

func isRateLimitMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}
