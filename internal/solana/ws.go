package solana

import "context"

// LogsSubscriber defines the Solana WebSocket logs subscription surface.
type LogsSubscriber interface {
	// SubscribeLogs subscribes to transaction logs matching the filter.
	// The returned channel is closed when the client is closed.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs of transactions that mention any of these addresses.
	Mentions []string
	// Commitment defaults to confirmed.
	Commitment string
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// Failed reports whether the notified transaction failed.
func (n LogNotification) Failed() bool {
	return n.Err != nil
}
