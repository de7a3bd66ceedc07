package storage

import (
	"errors"
	"fmt"

	"solana-trade-ledger/internal/domain"
)

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidateTrade checks the fields that make up a trade's key and direction.
func ValidateTrade(t *domain.Trade) error {
	switch {
	case t == nil:
		return fmt.Errorf("%w: nil trade", ErrInvalidInput)
	case t.Wallet == "" || t.Signature == "":
		return fmt.Errorf("%w: trade requires wallet and signature", ErrInvalidInput)
	case !t.Direction.IsValid():
		return fmt.Errorf("%w: trade %s has direction %q", ErrInvalidInput, t.Signature, t.Direction)
	}
	return nil
}

// ValidateWatermark checks a watermark before it is stored.
func ValidateWatermark(w *domain.Watermark) error {
	switch {
	case w == nil:
		return fmt.Errorf("%w: nil watermark", ErrInvalidInput)
	case w.Wallet == "":
		return fmt.Errorf("%w: watermark requires wallet", ErrInvalidInput)
	case w.LastSeenTimestamp < 0:
		return fmt.Errorf("%w: negative watermark timestamp", ErrInvalidInput)
	}
	return nil
}

// CloneTrade returns a copy of t that shares no slices with it.
func CloneTrade(t *domain.Trade) *domain.Trade {
	c := *t
	if t.AllTokenChanges != nil {
		c.AllTokenChanges = append([]domain.TokenChange(nil), t.AllTokenChanges...)
	}
	return &c
}
