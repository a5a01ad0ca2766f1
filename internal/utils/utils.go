// Package utils provides common validation helpers for trading symbols.
package utils

import (
	"errors"
	"fmt"
)

// Error definitions for validation functions
var (
	ErrNoSymbols      = errors.New("zero symbols requested")
	ErrTooManySymbols = errors.New("too many symbols requested")
)

// ValidateSymbol validates an exchange trading pair symbol such as "BTCUSDT":
// non-empty, uppercase letters and digits only, within a sane length range.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return errors.New("symbol cannot be empty")
	}
	if len(symbol) < 5 || len(symbol) > 20 {
		return fmt.Errorf("symbol %q length out of range", symbol)
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("invalid character %q in symbol %q", r, symbol)
		}
	}
	return nil
}

// ValidatePairs validates a slice of trading pair symbols and enforces the
// per-subscription quantity limit.
func ValidatePairs(pairs []string, maxAllowed int) error {
	if len(pairs) == 0 {
		return ErrNoSymbols
	}

	if maxAllowed <= 0 {
		return fmt.Errorf("%w: max allowed must be positive, got %d", ErrTooManySymbols, maxAllowed)
	}

	if len(pairs) > maxAllowed {
		return fmt.Errorf("%w: requested %d symbols, maximum allowed %d",
			ErrTooManySymbols, len(pairs), maxAllowed)
	}

	for i, symbol := range pairs {
		if err := ValidateSymbol(symbol); err != nil {
			return fmt.Errorf("invalid symbol at index %d (%q): %w", i, symbol, err)
		}
	}

	return nil
}
