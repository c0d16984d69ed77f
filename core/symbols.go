package core

import (
	"errors"
	"fmt"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SYMBOLS - Instrument name handling
// ═══════════════════════════════════════════════════════════════════════════════

// ErrInvalidSymbol is returned for an empty or malformed symbol
var ErrInvalidSymbol = errors.New("invalid symbol")

// legacySuffixes are the v1 product suffixes still found in older alert payloads
var legacySuffixes = []string{"_UMCBL", "_DMCBL", "_CMCBL"}

// NormalizeSymbol returns the v2 form of a perpetual symbol, e.g. "btcusdt_umcbl" → "BTCUSDT"
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, suffix := range legacySuffixes {
		s = strings.TrimSuffix(s, suffix)
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSymbol)
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
		}
	}
	return s, nil
}
