package core

import (
	"errors"
	"testing"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"BTCUSDT", "BTCUSDT", false},
		{" ethusdt ", "ETHUSDT", false},
		{"btcusdt_umcbl", "BTCUSDT", false},
		{"1000PEPEUSDT", "1000PEPEUSDT", false},
		{"", "", true},
		{"BTC/USDT", "", true},
		{"_UMCBL", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeSymbol(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSymbol) {
				t.Errorf("NormalizeSymbol(%q): expected ErrInvalidSymbol, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizeSymbol(%q): expected %s, got %s (%v)", tt.in, tt.want, got, err)
		}
	}
}
