package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"marketd/crypto"
)

func testAddress(fill byte) string {
	return crypto.NewAddress(crypto.MktPrefix, bytes.Repeat([]byte{fill}, 20)).String()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	_, err := Load(path)
	if err == nil {
		t.Fatalf("defaults without an operator must not validate")
	}
}

func TestLoadValidConfig(t *testing.T) {
	operator := testAddress(0x01)
	recipient := testAddress(0x02)
	medium := testAddress(0x42)
	path := writeConfig(t, fmt.Sprintf(`
ListenRPC = "0.0.0.0:9000"
DataDir = "/var/lib/marketd"
Operator = %q
FeeRecipient = %q
FeeBps = 500
MinBidIncrement = "25"
BidWithdrawalLockSecs = 120
AcceptedMedia = [%q]
`, operator, recipient, medium))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenRPC != "0.0.0.0:9000" || cfg.FeeBps != 500 || cfg.BidWithdrawalLockSecs != 120 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	increment, err := cfg.ParseMinBidIncrement()
	if err != nil {
		t.Fatalf("parse increment: %v", err)
	}
	if increment.Int64() != 25 {
		t.Fatalf("increment %s, want 25", increment)
	}
	// Environment keeps its default when the file omits it.
	if cfg.Environment != "dev" {
		t.Fatalf("environment %q, want dev", cfg.Environment)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	operator := testAddress(0x01)
	cases := []struct {
		name string
		body string
	}{
		{"fee above cap", fmt.Sprintf("Operator = %q\nFeeBps = 1001\n", operator)},
		{"negative lock", fmt.Sprintf("Operator = %q\nBidWithdrawalLockSecs = -5\n", operator)},
		{"bad operator", "Operator = \"not-an-address\"\n"},
		{"bad medium", fmt.Sprintf("Operator = %q\nAcceptedMedia = [\"junk\"]\n", operator)},
		{"zero increment", fmt.Sprintf("Operator = %q\nMinBidIncrement = \"0\"\n", operator)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
