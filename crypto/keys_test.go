package crypto

import (
	"bytes"
	"testing"
)

func TestGeneratedKeyRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("restored key derives a different address")
	}
}

func TestKeyAddressEncodesBech32(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.Prefix() != MktPrefix {
		t.Fatalf("address prefix %q, want %q", addr.Prefix(), MktPrefix)
	}
	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), addr.Bytes()) {
		t.Fatalf("decoded bytes differ from original address")
	}
}

func TestPrivateKeyFromBytesRejectsGarbage(t *testing.T) {
	if _, err := PrivateKeyFromBytes([]byte{0x01, 0x02}); err == nil {
		t.Fatalf("expected error for malformed key bytes")
	}
}
