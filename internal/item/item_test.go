package item

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const collectionHex = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestParseRef_Valid(t *testing.T) {
	r, err := ParseRef(collectionHex + "#42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Collection != common.HexToAddress(collectionHex) {
		t.Errorf("expected collection=%s, got %s", collectionHex, r.Collection.Hex())
	}
	if r.TokenID != 42 {
		t.Errorf("expected token_id=42, got %d", r.TokenID)
	}
}

func TestParseRef_LowercaseAddress(t *testing.T) {
	r, err := ParseRef("0x5fbdb2315678afecb367f032d93f642f64180aa3#0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TokenID != 0 {
		t.Errorf("expected token_id=0, got %d", r.TokenID)
	}
}

func TestParseRef_InvalidFormat(t *testing.T) {
	tests := []string{
		"",
		"INVALID",
		collectionHex,
		collectionHex + "#",
		collectionHex + "#-1",
		collectionHex + "#abc",
		"5FbDB2315678afecb367f032d93F642f64180aa3#1",  // missing 0x
		"0x5FbDB2315678afecb367f032d93F642f64180a#1",  // short address
		collectionHex + "#99999999999999999999999999", // overflows uint64
	}
	for _, s := range tests {
		if _, err := ParseRef(s); !errors.Is(err, ErrInvalidRef) {
			t.Errorf("expected ErrInvalidRef for %q, got %v", s, err)
		}
	}
}

func TestParseRef_ZeroCollection(t *testing.T) {
	_, err := ParseRef("0x0000000000000000000000000000000000000000#1")
	if !errors.Is(err, ErrInvalidCollection) {
		t.Errorf("expected ErrInvalidCollection, got %v", err)
	}
}

func TestRef_StringRoundTrip(t *testing.T) {
	r, err := ParseRef("0x5fbdb2315678afecb367f032d93f642f64180aa3#7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.String(); got != collectionHex+"#7" {
		t.Errorf("expected checksummed %s#7, got %s", collectionHex, got)
	}
}
