package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0xAB}, AddressLength)
	addr, err := NewAddress(raw)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	encoded := addr.String()
	if !strings.HasPrefix(encoded, PowerPrefix+"1") {
		t.Fatalf("unexpected bech32 prefix: %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
}

func TestDecodeAddressHex(t *testing.T) {
	addr, err := DecodeAddress("0x0000000000000000000000000000000000000222")
	if err != nil {
		t.Fatalf("DecodeAddress hex: %v", err)
	}
	if addr.Bytes()[AddressLength-2] != 0x02 || addr.Bytes()[AddressLength-1] != 0x22 {
		t.Fatalf("unexpected decoded bytes: %x", addr.Bytes())
	}
}

func TestNewAddressRejectsBadLength(t *testing.T) {
	if _, err := NewAddress([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short address")
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	if _, err := DecodeAddress("nhb1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"); err == nil {
		t.Fatal("expected error for foreign prefix")
	}
}
