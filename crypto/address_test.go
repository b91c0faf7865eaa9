package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x11}, AddressLength)
	addr := MustNewAddress(NHBPrefix, raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, "nhb1") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != NHBPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("bytes mismatch: %x", decoded.Bytes())
	}
}

func TestNewAddressRejectsWrongLength(t *testing.T) {
	if _, err := NewAddress(NHBPrefix, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestBytesReturnsCopy(t *testing.T) {
	addr := MustNewAddress(TokenPrefix, bytes.Repeat([]byte{0x22}, AddressLength))
	b := addr.Bytes()
	b[0] = 0xFF
	if addr.Raw()[0] != 0x22 {
		t.Fatalf("address mutated through Bytes")
	}
}

func TestTextMarshalling(t *testing.T) {
	addr := MustNewAddress(NHBPrefix, bytes.Repeat([]byte{0x33}, AddressLength))
	text, err := addr.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Address
	if err := out.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Raw() != addr.Raw() {
		t.Fatalf("round trip mismatch")
	}
	if _, err := DecodeRaw("not-an-address"); err == nil {
		t.Fatalf("expected decode failure")
	}
}
