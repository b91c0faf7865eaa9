package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix defines the human-readable part of an encoded address.
type AddressPrefix string

const (
	NHBPrefix AddressPrefix = "nhb"
	// TokenPrefix marks token contract addresses such as the staked token or
	// token reward assets.
	TokenPrefix AddressPrefix = "nhbtoken"
)

// AddressLength is the raw byte length of every address.
const AddressLength = 20

// Address represents a 20-byte account or contract address with a prefix.
type Address struct {
	prefix AddressPrefix
	raw    [AddressLength]byte
}

// NewAddress validates the byte length and returns the prefixed address.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long, got %d", AddressLength, len(b))
	}
	var addr Address
	addr.prefix = prefix
	copy(addr.raw[:], b)
	return addr, nil
}

// MustNewAddress is like NewAddress but panics on malformed input.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// FromRaw wraps a fixed-size address.
func FromRaw(prefix AddressPrefix, raw [AddressLength]byte) Address {
	return Address{prefix: prefix, raw: raw}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.raw[:])
	return out
}

// Raw returns the fixed-size representation used by the native engines.
func (a Address) Raw() [AddressLength]byte { return a.raw }

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether every address byte is zero.
func (a Address) IsZero() bool { return a.raw == [AddressLength]byte{} }

// MarshalText encodes the address as bech32.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText decodes a bech32 address of any prefix.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// DecodeRaw decodes addrStr and returns its raw bytes regardless of prefix.
func DecodeRaw(addrStr string) ([AddressLength]byte, error) {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		return [AddressLength]byte{}, err
	}
	return addr.raw, nil
}

// Format renders raw bytes with the default account prefix.
func Format(raw [AddressLength]byte) string {
	return FromRaw(NHBPrefix, raw).String()
}
