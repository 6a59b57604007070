package common

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// HashLength is the expected length of a hash in bytes.
	HashLength = 32
	// AddressLength is the expected length of an address in bytes.
	AddressLength = 20
)

// Bytes is an arbitrary byte slice rendered as hex in JSON.
type Bytes []byte

func (b Bytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

// MarshalJSON implements json.Marshaler.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(str, "0x"))
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// CopyBytes returns an exact copy of the provided bytes.
func CopyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	copied := make([]byte, len(b))
	copy(copied, b)
	return copied
}

// Hex2Bytes decodes a hex string (with or without 0x prefix) into bytes.
// Invalid input yields an empty slice.
func Hex2Bytes(str string) []byte {
	h, _ := hex.DecodeString(strings.TrimPrefix(str, "0x"))
	return h
}

// Hash represents the 32 byte hash of arbitrary data.
type Hash [HashLength]byte

// BytesToHash converts b to a Hash, left-padding if necessary.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// Bytes returns the byte representation of the hash.
func (h Hash) Bytes() []byte { return h[:] }

// Hex returns the hex string representation of the hash.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// IsEmpty reports whether the hash is all zeros.
func (h Hash) IsEmpty() bool {
	return h == Hash{}
}

// Address represents the 20 byte address of a validator consensus account.
type Address [AddressLength]byte

// BytesToAddress converts b to an Address, left-padding if necessary.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// HexToAddress parses a hex string (with or without 0x prefix) into an Address.
func HexToAddress(s string) Address {
	return BytesToAddress(Hex2Bytes(s))
}

// Bytes returns the byte representation of the address.
func (a Address) Bytes() []byte { return a[:] }

// Hex returns the hex string representation of the address.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

// MarshalJSON implements json.Marshaler.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Hex())
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Address) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	decoded := Hex2Bytes(str)
	if len(decoded) != AddressLength {
		return fmt.Errorf("invalid address length: %v", str)
	}
	*a = BytesToAddress(decoded)
	return nil
}
