package solana

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressLength is the size of an ed25519 public key.
const AddressLength = 32

// Address is a 32-byte account public key. Its text form is base58.
type Address [AddressLength]byte

// Well-known program addresses.
var (
	SystemProgramID        = MustAddress("11111111111111111111111111111111")
	TokenProgramID         = MustAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ProgramID     = MustAddress("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	TokenMetadataProgramID = MustAddress("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
	AddressLookupTableID   = MustAddress("AddressLookupTab1e1111111111111111111111111")
)

// ErrInvalidAddress is returned when a string is not a base58 32-byte key.
var ErrInvalidAddress = errors.New("invalid address")

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	var a Address
	decoded, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("%w %q: %v", ErrInvalidAddress, s, err)
	}
	if len(decoded) != AddressLength {
		return a, fmt.Errorf("%w %q: length %d", ErrInvalidAddress, s, len(decoded))
	}
	copy(a[:], decoded)
	return a, nil
}

// MustAddress is ParseAddress that panics on error. For constants only.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes copies b into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("%w: length %d", ErrInvalidAddress, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// String returns the base58 form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether a is the all-zero key.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Compare orders addresses by their byte value.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON encodes the address as a base58 JSON string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a base58 JSON string.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return a.UnmarshalText([]byte(s))
}

// IsOnCurve reports whether the key is a valid ed25519 point.
// Program derived addresses are never on the curve.
func IsOnCurve(key []byte) bool {
	if len(key) != AddressLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(key)
	return err == nil
}

const pdaMarker = "ProgramDerivedAddress"

// ErrNoViableBump is returned when no bump seed yields an off-curve address.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// CreateProgramAddress derives an address from seeds without a bump search.
func CreateProgramAddress(seeds [][]byte, programID Address) (Address, error) {
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > 32 {
			return Address{}, fmt.Errorf("seed length %d exceeds 32", len(seed))
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))
	sum := h.Sum(nil)
	if IsOnCurve(sum) {
		return Address{}, errors.New("derived address is on curve")
	}
	var a Address
	copy(a[:], sum)
	return a, nil
}

// FindProgramAddress searches bump seeds from 255 downward and returns the
// first off-curve address with its bump.
func FindProgramAddress(seeds [][]byte, programID Address) (Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return Address{}, 0, ErrNoViableBump
}

// MetadataAddress derives the token metadata account for a mint.
func MetadataAddress(mint Address) (Address, error) {
	addr, _, err := FindProgramAddress([][]byte{
		[]byte("metadata"),
		TokenMetadataProgramID[:],
		mint[:],
	}, TokenMetadataProgramID)
	return addr, err
}
