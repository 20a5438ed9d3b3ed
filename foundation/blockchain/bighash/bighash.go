// Package bighash provides the fixed width unsigned integer used for block
// hashes and proof of work targets.
package bighash

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Size is the number of bytes in a hash.
const Size = 32

// Hash is a 256 bit unsigned integer stored in big endian order. The zero
// value is the all zero hash.
type Hash [Size]byte

// Well known values.
var (
	// Zero is the previous hash of a genesis block.
	Zero Hash

	// MaxTarget is the target of the genesis era. Every difficulty is
	// measured relative to it.
	MaxTarget = Hash{0x00, 0xFF}

	// Max is the largest representable value.
	Max = func() Hash {
		var h Hash
		for i := range h {
			h[i] = 0xFF
		}
		return h
	}()
)

// Sum returns the SHA-256 digest of the concatenated parts.
func Sum(parts ...[]byte) Hash {
	hasher := sha256.New()
	for _, p := range parts {
		hasher.Write(p)
	}

	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

// FromBytes converts a big endian byte slice into a hash. Slices shorter than
// Size are left padded with zeros and longer slices keep the low order bytes.
func FromBytes(b []byte) Hash {
	var h Hash
	if len(b) > Size {
		b = b[len(b)-Size:]
	}
	copy(h[Size-len(b):], b)
	return h
}

// FromInt converts a uint256 value into a hash.
func FromInt(v *uint256.Int) Hash {
	return Hash(v.Bytes32())
}

// FromUint64 constructs a hash holding a small value.
func FromUint64(v uint64) Hash {
	return FromInt(uint256.NewInt(v))
}

// Parse decodes the 0x prefixed hex form of a hash.
func Parse(s string) (Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("parse hash %q: %w", s, err)
	}
	if len(b) > Size {
		return Zero, fmt.Errorf("parse hash %q: %d bytes exceeds %d", s, len(b), Size)
	}
	return FromBytes(b), nil
}

// =============================================================================

// Int returns the value as a uint256 integer.
func (h Hash) Int() *uint256.Int {
	return new(uint256.Int).SetBytes32(h[:])
}

// Bytes returns a copy of the big endian bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// Cmp compares two hashes as unsigned integers and returns -1, 0 or +1.
func (h Hash) Cmp(o Hash) int {
	for i := range h {
		switch {
		case h[i] < o[i]:
			return -1
		case h[i] > o[i]:
			return 1
		}
	}
	return 0
}

// Less reports whether h < o as unsigned integers.
func (h Hash) Less(o Hash) bool {
	return h.Cmp(o) < 0
}

// IsZero reports whether the hash is the zero value.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Slot maps the hash onto one of n cache slots.
func (h Hash) Slot(n int) int {
	if n <= 0 {
		return 0
	}
	return int(binary.BigEndian.Uint64(h[Size-8:]) % uint64(n))
}

// String implements the fmt.Stringer interface.
func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

// Short returns an abbreviated form for logging.
func (h Hash) Short() string {
	s := h.String()
	return s[:10] + ".." + s[len(s)-6:]
}

// MarshalText implements the encoding.TextMarshaler interface.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (h *Hash) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// =============================================================================

// Ratio returns num / den as a real value. A zero denominator yields
// positive infinity.
func Ratio(num Hash, den Hash) float64 {
	if den.IsZero() {
		return math.Inf(1)
	}

	n := new(big.Float).SetInt(num.Int().ToBig())
	d := new(big.Float).SetInt(den.Int().ToBig())
	f, _ := new(big.Float).Quo(n, d).Float64()
	return f
}

// Difficulty returns MaxTarget / target.
func Difficulty(target Hash) float64 {
	return Ratio(MaxTarget, target)
}

// Scale returns h / divisor, clamped to the range [1, Max]. Non positive or
// non finite divisors return Max.
func Scale(h Hash, divisor float64) Hash {
	if divisor <= 0 || math.IsNaN(divisor) || math.IsInf(divisor, 0) {
		return Max
	}

	v := new(big.Float).SetInt(h.Int().ToBig())
	v.Quo(v, big.NewFloat(divisor))

	bi, _ := v.Int(nil)
	if bi.Sign() <= 0 {
		return FromUint64(1)
	}

	u, overflow := uint256.FromBig(bi)
	if overflow {
		return Max
	}
	return FromInt(u)
}

// TargetFor returns the target matching the specified difficulty.
func TargetFor(difficulty float64) Hash {
	return Scale(MaxTarget, difficulty)
}
