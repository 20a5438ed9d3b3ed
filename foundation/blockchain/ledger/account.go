package ledger

import (
	"crypto/ecdsa"
	"errors"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account represents the public identity that balances are kept against.
type Account string

// ToAccount converts a hex-encoded string to an account and validates the
// hex-encoded string is formatted correctly.
func ToAccount(hex string) (Account, error) {
	a := Account(hex)
	if !a.IsAccount() {
		return "", errors.New("invalid account format")
	}

	return a, nil
}

// PublicKeyToAccount converts the public key to an account value.
func PublicKeyToAccount(pk ecdsa.PublicKey) Account {
	return Account(crypto.PubkeyToAddress(pk).String())
}

// IsAccount verifies whether the underlying data represents a valid
// hex-encoded account.
func (a Account) IsAccount() bool {
	const addressLength = 20

	s := string(a)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}

	if len(s) != 2*addressLength {
		return false
	}

	for _, c := range []byte(s) {
		if !isHexCharacter(c) {
			return false
		}
	}

	return true
}

// Canonical returns the checksummed form of the account so the same
// account always maps to the same key.
func (a Account) Canonical() Account {
	if !a.IsAccount() {
		return a
	}
	return Account(common.HexToAddress(string(a)).Hex())
}

// Equal compares two accounts ignoring the case of the hex digits.
func (a Account) Equal(o Account) bool {
	return strings.EqualFold(string(a), string(o))
}

// isHexCharacter returns bool of c being a valid hexadecimal.
func isHexCharacter(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// =============================================================================

// Effects maps an account to the signed change in its balance.
type Effects map[Account]int64

// Merge adds the values of o into e, summing on collision. It reports false
// when a sum leaves the int64 range, in which case e holds the values merged
// before the overflow.
func (e Effects) Merge(o Effects) bool {
	for account, value := range o {
		sum, ok := AddDelta(e[account], value)
		if !ok {
			return false
		}
		e[account] = sum
	}
	return true
}

// AddDelta adds a signed change to a balance and reports false when the
// result leaves the int64 range.
func AddDelta(balance int64, delta int64) (int64, bool) {
	switch {
	case delta > 0 && balance > math.MaxInt64-delta:
		return 0, false
	case delta < 0 && balance < math.MinInt64-delta:
		return 0, false
	}
	return balance + delta, true
}

// Negative returns the subset of effects with a value below zero.
func (e Effects) Negative() Effects {
	neg := make(Effects)
	for account, value := range e {
		if value < 0 {
			neg[account] = value
		}
	}
	return neg
}
