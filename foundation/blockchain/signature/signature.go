// Package signature provides helper functions for handling the ledger
// signature needs.
package signature

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ledgerID is an arbitrary number added to the recovery id so signatures
// produced by this ledger are recognizable. Ethereum uses 27.
const ledgerID = 31

// Signature is a 65 byte [R|S|V] signature where V carries the ledger id.
type Signature struct {
	V *big.Int `json:"v"`
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
}

// =============================================================================

// Hash returns the SHA-256 digest of the JSON encoding of the value.
func Hash(value any) bighash.Hash {
	data, err := json.Marshal(value)
	if err != nil {
		return bighash.Zero
	}

	return bighash.Sum(data)
}

// Sign uses the specified private key to sign the data.
func Sign(value any, privateKey *ecdsa.PrivateKey) (Signature, error) {

	// Prepare the data for signing.
	data, err := stamp(value)
	if err != nil {
		return Signature{}, err
	}

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return Signature{}, err
	}

	// Extract the public key from the data and the signature.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return Signature{}, err
	}

	// Check the public key extracted from the data and signature.
	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return Signature{}, errors.New("invalid signature")
	}

	return toSignature(sig), nil
}

// Verify checks the signature values are well formed.
func (sig Signature) Verify() error {
	if sig.V == nil || sig.R == nil || sig.S == nil {
		return errors.New("missing signature values")
	}

	// Check the recovery id is either 0 or 1.
	uintV := sig.V.Uint64() - ledgerID
	if uintV != 0 && uintV != 1 {
		return errors.New("invalid recovery id")
	}

	if !crypto.ValidateSignatureValues(byte(uintV), sig.R, sig.S, false) {
		return errors.New("invalid signature values")
	}

	return nil
}

// FromAddress extracts the address for the account that signed the data.
// The exact same data that was signed must be provided, otherwise a
// different address is recovered.
func (sig Signature) FromAddress(value any) (string, error) {
	if err := sig.Verify(); err != nil {
		return "", err
	}

	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	publicKey, err := crypto.SigToPub(data, sig.Bytes())
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// Bytes converts the signature into the 65 byte form expected by the
// crypto package, with the ledger id removed.
func (sig Signature) Bytes() []byte {
	b := make([]byte, crypto.SignatureLength)
	sig.R.FillBytes(b[:32])
	sig.S.FillBytes(b[32:64])
	b[64] = byte(sig.V.Uint64() - ledgerID)

	return b
}

// String returns the signature as a hex string keeping the ledger id.
func (sig Signature) String() string {
	if sig.V == nil || sig.R == nil || sig.S == nil {
		return "0x"
	}

	b := sig.Bytes()
	b[64] = byte(sig.V.Uint64())
	return hexutil.Encode(b)
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this data with
// the ledger stamp embedded into the final hash.
func stamp(value any) ([]byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	txHash := crypto.Keccak256(v)

	// Signatures produced with this stamp are only valid on this ledger.
	stamp := []byte("\x19IDChain Signed Message:\n32")

	return crypto.Keccak256(stamp, txHash), nil
}

// toSignature converts the 65 byte signature into its parts.
func toSignature(sig []byte) Signature {
	return Signature{
		R: new(big.Int).SetBytes(sig[:32]),
		S: new(big.Int).SetBytes(sig[32:64]),
		V: new(big.Int).SetBytes([]byte{sig[64] + ledgerID}),
	}
}
