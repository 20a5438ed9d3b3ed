package ledger

import (
	"crypto/ecdsa"
	"fmt"
	"regexp"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/signature"
)

// validName restricts the names that can be registered.
var validName = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

// IdentityEntry binds a name to an account. It is signed by the account
// being named and carries no value.
type IdentityEntry struct {
	TxID    uint64              `json:"id"`
	Name    string              `json:"name"`
	Account Account             `json:"account"`
	Sig     signature.Signature `json:"sig"`
}

// NewIdentityEntry constructs an identity entry signed by the key owner.
func NewIdentityEntry(id uint64, name string, key *ecdsa.PrivateKey) (IdentityEntry, error) {
	ie := IdentityEntry{
		TxID:    id,
		Name:    name,
		Account: PublicKeyToAccount(key.PublicKey),
	}

	sig, err := signature.Sign(ie.payload(), key)
	if err != nil {
		return IdentityEntry{}, fmt.Errorf("sign identity: %w", err)
	}
	ie.Sig = sig

	return ie, nil
}

// ID implements the Tx interface.
func (ie IdentityEntry) ID() uint64 { return ie.TxID }

// Kind implements the Tx interface.
func (IdentityEntry) Kind() Kind { return KindIdentity }

// Hash implements the Tx interface.
func (ie IdentityEntry) Hash() bighash.Hash {
	return signature.Hash(struct {
		Kind Kind          `json:"kind"`
		Tx   IdentityEntry `json:"tx"`
	}{KindIdentity, ie})
}

// IsValid implements the Tx interface.
func (ie IdentityEntry) IsValid() bool {
	if !validName.MatchString(ie.Name) || !ie.Account.IsAccount() {
		return false
	}

	from, err := ie.Sig.FromAddress(ie.payload())
	return err == nil && Account(from).Equal(ie.Account)
}

// Effects implements the Tx interface.
func (IdentityEntry) Effects() Effects { return nil }

// Fee implements the Tx interface.
func (IdentityEntry) Fee() int64 { return 0 }

// Equals implements the Tx interface.
func (ie IdentityEntry) Equals(other Tx) bool { return equalHash(ie, other) }

func (ie IdentityEntry) payload() any {
	return struct {
		ID      uint64  `json:"id"`
		Name    string  `json:"name"`
		Account Account `json:"account"`
	}{ie.TxID, ie.Name, ie.Account}
}

// =============================================================================

// Message is a signed text recorded on the chain between two accounts.
type Message struct {
	TxID uint64              `json:"id"`
	From Account             `json:"from"`
	To   Account             `json:"to"`
	Text string              `json:"text"`
	Sig  signature.Signature `json:"sig"`
}

// maxMessageLength bounds the size of a message text.
const maxMessageLength = 1024

// NewMessage constructs a message signed by the sender.
func NewMessage(id uint64, to Account, text string, key *ecdsa.PrivateKey) (Message, error) {
	msg := Message{
		TxID: id,
		From: PublicKeyToAccount(key.PublicKey),
		To:   to,
		Text: text,
	}

	sig, err := signature.Sign(msg.payload(), key)
	if err != nil {
		return Message{}, fmt.Errorf("sign message: %w", err)
	}
	msg.Sig = sig

	return msg, nil
}

// ID implements the Tx interface.
func (msg Message) ID() uint64 { return msg.TxID }

// Kind implements the Tx interface.
func (Message) Kind() Kind { return KindMessage }

// Hash implements the Tx interface.
func (msg Message) Hash() bighash.Hash {
	return signature.Hash(struct {
		Kind Kind    `json:"kind"`
		Tx   Message `json:"tx"`
	}{KindMessage, msg})
}

// IsValid implements the Tx interface.
func (msg Message) IsValid() bool {
	if !msg.From.IsAccount() || !msg.To.IsAccount() || len(msg.Text) > maxMessageLength {
		return false
	}

	from, err := msg.Sig.FromAddress(msg.payload())
	return err == nil && Account(from).Equal(msg.From)
}

// Effects implements the Tx interface.
func (Message) Effects() Effects { return nil }

// Fee implements the Tx interface.
func (Message) Fee() int64 { return 0 }

// Equals implements the Tx interface.
func (msg Message) Equals(other Tx) bool { return equalHash(msg, other) }

func (msg Message) payload() any {
	return struct {
		ID   uint64  `json:"id"`
		From Account `json:"from"`
		To   Account `json:"to"`
		Text string  `json:"text"`
	}{msg.TxID, msg.From, msg.To, msg.Text}
}
