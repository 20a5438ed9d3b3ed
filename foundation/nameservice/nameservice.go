// Package nameservice reads a folder of private key files and creates a name
// service lookup for the accounts they hold.
package nameservice

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ethereum/go-ethereum/crypto"
)

// NameService maintains a map of accounts for name lookup.
type NameService struct {
	accounts map[ledger.Account]string
	names    map[string]ledger.Account
}

// New constructs a name service with the accounts of every .ecdsa file
// found under root. The file name without extension is the account name.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[ledger.Account]string),
		names:    make(map[string]ledger.Account),
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("load %s: %w", fileName, err)
		}

		account := ledger.PublicKeyToAccount(privateKey.PublicKey)
		name := strings.TrimSuffix(filepath.Base(fileName), ".ecdsa")

		ns.accounts[account] = name
		ns.names[name] = account

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified account. The account itself is
// returned when it has no name.
func (ns *NameService) Lookup(account ledger.Account) string {
	name, exists := ns.accounts[account.Canonical()]
	if !exists {
		return string(account)
	}
	return name
}

// Account returns the account registered under the name.
func (ns *NameService) Account(name string) (ledger.Account, bool) {
	account, exists := ns.names[name]
	return account, exists
}

// Copy returns a copy of the map of names and accounts.
func (ns *NameService) Copy() map[ledger.Account]string {
	cpy := make(map[ledger.Account]string, len(ns.accounts))
	for account, name := range ns.accounts {
		cpy[account] = name
	}
	return cpy
}
