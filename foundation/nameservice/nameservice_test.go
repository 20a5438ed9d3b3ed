package nameservice_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	success = "✓"
	failed  = "✗"
)

func Test_NameService(t *testing.T) {
	t.Log("Given the need to resolve account names from a key folder.")
	{
		root := t.TempDir()

		sub := filepath.Join(root, "miners")
		if err := os.Mkdir(sub, 0755); err != nil {
			t.Fatalf("\t%s\tShould be able to create a sub folder: %v", failed, err)
		}

		accounts := make(map[string]ledger.Account)
		for _, path := range []string{filepath.Join(root, "kennedy.ecdsa"), filepath.Join(sub, "pavel.ecdsa")} {
			pk, err := crypto.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
			}
			if err := crypto.SaveECDSA(path, pk); err != nil {
				t.Fatalf("\t%s\tShould be able to save a key: %v", failed, err)
			}
			name := strings.TrimSuffix(filepath.Base(path), ".ecdsa")
			accounts[name] = ledger.PublicKeyToAccount(pk.PublicKey)
		}

		if err := os.WriteFile(filepath.Join(root, "README"), []byte("keys"), 0644); err != nil {
			t.Fatalf("\t%s\tShould be able to write a stray file: %v", failed, err)
		}

		ns, err := nameservice.New(root)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load the folder: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to load the folder.", success)

		if got := len(ns.Copy()); got != 2 {
			t.Fatalf("\t%s\tShould load only the key files: got %d", failed, got)
		}
		t.Logf("\t%s\tShould load only the key files.", success)

		for name, account := range accounts {
			if got := ns.Lookup(account); got != name {
				t.Fatalf("\t%s\tShould resolve %s by account: got %s", failed, name, got)
			}

			lower := ledger.Account(strings.ToLower(string(account)))
			if got := ns.Lookup(lower); got != name {
				t.Fatalf("\t%s\tShould resolve %s ignoring hex case: got %s", failed, name, got)
			}

			got, exists := ns.Account(name)
			if !exists || got != account {
				t.Fatalf("\t%s\tShould resolve the account of %s: got %s", failed, name, got)
			}
		}
		t.Logf("\t%s\tShould resolve names and accounts both ways.", success)

		unknown := ledger.Account("0x0000000000000000000000000000000000000001")
		if got := ns.Lookup(unknown); got != string(unknown) {
			t.Fatalf("\t%s\tShould return the account for an unknown name: got %s", failed, got)
		}
		if _, exists := ns.Account("nobody"); exists {
			t.Fatalf("\t%s\tShould not resolve an unknown name.", failed)
		}
		t.Logf("\t%s\tShould fall back for unknown entries.", success)
	}
}
