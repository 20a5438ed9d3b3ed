// Package commands contains the admin tool commands.
package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/ardanlabs/idchain/foundation/blockchain/database"
	"github.com/ardanlabs/idchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/nameservice"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const keyExtension = ".ecdsa"

var (
	log         *zap.SugaredLogger
	accountPath string
	dbPath      string
	genesisPath string
	nodeURL     string
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "Administrative tasks for the ledger node",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "zblock/miner1/", "Path to the block files of a stopped node.")
	rootCmd.PersistentFlags().StringVarP(&genesisPath, "genesis", "g", "zblock/genesis.json", "Path to the genesis file.")
	rootCmd.PersistentFlags().StringVarP(&nodeURL, "url", "u", "http://localhost:8080", "Url of the node public api.")
}

// Execute runs the command selected on the command line.
func Execute(build string, l *zap.SugaredLogger) error {
	log = l
	rootCmd.Version = build
	return rootCmd.Execute()
}

// keyPath returns the path of the private key file for the name.
func keyPath(name string) string {
	if !strings.HasSuffix(name, keyExtension) {
		name += keyExtension
	}
	return filepath.Join(accountPath, name)
}

// resolve converts a key name or a hex account into an account.
func resolve(nameOrAccount string) (ledger.Account, error) {
	if account, err := ledger.ToAccount(nameOrAccount); err == nil {
		return account.Canonical(), nil
	}

	ns, err := nameservice.New(accountPath)
	if err != nil {
		return "", err
	}

	account, exists := ns.Account(nameOrAccount)
	if !exists {
		return "", fmt.Errorf("%q is not a known name or account", nameOrAccount)
	}

	return account, nil
}

// openChain opens the block files of a stopped node with the reward of the
// genesis file.
func openChain() (*database.Chain, error) {
	gen, err := genesis.Load(genesisPath)
	if err != nil {
		return nil, err
	}

	return database.Open(database.Config{
		DBPath:       dbPath,
		MiningReward: gen.MiningReward,
		EvHandler: func(v string, args ...any) {
			log.Debugw(fmt.Sprintf(v, args...))
		},
	})
}

// send is a helper function to call the node public api.
func send(method string, url string, dataSend any, dataRecv any) error {
	var body io.Reader
	if dataSend != nil {
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return errors.New(strings.TrimSpace(string(msg)))
	}

	if dataRecv != nil {
		return json.NewDecoder(resp.Body).Decode(dataRecv)
	}

	return nil
}
