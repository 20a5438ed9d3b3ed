package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/mining"
	"github.com/ardanlabs/idchain/foundation/nameservice"
)

// parseBeneficiaries converts entries of the form name:share into payees.
// The name is resolved through the name service or may be a hex account.
// A missing share counts as 1.
func parseBeneficiaries(entries []string, ns *nameservice.NameService) ([]mining.Payee, error) {
	payees := make([]mining.Payee, 0, len(entries))

	for _, entry := range entries {
		name, shareStr, found := strings.Cut(strings.TrimSpace(entry), ":")
		if name == "" {
			continue
		}

		share := 1.0
		if found {
			var err error
			share, err = strconv.ParseFloat(shareStr, 64)
			if err != nil || share <= 0 {
				return nil, fmt.Errorf("beneficiary %q: invalid share %q", name, shareStr)
			}
		}

		account, exists := ns.Account(name)
		if !exists {
			var err error
			account, err = ledger.ToAccount(name)
			if err != nil {
				return nil, fmt.Errorf("beneficiary %q: not a known name or account", name)
			}
		}

		payees = append(payees, mining.Payee{Account: account.Canonical(), Share: share})
	}

	return payees, nil
}
