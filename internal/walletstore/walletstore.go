// Package walletstore loads wallet keypairs from flat JSON files: a
// primary key, a funding key, and an imported-key map where an
// "imported.stash" entry (if present) becomes the stash key in place of
// primary.
package walletstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/atomicalminer/atomicalminer/internal/mint"
	"github.com/atomicalminer/atomicalminer/pkg/logging"
)

type keyJSON struct {
	Address string `json:"address"`
	WIF     string `json:"WIF"`
}

type walletJSON struct {
	Primary  keyJSON            `json:"primary"`
	Funding  keyJSON            `json:"funding"`
	Imported map[string]keyJSON `json:"imported"`
}

// LoadWallet loads a single wallet JSON file at path.
func LoadWallet(path string, params *chaincfg.Params) (*mint.Wallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wj walletJSON
	if err := json.Unmarshal(raw, &wj); err != nil {
		return nil, err
	}

	funding, err := toKey(wj.Funding, params)
	if err != nil {
		return nil, err
	}

	stashJSON := wj.Primary
	if imported, ok := wj.Imported["stash"]; ok {
		stashJSON = imported
	}
	stash, err := toKey(stashJSON, params)
	if err != nil {
		return nil, err
	}

	return &mint.Wallet{
		Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Funding: funding,
		Stash:   stash,
	}, nil
}

func toKey(kj keyJSON, params *chaincfg.Params) (mint.Key, error) {
	wif, err := btcutil.DecodeWIF(kj.WIF)
	if err != nil {
		return mint.Key{}, &mint.ConfigError{Field: "WIF", Err: err}
	}
	if !wif.IsForNet(params) {
		return mint.Key{}, &mint.ConfigError{Field: "WIF", Err: errWrongNetwork}
	}

	xOnly := schnorr.SerializePubKey(wif.PrivKey.PubKey())
	var xOnlyArr [32]byte
	copy(xOnlyArr[:], xOnly)

	return mint.Key{
		Address:     kj.Address,
		WIF:         kj.WIF,
		PrivateKey:  wif.PrivKey,
		XOnlyPubKey: xOnlyArr,
	}, nil
}

var errWrongNetwork = configErr("WIF key is for a different network")

type configErr string

func (e configErr) Error() string { return string(e) }

// LoadWallets scans dir for *.json wallet files, skipping non-.json
// entries silently and logging-then-skipping any .json file that fails
// to parse. It fails only if zero wallets load successfully.
func LoadWallets(dir string, params *chaincfg.Params, log *logging.Logger) ([]mint.Wallet, error) {
	log = log.Component("walletstore")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &mint.ConfigError{Field: "wallets_dir", Err: err}
	}

	var wallets []mint.Wallet
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		wallet, err := LoadWallet(path, params)
		if err != nil {
			log.Error("failed to load wallet", "path", path, "error", err)
			continue
		}

		log.Info("loaded wallet", "path", path)
		wallets = append(wallets, *wallet)
	}

	if len(wallets) == 0 {
		return nil, &mint.ConfigError{Field: "wallets_dir", Err: errNoWallets}
	}
	return wallets, nil
}

var errNoWallets = configErr("no wallets loaded from directory")
