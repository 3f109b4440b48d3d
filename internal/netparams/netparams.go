// Package netparams maps the miner's network selection to btcd chain parameters.
//
// The original Klingon chain registry carried params for a dozen chains
// (BTC, LTC, DOGE, ETH, BSC, ...). This miner only ever talks to Bitcoin,
// so the registry collapses to the two networks Atomicals actually mints
// on: mainnet and testnet3.
package netparams

import "github.com/btcsuite/btcd/chaincfg"

// Network identifies which Bitcoin network the miner is pointed at.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Params returns the btcd chain parameters for a network.
func Params(n Network) (*chaincfg.Params, bool) {
	switch n {
	case Mainnet:
		return &chaincfg.MainNetParams, true
	case Testnet:
		return &chaincfg.TestNet3Params, true
	default:
		return nil, false
	}
}

// ParseNetwork validates a CLI/config network string.
func ParseNetwork(s string) (Network, bool) {
	switch Network(s) {
	case Mainnet, Testnet:
		return Network(s), true
	default:
		return "", false
	}
}

func (n Network) String() string { return string(n) }

// IsMainnet reports whether satsbyte must be fetched from the fee oracle
// (testnet mining always uses a fixed, low rate - see MintDriver fee select).
func (n Network) IsMainnet() bool { return n == Mainnet }
