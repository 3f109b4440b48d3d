// Package mint implements the Atomicals decentralized-fungible-token
// (DFT) commit/reveal proof-of-work miner: deterministic payload/script
// construction, Taproot signing, fee modeling, the parallel worker pool
// that searches for bitwork-matching transaction ids, and the driver
// that orchestrates a mint attempt end to end.
package mint

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// Key is a single Bitcoin keypair loaded from a wallet JSON file: a WIF
// secret plus the address it corresponds to.
type Key struct {
	Address     string
	WIF         string
	PrivateKey  *btcec.PrivateKey
	XOnlyPubKey [32]byte
}

// Wallet pairs a funding key (pays fees, owns the reveal input) with a
// stash key (receives the minted token amount). Funding is the wallet
// file's "funding" key; Stash is the wallet's "imported.stash" key if
// present, otherwise its primary key (see walletstore).
type Wallet struct {
	Name    string // wallet file basename, used only for logging
	Funding Key
	Stash   Key
}

// PayloadArgs is the `args` map of the Atomicals mint payload, CBOR
// encoded by PayloadCodec in declared field order.
type PayloadArgs struct {
	Bitworkc   string
	MintTicker string
	Nonce      uint64
	Time       uint64
}

// Fees holds the sat totals computed by FeeModel for a single mint
// attempt, given a chosen satsbyte and the concrete reveal script.
type Fees struct {
	Commit                    uint64
	Reveal                    uint64
	CommitAndRevealAndOutputs uint64
	RevealAndOutputs          uint64
}

// UTXO is the subset of an indexer-reported unspent output the miner
// needs: enough to select a funding input and to recognize the
// commit/reveal confirmations it is waiting on.
type UTXO struct {
	TxID      string
	Vout      uint32
	Value     uint64
	Atomicals []string // non-empty means this UTXO already carries atomicals state
}

// IsPlainValue reports whether a UTXO is safe to spend as a fee/funding
// input (carries no atomicals state).
func (u UTXO) IsPlainValue() bool { return len(u.Atomicals) == 0 }
