package mint

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ENABLE_RBF_NO_LOCKTIME is the standard BIP-125 "opt in to RBF, but
// don't enforce any nLockTime" sequence value used on the reveal
// transaction's single input.
const ENABLE_RBF_NO_LOCKTIME = wire.MaxTxInSequenceNum - 2

// CommitTxTemplate holds everything needed to build commit candidates
// that differ only in nSequence: the funding outpoint, the fixed output
// set (derived from the invariants in §3), and the funding prevout's
// value and script, from which CommitPrevOutFetcher builds the fetcher
// needed to sign against the spent funding UTXO.
type CommitTxTemplate struct {
	FundingOutpoint  wire.OutPoint
	FundingValue     int64
	FundingPkScript  []byte // both the spent prevout script and the refund destination
	ScriptPkScript   []byte // where output 0 pays: the reveal script's P2TR address
	RevealAndOutputs uint64
	RefundValue      uint64 // 0 means no refund output (invariant ii)
}

// BuildCommitCandidate builds the commit transaction for a given
// nSequence value on its single input, with the fixed output set built
// from the template. version=1, lock_time=0 per invariant (v).
func BuildCommitCandidate(tmpl *CommitTxTemplate, sequence uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(1)

	txIn := wire.NewTxIn(&tmpl.FundingOutpoint, nil, nil)
	txIn.Sequence = sequence
	tx.AddTxIn(txIn)

	tx.AddTxOut(wire.NewTxOut(int64(tmpl.RevealAndOutputs), tmpl.ScriptPkScript))

	if tmpl.RefundValue > 0 {
		tx.AddTxOut(wire.NewTxOut(int64(tmpl.RefundValue), tmpl.FundingPkScript))
	}

	return tx
}

// CommitPrevOutFetcher returns the prevout fetcher needed to sign a
// commit candidate's single input (spending the funding UTXO).
func CommitPrevOutFetcher(tmpl *CommitTxTemplate) txscript.PrevOutputFetcher {
	return txscript.NewCannedPrevOutputFetcher(tmpl.FundingPkScript, tmpl.FundingValue)
}

// RevealTxTemplate holds everything needed to build reveal candidates
// that differ only in their trailing OP_RETURN output (time:nonce):
// the commit outpoint being spent, the prevout it spends, and the
// fixed mint-amount payout to the stash address.
type RevealTxTemplate struct {
	CommitOutpoint  wire.OutPoint
	CommitValue     int64
	CommitPkScript  []byte // the reveal script's P2TR scriptPubKey
	StashPkScript   []byte
	MintAmount      uint64
	SpendInfo       *RevealSpendInfo
}

// BuildRevealBase builds the reveal transaction with its single input
// (commit:0, ENABLE_RBF_NO_LOCKTIME) and its one fixed output (the
// mint-amount payout). Callers append the OP_RETURN output themselves
// when a reveal bitwork is required and sign afterward.
func BuildRevealBase(tmpl *RevealTxTemplate) *wire.MsgTx {
	tx := wire.NewMsgTx(1)

	txIn := wire.NewTxIn(&tmpl.CommitOutpoint, nil, nil)
	txIn.Sequence = ENABLE_RBF_NO_LOCKTIME
	tx.AddTxIn(txIn)

	tx.AddTxOut(wire.NewTxOut(int64(tmpl.MintAmount), tmpl.StashPkScript))

	return tx
}

// RevealPrevOutFetcher returns the prevout fetcher needed to sign a
// reveal candidate's single input (spending the commit output).
func RevealPrevOutFetcher(tmpl *RevealTxTemplate) txscript.PrevOutputFetcher {
	return txscript.NewCannedPrevOutputFetcher(tmpl.CommitPkScript, tmpl.CommitValue)
}

// CloneTx deep-copies a transaction so mining candidates never share
// mutable state between worker goroutines.
func CloneTx(tx *wire.MsgTx) *wire.MsgTx {
	return tx.Copy()
}

// TxID returns the lowercase hex transaction id (byte-reversed double
// SHA-256 of the serialized transaction), matching how the indexer and
// bitwork prefixes are both expressed.
func TxID(tx *wire.MsgTx) string {
	return tx.TxHash().String()
}

// SerializeTx serializes a transaction to lowercase hex, ready for
// broadcast.
func SerializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serialize transaction: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// OutpointFromTxID builds a wire.OutPoint from a hex txid and vout.
func OutpointFromTxID(txid string, vout uint32) (wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("invalid txid %q: %w", txid, err)
	}
	return *wire.NewOutPoint(hash, vout), nil
}
