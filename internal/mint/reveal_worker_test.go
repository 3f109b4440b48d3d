package mint

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

func testRevealTemplate(t *testing.T) (*RevealTxTemplate, *btcec.PrivateKey) {
	t.Helper()

	wif, err := btcutil.DecodeWIF("L4VgnxVoaPRaptd4yW19wwd7v9dzJvQn478AKwucbaQifPFBacrp")
	if err != nil {
		t.Fatalf("DecodeWIF: %v", err)
	}

	var xOnly [32]byte
	copy(xOnly[:], schnorr.SerializePubKey(wif.PrivKey.PubKey()))

	revealScript, err := BuildRevealScript(xOnly, "dmt", []byte("payload"))
	if err != nil {
		t.Fatalf("BuildRevealScript: %v", err)
	}
	spendInfo, err := BuildRevealSpendInfo(xOnly, revealScript)
	if err != nil {
		t.Fatalf("BuildRevealSpendInfo: %v", err)
	}

	stashAddr, err := btcutil.NewAddressTaproot(xOnly[:], &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewAddressTaproot: %v", err)
	}
	stashPkScript, err := txscript.PayToAddrScript(stashAddr)
	if err != nil {
		t.Fatalf("PayToAddrScript: %v", err)
	}

	tmpl := &RevealTxTemplate{
		CommitOutpoint: wire.OutPoint{Index: 0},
		CommitValue:    100_000,
		CommitPkScript: spendInfo.PkScript,
		StashPkScript:  stashPkScript,
		MintAmount:     1000,
		SpendInfo:      spendInfo,
	}
	return tmpl, wif.PrivKey
}

func TestRunRevealSearchFindsSolution(t *testing.T) {
	tmpl, priv := testRevealTemplate(t)
	base := BuildRevealBase(tmpl)

	// An empty difficulty prefix matches any txid, so the very first
	// candidate each worker tries succeeds - this exercises the full
	// clone/append-OP_RETURN/sign/compare pipeline without depending on
	// a precomputed, time-sensitive txid.
	result, err := RunRevealSearch(context.Background(), 4, "", base, tmpl, priv)
	if err != nil {
		t.Fatalf("RunRevealSearch: %v", err)
	}
	if result.Tx == nil {
		t.Fatal("expected a non-nil winning transaction")
	}
	if len(result.Tx.TxOut) != len(base.TxOut)+1 {
		t.Errorf("expected winning tx to carry one extra OP_RETURN output, got %d outputs (base had %d)", len(result.Tx.TxOut), len(base.TxOut))
	}
}
