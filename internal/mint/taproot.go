package mint

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// RevealSpendInfo describes the Taproot output the commit transaction
// pays into and the reveal transaction later spends via the script
// path: internal key = funding x-only pubkey, single leaf = the
// Atomicals reveal script at the default TapScript leaf version.
type RevealSpendInfo struct {
	InternalKey  *btcec.PublicKey
	OutputKey    *btcec.PublicKey
	Leaf         txscript.TapLeaf
	ControlBlock []byte
	PkScript     []byte // OP_1 <32-byte tweaked x-only pubkey>
}

// BuildRevealSpendInfo computes the Taproot spend info for the commit
// output / reveal input: a single-leaf script tree rooted at
// revealScript, tweaked onto the funding key.
func BuildRevealSpendInfo(fundingXOnly [32]byte, revealScript []byte) (*RevealSpendInfo, error) {
	internalKey, err := schnorr.ParsePubKey(fundingXOnly[:])
	if err != nil {
		return nil, fmt.Errorf("parse funding x-only pubkey: %w", err)
	}

	leaf := txscript.NewBaseTapLeaf(revealScript)
	tree := txscript.AssembleTaprootScriptTree(leaf)
	merkleRoot := tree.RootNode.TapHash()

	outputKey := txscript.ComputeTaprootOutputKey(internalKey, merkleRoot[:])

	ctrlBlock := tree.LeafMerkleProofs[0].ToControlBlock(internalKey)
	ctrlBlockBytes, err := ctrlBlock.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize control block: %w", err)
	}

	pkScript, err := taprootPkScript(outputKey)
	if err != nil {
		return nil, err
	}

	return &RevealSpendInfo{
		InternalKey:  internalKey,
		OutputKey:    outputKey,
		Leaf:         leaf,
		ControlBlock: ctrlBlockBytes,
		PkScript:     pkScript,
	}, nil
}

// FundingPkScript returns the plain key-path P2TR scriptPubKey for a
// wallet's funding address: no script tree, tweak applied with a nil
// merkle root.
func FundingPkScript(fundingXOnly [32]byte) ([]byte, error) {
	internalKey, err := schnorr.ParsePubKey(fundingXOnly[:])
	if err != nil {
		return nil, fmt.Errorf("parse funding x-only pubkey: %w", err)
	}
	outputKey := txscript.ComputeTaprootOutputKey(internalKey, nil)
	return taprootPkScript(outputKey)
}

func taprootPkScript(outputKey *btcec.PublicKey) ([]byte, error) {
	xOnly := schnorr.SerializePubKey(outputKey)
	script := make([]byte, 0, 34)
	script = append(script, txscript.OP_1, txscript.OP_DATA_32)
	script = append(script, xOnly...)
	return script, nil
}

// SignCommitInput signs the commit transaction's single input, which
// spends the funding UTXO via the Taproot key path with SIGHASH_DEFAULT.
// The funding private key is tap-tweaked (no script merkle root) before
// signing, per BIP-341 key-path spending rules.
func SignCommitInput(tx *wire.MsgTx, inputIndex int, prevOutFetcher txscript.PrevOutputFetcher, fundingPriv *btcec.PrivateKey) (wire.TxWitness, error) {
	sigHashes := txscript.NewTxSigHashes(tx, prevOutFetcher)

	sighash, err := txscript.CalcTaprootSignatureHash(sigHashes, txscript.SigHashDefault, tx, inputIndex, prevOutFetcher)
	if err != nil {
		return nil, fmt.Errorf("compute commit sighash: %w", err)
	}

	tweakedPriv := txscript.TweakTaprootPrivKey(*fundingPriv, nil)

	sig, err := schnorr.Sign(tweakedPriv, sighash)
	if err != nil {
		return nil, fmt.Errorf("sign commit input: %w", err)
	}

	// SIGHASH_DEFAULT is implicit: no trailing hash-type byte.
	return wire.TxWitness{sig.Serialize()}, nil
}

// SignRevealInput signs the reveal transaction's single input, which
// spends the commit output via the Taproot script path with
// SIGHASH_SINGLE|SIGHASH_ANYONECANPAY. The funding private key is used
// untweaked, since script-path spends authenticate against the leaf
// script, not the tweaked output key.
func SignRevealInput(tx *wire.MsgTx, inputIndex int, prevOutFetcher txscript.PrevOutputFetcher, spendInfo *RevealSpendInfo, fundingPriv *btcec.PrivateKey) (wire.TxWitness, error) {
	const hashType = txscript.SigHashSingle | txscript.SigHashAnyOneCanPay

	sigHashes := txscript.NewTxSigHashes(tx, prevOutFetcher)

	sighash, err := txscript.CalcTapscriptSignaturehash(sigHashes, hashType, tx, inputIndex, prevOutFetcher, spendInfo.Leaf)
	if err != nil {
		return nil, fmt.Errorf("compute reveal sighash: %w", err)
	}

	sig, err := schnorr.Sign(fundingPriv, sighash)
	if err != nil {
		return nil, fmt.Errorf("sign reveal input: %w", err)
	}

	sigBytes := append(sig.Serialize(), byte(hashType))

	revealScript := spendInfo.Leaf.Script
	return wire.TxWitness{sigBytes, revealScript, spendInfo.ControlBlock}, nil
}
