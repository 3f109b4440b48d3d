package mint

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"

	"github.com/atomicalminer/atomicalminer/internal/netparams"
	"github.com/atomicalminer/atomicalminer/pkg/logging"
)

// FtInfo is the subset of an ElectrumX `get_ft_info` response the driver
// validates before attempting a mint.
type FtInfo struct {
	AtomicalID  string
	Ticker      string
	Subtype     string
	MintHeight  uint64
	MintAmount  uint64
	MintCount   uint64
	MaxMints    uint64
	BitworkC    string
	BitworkR    string
	ChainHeight uint64
}

// HasRevealBitwork reports whether the reveal transaction must also be
// mined for a bitwork prefix.
func (f *FtInfo) HasRevealBitwork() bool { return f.BitworkR != "" }

// IndexerClient is the narrow surface the driver needs from an
// ElectrumX-style indexer, concrete implementations live in
// internal/indexer.
type IndexerClient interface {
	GetTickerID(ctx context.Context, ticker string) (string, error)
	GetFtInfo(ctx context.Context, atomicalID string) (*FtInfo, error)
	ListUTXOs(ctx context.Context, address string) ([]UTXO, error)
	Broadcast(ctx context.Context, rawHex string) error
	WaitUntilUTXO(ctx context.Context, address string, minValue uint64) (*UTXO, error)
}

// FeeOracle is the narrow surface the driver needs from a fee-rate
// source, concrete implementations live in internal/indexer.
type FeeOracle interface {
	RecommendedSatsPerVByte(ctx context.Context) (uint64, error)
}

// RevealCache persists a reveal transaction the driver could not get
// broadcast after exhausting the broadcast retry policy, so an operator
// can inspect or manually rebroadcast it later.
type RevealCache interface {
	SaveFailedReveal(ctx context.Context, attemptID, txid, rawHex, debugDump string) error
}

// Config configures a Driver. FeeMin/FeeMax bound the mainnet fee-oracle
// reading; they are ignored on testnet, which always uses a fixed
// satsbyte of 2.
type Config struct {
	Indexer     IndexerClient
	FeeOracle   FeeOracle
	Cache       RevealCache
	Log         *logging.Logger
	Network     netparams.Network
	FeeMin      uint64
	FeeMax      uint64
	ThreadCount int

	// BroadcastRetryPolicy overrides the commit/reveal broadcast retry
	// policy. Zero value selects BroadcastRetryPolicy() (20 attempts,
	// 15s apart); tests supply a short Backoff to stay fast.
	BroadcastRetryPolicy RetryPolicy
}

// Driver orchestrates a mint attempt end to end: ticker validation, fee
// selection, funding-UTXO waiting, commit mining, commit broadcast,
// confirmation wait, reveal mining, and reveal broadcast, iterating
// over a set of wallets forever.
type Driver struct {
	cfg Config
}

// NewDriver builds a Driver for the given network and collaborators.
// threadCount below 1 is treated as 1.
func NewDriver(cfg Config) (*Driver, error) {
	if _, ok := netparams.Params(cfg.Network); !ok {
		return nil, &ConfigError{Field: "network", Err: fmt.Errorf("unknown network %q", cfg.Network)}
	}
	if cfg.ThreadCount < 1 {
		cfg.ThreadCount = 1
	}
	if cfg.BroadcastRetryPolicy.MaxAttempts == 0 && !cfg.BroadcastRetryPolicy.Infinite {
		cfg.BroadcastRetryPolicy = BroadcastRetryPolicy()
	}
	return &Driver{cfg: cfg}, nil
}

// Run validates, mines, and broadcasts mint attempts for ticker against
// every wallet in wallets, round-robin, forever. A failed attempt is
// logged and the next wallet is tried. It returns only when ctx is
// cancelled or wallets is empty; normal operation never returns.
func (d *Driver) Run(ctx context.Context, ticker string, wallets []Wallet) error {
	log := d.cfg.Log.Component("driver")
	if len(wallets) == 0 {
		return &ConfigError{Field: "wallets", Err: fmt.Errorf("no wallets loaded")}
	}

	for {
		for _, wallet := range wallets {
			if err := ctx.Err(); err != nil {
				return err
			}

			attemptID := uuid.New().String()
			walletLog := log.With("attempt_id", attemptID, "ticker", ticker, "wallet", wallet.Name)

			if err := d.attempt(ctx, walletLog, ticker, wallet, attemptID); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				walletLog.Error("mint attempt failed", "error", err)
			}
		}
	}
}

// attempt runs the full per-wallet state machine:
// Validating -> WaitingFunding -> CommitMining -> BroadcastingCommit ->
// WaitingCommitConfirmed -> RevealMining? -> BroadcastingReveal -> Done.
func (d *Driver) attempt(ctx context.Context, log *logging.Logger, ticker string, wallet Wallet, attemptID string) error {
	params, _ := netparams.Params(d.cfg.Network)

	log.Info("validating ticker")
	ftInfo, err := d.validate(ctx, log, ticker)
	if err != nil {
		return err
	}

	satsbyte, err := d.selectFee(ctx, log)
	if err != nil {
		return err
	}
	log.Info("fee selected", "satsbyte", satsbyte)

	payload := PayloadArgs{
		Bitworkc:   ftInfo.BitworkC,
		MintTicker: ticker,
		Nonce:      uint64(1 + rand.Int63n(10_000_000-1)),
		Time:       uint64(time.Now().Unix()),
	}
	payloadBytes := EncodePayload(payload)

	revealScript, err := BuildRevealScript(wallet.Funding.XOnlyPubKey, "dmt", payloadBytes)
	if err != nil {
		return fmt.Errorf("build reveal script: %w", err)
	}
	spendInfo, err := BuildRevealSpendInfo(wallet.Funding.XOnlyPubKey, revealScript)
	if err != nil {
		return fmt.Errorf("build reveal spend info: %w", err)
	}

	fees := ComputeFees(FeeModelInput{
		Satsbyte:         satsbyte,
		RevealScriptLen:  len(revealScript),
		NumRevealOutputs: 1,
		HasRevealBitwork: ftInfo.HasRevealBitwork(),
		OutputValues:     []uint64{ftInfo.MintAmount},
	})

	log.Info("waiting for funding utxo", "address", wallet.Funding.Address, "min_value", fees.CommitAndRevealAndOutputs)
	fundingUTXO, err := d.cfg.Indexer.WaitUntilUTXO(ctx, wallet.Funding.Address, fees.CommitAndRevealAndOutputs)
	if err != nil {
		return &TransientNetworkError{Op: "wait_funding_utxo", Err: err}
	}

	fundingOutpoint, err := OutpointFromTxID(fundingUTXO.TxID, fundingUTXO.Vout)
	if err != nil {
		return err
	}
	fundingPkScript, err := FundingPkScript(wallet.Funding.XOnlyPubKey)
	if err != nil {
		return fmt.Errorf("build funding pkscript: %w", err)
	}

	refundValue := refundRemainder(fundingUTXO.Value, fees, satsbyte)

	commitTmpl := &CommitTxTemplate{
		FundingOutpoint:  fundingOutpoint,
		FundingValue:     int64(fundingUTXO.Value),
		FundingPkScript:  fundingPkScript,
		ScriptPkScript:   spendInfo.PkScript,
		RevealAndOutputs: fees.RevealAndOutputs,
		RefundValue:      refundValue,
	}

	log.Info("mining commit transaction", "bitworkc", ftInfo.BitworkC)
	pool := NewWorkerPool(d.cfg.ThreadCount)
	commitTx, err := pool.Run(ctx, "commit", ftInfo.BitworkC, d.commitCandidateFunc(commitTmpl, wallet.Funding.PrivateKey))
	if err != nil {
		return fmt.Errorf("commit mining: %w", err)
	}
	log.Info("commit candidate found", "txid", TxID(commitTx))

	commitHex, err := SerializeTx(commitTx)
	if err != nil {
		return fmt.Errorf("serialize commit: %w", err)
	}
	if err := RetryForever(ctx, log, "broadcast-commit", d.cfg.BroadcastRetryPolicy, func() error {
		return d.cfg.Indexer.Broadcast(ctx, commitHex)
	}); err != nil {
		return &TransientNetworkError{Op: "broadcast_commit", Err: err}
	}
	log.Info("commit broadcast")

	revealAddress, err := taprootAddress(spendInfo.OutputKey, params)
	if err != nil {
		return fmt.Errorf("derive commit address: %w", err)
	}

	log.Info("waiting for commit confirmation", "address", revealAddress)
	commitUTXO, err := d.cfg.Indexer.WaitUntilUTXO(ctx, revealAddress, fees.RevealAndOutputs)
	if err != nil {
		return &TransientNetworkError{Op: "wait_commit_confirmed", Err: err}
	}
	if commitUTXO.TxID != TxID(commitTx) {
		return fmt.Errorf("confirmed utxo txid %s does not match broadcast commit txid %s", commitUTXO.TxID, TxID(commitTx))
	}

	stashAddr, err := btcutil.DecodeAddress(wallet.Stash.Address, params)
	if err != nil {
		return &ConfigError{Field: "stash_address", Err: err}
	}
	stashPkScript, err := txscript.PayToAddrScript(stashAddr)
	if err != nil {
		return fmt.Errorf("build stash pkscript: %w", err)
	}

	revealTmpl := &RevealTxTemplate{
		CommitOutpoint: fundingOutpointFromCommit(commitTx),
		CommitValue:    int64(fees.RevealAndOutputs),
		CommitPkScript: spendInfo.PkScript,
		StashPkScript:  stashPkScript,
		MintAmount:     ftInfo.MintAmount,
		SpendInfo:      spendInfo,
	}

	var revealTx *wire.MsgTx
	if ftInfo.HasRevealBitwork() {
		log.Info("mining reveal transaction", "bitworkr", ftInfo.BitworkR)
		baseReveal := BuildRevealBase(revealTmpl)
		mined, err := RunRevealSearch(ctx, d.cfg.ThreadCount, ftInfo.BitworkR, baseReveal, revealTmpl, wallet.Funding.PrivateKey)
		if err != nil {
			return fmt.Errorf("reveal mining: %w", err)
		}
		revealTx = mined.Tx
		log.Info("reveal candidate found", "txid", TxID(revealTx), "time", mined.Time, "nonce", mined.Nonce)
	} else {
		revealTx = BuildRevealBase(revealTmpl)
		witness, err := SignRevealInput(revealTx, 0, RevealPrevOutFetcher(revealTmpl), spendInfo, wallet.Funding.PrivateKey)
		if err != nil {
			return fmt.Errorf("sign reveal: %w", err)
		}
		revealTx.TxIn[0].Witness = witness
		log.Info("reveal signed", "txid", TxID(revealTx))
	}

	revealHex, err := SerializeTx(revealTx)
	if err != nil {
		return fmt.Errorf("serialize reveal: %w", err)
	}
	if err := RetryForever(ctx, log, "broadcast-reveal", d.cfg.BroadcastRetryPolicy, func() error {
		return d.cfg.Indexer.Broadcast(ctx, revealHex)
	}); err != nil {
		log.Error("reveal broadcast exhausted, caching for later", "txid", TxID(revealTx), "error", err)
		if cacheErr := d.cfg.Cache.SaveFailedReveal(ctx, attemptID, TxID(revealTx), revealHex, dumpTx(revealTx)); cacheErr != nil {
			log.Error("failed to persist reveal cache record", "error", cacheErr)
		}
		return nil
	}

	log.Info("reveal broadcast, mint attempt done")
	return nil
}

// validate fetches ticker id and ft_info (retrying transient failures
// forever) and checks the mint-rule invariants from the data model.
func (d *Driver) validate(ctx context.Context, log *logging.Logger, ticker string) (*FtInfo, error) {
	var atomicalID string
	if err := RetryForever(ctx, log, "get_by_ticker", QueryRetryPolicy(), func() error {
		id, err := d.cfg.Indexer.GetTickerID(ctx, ticker)
		if err != nil {
			return err
		}
		atomicalID = id
		return nil
	}); err != nil {
		return nil, &TransientNetworkError{Op: "get_by_ticker", Err: err}
	}

	var ftInfo *FtInfo
	if err := RetryForever(ctx, log, "get_ft_info", QueryRetryPolicy(), func() error {
		info, err := d.cfg.Indexer.GetFtInfo(ctx, atomicalID)
		if err != nil {
			return err
		}
		ftInfo = info
		return nil
	}); err != nil {
		return nil, &TransientNetworkError{Op: "get_ft_info", Err: err}
	}

	switch {
	case ftInfo.Ticker != ticker:
		return nil, &ValidationError{Ticker: ticker, Reason: "ticker mismatch"}
	case ftInfo.Subtype != "decentralized":
		return nil, &ValidationError{Ticker: ticker, Reason: "not a decentralized fungible token"}
	case ftInfo.MintHeight > ftInfo.ChainHeight+1:
		return nil, &ValidationError{Ticker: ticker, Reason: "mint height not yet reached"}
	case ftInfo.MintAmount == 0 || ftInfo.MintAmount >= 100_000_000:
		return nil, &ValidationError{Ticker: ticker, Reason: "mint amount out of range"}
	case ftInfo.MintCount >= ftInfo.MaxMints:
		return nil, &ValidationError{Ticker: ticker, Reason: "mints exhausted"}
	}

	return ftInfo, nil
}

// selectFee applies the mainnet/testnet fee-selection rule: mainnet
// clamps the fee oracle's reading (plus a 5 sat/vbyte speed bump)
// between the configured bounds; testnet always uses a fixed rate.
func (d *Driver) selectFee(ctx context.Context, log *logging.Logger) (uint64, error) {
	if !d.cfg.Network.IsMainnet() {
		return 2, nil
	}

	var recommended uint64
	if err := RetryForever(ctx, log, "fee_oracle", QueryRetryPolicy(), func() error {
		rate, err := d.cfg.FeeOracle.RecommendedSatsPerVByte(ctx)
		if err != nil {
			return err
		}
		recommended = rate
		return nil
	}); err != nil {
		return 0, &TransientNetworkError{Op: "fee_oracle", Err: err}
	}

	return clamp(recommended+5, d.cfg.FeeMin, d.cfg.FeeMax), nil
}

// commitCandidateFunc adapts a CommitTxTemplate and funding key into the
// WorkerPool's CandidateFunc shape: build, sign, and return one commit
// candidate per sequence value.
func (d *Driver) commitCandidateFunc(tmpl *CommitTxTemplate, fundingPriv *btcec.PrivateKey) CandidateFunc {
	prevOutFetcher := CommitPrevOutFetcher(tmpl)
	return func(sequence uint32) (*wire.MsgTx, error) {
		tx := BuildCommitCandidate(tmpl, sequence)
		witness, err := SignCommitInput(tx, 0, prevOutFetcher, fundingPriv)
		if err != nil {
			return nil, err
		}
		tx.TxIn[0].Witness = witness
		return tx, nil
	}
}

// clamp bounds v between lo and hi inclusive.
func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// refundRemainder implements invariant (ii): the commit transaction
// gets a second, refund-to-funding output only when the funding UTXO
// carries strictly more than reveal_and_outputs + commit +
// OUTPUT_BYTES_BASE*satsbyte.
func refundRemainder(fundingValue uint64, fees Fees, satsbyte uint64) uint64 {
	extraOutputCost := uint64(outputBytesBase * float64(satsbyte))
	threshold := fees.RevealAndOutputs + fees.Commit + extraOutputCost
	if fundingValue <= threshold {
		return 0
	}
	return fundingValue - threshold
}

// fundingOutpointFromCommit returns the outpoint of a commit
// transaction's output 0, which every reveal transaction spends.
func fundingOutpointFromCommit(commitTx *wire.MsgTx) wire.OutPoint {
	return wire.OutPoint{Hash: commitTx.TxHash(), Index: 0}
}

// taprootAddress encodes a Taproot output key as a bech32m address on
// the given network, used only to poll the indexer for the commit
// output's confirmation.
func taprootAddress(outputKey *btcec.PublicKey, params *chaincfg.Params) (string, error) {
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// dumpTx renders a human-readable summary of a transaction's inputs,
// outputs, and witness sizes for the reveal-cache debug record.
func dumpTx(tx *wire.MsgTx) string {
	var b strings.Builder
	fmt.Fprintf(&b, "txid=%s version=%d locktime=%d\n", TxID(tx), tx.Version, tx.LockTime)
	for i, in := range tx.TxIn {
		witnessBytes := 0
		for _, w := range in.Witness {
			witnessBytes += len(w)
		}
		fmt.Fprintf(&b, "  in[%d] prevout=%s sequence=%d witness_items=%d witness_bytes=%d\n",
			i, in.PreviousOutPoint.String(), in.Sequence, len(in.Witness), witnessBytes)
	}
	for i, out := range tx.TxOut {
		fmt.Fprintf(&b, "  out[%d] value=%d pkscript_len=%d\n", i, out.Value, len(out.PkScript))
	}
	return b.String()
}
