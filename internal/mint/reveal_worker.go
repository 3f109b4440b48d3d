package mint

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// revealNonceSpace is the nonce search space reveal-stage workers
// partition into per-worker buckets, per the reveal-variant WorkerPool
// contract.
const revealNonceSpace = 100_000_000

// timeRefreshInterval is how often (in candidates) a reveal worker
// re-reads the wall clock for the time half of its time:nonce
// OP_RETURN payload. The read is intentionally racy and coarse.
const timeRefreshInterval = 10_000

// RevealMineResult carries the winning reveal transaction plus the
// time:nonce pair that produced it, needed to reconstruct/verify the
// OP_RETURN payload later.
type RevealMineResult struct {
	Tx    *wire.MsgTx
	Time  uint64
	Nonce uint64
}

// RunRevealSearch mines the reveal transaction for tickers that require
// a reveal bitwork: each worker sweeps a disjoint nonce bucket, cloning
// baseTx and appending a zero-value OP_RETURN(time:nonce) output on
// every candidate, then signs the script-path spend and checks the
// resulting txid against difficultyHexPrefix.
func RunRevealSearch(
	ctx context.Context,
	threadCount int,
	difficultyHexPrefix string,
	baseTx *wire.MsgTx,
	tmpl *RevealTxTemplate,
	fundingPriv *btcec.PrivateKey,
) (*RevealMineResult, error) {
	if threadCount < 1 {
		threadCount = 1
	}
	bucketSize := uint64(revealNonceSpace / threadCount)
	if bucketSize == 0 {
		bucketSize = 1
	}

	prevOutFetcher := RevealPrevOutFetcher(tmpl)

	var (
		found    atomic.Bool
		resultMu sync.Mutex
		result   *RevealMineResult
		firstErr error
		wg       sync.WaitGroup
	)

	for i := 0; i < threadCount; i++ {
		start := uint64(i) * bucketSize
		end := start + bucketSize
		wg.Add(1)
		go func(start, end uint64) {
			defer wg.Done()

			unixTime := uint64(time.Now().Unix())
			candidates := 0

			for nonce := start; nonce < end; nonce++ {
				if found.Load() {
					return
				}

				candidates++
				if candidates%timeRefreshInterval == 0 {
					unixTime = uint64(time.Now().Unix())
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				candidate := CloneTx(baseTx)
				opReturnScript, err := TimeNonceScript(unixTime, nonce)
				if err != nil {
					resultMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					resultMu.Unlock()
					found.Store(true)
					return
				}
				candidate.AddTxOut(wire.NewTxOut(0, opReturnScript))

				signed, err := signRevealCandidate(candidate, prevOutFetcher, tmpl.SpendInfo, fundingPriv)
				if err != nil {
					resultMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					resultMu.Unlock()
					found.Store(true)
					return
				}

				if matchesPrefix(TxID(signed), difficultyHexPrefix) {
					resultMu.Lock()
					if result == nil {
						result = &RevealMineResult{Tx: signed, Time: unixTime, Nonce: nonce}
					}
					resultMu.Unlock()
					found.Store(true)
					return
				}
			}
		}(start, end)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if ctx.Err() != nil && result == nil {
		return nil, ctx.Err()
	}
	if result == nil {
		return nil, ErrNoSolution
	}
	return result, nil
}

// signRevealCandidate signs a single reveal candidate's script-path
// input, returning a fully witnessed transaction ready for txid
// comparison or broadcast.
func signRevealCandidate(tx *wire.MsgTx, prevOutFetcher txscript.PrevOutputFetcher, spendInfo *RevealSpendInfo, fundingPriv *btcec.PrivateKey) (*wire.MsgTx, error) {
	witness, err := SignRevealInput(tx, 0, prevOutFetcher, spendInfo, fundingPriv)
	if err != nil {
		return nil, err
	}
	tx.TxIn[0].Witness = witness
	return tx, nil
}
