package mint

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"github.com/atomicalminer/atomicalminer/internal/netparams"
	"github.com/atomicalminer/atomicalminer/pkg/logging"
)

// fakeIndexer is a single-wallet, address-agnostic stand-in for an
// ElectrumX-style indexer: it ignores the address argument and instead
// tracks whether a commit transaction has been broadcast yet, since a
// mint attempt only ever waits on two addresses (funding, then the
// commit script) one after another and the commit's address can't be
// precomputed (it depends on the freshly drawn payload nonce/time).
type fakeIndexer struct {
	mu sync.Mutex

	ftInfo      *FtInfo
	fundingUTXO UTXO

	broadcasts   []string
	broadcastErr []error // consumed in order by Broadcast call index; missing entries succeed
	commitTxID   string
	commitDone   bool
}

func txIDFromHex(rawHex string) (string, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return "", err
	}
	tx := wire.NewMsgTx(1)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", err
	}
	return TxID(tx), nil
}

func (f *fakeIndexer) GetTickerID(ctx context.Context, ticker string) (string, error) {
	return "atomical-id-" + ticker, nil
}

func (f *fakeIndexer) GetFtInfo(ctx context.Context, atomicalID string) (*FtInfo, error) {
	cp := *f.ftInfo
	return &cp, nil
}

func (f *fakeIndexer) ListUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.commitDone {
		return []UTXO{f.fundingUTXO}, nil
	}
	return []UTXO{{TxID: f.commitTxID, Vout: 0, Value: 1 << 62}}, nil
}

func (f *fakeIndexer) Broadcast(ctx context.Context, rawHex string) error {
	f.mu.Lock()
	idx := len(f.broadcasts)
	f.broadcasts = append(f.broadcasts, rawHex)
	var err error
	if idx < len(f.broadcastErr) {
		err = f.broadcastErr[idx]
	}
	f.mu.Unlock()

	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.commitDone {
		txid, parseErr := txIDFromHex(rawHex)
		if parseErr != nil {
			return parseErr
		}
		f.commitTxID = txid
		f.commitDone = true
	}
	return nil
}

func (f *fakeIndexer) WaitUntilUTXO(ctx context.Context, address string, minValue uint64) (*UTXO, error) {
	utxos, _ := f.ListUTXOs(ctx, address)
	for i := range utxos {
		if utxos[i].Value >= minValue {
			return &utxos[i], nil
		}
	}
	return nil, errors.New("no qualifying utxo in fake indexer")
}

var _ IndexerClient = (*fakeIndexer)(nil)

type fakeFeeOracle struct{ rate uint64 }

func (f *fakeFeeOracle) RecommendedSatsPerVByte(ctx context.Context) (uint64, error) {
	return f.rate, nil
}

type fakeCache struct {
	mu      sync.Mutex
	records []string
}

func (c *fakeCache) SaveFailedReveal(ctx context.Context, attemptID, txid, rawHex, debugDump string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rawHex)
	return nil
}

const testFundingWIF = "L4VgnxVoaPRaptd4yW19wwd7v9dzJvQn478AKwucbaQifPFBacrp"
const testStashWIF = "KwdMAjGmerYanjeui5SHS7JkmpZvVipYvB2LJGU1ZxJwYvP98617"

func testWallet(t *testing.T, params *chaincfg.Params) Wallet {
	t.Helper()

	funding, err := btcutil.DecodeWIF(testFundingWIF)
	if err != nil {
		t.Fatalf("DecodeWIF funding: %v", err)
	}
	stash, err := btcutil.DecodeWIF(testStashWIF)
	if err != nil {
		t.Fatalf("DecodeWIF stash: %v", err)
	}

	var fundingXOnly, stashXOnly [32]byte
	copy(fundingXOnly[:], schnorr.SerializePubKey(funding.PrivKey.PubKey()))
	copy(stashXOnly[:], schnorr.SerializePubKey(stash.PrivKey.PubKey()))

	fundingAddr, err := btcutil.NewAddressTaproot(fundingXOnly[:], params)
	if err != nil {
		t.Fatalf("NewAddressTaproot funding: %v", err)
	}
	stashAddr, err := btcutil.NewAddressTaproot(stashXOnly[:], params)
	if err != nil {
		t.Fatalf("NewAddressTaproot stash: %v", err)
	}

	return Wallet{
		Name: "test",
		Funding: Key{
			Address:     fundingAddr.EncodeAddress(),
			PrivateKey:  funding.PrivKey,
			XOnlyPubKey: fundingXOnly,
		},
		Stash: Key{
			Address:     stashAddr.EncodeAddress(),
			PrivateKey:  stash.PrivKey,
			XOnlyPubKey: stashXOnly,
		},
	}
}

func testDriver(t *testing.T, indexer IndexerClient, oracle FeeOracle, cache RevealCache) *Driver {
	t.Helper()
	d, err := NewDriver(Config{
		Indexer:              indexer,
		FeeOracle:            oracle,
		Cache:                cache,
		Log:                  logging.New(&logging.Config{Level: "error"}),
		Network:              netparams.Testnet, // fixed satsbyte=2, no dependency on the fee oracle path
		FeeMin:               1,
		FeeMax:               200,
		ThreadCount:          2,
		BroadcastRetryPolicy: RetryPolicy{Infinite: false, MaxAttempts: 20, Backoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	return d
}

func testLog() *logging.Logger { return logging.New(&logging.Config{Level: "error"}) }

func baseFtInfo() *FtInfo {
	return &FtInfo{
		Ticker:     "test",
		Subtype:    "decentralized",
		MintHeight: 100,
		MintAmount: 1000,
		MintCount:  0,
		MaxMints:   10,
		BitworkC:   "", // empty prefix matches immediately, keeps tests fast
		ChainHeight: 100,
	}
}

// Scenario 1: happy path, no reveal bitwork. Exactly two broadcasts,
// the second spending the first's output 0.
func TestHappyPathNoRevealBitwork(t *testing.T) {
	params := &chaincfg.TestNet3Params
	wallet := testWallet(t, params)
	ftInfo := baseFtInfo()

	indexer := &fakeIndexer{
		ftInfo:      ftInfo,
		fundingUTXO: UTXO{TxID: "aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa1", Vout: 0, Value: 10_000_000},
	}
	d := testDriver(t, indexer, &fakeFeeOracle{rate: 10}, &fakeCache{})

	if err := d.attempt(context.Background(), testLog(), "test", wallet, "attempt-1"); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if len(indexer.broadcasts) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(indexer.broadcasts))
	}

	commitTxID, err := txIDFromHex(indexer.broadcasts[0])
	if err != nil {
		t.Fatalf("parse commit txid: %v", err)
	}
	revealTx := wire.NewMsgTx(1)
	raw, _ := hex.DecodeString(indexer.broadcasts[1])
	if err := revealTx.Deserialize(bytes.NewReader(raw)); err != nil {
		t.Fatalf("deserialize reveal: %v", err)
	}
	if revealTx.TxIn[0].PreviousOutPoint.Hash.String() != commitTxID || revealTx.TxIn[0].PreviousOutPoint.Index != 0 {
		t.Errorf("reveal does not spend commit output 0: spends %s", revealTx.TxIn[0].PreviousOutPoint.String())
	}
}

// Scenario 2: happy path with a reveal bitwork. Reveal carries a
// trailing zero-value OP_RETURN with "time:nonce" and its txid matches
// the required prefix.
func TestHappyPathWithRevealBitwork(t *testing.T) {
	params := &chaincfg.TestNet3Params
	wallet := testWallet(t, params)
	ftInfo := baseFtInfo()
	ftInfo.BitworkR = "0" // cheap, 1-in-16 odds, keeps the test fast

	indexer := &fakeIndexer{
		ftInfo:      ftInfo,
		fundingUTXO: UTXO{TxID: "bb11bb11bb11bb11bb11bb11bb11bb11bb11bb11bb11bb11bb11bb11bb11bb1", Vout: 0, Value: 10_000_000},
	}
	d := testDriver(t, indexer, &fakeFeeOracle{rate: 10}, &fakeCache{})

	if err := d.attempt(context.Background(), testLog(), "test", wallet, "attempt-1"); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if len(indexer.broadcasts) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(indexer.broadcasts))
	}

	revealTx := wire.NewMsgTx(1)
	raw, _ := hex.DecodeString(indexer.broadcasts[1])
	if err := revealTx.Deserialize(bytes.NewReader(raw)); err != nil {
		t.Fatalf("deserialize reveal: %v", err)
	}
	if len(revealTx.TxOut) != 2 {
		t.Fatalf("expected 2 outputs (mint payout + OP_RETURN), got %d", len(revealTx.TxOut))
	}
	opReturn := revealTx.TxOut[1]
	if opReturn.Value != 0 {
		t.Errorf("OP_RETURN output value = %d, want 0", opReturn.Value)
	}
	if opReturn.PkScript[0] != 0x6a {
		t.Errorf("second output is not OP_RETURN: %x", opReturn.PkScript)
	}
	if !matchesPrefix(TxID(revealTx), "0") {
		t.Errorf("reveal txid %s does not start with required prefix", TxID(revealTx))
	}
}

// Scenario 3: validation failure on ticker mismatch aborts before any
// broadcast.
func TestValidationFailureTickerMismatch(t *testing.T) {
	params := &chaincfg.TestNet3Params
	wallet := testWallet(t, params)
	ftInfo := baseFtInfo()
	ftInfo.Ticker = "other"

	indexer := &fakeIndexer{ftInfo: ftInfo}
	d := testDriver(t, indexer, &fakeFeeOracle{rate: 10}, &fakeCache{})

	err := d.attempt(context.Background(), testLog(), "test", wallet, "attempt-1")
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(indexer.broadcasts) != 0 {
		t.Fatalf("expected no broadcasts on validation failure, got %d", len(indexer.broadcasts))
	}
}

// Scenario 4: the first 3 commit broadcasts fail transiently, the 4th
// succeeds - exactly 4 broadcast calls observed for the commit stage.
func TestBroadcastRetrySucceedsOnFourthAttempt(t *testing.T) {
	params := &chaincfg.TestNet3Params
	wallet := testWallet(t, params)
	ftInfo := baseFtInfo()

	indexer := &fakeIndexer{
		ftInfo:       ftInfo,
		fundingUTXO:  UTXO{TxID: "cc11cc11cc11cc11cc11cc11cc11cc11cc11cc11cc11cc11cc11cc11cc11cc1", Vout: 0, Value: 10_000_000},
		broadcastErr: []error{errors.New("transient"), errors.New("transient"), errors.New("transient")},
	}
	d := testDriver(t, indexer, &fakeFeeOracle{rate: 10}, &fakeCache{})

	if err := d.attempt(context.Background(), testLog(), "test", wallet, "attempt-1"); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	// 3 failed commit attempts + 1 successful commit + 1 reveal = 5 total.
	if len(indexer.broadcasts) != 5 {
		t.Fatalf("expected 5 broadcast calls (3 failed + 1 commit + 1 reveal), got %d", len(indexer.broadcasts))
	}
}

// Scenario 5: reveal broadcast exhausts its retry policy; the attempt
// still returns nil (non-fatal) and exactly one record lands in the
// reveal cache.
func TestBroadcastExhaustionCachesFailedReveal(t *testing.T) {
	params := &chaincfg.TestNet3Params
	wallet := testWallet(t, params)
	ftInfo := baseFtInfo()

	alwaysFailAfterCommit := make([]error, 0, 21)
	alwaysFailAfterCommit = append(alwaysFailAfterCommit, nil) // commit succeeds immediately
	for i := 0; i < 20; i++ {
		alwaysFailAfterCommit = append(alwaysFailAfterCommit, errors.New("reveal broadcast always fails"))
	}

	indexer := &fakeIndexer{
		ftInfo:       ftInfo,
		fundingUTXO:  UTXO{TxID: "dd11dd11dd11dd11dd11dd11dd11dd11dd11dd11dd11dd11dd11dd11dd11dd1", Vout: 0, Value: 10_000_000},
		broadcastErr: alwaysFailAfterCommit,
	}
	cache := &fakeCache{}
	d := testDriver(t, indexer, &fakeFeeOracle{rate: 10}, cache)

	if err := d.attempt(context.Background(), testLog(), "test", wallet, "attempt-1"); err != nil {
		t.Fatalf("attempt should return nil on reveal broadcast exhaustion (non-fatal), got: %v", err)
	}
	if len(cache.records) != 1 {
		t.Fatalf("expected exactly one cached reveal record, got %d", len(cache.records))
	}
	if len(indexer.broadcasts) != 21 {
		t.Fatalf("expected 1 commit + 20 reveal broadcast attempts, got %d", len(indexer.broadcasts))
	}
}

// Scenario 6: refund split invariant (ii), tested directly against
// refundRemainder.
func TestRefundSplit(t *testing.T) {
	fees := Fees{RevealAndOutputs: 1000, Commit: 500}
	satsbyte := uint64(10)
	threshold := fees.RevealAndOutputs + fees.Commit + uint64(outputBytesBase*float64(satsbyte))

	if got := refundRemainder(threshold, fees, satsbyte); got != 0 {
		t.Errorf("at exact threshold, refund = %d, want 0", got)
	}
	if got := refundRemainder(threshold+1, fees, satsbyte); got != 1 {
		t.Errorf("one sat over threshold, refund = %d, want 1", got)
	}
}
