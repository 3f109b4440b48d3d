// Package indexer implements the ElectrumX-style HTTPS-JSON-RPC indexer
// client and the mempool.space fee oracle the mint driver depends on
// through the mint.IndexerClient and mint.FeeOracle interfaces.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/atomicalminer/atomicalminer/internal/mint"
	"github.com/atomicalminer/atomicalminer/pkg/logging"
)

// fundingPollInterval is how often WaitUntilUTXO re-polls ListUTXOs
// while waiting for a qualifying unspent output to appear.
const fundingPollInterval = 5 * time.Second

// ElectrumXClient talks to an ElectrumX-compatible indexer over HTTPS
// JSON-RPC: POST <base>/<method> with body {"params":[arg]}, response
// {"success":bool,"response":...}.
type ElectrumXClient struct {
	baseURL    string
	params     *chaincfg.Params
	httpClient *http.Client
	log        *logging.Logger
}

// NewElectrumXClient builds a client against baseURL (no trailing
// slash required) for the given chain parameters.
func NewElectrumXClient(baseURL string, params *chaincfg.Params, log *logging.Logger) *ElectrumXClient {
	return &ElectrumXClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		params:     params,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.Component("indexer"),
	}
}

type envelope struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response"`
}

// call POSTs {"params":[arg]} to <base>/<method> and unwraps the
// {"success","response"} envelope every ElectrumX-proxy method here
// shares.
func (c *ElectrumXClient) call(ctx context.Context, method string, arg interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]interface{}{"params": []interface{}{arg}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("indexer request", "method", method)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	c.log.Debug("indexer response", "method", method, "body", string(raw))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &mint.ParseError{Op: method, Err: err}
	}
	if !env.Success {
		return nil, fmt.Errorf("indexer call %s reported failure", method)
	}
	return env.Response, nil
}

// GetTickerID implements mint.IndexerClient.
func (c *ElectrumXClient) GetTickerID(ctx context.Context, ticker string) (string, error) {
	resp, err := c.call(ctx, "blockchain.atomicals.get_by_ticker", ticker)
	if err != nil {
		return "", err
	}

	var payload struct {
		Result struct {
			AtomicalID string `json:"atomical_id"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &payload); err != nil {
		return "", &mint.ParseError{Op: "get_by_ticker", Err: err}
	}
	return payload.Result.AtomicalID, nil
}

// GetFtInfo implements mint.IndexerClient.
func (c *ElectrumXClient) GetFtInfo(ctx context.Context, atomicalID string) (*mint.FtInfo, error) {
	resp, err := c.call(ctx, "blockchain.atomicals.get_ft_info", atomicalID)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Global struct {
			Height uint64 `json:"height"`
		} `json:"global"`
		Result struct {
			Ticker     string `json:"$ticker"`
			BitworkC   string `json:"$mint_bitworkc"`
			BitworkR   string `json:"$mint_bitworkr"`
			MintAmount uint64 `json:"$mint_amount"`
			MintHeight uint64 `json:"$mint_height"`
			Subtype    string `json:"subtype"`
			MaxMints   uint64 `json:"$max_mints"`
			DftInfo    struct {
				MintCount uint64 `json:"mint_count"`
			} `json:"dft_info"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, &mint.ParseError{Op: "get_ft_info", Err: err}
	}

	return &mint.FtInfo{
		AtomicalID:  atomicalID,
		Ticker:      payload.Result.Ticker,
		Subtype:     payload.Result.Subtype,
		MintHeight:  payload.Result.MintHeight,
		MintAmount:  payload.Result.MintAmount,
		MintCount:   payload.Result.DftInfo.MintCount,
		MaxMints:    payload.Result.MaxMints,
		BitworkC:    payload.Result.BitworkC,
		BitworkR:    payload.Result.BitworkR,
		ChainHeight: payload.Global.Height,
	}, nil
}

// ListUTXOs implements mint.IndexerClient. Results are sorted ascending
// by value, matching the "prefer the smallest qualifying UTXO" rule.
func (c *ElectrumXClient) ListUTXOs(ctx context.Context, address string) ([]mint.UTXO, error) {
	scripthash, err := AddressToScriptHash(address, c.params)
	if err != nil {
		return nil, &mint.ConfigError{Field: "address", Err: err}
	}

	resp, err := c.call(ctx, "blockchain.scripthash.listunspent", scripthash)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		TxHash    string   `json:"tx_hash"`
		TxPos     uint32   `json:"tx_pos"`
		Value     uint64   `json:"value"`
		Atomicals []string `json:"atomicals"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, &mint.ParseError{Op: "listunspent", Err: err}
	}

	utxos := make([]mint.UTXO, len(raw))
	for i, u := range raw {
		utxos[i] = mint.UTXO{TxID: u.TxHash, Vout: u.TxPos, Value: u.Value, Atomicals: u.Atomicals}
	}
	sort.Slice(utxos, func(i, j int) bool { return utxos[i].Value < utxos[j].Value })
	return utxos, nil
}

// Broadcast implements mint.IndexerClient.
func (c *ElectrumXClient) Broadcast(ctx context.Context, rawHex string) error {
	_, err := c.call(ctx, "blockchain.transaction.broadcast", rawHex)
	return err
}

// WaitUntilUTXO implements mint.IndexerClient: polls ListUTXOs every
// fundingPollInterval until it finds a plain-value UTXO (no atomicals
// state) at address whose value is at least minValue, preferring the
// smallest such UTXO.
func (c *ElectrumXClient) WaitUntilUTXO(ctx context.Context, address string, minValue uint64) (*mint.UTXO, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		utxos, err := c.ListUTXOs(ctx, address)
		if err != nil {
			return nil, err
		}

		for i := range utxos {
			if utxos[i].IsPlainValue() && utxos[i].Value >= minValue {
				return &utxos[i], nil
			}
		}

		c.log.Debug("polling for qualifying utxo", "address", address, "min_value", minValue)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(fundingPollInterval):
		}
	}
}

var _ mint.IndexerClient = (*ElectrumXClient)(nil)
