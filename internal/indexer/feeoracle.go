package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atomicalminer/atomicalminer/internal/mint"
)

// MempoolFeeOracle implements mint.FeeOracle against a mempool.space
// compatible fee-estimation API.
type MempoolFeeOracle struct {
	baseURL    string
	httpClient *http.Client
}

// NewMempoolFeeOracle builds a fee oracle against baseURL, e.g.
// "https://mempool.space/api".
func NewMempoolFeeOracle(baseURL string) *MempoolFeeOracle {
	return &MempoolFeeOracle{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// RecommendedSatsPerVByte implements mint.FeeOracle by reading
// fastestFee from GET /v1/fees/recommended.
func (o *MempoolFeeOracle) RecommendedSatsPerVByte(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/v1/fees/recommended", nil)
	if err != nil {
		return 0, fmt.Errorf("build fee oracle request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fee oracle returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var payload struct {
		FastestFee uint64 `json:"fastestFee"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, &mint.ParseError{Op: "fee_oracle", Err: err}
	}
	return payload.FastestFee, nil
}

var _ mint.FeeOracle = (*MempoolFeeOracle)(nil)
