package mint

import "fmt"

// ValidationError marks a mint attempt as fatal but non-fatal-to-process:
// ticker mismatch, wrong subtype, height/amount out of range, mints
// exhausted. The driver logs it and moves on to the next wallet.
type ValidationError struct {
	Ticker string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for ticker %q: %s", e.Ticker, e.Reason)
}

// TransientNetworkError wraps a failed indexer POST, fee oracle GET, or
// broadcast call. Callers retry according to the policy attached to the
// call site (RetryForever for queries, bounded for broadcast).
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error during %s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// ParseError marks malformed JSON from the indexer. Treated as transient
// by the retry loop that calls the indexer.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse response for %s: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConfigError marks a bad WIF, bad address, or unparsable CLI/config
// value. Fatal when it comes out of startup (config or wallet loading);
// when a mint attempt returns one (e.g. an undecodable stash address),
// it ends only that attempt.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ErrNoSolution is returned by WorkerPool.Run when the entire 32-bit
// search space has been scanned without a prefix match. It is a
// recoverable error, never a panic (see design notes on worker pool
// exhaustion).
var ErrNoSolution = fmt.Errorf("worker pool: no solution found in search space")
