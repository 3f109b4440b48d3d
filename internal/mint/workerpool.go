package mint

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/wire"
)

// sequenceSpaceSize is the size of the 32-bit search space workers
// partition, [0, 2^32).
const sequenceSpaceSize uint64 = 1 << 32

// CandidateFunc builds and signs one mining candidate for a given
// 32-bit sequence value. It must not mutate any state shared with
// other candidates; every call builds its own transaction from a
// cloned base.
type CandidateFunc func(sequence uint32) (*wire.MsgTx, error)

// WorkerPool partitions the 32-bit sequence space across goroutines and
// races them to find a candidate transaction whose txid starts with a
// required hex prefix.
type WorkerPool struct {
	ThreadCount int
}

// NewWorkerPool returns a WorkerPool configured to use threadCount
// goroutines. threadCount must be at least 1; callers typically pass
// runtime.NumCPU() as the default.
func NewWorkerPool(threadCount int) *WorkerPool {
	if threadCount < 1 {
		threadCount = 1
	}
	return &WorkerPool{ThreadCount: threadCount}
}

// sequenceRanges partitions [0, 2^32) into n half-open, equal
// ceil-sized, contiguous ranges; the last range absorbs the remainder.
func sequenceRanges(n int) [][2]uint64 {
	step := (sequenceSpaceSize + uint64(n) - 1) / uint64(n)

	ranges := make([][2]uint64, 0, n)
	for start := uint64(0); start < sequenceSpaceSize; start += step {
		end := start + step
		if end > sequenceSpaceSize {
			end = sequenceSpaceSize
		}
		ranges = append(ranges, [2]uint64{start, end})
	}
	return ranges
}

// matchesPrefix performs the case-sensitive, 0x-tolerant hex-prefix
// test the difficulty check requires.
func matchesPrefix(txid, prefix string) bool {
	txid = strings.TrimPrefix(txid, "0x")
	prefix = strings.TrimPrefix(prefix, "0x")
	return strings.HasPrefix(txid, prefix)
}

// Run spawns one goroutine per configured thread, each scanning its own
// contiguous slice of the sequence space, and returns the first
// candidate whose txid starts with difficultyHexPrefix. If the whole
// space is exhausted without a match, it returns ErrNoSolution rather
// than panicking (see design notes on worker pool exhaustion). If ctx
// is cancelled, Run returns ctx.Err() once all workers have observed the
// cancellation.
func (p *WorkerPool) Run(ctx context.Context, taskLabel, difficultyHexPrefix string, candidateFn CandidateFunc) (*wire.MsgTx, error) {
	ranges := sequenceRanges(p.ThreadCount)

	var (
		found    atomic.Bool
		resultMu sync.Mutex
		result   *wire.MsgTx
		firstErr error
		wg       sync.WaitGroup
	)

	for _, r := range ranges {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()

			for seq := r[0]; seq < r[1]; seq++ {
				if found.Load() {
					return
				}
				if seq%4096 == 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				candidate, err := candidateFn(uint32(seq))
				if err != nil {
					resultMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					resultMu.Unlock()
					found.Store(true)
					return
				}

				if matchesPrefix(TxID(candidate), difficultyHexPrefix) {
					resultMu.Lock()
					if result == nil {
						result = candidate
					}
					resultMu.Unlock()
					found.Store(true)
					return
				}
			}
		}()
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
