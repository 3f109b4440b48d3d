package mint

import "math"

// Fee model constants, sats/vbyte multipliers for the fixed parts of a
// commit and reveal transaction's virtual size.
const (
	baseBytes            = 10.5
	inputBytesBase       = 57.5
	outputBytesBase      = 43.0
	revealInputBytesBase = 66.0
	opReturnBytes        = 30.0 // 21 (script) + 8 (value) + 1 (compact-size)
)

// compactSizeBytes returns the number of bytes a Bitcoin compact-size
// (varint) integer occupies for a given length value.
func compactSizeBytes(length int) float64 {
	switch {
	case length <= 252:
		return 1
	case length <= 0xFFFF:
		return 3
	case length <= 0xFFFFFFFF:
		return 5
	default:
		return 9
	}
}

// FeeModelInput is the set of fee-relevant facts about a single mint
// attempt: the chosen fee rate, the concrete reveal script length, how
// many extra reveal outputs exist beyond the commit input being spent,
// whether a reveal bitwork forces an OP_RETURN output, and the sat
// values of every reveal output (for commitAndRevealAndOutputs /
// revealAndOutputs).
type FeeModelInput struct {
	Satsbyte         uint64
	RevealScriptLen  int
	NumRevealOutputs int
	HasRevealBitwork bool
	OutputValues     []uint64
}

// ComputeFees derives commit/reveal/total fee sats from a FeeModelInput.
// All arithmetic happens in float64; math.Ceil is applied once, at the
// very end of each total, never to an intermediate term.
func ComputeFees(in FeeModelInput) Fees {
	satsbyte := float64(in.Satsbyte)

	commit := uint64(math.Ceil(satsbyte * (baseBytes + inputBytesBase + outputBytesBase)))

	compactInputBytes := compactSizeBytes(in.RevealScriptLen)
	opReturn := 0.0
	if in.HasRevealBitwork {
		opReturn = opReturnBytes
	}

	revealVBytes := baseBytes +
		revealInputBytesBase +
		(compactInputBytes+float64(in.RevealScriptLen))/4 +
		float64(in.NumRevealOutputs)*outputBytesBase +
		opReturn
	reveal := uint64(math.Ceil(satsbyte * revealVBytes))

	var outputsValue uint64
	for _, v := range in.OutputValues {
		outputsValue += v
	}

	revealAndOutputs := reveal + outputsValue
	commitAndRevealAndOutputs := commit + revealAndOutputs

	return Fees{
		Commit:                    commit,
		Reveal:                    reveal,
		RevealAndOutputs:          revealAndOutputs,
		CommitAndRevealAndOutputs: commitAndRevealAndOutputs,
	}
}
