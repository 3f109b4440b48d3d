package mint

import (
	"github.com/fxamacker/cbor/v2"
)

// payloadArgsWire mirrors PayloadArgs but pins the wire field order and
// names via struct tags. With sorting disabled (SortNone), fxamacker/cbor
// encodes struct fields in their declared order, which is exactly what
// the Atomicals wire format requires: bitworkc, mint_ticker, nonce, time,
// in that order, every time.
type payloadArgsWire struct {
	Bitworkc   string `cbor:"bitworkc"`
	MintTicker string `cbor:"mint_ticker"`
	Nonce      uint64 `cbor:"nonce"`
	Time       uint64 `cbor:"time"`
}

type payloadWire struct {
	Args payloadArgsWire `cbor:"args"`
}

var payloadEncMode = func() cbor.EncMode {
	// Integers and lengths are always encoded in shortest form. The
	// canonical presets (CanonicalEncOptions, CoreDetEncOptions) would
	// also sort struct fields by key, so sorting is left off here to
	// keep the declared field order above verbatim.
	opts := cbor.EncOptions{Sort: cbor.SortNone}
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// EncodePayload serializes {"args": {bitworkc, mint_ticker, nonce, time}}
// to deterministic CBOR, fields in the declared order.
//
// Reference vector: {bitworkc:"aabbcc", mint_ticker:"quark",
// nonce:9999999, time:1704057427} encodes to
// a16461726773a468626974776f726b63666161626263636b6d696e745f7469636b657265717561726b656e6f6e63651a0098967f6474696d651a6591da53.
func EncodePayload(args PayloadArgs) []byte {
	wire := payloadWire{
		Args: payloadArgsWire{
			Bitworkc:   args.Bitworkc,
			MintTicker: args.MintTicker,
			Nonce:      args.Nonce,
			Time:       args.Time,
		},
	}

	// Encoding a fixed, known-good struct shape into CBOR cannot fail; a failure here is a bug in the wire struct, not a
	// runtime condition callers should handle.
	out, err := payloadEncMode.Marshal(wire)
	if err != nil {
		panic(err)
	}
	return out
}
