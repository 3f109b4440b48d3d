package mint

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// maxScriptElementSize is the maximum size of a single data push btcd's
// script builder (and Bitcoin Script itself) allows; larger payloads
// must be split across several pushes.
const maxScriptElementSize = 520

// BuildRevealScript produces the Atomicals reveal script:
//
//	<push xOnlyPub> OP_CHECKSIG OP_0 OP_IF <push "atom"> <push opType> {<push chunk>}* OP_ENDIF
//
// payload is split into chunks of at most 520 bytes, pushed in order.
// opType is the literal ASCII operation tag ("dmt" for a DFT mint).
//
// Reference vector: with the fixed WIF in the reveal-script test, opType
// "dmt", and the CBOR payload vector, the script hex is
// 207e41d0ce6e41328e17ec13076603fc9d7a1d41fb1b497af09cdfbf9b648f7480ac00630461746f6d03646d743e<payload>68.
func BuildRevealScript(xOnlyPub [32]byte, opType string, payload []byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddData(xOnlyPub[:])
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_0)
	builder.AddOp(txscript.OP_IF)
	builder.AddData([]byte("atom"))
	builder.AddData([]byte(opType))

	for offset := 0; offset < len(payload); offset += maxScriptElementSize {
		end := offset + maxScriptElementSize
		if end > len(payload) {
			end = len(payload)
		}
		builder.AddData(payload[offset:end])
	}

	builder.AddOp(txscript.OP_ENDIF)

	script, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("build reveal script: %w", err)
	}
	return script, nil
}

// TimeNonceScript produces the OP_RETURN output script carrying the
// ASCII string "<unixTime>:<nonce>", used on the winning reveal-mining
// candidate when the ticker requires a reveal bitwork.
func TimeNonceScript(unixTime, nonce uint64) ([]byte, error) {
	data := []byte(fmt.Sprintf("%d:%d", unixTime, nonce))

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddData(data)

	script, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("build time:nonce script: %w", err)
	}
	return script, nil
}
