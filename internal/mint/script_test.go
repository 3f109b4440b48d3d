package mint

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
)

func TestBuildRevealScriptVector(t *testing.T) {
	wif, err := btcutil.DecodeWIF("L4VgnxVoaPRaptd4yW19wwd7v9dzJvQn478AKwucbaQifPFBacrp")
	if err != nil {
		t.Fatalf("DecodeWIF: %v", err)
	}

	var xOnly [32]byte
	copy(xOnly[:], schnorr.SerializePubKey(wif.PrivKey.PubKey()))

	payload := EncodePayload(PayloadArgs{
		Bitworkc:   "aabbcc",
		MintTicker: "quark",
		Nonce:      9999999,
		Time:       1704057427,
	})

	script, err := BuildRevealScript(xOnly, "dmt", payload)
	if err != nil {
		t.Fatalf("BuildRevealScript: %v", err)
	}

	want := "207e41d0ce6e41328e17ec13076603fc9d7a1d41fb1b497af09cdfbf9b648f7480ac00630461746f6d03646d743ea16461726773a468626974776f726b63666161626263636b6d696e745f7469636b657265717561726b656e6f6e63651a0098967f6474696d651a6591da5368"

	got := hex.EncodeToString(script)
	if got != want {
		t.Errorf("BuildRevealScript() = %s, want %s", got, want)
	}
}

func TestTimeNonceScript(t *testing.T) {
	script, err := TimeNonceScript(1704057427, 42)
	if err != nil {
		t.Fatalf("TimeNonceScript: %v", err)
	}
	if len(script) == 0 {
		t.Fatal("expected non-empty script")
	}
	if script[0] != 0x6a { // OP_RETURN
		t.Errorf("script[0] = %#x, want OP_RETURN", script[0])
	}
}
