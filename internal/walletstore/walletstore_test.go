package walletstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/atomicalminer/atomicalminer/pkg/logging"
)

const (
	fundingWIF = "L4VgnxVoaPRaptd4yW19wwd7v9dzJvQn478AKwucbaQifPFBacrp"
	stashWIF   = "KwdMAjGmerYanjeui5SHS7JkmpZvVipYvB2LJGU1ZxJwYvP98617"
)

func writeWalletFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadWalletUsesImportedStashOverPrimary(t *testing.T) {
	dir := t.TempDir()
	body := `{
		"primary": {"address": "addr-primary", "WIF": "` + fundingWIF + `"},
		"funding": {"address": "addr-funding", "WIF": "` + fundingWIF + `"},
		"imported": {"stash": {"address": "addr-stash", "WIF": "` + stashWIF + `"}}
	}`
	writeWalletFile(t, dir, "w1.json", body)

	wallet, err := LoadWallet(filepath.Join(dir, "w1.json"), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("LoadWallet: %v", err)
	}
	if wallet.Name != "w1" {
		t.Errorf("Name = %q, want w1", wallet.Name)
	}
	if wallet.Stash.Address != "addr-stash" {
		t.Errorf("Stash.Address = %q, want addr-stash (imported.stash should win)", wallet.Stash.Address)
	}
	if wallet.Funding.Address != "addr-funding" {
		t.Errorf("Funding.Address = %q, want addr-funding", wallet.Funding.Address)
	}
}

func TestLoadWalletFallsBackToPrimaryWithoutImportedStash(t *testing.T) {
	dir := t.TempDir()
	body := `{
		"primary": {"address": "addr-primary", "WIF": "` + fundingWIF + `"},
		"funding": {"address": "addr-funding", "WIF": "` + fundingWIF + `"}
	}`
	writeWalletFile(t, dir, "w2.json", body)

	wallet, err := LoadWallet(filepath.Join(dir, "w2.json"), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("LoadWallet: %v", err)
	}
	if wallet.Stash.Address != "addr-primary" {
		t.Errorf("Stash.Address = %q, want addr-primary", wallet.Stash.Address)
	}
}

func TestLoadWalletRejectsWrongNetworkWIF(t *testing.T) {
	dir := t.TempDir()
	body := `{
		"primary": {"address": "addr-primary", "WIF": "` + fundingWIF + `"},
		"funding": {"address": "addr-funding", "WIF": "` + fundingWIF + `"}
	}`
	writeWalletFile(t, dir, "w3.json", body)

	if _, err := LoadWallet(filepath.Join(dir, "w3.json"), &chaincfg.TestNet3Params); err == nil {
		t.Fatal("expected error loading a mainnet WIF against testnet params")
	}
}

func TestLoadWalletsSkipsNonJSONAndBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeWalletFile(t, dir, "good.json", `{
		"primary": {"address": "addr-primary", "WIF": "`+fundingWIF+`"},
		"funding": {"address": "addr-funding", "WIF": "`+fundingWIF+`"}
	}`)
	writeWalletFile(t, dir, "notes.txt", "not a wallet")
	writeWalletFile(t, dir, "broken.json", `{not valid json`)

	log := logging.New(&logging.Config{Level: "error"})
	wallets, err := LoadWallets(dir, &chaincfg.MainNetParams, log)
	if err != nil {
		t.Fatalf("LoadWallets: %v", err)
	}
	if len(wallets) != 1 {
		t.Fatalf("expected exactly 1 wallet loaded, got %d", len(wallets))
	}
	if wallets[0].Name != "good" {
		t.Errorf("wallet name = %q, want good", wallets[0].Name)
	}
}

func TestLoadWalletsFailsWhenZeroWalletsLoad(t *testing.T) {
	dir := t.TempDir()
	writeWalletFile(t, dir, "broken.json", `{not valid json`)

	log := logging.New(&logging.Config{Level: "error"})
	if _, err := LoadWallets(dir, &chaincfg.MainNetParams, log); err == nil {
		t.Fatal("expected ConfigError when no wallets load successfully")
	}
}
