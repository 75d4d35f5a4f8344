package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validConfig = `
env: prod
group: mainnet-beta
gateway:
  endpoint: https://sidecar.internal:8899
  feedEndpoint: wss://feed.internal/ws
  signerKeyPath: /etc/quoter/signer.key
  rate: 5
  burst: 10
account:
  name: quoter-main
  handle: AcctHandle111
  cacheHandle: CacheHandle111
intervalMs: 250
stateRefreshMs: 1000
batch: 2
metricsAddr: ":9100"
logging:
  level: info
  outputs: [stdout]
  format: json
markets:
  SOL-PERP:
    index: 0
    tickSize: 0.01
    stepSize: 0.001
    bidsHandle: SolBids111
    asksHandle: SolAsks111
    refSymbol: SOLUSDT
    params:
      edge: 0.0015
      sizePerc: 0.01
      takePerc: 0.02
      mispriceThresh: 0.005
      requoteThresh: 0.0005
      timeLimit: 30
      maxTakeNotional: 5000
      refNotional: 100000
  SOL2-PERP:
    index: 1
    tickSize: 0.0001
    stepSize: 0.01
    bidsHandle: Sol2Bids111
    asksHandle: Sol2Asks111
    params:
      edge: 0.003
      squared: true
      underlying: SOL-PERP
      ivSlot: 2
      ivDays: 7
      disableRefFeed: true
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "quoter.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "prod" || cfg.Account.Handle != "AcctHandle111" {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	sol := cfg.Markets["SOL-PERP"]
	if sol.TickSize != 0.01 || sol.Params.Edge != 0.0015 {
		t.Fatalf("unexpected market config: %+v", sol)
	}
	p := sol.Params.ToParams()
	if p.MaxTakeNotional != 5000 || p.TimeLimit != 30 {
		t.Fatalf("params conversion lost fields: %+v", p)
	}
	ins := sol.Instrument("SOL-PERP")
	if ins.Name != "SOL-PERP" || ins.BidsHandle != "SolBids111" {
		t.Fatalf("unexpected instrument: %+v", ins)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, validConfig)
	t.Setenv("QUOTER_ENDPOINT", "https://backup.internal:8899")
	t.Setenv("QUOTER_SIGNER_KEY", "/run/secrets/signer.key")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.Endpoint != "https://backup.internal:8899" {
		t.Fatalf("endpoint override not applied: %+v", cfg.Gateway)
	}
	if cfg.Gateway.SignerKeyPath != "/run/secrets/signer.key" {
		t.Fatalf("signer override not applied: %+v", cfg.Gateway)
	}
}

func TestMarketNamesSorted(t *testing.T) {
	path := writeTempConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := cfg.MarketNames()
	if len(names) != 2 || names[0] != "SOL-PERP" || names[1] != "SOL2-PERP" {
		t.Fatalf("unexpected order %v", names)
	}
}

func TestValidateRejectsMissingAccount(t *testing.T) {
	if err := Validate(AppConfig{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
	path := writeTempConfig(t, `
env: prod
gateway:
  endpoint: https://sidecar.internal:8899
account:
  name: quoter-main
markets:
  SOL-PERP:
    index: 0
    tickSize: 0.01
    stepSize: 0.001
    bidsHandle: a
    asksHandle: b
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error without account handles")
	}
}

func TestValidateSquaredRequiresUnderlying(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
gateway:
  endpoint: https://sidecar.internal:8899
account:
  handle: h
  cacheHandle: c
markets:
  SOL2-PERP:
    index: 1
    tickSize: 0.0001
    stepSize: 0.01
    bidsHandle: a
    asksHandle: b
    params:
      squared: true
      underlying: SOL-PERP
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when underlying market is absent")
	}
}
