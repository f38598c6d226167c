package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
log:
  level: debug
gateway:
  baseURL: ${GOTRADE_TEST_GW}
refPrice:
  baseURL: http://localhost:8081
engine:
  cycleIntervalMs: 500
persistence:
  backend: badger
  dir: data/badger
bots:
  - id: b1
    kind: single
    target:
      kind: amount
      value: 100
    legs:
      - pair: BTC/USDT
        account: acc1
        side: buy
        strategy: depth
        sliceAmount: 0.5
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("GOTRADE_TEST_GW", "http://gw.example:9000")

	w, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if w.Gateway.BaseURL != "http://gw.example:9000" {
		t.Fatalf("baseURL = %q, env not expanded", w.Gateway.BaseURL)
	}
	if w.Log.Level != "debug" || w.Persistence.Backend != "badger" {
		t.Fatalf("unexpected wire: %+v", w)
	}
	if len(w.Bots) != 1 || w.Bots[0].Legs[0].Strategy != "depth" {
		t.Fatalf("bots = %+v", w.Bots)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCycleInterval(t *testing.T) {
	t.Setenv("GOTRADE_TEST_GW", "http://gw")
	w, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if got := w.CycleInterval(); got != 500*time.Millisecond {
		t.Fatalf("CycleInterval = %v", got)
	}

	w.Engine.CycleIntervalMs = 0
	if got := w.CycleInterval(); got != 0 {
		t.Fatalf("unset interval = %v, want 0", got)
	}
}

func TestValidateRejectsIncomplete(t *testing.T) {
	var w Wire
	if err := w.Validate(); err == nil {
		t.Fatal("empty wire should not validate")
	}

	w.Gateway.BaseURL = "http://gw"
	if err := w.Validate(); err == nil {
		t.Fatal("wire without bots should not validate")
	}

	w.Bots = []BotWire{{ID: "b1"}}
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
