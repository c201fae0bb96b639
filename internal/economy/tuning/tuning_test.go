package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesDefaults(t *testing.T) {
	raw := []byte(`
market:
  offer_duration_s: 3600
  fee_rate: 0.05
  min_offer_quantity: 0.1
  max_active_offers: 10
  track_prices: true
  cleanup_every_s: 30
pricing:
  strategy: fixed
base_prices:
  food: 11
  obsidian: 90
`)
	path := filepath.Join(t.TempDir(), "economy.yaml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Market.OfferDurationS != 3600 || cfg.Market.FeeRate != 0.05 {
		t.Fatalf("market: got %+v", cfg.Market)
	}
	if cfg.Pricing.Strategy != "fixed" {
		t.Fatalf("pricing: got %+v", cfg.Pricing)
	}
	if cfg.BasePrices["food"] != 11 || cfg.BasePrices["obsidian"] != 90 {
		t.Fatalf("base prices: got %v", cfg.BasePrices)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Feed.Addr != ":8090" || cfg.Ledger.QueueSize != 1024 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economy.yaml")
	if err := os.WriteFile(path, []byte("market: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error")
	}
}
