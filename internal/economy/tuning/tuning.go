// Package tuning loads the economy daemon's settings from YAML.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Market     Market             `yaml:"market"`
	Pricing    Pricing            `yaml:"pricing"`
	BasePrices map[string]float64 `yaml:"base_prices"`
	Capacity   Capacity           `yaml:"capacity"`
	Journal    Journal            `yaml:"journal"`
	Ledger     Ledger             `yaml:"ledger"`
	Feed       Feed               `yaml:"feed"`
}

type Market struct {
	OfferDurationS   int     `yaml:"offer_duration_s"` // 0 = offers never expire
	MinOfferQuantity float64 `yaml:"min_offer_quantity"`
	MaxActiveOffers  int     `yaml:"max_active_offers"`
	TrackPrices      bool    `yaml:"track_prices"`
	FeeRate          float64 `yaml:"fee_rate"`
	CleanupEveryS    int     `yaml:"cleanup_every_s"`
}

type Pricing struct {
	Strategy   string `yaml:"strategy"`   // fixed | supply_demand | relationship
	Volatility string `yaml:"volatility"` // stable | moderate | volatile | extreme
}

type Capacity struct {
	MaxSlots  int     `yaml:"max_slots"`
	MaxWeight float64 `yaml:"max_weight"`
	MaxVolume float64 `yaml:"max_volume"`
}

type Journal struct {
	Dir      string `yaml:"dir"`
	Compress bool   `yaml:"compress"`
}

type Ledger struct {
	Path      string `yaml:"path"`
	QueueSize int    `yaml:"queue_size"`
}

type Feed struct {
	Addr string `yaml:"addr"`
}

func Defaults() Tuning {
	return Tuning{
		Market: Market{
			MinOfferQuantity: 0.1,
			MaxActiveOffers:  10,
			TrackPrices:      true,
			CleanupEveryS:    30,
		},
		Pricing: Pricing{
			Strategy:   "supply_demand",
			Volatility: "moderate",
		},
		BasePrices: map[string]float64{
			"food":  10,
			"wood":  8,
			"stone": 12,
			"metal": 20,
			"gold":  50,
		},
		Capacity: Capacity{
			MaxSlots:  20,
			MaxWeight: 250,
			MaxVolume: 100,
		},
		Journal: Journal{
			Dir:      "journal",
			Compress: true,
		},
		Ledger: Ledger{
			Path:      "ledger.db",
			QueueSize: 1024,
		},
		Feed: Feed{
			Addr: ":8090",
		},
	}
}

// Load reads a tuning file. Settings start from Defaults, so a partial
// file only overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("economy.yaml: %w", err)
	}
	return t, nil
}
