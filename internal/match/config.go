package match

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ScoreConfig carries every scoring threshold of the matching engine. The
// defaults were tuned empirically against real ledgers; treat them as
// configuration, not constants, and override via YAML where a deployment
// needs different behavior.
type ScoreConfig struct {
	WindowDays int `yaml:"window_days"`

	AmountExactDiff   float64 `yaml:"amount_exact_diff"`
	AmountExactPts    float64 `yaml:"amount_exact_pts"`
	AmountCloseDiff   float64 `yaml:"amount_close_diff"`
	AmountClosePts    float64 `yaml:"amount_close_pts"`
	AmountNearDiff    float64 `yaml:"amount_near_diff"`
	AmountNearPts     float64 `yaml:"amount_near_pts"`
	AmountRelativePct float64 `yaml:"amount_relative_pct"`
	AmountRelativePts float64 `yaml:"amount_relative_pts"`

	DateSameDays      int     `yaml:"date_same_days"`
	DateSamePts       float64 `yaml:"date_same_pts"`
	DateCloseDays     int     `yaml:"date_close_days"`
	DateClosePts      float64 `yaml:"date_close_pts"`
	DateWeekDays      int     `yaml:"date_week_days"`
	DateWeekPts       float64 `yaml:"date_week_pts"`
	DateFortnightDays int     `yaml:"date_fortnight_days"`
	DateFortnightPts  float64 `yaml:"date_fortnight_pts"`
	DateWindowPts     float64 `yaml:"date_window_pts"`

	VendorContainPts float64 `yaml:"vendor_contain_pts"`
	VendorTokenPts   float64 `yaml:"vendor_token_pts"`

	// AcceptThreshold must be strictly exceeded: no single signal reaches
	// it alone, so at least two signals have to be strong. A wrong
	// auto-match is worse than no match.
	AcceptThreshold float64 `yaml:"accept_threshold"`
}

// DefaultScoreConfig returns the empirically tuned thresholds.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		WindowDays: 30,

		AmountExactDiff:   0.02,
		AmountExactPts:    50,
		AmountCloseDiff:   0.5,
		AmountClosePts:    40,
		AmountNearDiff:    2,
		AmountNearPts:     25,
		AmountRelativePct: 5,
		AmountRelativePts: 20,

		DateSameDays:      1,
		DateSamePts:       35,
		DateCloseDays:     3,
		DateClosePts:      25,
		DateWeekDays:      7,
		DateWeekPts:       15,
		DateFortnightDays: 14,
		DateFortnightPts:  8,
		DateWindowPts:     3,

		VendorContainPts: 30,
		VendorTokenPts:   20,

		AcceptThreshold: 60,
	}
}

// LoadScoreConfig overlays a YAML file on the defaults. An empty path
// returns the defaults unchanged.
func LoadScoreConfig(path string) (ScoreConfig, error) {
	cfg := DefaultScoreConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read score config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse score config: %w", err)
	}
	return cfg, nil
}
