package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sugawarayuuta/sonnet"

	"ticketcore/constants"
)

// Config tunes one machine run. Every field is optional in the JSON file.
type Config struct {
	Cores         int    `json:"cores"`
	Rounds        int    `json:"rounds"`
	Readers       int    `json:"readers"`
	TimerPeriodMs int    `json:"timer_period_ms"`
	TraceDB       string `json:"trace_db"`
	CollectorCore int    `json:"collector_core"`
	TimeoutS      int    `json:"timeout_s"`
}

func defaultConfig() Config {
	cores := runtime.NumCPU()
	if cores > 4 {
		cores = 4
	}
	if cores < 2 {
		cores = 2
	}
	return Config{
		Cores:         cores,
		Rounds:        10000,
		Readers:       1,
		TimerPeriodMs: 1,
		TraceDB:       constants.DefaultTraceDB,
		CollectorCore: cores,
		TimeoutS:      60,
	}
}

// loadConfig overlays the JSON file at path on the defaults. An empty path
// returns the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := sonnet.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.Cores < 1 || c.Cores >= constants.MaxCores:
		return fmt.Errorf("cores must be in [1, %d), got %d", constants.MaxCores, c.Cores)
	case c.Rounds < 1:
		return fmt.Errorf("rounds must be positive, got %d", c.Rounds)
	case c.Readers < 0 || c.Readers > c.Cores:
		return fmt.Errorf("readers must be in [0, cores], got %d", c.Readers)
	case c.TimerPeriodMs < 0:
		return fmt.Errorf("timer_period_ms must not be negative, got %d", c.TimerPeriodMs)
	case c.CollectorCore < 0:
		return fmt.Errorf("collector_core must not be negative, got %d", c.CollectorCore)
	case c.TimeoutS < 1:
		return fmt.Errorf("timeout_s must be positive, got %d", c.TimeoutS)
	}
	return nil
}
