package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zikrgate/zikrgate/internal/ledger"
	"github.com/zikrgate/zikrgate/internal/match"
	"github.com/zikrgate/zikrgate/internal/tier"
	"github.com/zikrgate/zikrgate/internal/verify"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their documented defaults and
// clamps the daily limit into its legal range. Clamping is logged: the
// ledger core treats an out-of-range limit as a caller bug, so the config
// layer is the last place it can be corrected.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageMemory
	}

	g := &cfg.Gate
	if g.DailyLimitMinutes == 0 {
		g.DailyLimitMinutes = ledger.DefaultDailyLimitMinutes
	}
	if clamped := ledger.ClampDailyLimit(g.DailyLimitMinutes); clamped != g.DailyLimitMinutes {
		slog.Warn("gate.daily_limit_minutes out of range, clamped",
			"configured", g.DailyLimitMinutes,
			"clamped", clamped,
		)
		g.DailyLimitMinutes = clamped
	}
	if g.FreeUnlockLimit == 0 {
		g.FreeUnlockLimit = ledger.DefaultFreeUnlockLimit
	}
	if g.MaxEmergencyBypasses == 0 {
		g.MaxEmergencyBypasses = ledger.MaxEmergencyBypasses
	}
	if g.MaxDebtMultiplier == 0 {
		g.MaxDebtMultiplier = tier.DefaultMaxDebtMultiplier
	}
	if len(g.TierBoundaries) == 0 {
		g.TierBoundaries = tier.DefaultBoundaries[:]
	}
	if g.PartialBand == 0 {
		g.PartialBand = verify.DefaultPartialBand
	}
	if g.FuzzyWindowThreshold == 0 {
		g.FuzzyWindowThreshold = match.DefaultWindowThreshold
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Gate
	g := cfg.Gate
	if len(g.TierBoundaries) != 4 {
		errs = append(errs, fmt.Errorf("gate.tier_boundaries must list exactly 4 ascending values, got %d", len(g.TierBoundaries)))
	} else {
		for i := 1; i < len(g.TierBoundaries); i++ {
			if g.TierBoundaries[i] <= g.TierBoundaries[i-1] {
				errs = append(errs, fmt.Errorf("gate.tier_boundaries %v must be strictly ascending", g.TierBoundaries))
				break
			}
		}
		if g.TierBoundaries[0] <= 0 {
			errs = append(errs, fmt.Errorf("gate.tier_boundaries[0] must be positive, got %d", g.TierBoundaries[0]))
		}
	}
	if g.FreeUnlockLimit < 1 {
		errs = append(errs, fmt.Errorf("gate.free_unlock_limit %d must be >= 1", g.FreeUnlockLimit))
	}
	if g.MaxEmergencyBypasses < 0 {
		errs = append(errs, fmt.Errorf("gate.max_emergency_bypasses %d must be >= 0", g.MaxEmergencyBypasses))
	}
	if g.MaxDebtMultiplier < 1 {
		errs = append(errs, fmt.Errorf("gate.max_debt_multiplier %d must be >= 1", g.MaxDebtMultiplier))
	}
	if g.PartialBand < 0 || g.PartialBand >= 1 {
		errs = append(errs, fmt.Errorf("gate.partial_band %.2f is out of range [0, 1)", g.PartialBand))
	}
	if g.FuzzyWindowThreshold <= 0 || g.FuzzyWindowThreshold > 1 {
		errs = append(errs, fmt.Errorf("gate.fuzzy_window_threshold %.2f is out of range (0, 1]", g.FuzzyWindowThreshold))
	}
	if g.Timezone != "" {
		if _, err := time.LoadLocation(g.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("gate.timezone %q is not a valid IANA location: %w", g.Timezone, err))
		}
	}

	// Storage
	switch cfg.Storage.Driver {
	case StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required when storage.driver is postgres"))
		}
	case StorageSQLite:
		if cfg.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required when storage.driver is sqlite"))
		}
	case StorageMemory:
		slog.Warn("storage.driver is memory; ledgers will not survive a restart")
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: postgres, sqlite, memory", cfg.Storage.Driver))
	}

	return errors.Join(errs...)
}

// Location resolves the gate timezone, defaulting to the host's local
// time. Config validation guarantees the name parses.
func (c *Config) Location() *time.Location {
	if c.Gate.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Gate.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Boundaries returns the tier boundaries as the fixed-size array the tier
// policy expects. Call only after validation.
func (g GateConfig) Boundaries() [4]int {
	var out [4]int
	copy(out[:], g.TierBoundaries)
	return out
}
