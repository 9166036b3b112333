package config

// ConfigDiff describes what changed between two loaded configs, split by
// whether the change can be applied to a running daemon.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GateChanged is true when any gate policy field changed. Gate policy
	// is applied per request, so these reload cleanly.
	GateChanged bool
	GateChanges []string

	// RequiresRestart is true when server or storage settings changed;
	// those are bound at startup and cannot be swapped live.
	RequiresRestart bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.GateChanges = diffGate(old.Gate, new.Gate)
	d.GateChanged = len(d.GateChanges) > 0

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) ||
		old.Storage != new.Storage {
		d.RequiresRestart = true
	}

	return d
}

// diffGate returns the names of the gate fields that differ.
func diffGate(old, new GateConfig) []string {
	var changed []string

	if old.DailyLimitMinutes != new.DailyLimitMinutes {
		changed = append(changed, "daily_limit_minutes")
	}
	if old.FreeUnlockLimit != new.FreeUnlockLimit {
		changed = append(changed, "free_unlock_limit")
	}
	if old.MaxEmergencyBypasses != new.MaxEmergencyBypasses {
		changed = append(changed, "max_emergency_bypasses")
	}
	if old.MaxDebtMultiplier != new.MaxDebtMultiplier {
		changed = append(changed, "max_debt_multiplier")
	}
	if !intsEqual(old.TierBoundaries, new.TierBoundaries) {
		changed = append(changed, "tier_boundaries")
	}
	if old.PartialBand != new.PartialBand {
		changed = append(changed, "partial_band")
	}
	if old.FuzzyWindowThreshold != new.FuzzyWindowThreshold {
		changed = append(changed, "fuzzy_window_threshold")
	}
	if old.Timezone != new.Timezone {
		changed = append(changed, "timezone")
	}

	return changed
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
