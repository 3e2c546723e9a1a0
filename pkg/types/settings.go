package types

import (
	"fmt"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 2

// Settings represents the runtime configuration stored in the database.
// These can be changed without restarting.
type Settings struct {
	// Hour of the day (0-23, Europe/Rome) at which prices are downloaded.
	ScanHour int `json:"scanHour"`

	// When false the first days of a month also include the last days of the
	// previous month in the averages.
	ActualDataOnly bool `json:"actualDataOnly"`

	// Zone whose zonal prices are collected. ZoneNone disables them.
	Zone Zone `json:"zone"`

	// F23 blend coefficients. Zero values mean the defaults.
	F23Weights F23Weights `json:"f23Weights"`
}

// Validate checks the settings and corrects recoverable anomalies. Invalid
// zones fall back to DefaultZone and produce a diagnostic.
func (s Settings) Validate() (Settings, []Diagnostic, error) {
	if s.ScanHour < 0 || s.ScanHour > 23 {
		return s, nil, fmt.Errorf("scan hour must be between 0 and 23: %d", s.ScanHour)
	}
	if s.F23Weights.F2 < 0 || s.F23Weights.F3 < 0 {
		return s, nil, fmt.Errorf("f23 weights must not be negative")
	}
	var diags []Diagnostic
	if !s.Zone.Valid() {
		z, diag := ZoneOrDefault(string(s.Zone))
		s.Zone = z
		if diag != nil {
			diags = append(diags, *diag)
		}
	}
	return s, diags, nil
}

// Weights returns the configured F23 weights or the defaults.
func (s Settings) Weights() F23Weights {
	if s.F23Weights == (F23Weights{}) {
		return DefaultF23Weights()
	}
	return s.F23Weights
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial, download right after midnight
			if s.ScanHour == 0 {
				s.ScanHour = 1
				migrated = true
			}
		case 2:
			// version 2: zonal prices, default to the northern zone
			if s.Zone == ZoneNone {
				s.Zone = DefaultZone
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}

// Installation holds per-installation values chosen once and persisted.
type Installation struct {
	ID string `json:"id"`
	// ScanMinute spreads downloads of independent installations over the
	// scan hour.
	ScanMinute int `json:"scanMinute"`
}
