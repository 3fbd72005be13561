package navigation

import (
	"time"

	"backend-tourguide/internal/config"
)

type Settings struct {
	ProximityMeters           float64
	DwellDuration             time.Duration
	DwellTick                 time.Duration
	IdleDecay                 time.Duration
	RecomputeDebounce         time.Duration
	PromotionEpsilonMeters    float64
	SkipBeforeToleranceMeters float64
}

func DefaultSettings() Settings {
	return Settings{
		ProximityMeters:           15,
		DwellDuration:             30 * time.Second,
		DwellTick:                 100 * time.Millisecond,
		IdleDecay:                 1500 * time.Millisecond,
		RecomputeDebounce:         200 * time.Millisecond,
		PromotionEpsilonMeters:    1,
		SkipBeforeToleranceMeters: 5,
	}
}

// SettingsFromConfig fills unset or invalid values from DefaultSettings.
func SettingsFromConfig(cfg config.Config) Settings {
	s := DefaultSettings()
	if cfg.ProximityMeters > 0 {
		s.ProximityMeters = cfg.ProximityMeters
	}
	if cfg.DwellSeconds > 0 {
		s.DwellDuration = time.Duration(cfg.DwellSeconds) * time.Second
	}
	if cfg.DwellTickMs > 0 {
		s.DwellTick = time.Duration(cfg.DwellTickMs) * time.Millisecond
	}
	if cfg.IdleDecayMs > 0 {
		s.IdleDecay = time.Duration(cfg.IdleDecayMs) * time.Millisecond
	}
	if cfg.RecomputeDebounceMs >= 0 {
		s.RecomputeDebounce = time.Duration(cfg.RecomputeDebounceMs) * time.Millisecond
	}
	if cfg.PromotionEpsilonMeters >= 0 {
		s.PromotionEpsilonMeters = cfg.PromotionEpsilonMeters
	}
	if cfg.SkipBeforeToleranceMeters >= 0 {
		s.SkipBeforeToleranceMeters = cfg.SkipBeforeToleranceMeters
	}
	return s
}
