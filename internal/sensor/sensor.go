// Package sensor applies fixed capture settings to whatever camera controls a
// device exposes. A capability the device lacks is skipped, never an error.
package sensor

import (
	"fmt"

	"github.com/banshee-data/speckle/internal/config"
)

// Settings are the capture settings applied once at start-up.
type Settings struct {
	ExposureValue int
	GainValue     int
	LockAuto      bool
}

// SettingsFromTuning reads the sensor keys of a loaded TuningConfig.
func SettingsFromTuning(cfg *config.TuningConfig) Settings {
	return Settings{
		ExposureValue: cfg.GetExposureValue(),
		GainValue:     cfg.GetGainValue(),
		LockAuto:      cfg.GetLockAuto(),
	}
}

// ExposureControl sets manual exposure and optionally disables auto exposure.
type ExposureControl interface {
	SetExposure(value int, lockAuto bool) error
}

// GainControl sets manual gain and optionally disables auto gain.
type GainControl interface {
	SetGain(value int, lockAuto bool) error
}

// WhiteBalanceControl locks or releases automatic white balance.
type WhiteBalanceControl interface {
	LockWhiteBalance(lock bool) error
}

// ToneControl sets brightness and contrast, where 0 is neutral.
type ToneControl interface {
	SetBrightness(level int) error
	SetContrast(level int) error
}

// ControlSet holds one implementation of every capability.
type ControlSet struct {
	Exposure     ExposureControl
	Gain         GainControl
	WhiteBalance WhiteBalanceControl
	Tone         ToneControl
}

// Controls resolves each capability of dev, substituting a no-op for any
// the device does not implement. dev may be nil.
func Controls(dev any) ControlSet {
	cs := ControlSet{
		Exposure:     noop{},
		Gain:         noop{},
		WhiteBalance: noop{},
		Tone:         noop{},
	}
	if c, ok := dev.(ExposureControl); ok {
		cs.Exposure = c
	}
	if c, ok := dev.(GainControl); ok {
		cs.Gain = c
	}
	if c, ok := dev.(WhiteBalanceControl); ok {
		cs.WhiteBalance = c
	}
	if c, ok := dev.(ToneControl); ok {
		cs.Tone = c
	}
	return cs
}

// Apply configures dev with s: exposure and gain fixed, white balance locked
// when LockAuto is set, brightness and contrast neutral. An error from a
// capability the device does implement is returned wrapped.
func Apply(dev any, s Settings) error {
	cs := Controls(dev)
	if err := cs.Exposure.SetExposure(s.ExposureValue, s.LockAuto); err != nil {
		return fmt.Errorf("set exposure %d: %w", s.ExposureValue, err)
	}
	if err := cs.Gain.SetGain(s.GainValue, s.LockAuto); err != nil {
		return fmt.Errorf("set gain %d: %w", s.GainValue, err)
	}
	if err := cs.WhiteBalance.LockWhiteBalance(s.LockAuto); err != nil {
		return fmt.Errorf("lock white balance: %w", err)
	}
	if err := cs.Tone.SetBrightness(0); err != nil {
		return fmt.Errorf("set brightness: %w", err)
	}
	if err := cs.Tone.SetContrast(0); err != nil {
		return fmt.Errorf("set contrast: %w", err)
	}
	return nil
}

type noop struct{}

func (noop) SetExposure(int, bool) error { return nil }
func (noop) SetGain(int, bool) error { return nil }
func (noop) LockWhiteBalance(bool) error { return nil }
func (noop) SetBrightness(int) error { return nil }
func (noop) SetContrast(int) error { return nil }
