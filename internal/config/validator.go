package config

import (
	"fmt"
	"runtime"

	mfterrors "github.com/cobaltfs/mftindex/internal/errors"
)

// Validator validates configuration and fills in smart defaults, the way
// the teacher's Validator applies CPU-aware defaults after parsing.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// ValidateAndSetDefaults validates cfg in place and fills zero-valued
// fields with smart defaults.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateIO(&cfg.IO); err != nil {
		return mfterrors.NewConfigError("io", "", err)
	}
	if err := v.validateScheduler(&cfg.Scheduler); err != nil {
		return mfterrors.NewConfigError("scheduler", "", err)
	}
	if err := v.validatePattern(&cfg.Pattern); err != nil {
		return mfterrors.NewConfigError("pattern", "", err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateIO(io *IO) error {
	if io.Workers < 0 {
		return fmt.Errorf("IO.Workers cannot be negative, got %d", io.Workers)
	}
	if io.MaxPendingReads < 0 {
		return fmt.Errorf("IO.MaxPendingReads cannot be negative, got %d", io.MaxPendingReads)
	}
	return nil
}

func (v *Validator) validateScheduler(s *Scheduler) error {
	if s.InitialConcurrency < 0 {
		return fmt.Errorf("Scheduler.InitialConcurrency cannot be negative, got %d", s.InitialConcurrency)
	}
	if s.BlockSizeBytes < 0 {
		return fmt.Errorf("Scheduler.BlockSizeBytes cannot be negative, got %d", s.BlockSizeBytes)
	}
	return nil
}

func (v *Validator) validatePattern(p *Pattern) error {
	if p.MinWildcardThreshold < 0 {
		return fmt.Errorf("Pattern.MinWildcardThreshold cannot be negative, got %d", p.MinWildcardThreshold)
	}
	return nil
}

func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.IO.Workers == 0 {
		cfg.IO.Workers = max(1, runtime.NumCPU())
	}
	if cfg.IO.MaxPendingReads == 0 {
		cfg.IO.MaxPendingReads = 4096
	}
	if cfg.Scheduler.InitialConcurrency == 0 {
		cfg.Scheduler.InitialConcurrency = 2
	}
	if cfg.Scheduler.BlockSizeBytes == 0 {
		cfg.Scheduler.BlockSizeBytes = 1 << 20
	}
	if cfg.Pattern.MinWildcardThreshold == 0 {
		cfg.Pattern.MinWildcardThreshold = 3
	}
}

// ValidateConfig is a convenience wrapper for quick validation.
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
