package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/pmallia/mamsim/internal/models"
)

// DefaultDesign returns a DesignConfig with default values.
func DefaultDesign() models.DesignConfig {
	return models.DesignConfig{
		Version: "1.0",
		Arms: models.ArmsConfig{
			Control:       true,
			Experimental:  2,
			AllowDropping: true,
			DropControl:   false,
		},
		Prior: models.PriorConfig{
			Alpha: 1.0,
			Beta:  1.0,
		},
		Stages: models.StagesConfig{
			Burn:  20,
			Batch: 10,
			Cap:   200,
		},
	}
}

// LoadDesign loads and parses a design.toml file.
func LoadDesign(path string) (models.DesignConfig, error) {
	cfg := DefaultDesign()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading design config: %w", err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing design config: %w", err)
	}

	if err := ValidateDesign(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// ValidateDesign fails fast on any invalid design parameter.
func ValidateDesign(cfg models.DesignConfig) error {
	if cfg.Arms.Experimental < 1 {
		return fmt.Errorf("%w: at least one experimental arm required, got %d", models.ErrInvalidConfig, cfg.Arms.Experimental)
	}
	if cfg.NumArms() < 2 {
		return fmt.Errorf("%w: at least two arms required, got %d", models.ErrInvalidConfig, cfg.NumArms())
	}
	if cfg.Arms.DropControl && !cfg.Arms.Control {
		return fmt.Errorf("%w: drop_control requires a control arm", models.ErrInvalidConfig)
	}
	if cfg.Prior.Alpha <= 0 || cfg.Prior.Beta <= 0 {
		return fmt.Errorf("%w: prior shape parameters must be positive, got alpha=%v beta=%v", models.ErrInvalidConfig, cfg.Prior.Alpha, cfg.Prior.Beta)
	}
	if cfg.Stages.Burn <= 0 {
		return fmt.Errorf("%w: burn must be positive, got %d", models.ErrInvalidConfig, cfg.Stages.Burn)
	}
	if cfg.Stages.Batch <= 0 {
		return fmt.Errorf("%w: batch must be positive, got %d", models.ErrInvalidConfig, cfg.Stages.Batch)
	}
	if cfg.Stages.Cap <= 0 {
		return fmt.Errorf("%w: cap must be positive, got %d", models.ErrInvalidConfig, cfg.Stages.Cap)
	}
	if cfg.Stages.Burn > cfg.Stages.Cap {
		return fmt.Errorf("%w: burn %d exceeds per-arm cap %d", models.ErrInvalidConfig, cfg.Stages.Burn, cfg.Stages.Cap)
	}
	if cfg.Decision.Delta < 0 || cfg.Decision.Delta >= 1 {
		return fmt.Errorf("%w: delta must lie in [0,1), got %v", models.ErrInvalidConfig, cfg.Decision.Delta)
	}
	return nil
}
