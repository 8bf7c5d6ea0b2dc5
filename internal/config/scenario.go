package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pmallia/mamsim/internal/models"
	"github.com/pmallia/mamsim/internal/util"
)

// DefaultScenario returns a Scenario with default values.
func DefaultScenario() models.Scenario {
	return models.Scenario{
		Replicates: "1000",
		Seed:       1,
		Workers:    0, // 0 means one worker per CPU
		Digits:     3,
	}
}

// LoadScenario loads and parses a scenario.yaml file, resolving the
// replicate count and validating every parameter before any simulation runs.
func LoadScenario(path string) (models.Scenario, error) {
	cfg := DefaultScenario()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading scenario config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing scenario config: %w", err)
	}

	// Apply defaults for missing values
	if cfg.Replicates == "" {
		cfg.Replicates = "1000"
	}
	if cfg.Digits == 0 {
		cfg.Digits = 3
	}

	n, err := util.ParseCount(cfg.Replicates)
	if err != nil {
		return cfg, fmt.Errorf("%w: replicates: %v", models.ErrInvalidConfig, err)
	}
	cfg.NReplicates = n

	if err := ValidateScenario(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// ValidateScenario fails fast on any invalid run parameter.
func ValidateScenario(cfg models.Scenario) error {
	if cfg.DesignPath == "" {
		return fmt.Errorf("%w: design path must be set", models.ErrInvalidConfig)
	}
	if len(cfg.Rates) == 0 {
		return fmt.Errorf("%w: rates must list one response probability per arm", models.ErrInvalidConfig)
	}
	for i, r := range cfg.Rates {
		if r < 0 || r > 1 {
			return fmt.Errorf("%w: rates[%d] = %v outside [0,1]", models.ErrInvalidConfig, i, r)
		}
	}
	if cfg.NReplicates <= 0 {
		return fmt.Errorf("%w: replicates must be positive, got %d", models.ErrInvalidConfig, cfg.NReplicates)
	}
	if len(cfg.Gammas) == 0 {
		return fmt.Errorf("%w: gammas must list at least one threshold", models.ErrInvalidConfig)
	}
	for i, g := range cfg.Gammas {
		if g <= 0 {
			return fmt.Errorf("%w: gammas[%d] = %v must be positive", models.ErrInvalidConfig, i, g)
		}
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", models.ErrInvalidConfig, cfg.Workers)
	}
	if cfg.Digits <= 0 {
		return fmt.Errorf("%w: digits must be positive, got %d", models.ErrInvalidConfig, cfg.Digits)
	}
	return nil
}
