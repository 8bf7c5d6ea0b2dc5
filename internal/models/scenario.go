package models

// Scenario represents the parsed scenario.yaml configuration: one
// response-rate vector evaluated at one or more cost thresholds over a
// shared outcome dataset.
type Scenario struct {
	Name       *string   `yaml:"name,omitempty" json:"name,omitempty"`
	DesignPath string    `yaml:"design" json:"design"`
	ResultsDir string    `yaml:"results,omitempty" json:"results,omitempty"` // empty disables persistence
	Rates      []float64 `yaml:"rates" json:"rates"`
	Replicates string    `yaml:"replicates" json:"replicates"` // accepts count suffixes: "50k", "2m"
	Gammas     []float64 `yaml:"gammas" json:"gammas"`
	Seed       uint64    `yaml:"seed" json:"seed"`
	Workers    int       `yaml:"workers" json:"workers"`
	Digits     int       `yaml:"digits" json:"digits"`

	// MetricsListen is the host:port to serve prometheus metrics on for the
	// duration of the run; empty disables the endpoint.
	MetricsListen string `yaml:"metrics_listen,omitempty" json:"metrics_listen,omitempty"`

	// NReplicates is the resolved replicate count, set by config.LoadScenario.
	NReplicates int `yaml:"-" json:"n_replicates"`
}
