package models

import (
	"fmt"
	"strings"
)

// Decision is one label from the design's finite decision space. In a
// control design it is a bitmask over experimental arms (bit i set means
// experimental arm i is declared superior to control); without a control it
// is the index of the arm declared best.
type Decision int

// ArmConfig describes one treatment arm of a simulated trial. Rate is the
// true response probability, visible only to the outcome generator and never
// to the decision logic.
type ArmConfig struct {
	Index     int
	IsControl bool
	Rate      float64
}

// DesignConfig represents the parsed design.toml configuration.
type DesignConfig struct {
	Version  string         `toml:"version" json:"version"`
	Arms     ArmsConfig     `toml:"arms" json:"arms"`
	Prior    PriorConfig    `toml:"prior" json:"prior"`
	Stages   StagesConfig   `toml:"stages" json:"stages"`
	Decision DecisionConfig `toml:"decision" json:"decision"`
}

type ArmsConfig struct {
	Control       bool `toml:"control" json:"control"`
	Experimental  int  `toml:"experimental" json:"experimental"`
	AllowDropping bool `toml:"allow_dropping" json:"allow_dropping"`
	DropControl   bool `toml:"drop_control" json:"drop_control"`
}

type PriorConfig struct {
	Alpha float64 `toml:"alpha" json:"alpha"` // default: 1.0
	Beta  float64 `toml:"beta" json:"beta"`   // default: 1.0
}

type StagesConfig struct {
	Burn  int `toml:"burn" json:"burn"`   // per-arm first-stage size, default: 20
	Batch int `toml:"batch" json:"batch"` // per-arm later-stage size, default: 10
	Cap   int `toml:"cap" json:"cap"`     // per-arm sampling cap, default: 200
}

type DecisionConfig struct {
	Delta float64 `toml:"delta" json:"delta"`
}

// NumArms returns the total arm count, control included.
func (d DesignConfig) NumArms() int {
	n := d.Arms.Experimental
	if d.Arms.Control {
		n++
	}
	return n
}

// ControlIndex returns the index of the control arm. Only meaningful when
// the design has a control.
func (d DesignConfig) ControlIndex() int { return 0 }

// ExperimentalIndices returns the arm indices of the experimental arms.
func (d DesignConfig) ExperimentalIndices() []int {
	idx := make([]int, 0, d.Arms.Experimental)
	start := 0
	if d.Arms.Control {
		start = 1
	}
	for i := start; i < d.NumArms(); i++ {
		idx = append(idx, i)
	}
	return idx
}

// IsExperimental reports whether arm is an experimental arm.
func (d DesignConfig) IsExperimental(arm int) bool {
	return !d.Arms.Control || arm != d.ControlIndex()
}

// NumDecisions returns the size of the final decision space: 2^k subset
// labels with a control, k best-arm labels without.
func (d DesignConfig) NumDecisions() int {
	if d.Arms.Control {
		return 1 << d.Arms.Experimental
	}
	return d.NumArms()
}

// ArmName returns the human-readable name of an arm.
func (d DesignConfig) ArmName(arm int) string {
	if d.Arms.Control {
		if arm == d.ControlIndex() {
			return "control"
		}
		return fmt.Sprintf("arm%d", arm)
	}
	return fmt.Sprintf("arm%d", arm+1)
}

// DecisionLabel returns the label of one decision: "none" or a "+"-joined
// arm list for subset decisions, the arm name for best-arm decisions.
func (d DesignConfig) DecisionLabel(dec Decision) string {
	if !d.Arms.Control {
		return d.ArmName(int(dec))
	}
	if dec == 0 {
		return "none"
	}
	var parts []string
	for i := 0; i < d.Arms.Experimental; i++ {
		if dec&(1<<i) != 0 {
			parts = append(parts, d.ArmName(i+1))
		}
	}
	return strings.Join(parts, "+")
}

// DecisionLabels returns the labels of the full decision space, indexed by
// decision.
func (d DesignConfig) DecisionLabels() []string {
	labels := make([]string, d.NumDecisions())
	for dec := range labels {
		labels[dec] = d.DecisionLabel(Decision(dec))
	}
	return labels
}

// ArmPlan binds true response rates to the design's arms. The rate vector
// must cover every arm, control first.
func (d DesignConfig) ArmPlan(rates []float64) ([]ArmConfig, error) {
	if len(rates) != d.NumArms() {
		return nil, fmt.Errorf("%w: design has %d arms but %d rates given", ErrInvalidConfig, d.NumArms(), len(rates))
	}
	arms := make([]ArmConfig, len(rates))
	for i, r := range rates {
		arms[i] = ArmConfig{
			Index:     i,
			IsControl: d.Arms.Control && i == d.ControlIndex(),
			Rate:      r,
		}
	}
	return arms, nil
}
