package outcomes

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/pmallia/mamsim/internal/models"
)

// Dataset holds the pre-generated Bernoulli outcomes of every replicate
// trial, one fixed-order sequence per arm. It is immutable after
// construction and safe for concurrent reads, so a single dataset backs
// every design variant and threshold evaluated for a scenario.
type Dataset struct {
	id         uuid.UUID
	arms       []models.ArmConfig
	sampleCap  int
	replicates int
	seed       uint64

	// outcomes[trial][arm][i] is patient i's binary response on that arm.
	outcomes [][][]bool
}

// Generate draws all patient outcomes for every replicate up front. Outcome
// order within an arm is fixed, so consuming the first n outcomes of an arm
// yields identical realized data regardless of design or threshold.
func Generate(arms []models.ArmConfig, sampleCap, replicates int, seed uint64) (*Dataset, error) {
	if len(arms) == 0 {
		return nil, fmt.Errorf("%w: no arms configured", models.ErrInvalidConfig)
	}
	for _, a := range arms {
		if a.Rate < 0 || a.Rate > 1 {
			return nil, fmt.Errorf("%w: arm %d response probability %v outside [0,1]", models.ErrInvalidConfig, a.Index, a.Rate)
		}
	}
	if sampleCap <= 0 {
		return nil, fmt.Errorf("%w: sampling cap must be positive, got %d", models.ErrInvalidConfig, sampleCap)
	}
	if replicates <= 0 {
		return nil, fmt.Errorf("%w: replicate count must be positive, got %d", models.ErrInvalidConfig, replicates)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	outcomes := make([][][]bool, replicates)
	for trial := range outcomes {
		perArm := make([][]bool, len(arms))
		for a, arm := range arms {
			seq := make([]bool, sampleCap)
			for i := range seq {
				seq[i] = rng.Float64() < arm.Rate
			}
			perArm[a] = seq
		}
		outcomes[trial] = perArm
	}

	return &Dataset{
		id:         uuid.New(),
		arms:       arms,
		sampleCap:  sampleCap,
		replicates: replicates,
		seed:       seed,
		outcomes:   outcomes,
	}, nil
}

// ID returns the dataset's identity, used to pair trajectories with the
// dataset that produced them.
func (d *Dataset) ID() uuid.UUID { return d.id }

// Replicates returns the number of replicate trials in the dataset.
func (d *Dataset) Replicates() int { return d.replicates }

// Arms returns the number of arms per trial.
func (d *Dataset) Arms() int { return len(d.arms) }

// Cap returns the per-arm outcome sequence length.
func (d *Dataset) Cap() int { return d.sampleCap }

// Seed returns the seed the dataset was generated from.
func (d *Dataset) Seed() uint64 { return d.seed }

// Outcome returns patient i's binary response on the given trial and arm.
func (d *Dataset) Outcome(trial, arm, i int) bool {
	return d.outcomes[trial][arm][i]
}

// Successes counts the responders among outcomes [offset, offset+n) of one
// arm in one trial.
func (d *Dataset) Successes(trial, arm, offset, n int) int {
	seq := d.outcomes[trial][arm][offset : offset+n]
	count := 0
	for _, ok := range seq {
		if ok {
			count++
		}
	}
	return count
}
