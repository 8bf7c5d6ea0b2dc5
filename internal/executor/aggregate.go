package executor

import (
	"fmt"
	"math"

	"github.com/pmallia/mamsim/internal/models"
)

// Aggregate reduces a set of terminal trial outcomes into the
// decision-probability vector and the sample-size distribution at one
// threshold. Failed trials are counted but excluded from both; the
// probability vector is normalized over the trials that completed, so it
// sums to one within rounding tolerance.
func Aggregate(design models.DesignConfig, gamma float64, outs []models.TrialOutcome, digits int) (models.Summary, error) {
	if len(outs) == 0 {
		return models.Summary{}, models.ErrNoOutcomes
	}

	counts := make([]int, design.NumDecisions())
	var sizes []int
	failed := 0

	for _, o := range outs {
		if o.Error != nil {
			failed++
			continue
		}
		if o.Decision < 0 || int(o.Decision) >= len(counts) {
			return models.Summary{}, fmt.Errorf("trial %d: decision %d outside decision space of %d labels", o.Trial, o.Decision, len(counts))
		}
		counts[o.Decision]++
		sizes = append(sizes, o.Patients)
	}

	completed := len(sizes)
	if completed == 0 {
		return models.Summary{}, fmt.Errorf("%w: all %d trials failed", models.ErrNoOutcomes, failed)
	}

	var meanN float64
	for _, n := range sizes {
		meanN += float64(n)
	}
	meanN /= float64(completed)

	labels := design.DecisionLabels()
	stats := make([]models.DecisionStat, len(counts))
	for d, n := range counts {
		stats[d] = models.DecisionStat{
			Label:       labels[d],
			Count:       n,
			Probability: roundTo(float64(n)/float64(completed), digits),
		}
	}

	return models.Summary{
		Gamma:        gamma,
		Decisions:    stats,
		SampleSizes:  sizes,
		MeanPatients: meanN,
		Trials:       completed,
		FailedTrials: failed,
	}, nil
}

// roundTo rounds v to the given number of decimal digits.
func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
