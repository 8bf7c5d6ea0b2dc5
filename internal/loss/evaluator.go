// Package loss implements the posterior-expected-loss criterion that drives
// stopping, dropping, and the final decision of an adaptive trial.
//
// In a control design, declaring experimental arm i superior is correct only
// when its true rate exceeds control's by more than the margin delta. With
// unit misclassification costs the expected loss of declaring subset S is
//
//	sum_{i in S} (1 - q_i) + sum_{i not in S} q_i
//
// where q_i = P(p_i - p_c > delta | data). Without a control the loss of
// picking arm i is the expected regret E[max_j p_j] - E[p_i]. Both reduce to
// one-dimensional integrals of Beta densities, evaluated by Gauss-Legendre
// quadrature; interior quadrature nodes keep every result finite even at
// zero-event extremes of the posterior.
package loss

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/integrate/quad"

	"github.com/pmallia/mamsim/internal/models"
	"github.com/pmallia/mamsim/internal/posterior"
)

const defaultQuadNodes = 128

// Evaluator computes posterior expected losses for one trial design.
type Evaluator struct {
	design    models.DesignConfig
	quadNodes int
}

// New creates an evaluator for the given design.
func New(design models.DesignConfig) *Evaluator {
	return &Evaluator{design: design, quadNodes: defaultQuadNodes}
}

// Continuation is a candidate "sample one more batch" action.
type Continuation struct {
	Arms         []int   // arms kept active for the next stage
	Patients     int     // patients the next batch costs in total
	ExpectedLoss float64 // expected posterior loss after observing the batch
	Reduction    float64 // expected loss reduction per patient sampled
}

// Assessment is the evaluator's verdict at one interim analysis: the
// loss-minimizing decision if the trial stops now, and the continuation
// action with the greatest expected loss reduction per patient (nil when no
// further sampling is possible).
type Assessment struct {
	StopDecision models.Decision
	StopLoss     float64
	Best         *Continuation
}

// StopNow returns the loss-minimizing final decision and its expected loss
// for the given posteriors.
func (e *Evaluator) StopNow(post []posterior.Beta) (models.Decision, float64) {
	losses := e.DecisionLosses(post)
	best := 0
	for d := 1; d < len(losses); d++ {
		if losses[d] < losses[best] {
			best = d
		}
	}
	return models.Decision(best), losses[best]
}

// DecisionLosses returns the posterior expected loss of declaring each
// candidate final decision now, indexed by decision.
func (e *Evaluator) DecisionLosses(post []posterior.Beta) []float64 {
	if e.design.Arms.Control {
		return e.subsetLosses(e.superiorProbs(post))
	}
	return e.selectionLosses(post)
}

// superiorProbs returns q_i = P(p_i - p_c > delta | data) for each
// experimental arm, indexed from zero.
func (e *Evaluator) superiorProbs(post []posterior.Beta) []float64 {
	control := post[e.design.ControlIndex()]
	q := make([]float64, e.design.Arms.Experimental)
	for i := range q {
		q[i] = e.ProbSuperior(post[i+1], control)
	}
	return q
}

// subsetLosses expands per-arm superiority probabilities into the loss of
// every subset decision.
func (e *Evaluator) subsetLosses(q []float64) []float64 {
	losses := make([]float64, 1<<len(q))
	for d := range losses {
		var l float64
		for i, qi := range q {
			if d&(1<<i) != 0 {
				l += 1 - qi
			} else {
				l += qi
			}
		}
		losses[d] = l
	}
	return losses
}

// selectionLosses returns the expected regret of declaring each arm best.
func (e *Evaluator) selectionLosses(post []posterior.Beta) []float64 {
	emax := e.ExpectedMax(post)
	losses := make([]float64, len(post))
	for i, b := range post {
		losses[i] = emax - b.Mean()
	}
	return losses
}

// ProbSuperior returns P(p - pc > delta) for independent Beta posteriors of
// an experimental arm and control.
func (e *Evaluator) ProbSuperior(arm, control posterior.Beta) float64 {
	delta := e.design.Decision.Delta
	upper := 1 - delta
	if upper <= 0 {
		return 0
	}
	f := func(x float64) float64 {
		return control.PDF(x) * (1 - arm.CDF(x+delta))
	}
	q := quad.Fixed(f, 0, upper, e.quadNodes, nil, 0)
	return math.Min(math.Max(q, 0), 1)
}

// ExpectedMax returns E[max_j p_j] for independent Beta posteriors.
func (e *Evaluator) ExpectedMax(post []posterior.Beta) float64 {
	f := func(x float64) float64 {
		prod := 1.0
		for _, b := range post {
			prod *= b.CDF(x)
		}
		return 1 - prod
	}
	return quad.Fixed(f, 0, 1, e.quadNodes, nil, 0)
}

// Evaluate runs the stop-now rule and the one-step continuation search at
// one interim analysis. post holds every arm's posterior (dropped arms
// frozen at their last counts), active lists the arms still being sampled,
// and batch is the per-arm size of the next stage; batch <= 0 means no
// further sampling is possible and only the stop-now verdict is produced.
func (e *Evaluator) Evaluate(post []posterior.Beta, active []int, batch int) Assessment {
	dec, stopLoss := e.StopNow(post)
	a := Assessment{StopDecision: dec, StopLoss: stopLoss}
	if batch <= 0 {
		return a
	}
	for _, cand := range e.continuationSets(active) {
		after := e.lookahead(post, cand, batch)
		patients := batch * len(cand)
		red := (stopLoss - after) / float64(patients)
		if a.Best == nil || red > a.Best.Reduction {
			a.Best = &Continuation{
				Arms:         cand,
				Patients:     patients,
				ExpectedLoss: after,
				Reduction:    red,
			}
		}
	}
	return a
}

// continuationSets enumerates the candidate active sets for the next stage:
// the full active set alone in the no-dropping variant, otherwise every
// subset that keeps at least one experimental arm and keeps control unless
// the design permits dropping it.
func (e *Evaluator) continuationSets(active []int) [][]int {
	if !e.design.Arms.AllowDropping {
		return [][]int{slices.Clone(active)}
	}

	controlActive := e.design.Arms.Control && slices.Contains(active, e.design.ControlIndex())

	var sets [][]int
	n := len(active)
	for mask := 1; mask < 1<<n; mask++ {
		var s []int
		experimental := 0
		keepsControl := false
		for i := 0; i < n; i++ {
			if mask&(1<<i) == 0 {
				continue
			}
			arm := active[i]
			s = append(s, arm)
			if e.design.IsExperimental(arm) {
				experimental++
			} else {
				keepsControl = true
			}
		}
		if experimental == 0 {
			continue
		}
		if controlActive && !e.design.Arms.DropControl && !keepsControl {
			continue
		}
		sets = append(sets, s)
	}
	return sets
}
