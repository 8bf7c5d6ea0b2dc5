package executor

import (
	"fmt"
	"slices"

	"github.com/pmallia/mamsim/internal/loss"
	"github.com/pmallia/mamsim/internal/models"
	"github.com/pmallia/mamsim/internal/outcomes"
	"github.com/pmallia/mamsim/internal/posterior"
)

// Controller replays one replicate's pre-generated outcomes through the
// sequential stopping rule, producing the trial's replay log. All
// randomness lives in the dataset; a controller run is a pure function of
// (dataset slice, design, gamma) and two runs over the same inputs produce
// identical trajectories.
type Controller struct {
	design models.DesignConfig
	eval   *loss.Evaluator
	gamma  float64
}

// NewController creates a stage controller for one design and threshold.
func NewController(design models.DesignConfig, gamma float64) *Controller {
	return &Controller{
		design: design,
		eval:   loss.New(design),
		gamma:  gamma,
	}
}

// trialState is the mutable per-trial state between stages. Each worker
// owns its trial's state exclusively for the duration of a run.
type trialState struct {
	active    []int // arms still being sampled, ascending
	successes []int
	failures  []int
	perArm    int // outcomes consumed per currently-active arm
	stage     int
	patients  int // cumulative sample size across arms
}

func newTrialState(nArms int) *trialState {
	st := &trialState{
		active:    make([]int, nArms),
		successes: make([]int, nArms),
		failures:  make([]int, nArms),
	}
	for i := range st.active {
		st.active[i] = i
	}
	return st
}

// consumed returns how many outcomes the given arm has used so far.
func (st *trialState) consumed(arm int) int {
	return st.successes[arm] + st.failures[arm]
}

// Run simulates trial index trial of ds from the initial state: all arms
// active, zero counts, stage zero.
func (c *Controller) Run(ds *outcomes.Dataset, trial int) (*models.Trajectory, error) {
	if err := c.checkDataset(ds, trial); err != nil {
		return nil, err
	}
	traj := &models.Trajectory{
		DatasetID: ds.ID(),
		Trial:     trial,
		Gamma:     c.gamma,
	}
	return c.run(ds, trial, newTrialState(c.design.NumArms()), traj)
}

// run advances st stage by stage until a terminal record is appended. The
// reevaluator also enters here with a mid-trial state reconstructed from a
// stored trajectory prefix.
func (c *Controller) run(ds *outcomes.Dataset, trial int, st *trialState, traj *models.Trajectory) (*models.Trajectory, error) {
	for {
		rec := c.step(ds, trial, st)
		traj.Stages = append(traj.Stages, rec)
		if rec.Action != models.ActionContinue {
			traj.Final = rec.StopDecision
			traj.Patients = st.patients
			return traj, nil
		}
	}
}

// step consumes one stage batch, evaluates stop-now and continuation
// options, and applies the cost-threshold test.
func (c *Controller) step(ds *outcomes.Dataset, trial int, st *trialState) models.StageRecord {
	m := c.design.Stages.Batch
	if st.stage == 0 {
		m = c.design.Stages.Burn
	}
	if rem := c.design.Stages.Cap - st.perArm; m > rem {
		m = rem
	}

	rec := models.StageRecord{
		Stage:  st.stage,
		Active: slices.Clone(st.active),
		Gamma:  c.gamma,
	}
	for _, arm := range st.active {
		succ := ds.Successes(trial, arm, st.consumed(arm), m)
		st.successes[arm] += succ
		st.failures[arm] += m - succ
		st.patients += m
		rec.Draws = append(rec.Draws, models.ArmDraw{Arm: arm, N: m, Successes: succ})
	}
	st.perArm += m

	// Size of the next stage's batch; zero once active arms hit the cap.
	next := c.design.Stages.Batch
	if rem := c.design.Stages.Cap - st.perArm; next > rem {
		next = rem
	}

	assess := c.eval.Evaluate(c.posteriors(st), st.active, next)
	rec.StopDecision = assess.StopDecision
	rec.StopLoss = assess.StopLoss
	if assess.Best != nil {
		rec.Best = &models.ContinuationRecord{
			Arms:      slices.Clone(assess.Best.Arms),
			Patients:  assess.Best.Patients,
			Reduction: assess.Best.Reduction,
		}
	}

	switch {
	case next <= 0:
		rec.Action = models.ActionForcedStop
	case rec.Best != nil && rec.Best.Reduction > c.gamma:
		rec.Action = models.ActionContinue
		st.active = slices.Clone(rec.Best.Arms)
		st.stage++
	default:
		rec.Action = models.ActionStop
	}
	return rec
}

// posteriors returns every arm's current posterior; dropped arms stay
// frozen at their last counts but remain in the decision space.
func (c *Controller) posteriors(st *trialState) []posterior.Beta {
	post := make([]posterior.Beta, len(st.successes))
	for i := range post {
		post[i] = posterior.FromCounts(c.design.Prior.Alpha, c.design.Prior.Beta, st.successes[i], st.failures[i])
	}
	return post
}

func (c *Controller) checkDataset(ds *outcomes.Dataset, trial int) error {
	if ds.Arms() != c.design.NumArms() {
		return fmt.Errorf("%w: dataset has %d arms, design has %d", models.ErrInvalidConfig, ds.Arms(), c.design.NumArms())
	}
	if ds.Cap() < c.design.Stages.Cap {
		return fmt.Errorf("%w: dataset holds %d outcomes per arm, design cap is %d", models.ErrInvalidConfig, ds.Cap(), c.design.Stages.Cap)
	}
	if trial < 0 || trial >= ds.Replicates() {
		return fmt.Errorf("%w: trial index %d outside dataset of %d replicates", models.ErrInvalidConfig, trial, ds.Replicates())
	}
	return nil
}
