package executor

import (
	"context"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/pmallia/mamsim/internal/models"
	"github.com/pmallia/mamsim/internal/outcomes"
)

// Reevaluate replays a stored trajectory's interim analyses against a new
// threshold, over the same realized outcomes. Gamma only gates the
// stop-versus-continue test - the winning continuation action at each stage
// is threshold-independent - so a stricter threshold yields a stop-earlier
// prefix of the stored log, and a looser one extends it by resuming the
// stage engine deterministically on the same outcome slices. The pairing is
// verified before any trajectory is produced.
func Reevaluate(design models.DesignConfig, traj *models.Trajectory, ds *outcomes.Dataset, gamma float64) (*models.Trajectory, error) {
	if gamma <= 0 {
		return nil, fmt.Errorf("%w: gamma must be positive, got %v", models.ErrInvalidConfig, gamma)
	}
	if err := verifyPairing(design, traj, ds); err != nil {
		return nil, err
	}

	out := &models.Trajectory{
		DatasetID: ds.ID(),
		Trial:     traj.Trial,
		Gamma:     gamma,
	}
	st := newTrialState(design.NumArms())

	for _, rec := range traj.Stages {
		applyDraws(st, rec)

		r := rec
		r.Gamma = gamma

		switch {
		case rec.Best == nil:
			// Cap reached when this record was produced; same forced stop.
			r.Action = models.ActionForcedStop
		case rec.Best.Reduction > gamma:
			r.Action = models.ActionContinue
		default:
			r.Action = models.ActionStop
		}
		out.Stages = append(out.Stages, r)

		if r.Action != models.ActionContinue {
			out.Final = r.StopDecision
			out.Patients = st.patients
			return out, nil
		}
		st.active = slices.Clone(rec.Best.Arms)
		st.stage++
	}

	// The new threshold keeps sampling past the recorded horizon; resume
	// the stage engine on the same outcome slices.
	c := NewController(design, gamma)
	return c.run(ds, traj.Trial, st, out)
}

// applyDraws replays one recorded stage's consumption into the state.
func applyDraws(st *trialState, rec models.StageRecord) {
	for _, d := range rec.Draws {
		st.successes[d.Arm] += d.Successes
		st.failures[d.Arm] += d.N - d.Successes
		st.patients += d.N
	}
	if len(rec.Draws) > 0 {
		st.perArm += rec.Draws[0].N
	}
}

// verifyPairing rejects a reevaluation request whose trajectory does not
// belong to the dataset: wrong dataset identity, out-of-range trial index,
// missing terminal record, or recorded outcomes that disagree with the
// dataset's slices.
func verifyPairing(design models.DesignConfig, traj *models.Trajectory, ds *outcomes.Dataset) error {
	if traj.DatasetID != ds.ID() {
		return fmt.Errorf("%w: trajectory from dataset %s, got dataset %s", models.ErrTrajectoryMismatch, traj.DatasetID, ds.ID())
	}
	if traj.Trial < 0 || traj.Trial >= ds.Replicates() {
		return fmt.Errorf("%w: trial index %d outside dataset of %d replicates", models.ErrTrajectoryMismatch, traj.Trial, ds.Replicates())
	}
	if ds.Arms() != design.NumArms() {
		return fmt.Errorf("%w: dataset has %d arms, design has %d", models.ErrTrajectoryMismatch, ds.Arms(), design.NumArms())
	}
	if len(traj.Stages) == 0 {
		return fmt.Errorf("%w: empty stage log", models.ErrTrajectoryTruncated)
	}
	if last := traj.Stages[len(traj.Stages)-1]; last.Action == models.ActionContinue {
		return fmt.Errorf("%w: last record continues", models.ErrTrajectoryTruncated)
	}

	offsets := make([]int, ds.Arms())
	for _, rec := range traj.Stages {
		// An empty stage would desync the resume state's offsets.
		if len(rec.Draws) == 0 {
			return fmt.Errorf("%w: stage %d has no draws", models.ErrTrajectoryTruncated, rec.Stage)
		}
		for _, d := range rec.Draws {
			if d.Arm < 0 || d.Arm >= ds.Arms() {
				return fmt.Errorf("%w: stage %d draws from unknown arm %d", models.ErrTrajectoryMismatch, rec.Stage, d.Arm)
			}
			if d.N <= 0 || offsets[d.Arm]+d.N > ds.Cap() {
				return fmt.Errorf("%w: stage %d consumes %d outcomes past arm %d's cap", models.ErrTrajectoryMismatch, rec.Stage, d.N, d.Arm)
			}
			if got := ds.Successes(traj.Trial, d.Arm, offsets[d.Arm], d.N); got != d.Successes {
				return fmt.Errorf("%w: stage %d records %d successes on arm %d, dataset has %d", models.ErrTrajectoryMismatch, rec.Stage, d.Successes, d.Arm, got)
			}
			offsets[d.Arm] += d.N
		}
	}
	return nil
}

// ReevaluateAll replays a set of trajectories at a new threshold
// concurrently. Trajectories are independent and read-only, so replay fans
// out across workers; results keep their input positions.
func ReevaluateAll(ctx context.Context, design models.DesignConfig, trajs []*models.Trajectory, ds *outcomes.Dataset, gamma float64, workers int) ([]*models.Trajectory, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := make([]*models.Trajectory, len(trajs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, traj := range trajs {
		if traj == nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			nt, err := Reevaluate(design, traj, ds, gamma)
			if err != nil {
				return fmt.Errorf("reevaluating trial %d: %w", traj.Trial, err)
			}
			out[i] = nt
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
