package executor_test

import (
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/pmallia/mamsim/internal/executor"
	"github.com/pmallia/mamsim/internal/models"
	"github.com/pmallia/mamsim/internal/outcomes"
)

func testDesign() models.DesignConfig {
	return models.DesignConfig{
		Arms:     models.ArmsConfig{Control: true, Experimental: 2, AllowDropping: true},
		Prior:    models.PriorConfig{Alpha: 1, Beta: 1},
		Stages:   models.StagesConfig{Burn: 6, Batch: 4, Cap: 18},
		Decision: models.DecisionConfig{Delta: 0.1},
	}
}

func testDataset(t *testing.T, design models.DesignConfig, rates []float64, replicates int, seed uint64) *outcomes.Dataset {
	t.Helper()
	arms, err := design.ArmPlan(rates)
	if err != nil {
		t.Fatalf("building arm plan: %v", err)
	}
	ds, err := outcomes.Generate(arms, design.Stages.Cap, replicates, seed)
	if err != nil {
		t.Fatalf("generating dataset: %v", err)
	}
	return ds
}

func TestControllerDeterministic(t *testing.T) {
	design := testDesign()
	ds := testDataset(t, design, []float64{0.3, 0.3, 0.5}, 5, 17)
	ctrl := executor.NewController(design, 0.001)

	for trial := 0; trial < 5; trial++ {
		a, err := ctrl.Run(ds, trial)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		b, err := ctrl.Run(ds, trial)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("trial %d: repeated runs diverged", trial)
		}
	}
}

func TestControllerTrajectoryShape(t *testing.T) {
	design := testDesign()
	ds := testDataset(t, design, []float64{0.2, 0.3, 0.4}, 20, 23)
	ctrl := executor.NewController(design, 0.0005)

	for trial := 0; trial < 20; trial++ {
		traj, err := ctrl.Run(ds, trial)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		if len(traj.Stages) == 0 {
			t.Fatalf("trial %d: empty stage log", trial)
		}

		last := traj.Stages[len(traj.Stages)-1]
		if last.Action == models.ActionContinue {
			t.Errorf("trial %d: last record continues", trial)
		}
		if traj.Final != last.StopDecision {
			t.Errorf("trial %d: final decision %d != last stop decision %d", trial, traj.Final, last.StopDecision)
		}

		// Every non-terminal record continues, the active set only
		// shrinks, and draw accounting matches the trajectory total.
		patients := 0
		perArm := make([]int, design.NumArms())
		for i, rec := range traj.Stages {
			if i < len(traj.Stages)-1 && rec.Action != models.ActionContinue {
				t.Errorf("trial %d stage %d: terminal record before the last", trial, i)
			}
			if rec.Stage != i {
				t.Errorf("trial %d: stage %d recorded as %d", trial, i, rec.Stage)
			}
			if i > 0 {
				prev := traj.Stages[i-1]
				if !reflect.DeepEqual(rec.Active, prev.Best.Arms) {
					t.Errorf("trial %d stage %d: active %v != chosen continuation %v", trial, i, rec.Active, prev.Best.Arms)
				}
				for _, arm := range rec.Active {
					if !slices.Contains(prev.Active, arm) {
						t.Errorf("trial %d stage %d: arm %d rejoined after being dropped", trial, i, arm)
					}
				}
			}
			for _, d := range rec.Draws {
				patients += d.N
				perArm[d.Arm] += d.N
				if d.Successes < 0 || d.Successes > d.N {
					t.Errorf("trial %d stage %d: %d successes in %d draws", trial, i, d.Successes, d.N)
				}
			}
		}
		if traj.Patients != patients {
			t.Errorf("trial %d: trajectory reports %d patients, draws sum to %d", trial, traj.Patients, patients)
		}
		for arm, n := range perArm {
			if n > design.Stages.Cap {
				t.Errorf("trial %d: arm %d consumed %d outcomes past cap %d", trial, arm, n, design.Stages.Cap)
			}
		}
	}
}

func TestControllerStopsImmediatelyUnderHugeThreshold(t *testing.T) {
	design := testDesign()
	ds := testDataset(t, design, []float64{0.3, 0.3, 0.3}, 10, 31)

	// No batch is worth a loss reduction of 10 per patient, so every
	// trial stops at the burn-in analysis.
	ctrl := executor.NewController(design, 10)

	for trial := 0; trial < 10; trial++ {
		traj, err := ctrl.Run(ds, trial)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		if len(traj.Stages) != 1 {
			t.Errorf("trial %d: expected 1 stage, got %d", trial, len(traj.Stages))
		}
		if traj.Stages[0].Action != models.ActionStop {
			t.Errorf("trial %d: expected stop, got %s", trial, traj.Stages[0].Action)
		}
		if want := design.Stages.Burn * design.NumArms(); traj.Patients != want {
			t.Errorf("trial %d: expected %d patients, got %d", trial, want, traj.Patients)
		}
	}
}

func TestControllerForcedStopWhenBurnExhaustsCap(t *testing.T) {
	design := testDesign()
	design.Stages.Cap = design.Stages.Burn
	ds := testDataset(t, design, []float64{0.2, 0.4, 0.6}, 8, 41)
	ctrl := executor.NewController(design, 1e-9)

	for trial := 0; trial < 8; trial++ {
		traj, err := ctrl.Run(ds, trial)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		if len(traj.Stages) != 1 {
			t.Fatalf("trial %d: expected 1 stage, got %d", trial, len(traj.Stages))
		}
		rec := traj.Stages[0]
		if rec.Action != models.ActionForcedStop {
			t.Errorf("trial %d: expected forced stop, got %s", trial, rec.Action)
		}
		if rec.Best != nil {
			t.Errorf("trial %d: continuation offered with no outcomes left", trial)
		}
	}
}

func TestControllerThresholdMonotoneSampleSize(t *testing.T) {
	design := testDesign()
	ds := testDataset(t, design, []float64{0.2, 0.3, 0.5}, 15, 53)

	gammas := []float64{1e-6, 0.002, 0.05}
	for trial := 0; trial < 15; trial++ {
		prev := -1
		// Looser thresholds never sample less.
		for i := len(gammas) - 1; i >= 0; i-- {
			traj, err := executor.NewController(design, gammas[i]).Run(ds, trial)
			if err != nil {
				t.Fatalf("trial %d gamma %v: %v", trial, gammas[i], err)
			}
			if traj.Patients < prev {
				t.Errorf("trial %d: gamma %v sampled %d patients, stricter threshold sampled %d", trial, gammas[i], traj.Patients, prev)
			}
			prev = traj.Patients
		}
	}
}

func TestControllerNoDroppingKeepsAllArms(t *testing.T) {
	design := testDesign()
	design.Arms.AllowDropping = false
	ds := testDataset(t, design, []float64{0.2, 0.5, 0.8}, 10, 61)
	ctrl := executor.NewController(design, 1e-6)

	all := []int{0, 1, 2}
	for trial := 0; trial < 10; trial++ {
		traj, err := ctrl.Run(ds, trial)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		for _, rec := range traj.Stages {
			if !reflect.DeepEqual(rec.Active, all) {
				t.Errorf("trial %d stage %d: active %v in a no-dropping design", trial, rec.Stage, rec.Active)
			}
		}
	}
}

func TestControllerRejectsMismatchedDataset(t *testing.T) {
	design := testDesign()
	ctrl := executor.NewController(design, 0.001)

	// Wrong arm count.
	twoArm := models.DesignConfig{
		Arms:   models.ArmsConfig{Control: true, Experimental: 1},
		Stages: design.Stages,
	}
	ds := testDataset(t, twoArm, []float64{0.2, 0.3}, 5, 1)
	if _, err := ctrl.Run(ds, 0); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for arm mismatch, got %v", err)
	}

	// Dataset shorter than the design cap.
	short := design
	short.Stages.Cap = 10
	ds = testDataset(t, short, []float64{0.2, 0.3, 0.4}, 5, 1)
	if _, err := ctrl.Run(ds, 0); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for short dataset, got %v", err)
	}

	// Trial index out of range.
	ds = testDataset(t, design, []float64{0.2, 0.3, 0.4}, 5, 1)
	if _, err := ctrl.Run(ds, 5); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for trial index, got %v", err)
	}
	if _, err := ctrl.Run(ds, -1); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for negative trial index, got %v", err)
	}
}
