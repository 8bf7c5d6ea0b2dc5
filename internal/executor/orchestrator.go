package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/pmallia/mamsim/internal/config"
	"github.com/pmallia/mamsim/internal/models"
	"github.com/pmallia/mamsim/internal/outcomes"
)

// Orchestrator coordinates a full scenario run: dataset generation, the
// concurrent simulation pass, and one summary per configured threshold.
type Orchestrator struct {
	scenario models.Scenario
	design   models.DesignConfig
	arms     []models.ArmConfig
}

// NewOrchestrator creates an orchestrator after cross-validating the
// scenario against the design.
func NewOrchestrator(scenario models.Scenario, design models.DesignConfig) (*Orchestrator, error) {
	if err := config.ValidateDesign(design); err != nil {
		return nil, err
	}
	arms, err := design.ArmPlan(scenario.Rates)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		scenario: scenario,
		design:   design,
		arms:     arms,
	}, nil
}

// Run simulates every replicate trial once, under the smallest configured
// threshold, and derives each remaining threshold's summary by reevaluating
// the stored trajectories over the same dataset. One dataset backs every
// threshold so that comparisons are paired on identical outcome randomness.
func (o *Orchestrator) Run(ctx context.Context) (*models.RunResult, error) {
	startTime := time.Now()

	runDir, err := o.createRunDir(startTime)
	if err != nil {
		return nil, err
	}

	n := o.scenario.NReplicates
	slog.Info("generating outcome dataset",
		"replicates", n,
		"arms", len(o.arms),
		"cap", o.design.Stages.Cap,
		"seed", o.scenario.Seed)

	ds, err := outcomes.Generate(o.arms, o.design.Stages.Cap, n, o.scenario.Seed)
	if err != nil {
		return nil, fmt.Errorf("generating outcomes: %w", err)
	}

	base := slices.Min(o.scenario.Gammas)

	nWorkers := o.scenario.Workers
	if nWorkers <= 0 {
		nWorkers = runtime.NumCPU()
	}
	if nWorkers > n {
		nWorkers = n
	}

	slog.Info("simulating trials", "gamma", base, "workers", nWorkers, "dropping", o.design.Arms.AllowDropping)
	trajs, outs, skipped := o.runConcurrent(ctx, ds, base, nWorkers)

	result := &models.RunResult{
		DatasetID:     ds.ID(),
		Replicates:    n,
		SkippedTrials: skipped,
		Cancelled:     skipped > 0,
		StartedAt:     startTime,
	}
	if o.scenario.Name != nil {
		result.ScenarioName = *o.scenario.Name
	}

	for _, gamma := range o.scenario.Gammas {
		gouts := outs
		if gamma != base {
			gouts, err = o.reevaluateOutcomes(ctx, trajs, outs, ds, gamma, nWorkers)
			if err != nil {
				return nil, fmt.Errorf("reevaluating at gamma %v: %w", gamma, err)
			}
		}

		summary, err := Aggregate(o.design, gamma, gouts, o.scenario.Digits)
		if err != nil {
			return nil, fmt.Errorf("aggregating at gamma %v: %w", gamma, err)
		}
		result.Summaries = append(result.Summaries, summary)

		slog.Info("threshold evaluated",
			"gamma", gamma,
			"mean_patients", summary.MeanPatients,
			"trials", summary.Trials,
			"failed", summary.FailedTrials)
	}

	result.EndedAt = time.Now()
	result.TotalDurationSec = result.EndedAt.Sub(result.StartedAt).Seconds()

	if runDir != "" {
		resultJSON, _ := json.MarshalIndent(result, "", "  ")
		os.WriteFile(filepath.Join(runDir, "result.json"), resultJSON, 0644)
	}

	return result, nil
}

// createRunDir prepares the run's output directory and saves the resolved
// configuration, refusing to overwrite an earlier run's results. Returns ""
// when the scenario has no results directory configured.
func (o *Orchestrator) createRunDir(startTime time.Time) (string, error) {
	if o.scenario.ResultsDir == "" {
		return "", nil
	}

	runName := startTime.Format("2006-01-02__15-04-05")
	if o.scenario.Name != nil {
		runName = *o.scenario.Name
	}
	runDir := filepath.Join(o.scenario.ResultsDir, runName)

	if _, err := os.Stat(runDir); err == nil {
		return "", fmt.Errorf("run directory already exists: %s (will not overwrite existing results)", runDir)
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}

	cfg := struct {
		Scenario models.Scenario     `json:"scenario"`
		Design   models.DesignConfig `json:"design"`
	}{o.scenario, o.design}
	cfgJSON, _ := json.MarshalIndent(cfg, "", "  ")
	os.WriteFile(filepath.Join(runDir, "config.json"), cfgJSON, 0644)

	return runDir, nil
}

// runConcurrent fans trial indices out across a bounded worker pool using a
// fan-out/fan-in pattern. Each worker owns its trial's state exclusively
// and the dataset is shared read-only, so no locking is required; trial
// identity is preserved end-to-end. Returns trajectories indexed by trial,
// the terminal outcomes collected, and the count of trials skipped due to
// context cancellation.
func (o *Orchestrator) runConcurrent(ctx context.Context, ds *outcomes.Dataset, gamma float64, nWorkers int) ([]*models.Trajectory, []models.TrialOutcome, int) {
	n := ds.Replicates()
	trialChan := make(chan int) // unbuffered
	resultChan := make(chan models.TrialOutcome, n)

	// Writes land at disjoint trial indices, one writer per index.
	trajs := make([]*models.Trajectory, n)

	var wg sync.WaitGroup

	// Start workers
	for range nWorkers {
		wg.Go(func() {
			ctrl := NewController(o.design, gamma)
			for trial := range trialChan {
				out, traj := o.runTrial(ctrl, ds, trial)
				trajs[trial] = traj
				resultChan <- out
			}
		})
	}

	// Feeder goroutine: sends trial indices to workers, respects context
	// cancellation
	go func() {
		defer close(trialChan)
		for trial := range n {
			select {
			case <-ctx.Done():
				return
			case trialChan <- trial:
			}
		}
	}()

	// Wait for workers to finish, then close result channel
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Collect results
	var outs []models.TrialOutcome
	for out := range resultChan {
		outs = append(outs, out)
	}

	skipped := max(n-len(outs), 0)

	return trajs, outs, skipped
}

// runTrial executes one replicate, converting a panic into a per-trial
// error so a single bad trial cannot take down the pool or block
// aggregation of the rest.
func (o *Orchestrator) runTrial(ctrl *Controller, ds *outcomes.Dataset, trial int) (out models.TrialOutcome, traj *models.Trajectory) {
	out = models.TrialOutcome{Trial: trial}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("trial panicked", "trial", trial, "panic", r)
			trialErrorsTotal.Inc()
			traj = nil
			out.Error = &models.TrialError{
				Type:    models.ErrInternalError,
				Message: fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	traj, err := ctrl.Run(ds, trial)
	if err != nil {
		slog.Error("trial failed", "trial", trial, "error", err)
		trialErrorsTotal.Inc()
		out.Error = &models.TrialError{
			Type:    models.ErrInternalError,
			Message: err.Error(),
		}
		return out, nil
	}

	trialsTotal.Inc()
	trialStages.Observe(float64(len(traj.Stages)))
	trialPatients.Observe(float64(traj.Patients))

	out.Decision = traj.Final
	out.Patients = traj.Patients
	return out, traj
}

// reevaluateOutcomes derives one threshold's terminal outcomes from the
// stored trajectories. Trials that failed during simulation keep their
// error outcome.
func (o *Orchestrator) reevaluateOutcomes(ctx context.Context, trajs []*models.Trajectory, outs []models.TrialOutcome, ds *outcomes.Dataset, gamma float64, nWorkers int) ([]models.TrialOutcome, error) {
	revs, err := ReevaluateAll(ctx, o.design, trajs, ds, gamma, nWorkers)
	if err != nil {
		return nil, err
	}

	gouts := make([]models.TrialOutcome, 0, len(outs))
	for _, out := range outs {
		if out.Error == nil {
			traj := revs[out.Trial]
			out.Decision = traj.Final
			out.Patients = traj.Patients
		}
		gouts = append(gouts, out)
	}
	return gouts, nil
}
