package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pmallia/mamsim/internal/config"
	"github.com/pmallia/mamsim/internal/executor"
	"github.com/pmallia/mamsim/internal/models"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: mamsim <scenario.yaml>")
		os.Exit(1)
	}

	scenarioPath := os.Args[1]

	// Setup context with manual signal handling
	ctx, cancel := context.WithCancel(context.Background())

	// Listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()

	go func() {
		sig := <-sigChan
		slog.Info("interrupt received, shutting down gracefully...", "signal", sig)
		cancel()
	}()

	result, err := run(ctx, scenarioPath)
	if err != nil {
		slog.Error("scenario failed", "error", err)
		os.Exit(1)
	}

	printResult(result)

	if result.Cancelled {
		os.Exit(1)
	}
}

func run(ctx context.Context, scenarioPath string) (*models.RunResult, error) {
	scenario, err := config.LoadScenario(scenarioPath)
	if err != nil {
		return nil, fmt.Errorf("loading scenario: %w", err)
	}

	designPath := scenario.DesignPath
	if !filepath.IsAbs(designPath) {
		designPath = filepath.Join(filepath.Dir(scenarioPath), designPath)
	}

	if scenario.MetricsListen != "" {
		ms, err := executor.ServeMetrics(scenario.MetricsListen)
		if err != nil {
			return nil, fmt.Errorf("starting metrics server: %w", err)
		}
		defer ms.Close()
		slog.Info("serving metrics", "addr", ms.Addr())
	}

	design, err := config.LoadDesign(designPath)
	if err != nil {
		return nil, fmt.Errorf("loading design: %w", err)
	}

	orchestrator, err := executor.NewOrchestrator(scenario, design)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	return orchestrator.Run(ctx)
}

func printResult(result *models.RunResult) {
	fmt.Printf("\nScenario: %s\n", result.ScenarioName)
	fmt.Printf("Dataset: %s\n", result.DatasetID)
	fmt.Printf("Replicates: %d\n", result.Replicates)
	if result.SkippedTrials > 0 {
		fmt.Printf("Skipped: %d\n", result.SkippedTrials)
	}
	fmt.Printf("Duration: %.2fs\n", result.TotalDurationSec)

	for _, s := range result.Summaries {
		fmt.Printf("\ngamma=%g  mean n=%.1f  trials=%d", s.Gamma, s.MeanPatients, s.Trials)
		if s.FailedTrials > 0 {
			fmt.Printf("  failed=%d", s.FailedTrials)
		}
		fmt.Println()
		for _, d := range s.Decisions {
			fmt.Printf("  %-24s %g\n", d.Label, d.Probability)
		}
	}
}
