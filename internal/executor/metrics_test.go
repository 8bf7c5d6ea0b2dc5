package executor_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/pmallia/mamsim/internal/executor"
)

func TestServeMetrics(t *testing.T) {
	ms, err := executor.ServeMetrics("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ServeMetrics failed: %v", err)
	}
	defer ms.Close()

	// Run a small scenario so the trial metrics have observations.
	design := orchestratorDesign()
	scenario := testScenario("metrics", []float64{0.2, 0.2, 0.2}, []float64{0.01})
	o, err := executor.NewOrchestrator(scenario, design)
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	resp, err := http.Get("http://" + ms.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("scraping metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading metrics body: %v", err)
	}

	for _, metric := range []string{
		"mamsim_trials_total",
		"mamsim_trial_stages",
		"mamsim_trial_patients",
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("exposition is missing %s", metric)
		}
	}
}

func TestServeMetricsBadAddress(t *testing.T) {
	if _, err := executor.ServeMetrics("127.0.0.1:-1"); err == nil {
		t.Error("expected error for invalid listen address")
	}
}
