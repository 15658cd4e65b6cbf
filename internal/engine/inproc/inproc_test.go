package inproc

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"fuzzshim/internal/corpus"
	"fuzzshim/internal/entry"
	"fuzzshim/internal/types"
	"fuzzshim/pkg/watchdog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger := zap.NewNop()
	return &Engine{
		logger:      logger,
		intake:      corpus.NewIntake(logger),
		watchdogFac: watchdog.NewFactory(logger),
		workDir:     t.TempDir(),
	}
}

func newTestRun(t *testing.T) *types.RunContext {
	t.Helper()
	return &types.RunContext{
		RunID:     "run-inproc-test",
		Engine:    "inproc",
		Target:    "yaml",
		CorpusDir: t.TempDir(),
		SeedDir:   t.TempDir(),
	}
}

func TestSupportedEngines(t *testing.T) {
	eng := newTestEngine(t)
	got := eng.SupportedEngines()
	if len(got) != 2 || got[0] != "inproc" || got[1] != "replay" {
		t.Fatalf("SupportedEngines() = %v", got)
	}
}

func TestRunExecutesStagedSeeds(t *testing.T) {
	eng := newTestEngine(t)
	run := newTestRun(t)

	for i, content := range []string{"alpha", "bravo", "charlie"} {
		path := filepath.Join(run.SeedDir, string(rune('a'+i)))
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	// Empty seeds never reach the target.
	if err := os.WriteFile(filepath.Join(run.SeedDir, "empty"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int64
	entry.SetTestOneInput(func(data []byte) int {
		calls.Add(1)
		return 0
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	h, err := eng.Run(ctx, run, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	h.BlockUntilFinished()

	if got := calls.Load(); got != 3 {
		t.Fatalf("target invoked %d times, want 3", got)
	}
}

func TestRunReportsCrashes(t *testing.T) {
	eng := newTestEngine(t)
	run := newTestRun(t)

	crashInput := []byte("boom")
	if err := os.WriteFile(filepath.Join(run.SeedDir, "bad"), crashInput, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(run.SeedDir, "good"), []byte("fine"), 0644); err != nil {
		t.Fatal(err)
	}

	entry.SetTestOneInput(func(data []byte) int {
		if bytes.Equal(data, crashInput) {
			panic("induced crash")
		}
		return 0
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	h, err := eng.Run(ctx, run, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	crashes, err := h.ConsumeCrashes()
	if err != nil {
		t.Fatal(err)
	}

	var collected []types.CrashMessage
	for msg := range crashes {
		collected = append(collected, msg)
	}
	h.BlockUntilFinished()

	if len(collected) != 1 {
		t.Fatalf("collected %d crashes, want 1", len(collected))
	}
	data, err := os.ReadFile(collected[0].CrashFile)
	if err != nil {
		t.Fatalf("crash input not preserved: %v", err)
	}
	if !bytes.Equal(data, crashInput) {
		t.Fatalf("crash input = %q, want %q", data, crashInput)
	}
	if collected[0].Run.RunID != run.RunID {
		t.Fatalf("crash carries run %q, want %q", collected[0].Run.RunID, run.RunID)
	}
}

func TestRunPicksUpNewCorpusEntries(t *testing.T) {
	eng := newTestEngine(t)
	run := newTestRun(t)

	var calls atomic.Int64
	entry.SetTestOneInput(func(data []byte) int {
		calls.Add(1)
		return 0
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	h, err := eng.Run(ctx, run, time.Second)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// Give the watchdog a moment to arm, then drop in a late entry.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(run.CorpusDir, "late"), []byte("late input"), 0644); err != nil {
		t.Fatal(err)
	}

	h.BlockUntilFinished()

	if got := calls.Load(); got != 1 {
		t.Fatalf("target invoked %d times, want 1", got)
	}
}

func TestSeedChannelClosesWithRun(t *testing.T) {
	eng := newTestEngine(t)
	run := newTestRun(t)

	entry.SetTestOneInput(func(data []byte) int { return 0 })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	h, err := eng.Run(ctx, run, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	seeds, err := h.ConsumeSeeds()
	if err != nil {
		t.Fatal(err)
	}
	for range seeds {
		t.Fatal("replay run produced a seed message")
	}
	h.BlockUntilFinished()
}
