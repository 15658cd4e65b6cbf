// Package inproc drives the registered single-input target directly: it
// replays the staged corpus through the entry point and keeps watching the
// corpus directory for entries written by external collaborators. It does
// not mutate inputs; its job is to exercise the launcher-to-target contract
// end to end and to convert target panics into collected crashes.
package inproc

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"fuzzshim/config"
	"fuzzshim/internal/corpus"
	"fuzzshim/internal/engine"
	"fuzzshim/internal/entry"
	"fuzzshim/internal/types"
	"fuzzshim/pkg/telemetry"
	"fuzzshim/pkg/watchdog"
)

type Engine struct {
	logger      *zap.Logger
	intake      *corpus.Intake
	watchdogFac *watchdog.Factory
	workDir     string
}

type EngineParams struct {
	fx.In

	Logger      *zap.Logger
	Intake      *corpus.Intake
	WatchdogFac *watchdog.Factory
	AppConfig   *config.AppConfig
}

func NewEngine(p EngineParams) *Engine {
	if !entry.Registered() {
		// A binary without a wired target cannot replay anything; the
		// entry fallback will abort loudly on first call either way.
		p.Logger.Warn("no single-input target registered at construction time")
	}
	return &Engine{
		logger:      p.Logger,
		intake:      p.Intake,
		watchdogFac: p.WatchdogFac,
		workDir:     p.AppConfig.WorkDir,
	}
}

func (e *Engine) SupportedEngines() []string {
	return []string{"inproc", "replay"}
}

func (e *Engine) Run(ctx context.Context, run *types.RunContext, timeout time.Duration) (engine.Handler, error) {
	tracer := telemetry.FromContext(ctx)
	tracer.AddEvent("engine.inproc.start", telemetry.EventAttributes{})

	h := &handler{
		crashChan: make(chan types.CrashMessage, 1024),
		seedChan:  make(chan types.SeedMessage, 1024),
		done:      make(chan struct{}),
	}
	go e.campaign(ctx, run, h)
	return h, nil
}

type handler struct {
	crashChan chan types.CrashMessage
	seedChan  chan types.SeedMessage
	done      chan struct{}
}

func (h *handler) ConsumeCrashes() (<-chan types.CrashMessage, error) {
	return h.crashChan, nil
}

func (h *handler) ConsumeSeeds() (<-chan types.SeedMessage, error) {
	return h.seedChan, nil
}

func (h *handler) BlockUntilFinished() {
	<-h.done
}

func (e *Engine) campaign(ctx context.Context, run *types.RunContext, h *handler) {
	defer close(h.done)
	defer close(h.crashChan)
	// Replaying discovers no new seeds; the channel just closes with the run.
	defer close(h.seedChan)

	logger := e.logger.With(
		zap.String("run_id", run.RunID),
		zap.String("target", run.Target),
	)

	// Watch before the first pass so entries written during it are not missed.
	notify := make(chan string, 1024)
	wd := e.watchdogFac.New(ctx, notify, nil)

	if _, err := e.intake.CollectToDir(ctx, run.SeedDir, run.CorpusDir); err != nil {
		logger.Error("failed to stage seeds", zap.Error(err))
	}
	wd.AddDir(run.CorpusDir)

	executed := make(map[string]struct{})

	entries, err := os.ReadDir(run.CorpusDir)
	if err != nil {
		logger.Error("failed to read corpus dir", zap.Error(err))
		return
	}
	for _, ent := range entries {
		if ctx.Err() != nil {
			return
		}
		if ent.IsDir() {
			continue
		}
		path := filepath.Join(run.CorpusDir, ent.Name())
		executed[path] = struct{}{}
		e.execute(run, path, h, logger)
	}
	logger.Info("corpus pass finished", zap.Int("inputs", len(executed)))

	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-notify:
			if !ok {
				return
			}
			if _, seen := executed[path]; seen {
				continue
			}
			executed[path] = struct{}{}
			e.execute(run, path, h, logger)
		}
	}
}

// execute runs one input through the registered target. A panic inside the
// target is the in-process equivalent of a crash: the input is preserved
// and reported, and the campaign keeps going.
func (e *Engine) execute(run *types.RunContext, path string, h *handler, logger *zap.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read corpus entry", zap.String("path", path), zap.Error(err))
		return
	}
	if len(data) == 0 {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("target crashed",
				zap.String("input", path),
				zap.Any("panic", r))
			crashPath, err := e.saveCrashInput(run, data)
			if err != nil {
				logger.Error("failed to preserve crash input", zap.Error(err))
				return
			}
			h.crashChan <- types.CrashMessage{CrashFile: crashPath, Run: run}
		}
	}()
	entry.TestOneInput(data)
}

func (e *Engine) saveCrashInput(run *types.RunContext, data []byte) (string, error) {
	dir := filepath.Join(e.workDir, run.RunID, "crashes")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create crash dir: %w", err)
	}
	digest := md5.Sum(data)
	path := filepath.Join(dir, hex.EncodeToString(digest[:]))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write crash input: %w", err)
	}
	return path, nil
}

var Module = fx.Options(
	fx.Provide(fx.Annotate(NewEngine, fx.As(new(engine.Engine)), fx.ResultTags(`group:"engines"`))),
)
