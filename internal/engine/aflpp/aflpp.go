// Package aflpp drives external afl-fuzz processes against the target
// binary: one master plus secondaries per the configured core count,
// sharing a staged input corpus and a merged dictionary.
package aflpp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"fuzzshim/config"
	"fuzzshim/internal/corpus"
	"fuzzshim/internal/dict"
	"fuzzshim/internal/engine"
	"fuzzshim/internal/types"
	"fuzzshim/internal/utils"
	"fuzzshim/pkg/telemetry"
	"fuzzshim/pkg/watchdog"
)

type Engine struct {
	logger      *zap.Logger
	watchdogFac *watchdog.Factory
	intake      *corpus.Intake
	dictMerger  *dict.Merger
	appConfig   *config.AppConfig
	redisClient *redis.Client
}

type EngineParams struct {
	fx.In

	Logger      *zap.Logger
	Intake      *corpus.Intake
	DictMerger  *dict.Merger
	WatchdogFac *watchdog.Factory
	AppConfig   *config.AppConfig
	RedisClient *redis.Client `optional:"true"`
}

// NewEngine declines to construct when afl-fuzz is not installed; the
// registry skips nil engines.
func NewEngine(p EngineParams) *Engine {
	if _, err := exec.LookPath("afl-fuzz"); err != nil {
		p.Logger.Error("afl-fuzz not found", zap.Error(err))
		return nil
	}

	return &Engine{
		logger:      p.Logger,
		watchdogFac: p.WatchdogFac,
		intake:      p.Intake,
		dictMerger:  p.DictMerger,
		appConfig:   p.AppConfig,
		redisClient: p.RedisClient,
	}
}

func (e *Engine) SupportedEngines() []string {
	return []string{"afl", "aflpp"}
}

func (e *Engine) Run(ctx context.Context, run *types.RunContext, timeout time.Duration) (engine.Handler, error) {
	tracer := telemetry.FromContext(ctx)
	logger := e.logger.With(
		zap.String("run_id", run.RunID),
		zap.String("target", run.Target),
		zap.String("engine", run.Engine),
	)
	startTime := time.Now()

	// Fuzzing hammers the target binary; run a local copy to keep the
	// validated original out of the I/O path.
	tracer.AddEvent("engine.afl.prepare_target", telemetry.EventAttributes{})
	localProg, err := e.prepareLocalTarget(run)
	if err != nil {
		logger.Error("failed to prepare local target", zap.Error(err))
		return nil, err
	}

	inputDir, outputDir, err := e.prepareDirs(run)
	if err != nil {
		logger.Error("failed to prepare directories", zap.Error(err))
		return nil, err
	}

	tracer.AddEvent("engine.afl.prepare_seeds", telemetry.EventAttributes{})
	if _, err := e.intake.CollectToDir(ctx, run.SeedDir, inputDir); err != nil {
		logger.Error("failed to stage seeds", zap.Error(err))
	}

	tracer.AddEvent("engine.afl.prepare_dicts", telemetry.EventAttributes{})
	dictPath := e.mergeDicts(run, logger)

	aflWaitGroup := &sync.WaitGroup{}

	// Time we give afl-fuzz to wind down on SIGINT before the context
	// kills it outright.
	deadline := startTime.Add(timeout)
	remaining := time.Until(deadline)
	gracefulTimeout := time.Duration(float64(remaining) * 0.9)

	tracer.AddEvent("engine.afl.start", telemetry.EventAttributes{})

	masterInstance := &Instance{
		Name:      "master",
		Mode:      Master,
		InputDir:  inputDir,
		OutputDir: outputDir,
		DictPath:  dictPath,
		Timeout:   5000, // per-exec timeout in ms
		Target:    localProg,
		Env:       masterAFLEnv(),
		logger:    logger,
	}

	aflWaitGroup.Add(1)
	go func() {
		defer aflWaitGroup.Done()
		masterInstance.Fuzz(ctx, gracefulTimeout)
	}()

	for secondaryIdx := range e.appConfig.CoreCount - 1 {
		secondaryInstance := &Instance{
			Name:      fmt.Sprintf("secondary_%d", secondaryIdx),
			Mode:      Secondary,
			InputDir:  inputDir,
			OutputDir: outputDir,
			DictPath:  dictPath,
			Timeout:   5000,
			Target:    localProg,
			Env:       defaultAFLEnv(),
			logger:    logger,
		}

		aflWaitGroup.Add(1)
		go func() {
			defer aflWaitGroup.Done()
			secondaryInstance.Fuzz(ctx, gracefulTimeout)
		}()
	}

	crashFileNotifyChan := make(chan string, 1024)
	crashChan := make(chan types.CrashMessage, 1024)
	go e.crashProxy(ctx, run, crashFileNotifyChan, crashChan)

	queueFileNotifyChan := make(chan string, 1024)
	queueChan := make(chan types.SeedMessage, 1024)
	go e.seedProxy(run, queueFileNotifyChan, queueChan)

	handler := &Handler{
		crashChan:     crashChan,
		queueChan:     queueChan,
		crashWatchDog: e.watchdogFac.New(ctx, crashFileNotifyChan, filterCrashFiles),
		queueWatchDog: e.watchdogFac.New(ctx, queueFileNotifyChan, filterQueueFiles),
		outputDir:     outputDir,
		logger:        logger,
		instanceCount: e.appConfig.CoreCount,
		wg:            aflWaitGroup,
	}
	go handler.startCrashMonitor(ctx)
	go handler.startQueueMonitor(ctx)
	go e.publishStats(run, outputDir, aflWaitGroup, logger)

	return handler, nil
}

// filterCrashFiles drops files AFL places in the crash folder that are not
// crashes.
func filterCrashFiles(crashFileName string) bool {
	return path.Base(crashFileName) != "README.txt"
}

// filterQueueFiles drops queue entries imported from the original seeds.
func filterQueueFiles(seedFileName string) bool {
	return !strings.Contains(path.Base(seedFileName), "orig:")
}

// crashProxy forwards crash file notifications as crash messages. The
// first crash of a run emits a dedicated trace event.
func (e *Engine) crashProxy(ctx context.Context, run *types.RunContext, fileNotifyChan <-chan string, crashChan chan<- types.CrashMessage) {
	tracer := telemetry.FromContext(ctx)
	defer close(crashChan)

	everFound := false
	for crashFile := range fileNotifyChan {
		crashChan <- types.CrashMessage{
			CrashFile: crashFile,
			Run:       run,
		}
		if !everFound {
			tracer.AddEvent("first_crash_found",
				telemetry.NewEventAttributes(map[string]string{
					"crash_name": path.Base(crashFile),
				}))
			everFound = true
		}
	}
}

// seedProxy forwards queue file notifications as seed messages.
func (e *Engine) seedProxy(run *types.RunContext, fileNotifyChan <-chan string, seedChan chan<- types.SeedMessage) {
	defer close(seedChan)
	for seedFile := range fileNotifyChan {
		seedChan <- types.SeedMessage{
			SeedFile: seedFile,
			Run:      run,
		}
	}
}

func (e *Engine) prepareLocalTarget(run *types.RunContext) (string, error) {
	localPath := path.Join(e.appConfig.WorkDir, run.RunID, "bin", path.Base(run.ProgPath))
	if err := os.MkdirAll(path.Dir(localPath), 0755); err != nil {
		return "", err
	}
	if err := utils.CopyFile(run.ProgPath, localPath); err != nil {
		return "", err
	}
	if err := os.Chmod(localPath, 0755); err != nil {
		return "", err
	}
	return localPath, nil
}

func (e *Engine) prepareDirs(run *types.RunContext) (inputDir, outputDir string, err error) {
	inputDir = path.Join(e.appConfig.WorkDir, run.RunID, "input")
	outputDir = path.Join(e.appConfig.WorkDir, run.RunID, "output")
	for _, dir := range []string{inputDir, outputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", "", err
		}
	}
	return inputDir, outputDir, nil
}

// mergeDicts combines the launch dictionary with the campaign profile
// dictionaries. An empty result just means afl-fuzz runs without -x.
func (e *Engine) mergeDicts(run *types.RunContext, logger *zap.Logger) string {
	paths := append([]string{run.DictPath}, e.appConfig.Profile.Dictionaries...)
	dictPath, err := e.dictMerger.Merge(paths...)
	if err != nil {
		logger.Warn("no usable dictionary, fuzzing without one", zap.Error(err))
		return ""
	}
	return dictPath
}

// publishStats pushes the master's final fuzzer_stats to redis once all
// instances have exited, keyed by run.
func (e *Engine) publishStats(run *types.RunContext, outputDir string, wg *sync.WaitGroup, logger *zap.Logger) {
	if e.redisClient == nil {
		return
	}
	wg.Wait()

	statsPath := path.Join(outputDir, "master", "fuzzer_stats")
	data, err := os.ReadFile(statsPath)
	if err != nil {
		logger.Warn("no fuzzer stats to publish", zap.Error(err))
		return
	}
	stats, err := parseFuzzerStats(strings.NewReader(string(data)), logger)
	if err != nil {
		logger.Error("failed to parse fuzzer stats", zap.Error(err))
		return
	}

	fields := make(map[string]string, len(stats))
	for k, v := range stats {
		fields[k] = fmt.Sprint(v)
	}
	key := "fuzzshim:stats:" + run.RunID
	if err := e.redisClient.HSet(context.Background(), key, fields).Err(); err != nil {
		logger.Error("failed to publish fuzzer stats", zap.Error(err))
		return
	}
	logger.Info("published fuzzer stats", zap.String("key", key), zap.Int("fields", len(fields)))
}

var Module = fx.Options(
	fx.Provide(fx.Annotate(NewEngine, fx.As(new(engine.Engine)), fx.ResultTags(`group:"engines"`))),
)
