package aflpp

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"fuzzshim/internal/types"
	"fuzzshim/pkg/watchdog"
)

type Handler struct {
	crashChan     chan types.CrashMessage
	queueChan     chan types.SeedMessage
	crashWatchDog *watchdog.WatchDog
	queueWatchDog *watchdog.WatchDog

	outputDir string

	logger        *zap.Logger
	instanceCount int

	wg *sync.WaitGroup
}

func (h *Handler) ConsumeCrashes() (<-chan types.CrashMessage, error) {
	return h.crashChan, nil
}

func (h *Handler) ConsumeSeeds() (<-chan types.SeedMessage, error) {
	return h.queueChan, nil
}

func (h *Handler) BlockUntilFinished() {
	h.wg.Wait()
}

// startCrashMonitor scans for the per-instance "crashes" directories, which
// afl-fuzz creates some time after startup, and adds each to the crash
// watchdog once. Stops when every expected directory is watched or the
// campaign context ends.
func (h *Handler) startCrashMonitor(fuzzCtx context.Context) {
	crashGlob := path.Join(h.outputDir, "*", "crashes")
	watched := make(map[string]struct{})

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-fuzzCtx.Done():
			return
		case <-ticker.C:
			matches, err := filepath.Glob(crashGlob)
			if err != nil {
				h.logger.Error("failed to glob crash folder", zap.Error(err))
			}
			for _, crashDir := range matches {
				if _, err := os.Stat(crashDir); err == nil {
					if _, ok := watched[crashDir]; ok {
						continue
					}
					h.crashWatchDog.AddDir(crashDir)
					h.logger.Debug("watching crash folder", zap.String("crash_dir", crashDir))
					watched[crashDir] = struct{}{}
				}
			}
			if len(watched) == h.instanceCount {
				h.logger.Debug("all crash directories watched, stopping crash monitor")
				return
			}
		}
	}
}

// startQueueMonitor waits for the master queue directory to appear and adds
// it to the queue watchdog. The master's queue is enough: AFL_FINAL_SYNC
// folds the secondaries' findings into it.
func (h *Handler) startQueueMonitor(fuzzCtx context.Context) {
	queueFolder := path.Join(h.outputDir, "master", "queue")

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-fuzzCtx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(queueFolder); err == nil {
				h.queueWatchDog.AddDir(queueFolder)
				h.logger.Debug("watching queue folder", zap.String("queue_dir", queueFolder))
				return
			}
		}
	}
}
