package crash

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fuzzshim/config"
	"fuzzshim/internal/types"
	"fuzzshim/pkg/database"
	"fuzzshim/pkg/telemetry"
)

// Manager fans in crash messages from running engines, stores the inputs
// under the crash folder named by content digest, and records them in the
// database when one is configured.
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger

	crashFolder string
	crashChan   chan types.CrashMessage
	wg          sync.WaitGroup
	done        chan struct{}
}

type ManagerParams struct {
	fx.In

	DB     *gorm.DB `optional:"true"`
	Logger *zap.Logger
	Config *config.AppConfig
	Lc     fx.Lifecycle
}

func NewManager(p ManagerParams) *Manager {
	if err := os.MkdirAll(p.Config.CrashDir, 0755); err != nil {
		// without somewhere to keep crashes there is no point continuing
		p.Logger.Fatal("failed to create crash folder", zap.Error(err))
		return nil
	}

	c := &Manager{
		db:          p.DB,
		logger:      p.Logger,
		crashFolder: p.Config.CrashDir,
		crashChan:   make(chan types.CrashMessage, 1024),
		done:        make(chan struct{}),
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.logger.Debug("starting crash manager")
			go c.start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			c.logger.Info("stopping crash manager")
			c.wg.Wait() // wait until all registered channels are closed
			close(c.crashChan)
			<-c.done // wait until all crashes are processed
			return nil
		},
	})

	return c
}

// RegisterCrashChan forwards crashes from an engine-owned channel into the
// manager until the channel closes.
func (c *Manager) RegisterCrashChan(ctx context.Context, rCh <-chan types.CrashMessage) {
	c.wg.Add(1)
	tracer := telemetry.FromContext(ctx)
	crashTracer := tracer.Spawn("crash collector")
	crashTracer.Start()
	go func() {
		defer c.wg.Done()
		defer crashTracer.End()

		count := 0
		for crash := range rCh {
			count++
			c.logger.Debug("new crash message received", zap.String("file", crash.CrashFile))
			c.crashChan <- crash
		}
		crashTracer.WithAttributes(telemetry.SpanAttributes{"crashes.collected": count})
	}()
	c.logger.Debug("new crash channel registered")
}

func (c *Manager) start() {
	defer close(c.done)
	for crash := range c.crashChan {
		if err := c.processCrashFile(crash); err != nil {
			c.logger.Error("failed to process crash file", zap.Error(err))
			continue
		}
	}
}

// processCrashFile stores one crash input and records it.
func (c *Manager) processCrashFile(msg types.CrashMessage) error {
	crashStore := filepath.Join(c.crashFolder, msg.Run.Target, msg.Run.Engine)
	if err := os.MkdirAll(crashStore, 0755); err != nil {
		return fmt.Errorf("failed to create crash store directory: %w", err)
	}

	crashData, err := os.ReadFile(msg.CrashFile)
	if err != nil {
		return fmt.Errorf("failed to read crash file: %w", err)
	}
	digest := md5.Sum(crashData)
	digestHex := hex.EncodeToString(digest[:])
	crashPath := filepath.Join(crashStore, digestHex)
	if err := os.WriteFile(crashPath, crashData, 0644); err != nil {
		return fmt.Errorf("failed to write crash file: %w", err)
	}

	record := database.NewCrash(msg.Run, crashPath, digestHex)
	if err := database.AddCrashes(context.Background(), c.db, []*database.Crash{record}); err != nil {
		return fmt.Errorf("failed to record crash: %w", err)
	}

	c.logger.Info("crash stored",
		zap.String("run_id", msg.Run.RunID),
		zap.String("digest", digestHex),
		zap.String("path", crashPath))
	return nil
}
