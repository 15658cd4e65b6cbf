package main

// replay one recorded input through the parse harness

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"fuzzshim/config"
	"fuzzshim/internal/harness"
	"fuzzshim/internal/replay"
	"fuzzshim/pkg/logger"
	"fuzzshim/pkg/telemetry"
)

type replayApp struct {
	driver     *replay.Driver
	shutdowner fx.Shutdowner
}

type replayParams struct {
	fx.In
	Driver     *replay.Driver
	Shutdowner fx.Shutdowner
}

func newReplayApp(p replayParams) *replayApp {
	return &replayApp{
		driver:     p.Driver,
		shutdowner: p.Shutdowner,
	}
}

func (a *replayApp) run(lc fx.Lifecycle, path string) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				code := a.driver.Replay(path)
				a.shutdowner.Shutdown(fx.ExitCode(code))
			}()
			return nil
		},
	})
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s <input_file>\n", os.Args[0])
		os.Exit(1)
	}
	path := flag.Arg(0)

	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			telemetry.NewTelemetry,
			logger.NewLogger,
			telemetry.NewTracerFactory,
			harness.NewHandler,
			func() harness.Parser { return &harness.YAMLTarget{} },
			replay.NewDriver,
			newReplayApp,
		),
		fx.Invoke(func(lc fx.Lifecycle, app *replayApp) {
			app.run(lc, path)
		}),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
	app.Run()
}
