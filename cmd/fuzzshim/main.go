package main

import (
	"fuzzshim/config"
	"fuzzshim/internal/corpus"
	"fuzzshim/internal/crash"
	"fuzzshim/internal/dict"
	"fuzzshim/internal/engine"
	"fuzzshim/internal/engine/aflpp"
	"fuzzshim/internal/engine/inproc"
	"fuzzshim/internal/entry"
	"fuzzshim/internal/harness"
	"fuzzshim/internal/launcher"
	"fuzzshim/internal/seeds"
	"fuzzshim/pkg/database"
	"fuzzshim/pkg/logger"
	"fuzzshim/pkg/mq"
	"fuzzshim/pkg/telemetry"
	"fuzzshim/pkg/watchdog"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// registerEntryPoints wires the engine hand-off and the single-input
// target into the overridable entry registry before the shim runs.
func registerEntryPoints(sup *engine.Supervisor, handler *harness.Handler) {
	entry.SetEngineMain(sup.Launch)
	entry.SetTestOneInput(handler.TestOneInput)
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,          // inject config
			database.NewDBConnection,   // inject db connection
			database.NewRedisClient,    // inject redis client
			logger.NewLogger,           // inject logger
			mq.NewRabbitMQ,             // inject rabbitmq service
			telemetry.NewTelemetry,     // inject telemetry
			telemetry.NewTracerFactory, // inject telemetry tracer factory
			corpus.NewIntake,           // inject seed intake
			dict.NewMerger,             // inject dictionary merger
			crash.NewManager,           // inject crash manager
			seeds.NewManager,           // inject seed manager
			watchdog.NewFactory,        // inject watchdog factory
			engine.NewSupervisor,       // inject engine supervisor
			harness.NewHandler,         // inject parse harness
			func() harness.Parser { return &harness.YAMLTarget{} },
			func() launcher.EngineMain { return entry.EngineMain },
		),
		inproc.Module, // inject in-process engine
		aflpp.Module,  // inject AFL++ engine
		fx.Invoke(
			registerEntryPoints,
			launcher.StartShim,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			zlogger := fxevent.ZapLogger{Logger: log}
			zlogger.UseLogLevel(zap.DebugLevel)
			return &zlogger
		}),
	)
	app.Run()
}
