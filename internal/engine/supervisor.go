package engine

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"fuzzshim/config"
	"fuzzshim/internal/crash"
	"fuzzshim/internal/launcher"
	"fuzzshim/internal/seeds"
	"fuzzshim/internal/types"
	"fuzzshim/pkg/telemetry"
)

// Supervisor owns the engine registry and is the engine entry point the
// launcher hands control to.
type Supervisor struct {
	logger        *zap.Logger
	crashManager  *crash.Manager
	seedManager   *seeds.Manager
	engineMap     map[string]Engine
	tracerFactory *telemetry.TracerFactory
	appConfig     *config.AppConfig
}

type SupervisorParams struct {
	fx.In

	Logger        *zap.Logger
	CrashManager  *crash.Manager
	SeedManager   *seeds.Manager
	Engines       []Engine `group:"engines"`
	TracerFactory *telemetry.TracerFactory
	AppConfig     *config.AppConfig
}

func NewSupervisor(params SupervisorParams) *Supervisor {
	engineMap := make(map[string]Engine)
	for _, eng := range params.Engines {
		v := reflect.ValueOf(eng)
		if v.Kind() == reflect.Ptr && v.IsNil() {
			continue // skip engines that declined to construct
		}
		for _, name := range eng.SupportedEngines() {
			engineMap[name] = eng
			params.Logger.Debug("engine registered", zap.String("engine", name))
		}
	}

	return &Supervisor{
		logger:        params.Logger,
		crashManager:  params.CrashManager,
		seedManager:   params.SeedManager,
		engineMap:     engineMap,
		tracerFactory: params.TracerFactory,
		appConfig:     params.AppConfig,
	}
}

// Launch is the engine hand-off entry point. It builds the run context for
// the validated request and drives the configured engine to completion.
func (s *Supervisor) Launch(req *launcher.LaunchRequest) {
	run := &types.RunContext{
		RunID:     uuid.New().String(),
		Engine:    s.appConfig.FuzzEngine,
		Target:    filepath.Base(req.Prog),
		ProgPath:  req.Prog,
		CorpusDir: req.CorpusDir,
		SeedDir:   req.SeedDir,
		DictPath:  req.DictPath,
	}

	if err := s.RunCampaign(context.Background(), run, s.appConfig.CampaignTimeout); err != nil {
		s.logger.Error("campaign failed", zap.String("run_id", run.RunID), zap.Error(err))
	}
}

// RunCampaign runs one engine campaign with the given timeout and routes
// its crashes and seeds to the managers.
func (s *Supervisor) RunCampaign(ctx context.Context, run *types.RunContext, timeout time.Duration) error {
	if run == nil {
		return errors.New("run context is nil")
	}

	s.logger.Info("starting campaign",
		zap.String("run_id", run.RunID),
		zap.String("target", run.Target),
		zap.String("engine", run.Engine),
		zap.String("corpus_dir", run.CorpusDir),
		zap.String("seed_dir", run.SeedDir),
	)

	tracer := s.tracerFactory.NewTracer(ctx, "fuzzing campaign "+run.RunID).
		WithAttributes(telemetry.SpanAttributes{
			"run.id":     run.RunID,
			"run.target": run.Target,
			"run.engine": run.Engine,
		})
	tracer.Start()
	defer tracer.End()

	campaignCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	campaignCtx = context.WithValue(campaignCtx, telemetry.TracerKey{}, tracer)

	eng, ok := s.engineMap[run.Engine]
	if !ok {
		s.logger.Error("engine not found", zap.String("engine", run.Engine))
		return errors.New("engine not found: " + run.Engine)
	}

	handler, err := eng.Run(campaignCtx, run, timeout)
	if err != nil {
		return err
	}

	crashChan, err := handler.ConsumeCrashes()
	if err != nil {
		return err
	}
	s.crashManager.RegisterCrashChan(campaignCtx, crashChan)

	seedChan, err := handler.ConsumeSeeds()
	if err != nil {
		return err
	}
	s.seedManager.RegisterSeedChan(seedChan)

	handler.BlockUntilFinished()
	s.logger.Info("campaign finished", zap.String("run_id", run.RunID))
	return nil
}

// Lookup resolves an engine by name.
func (s *Supervisor) Lookup(name string) (Engine, bool) {
	eng, ok := s.engineMap[name]
	return eng, ok
}
