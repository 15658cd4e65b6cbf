package logger

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fuzzshim/config"
	"fuzzshim/pkg/telemetry"
)

type LoggerParams struct {
	fx.In
	Lc        fx.Lifecycle
	AppConfig *config.AppConfig
	Telemetry telemetry.Telemetry `optional:"true"`
}

func NewLogger(p LoggerParams) *zap.Logger {
	loggerCtx, cancel := context.WithCancel(context.Background())
	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})

	level := zapcore.InfoLevel
	switch strings.ToLower(p.AppConfig.LogLevel) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var cfg zap.Config
	if level > zapcore.InfoLevel {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	if p.Telemetry == nil || p.Telemetry.GetLogger() == nil {
		lg, err := cfg.Build()
		if err != nil {
			// log failed to build, return a default one
			return zap.NewExample()
		}
		return lg
	}

	lg, err := cfg.Build(
		zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return &otelCore{
				Core:   core,
				sink:   p.Telemetry.GetLogger(),
				ctx:    loggerCtx,
				prefix: p.AppConfig.ServiceName,
			}
		}),
		zap.AddCaller(),
	)
	if err != nil {
		lg, err := cfg.Build()
		if err != nil {
			return zap.NewExample()
		}
		return lg
	}
	lg.Info("logger with telemetry export enabled")
	return lg
}

// otelCore forwards every record accepted by the inner core into the
// OpenTelemetry log pipeline as well.
type otelCore struct {
	zapcore.Core
	sink   log.Logger
	ctx    context.Context
	prefix string
}

func (c *otelCore) With(fields []zapcore.Field) zapcore.Core {
	return &otelCore{
		Core:   c.Core.With(fields),
		sink:   c.sink,
		ctx:    c.ctx,
		prefix: c.prefix,
	}
}

// Check registers this core (not the inner one) on the checked entry so
// Write below sees every record.
func (c *otelCore) Check(ent zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return checked.AddCore(ent, c)
	}
	return checked
}

func (c *otelCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if err := c.Core.Write(ent, fields); err != nil {
		return err
	}

	rec := log.Record{}
	rec.SetTimestamp(ent.Time)
	rec.SetBody(log.StringValue(ent.Message))
	rec.SetSeverityText(ent.Level.String())
	rec.AddAttributes(log.String("service.name", c.prefix))
	for _, f := range fields {
		rec.AddAttributes(log.String(f.Key, fieldString(f)))
	}

	c.sink.Emit(c.ctx, rec)
	return nil
}

func fieldString(f zapcore.Field) string {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.BoolType:
		if f.Integer != 0 {
			return "true"
		}
		return "false"
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", f.Integer)
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			return err.Error()
		}
		return fmt.Sprint(f.Interface)
	default:
		return fmt.Sprint(f.Interface)
	}
}
