package corpus

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"fuzzshim/pkg/telemetry"
)

// Intake stages seed files into an engine input directory.
type Intake struct {
	logger *zap.Logger
}

func NewIntake(logger *zap.Logger) *Intake {
	return &Intake{logger: logger}
}

// CollectToDir copies the regular files under seedDir into dir, flat,
// named by content digest so duplicate seeds collapse. Nested directories
// and empty files are skipped; engines choke on both. Returns the number
// of staged seeds.
func (s *Intake) CollectToDir(ctx context.Context, seedDir, dir string) (int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, fmt.Errorf("staging dir not accessible: %w", err)
	}

	tracer := telemetry.FromContext(ctx)
	corpusTracer := tracer.Spawn("collecting seeds")
	corpusTracer.Start()
	defer corpusTracer.End()

	entries, err := os.ReadDir(seedDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed dir: %w", err)
	}

	staged := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return staged, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(seedDir, entry.Name()))
		if err != nil {
			s.logger.Warn("failed to read seed file",
				zap.String("seed", entry.Name()), zap.Error(err))
			continue
		}
		if len(data) == 0 {
			continue
		}

		digest := md5.Sum(data)
		dst := filepath.Join(dir, hex.EncodeToString(digest[:]))
		if _, err := os.Stat(dst); err == nil {
			continue // duplicate content
		}
		if err := os.WriteFile(dst, data, 0644); err != nil {
			return staged, fmt.Errorf("failed to stage seed: %w", err)
		}
		staged++
	}

	corpusTracer.WithAttributes(telemetry.SpanAttributes{"corpus.staged": staged})
	s.logger.Info("staged seed corpus",
		zap.String("seed_dir", seedDir),
		zap.String("staging_dir", dir),
		zap.Int("staged", staged))
	return staged, nil
}
