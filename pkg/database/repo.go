package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fuzzshim/internal/types"
)

// AddCrashes inserts crash records. A nil db is a no-op.
func AddCrashes(ctx context.Context, db *gorm.DB, crashes []*Crash) error {
	if db == nil || len(crashes) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(crashes).Error
}

// AddSeed inserts a single seed record. A nil db is a no-op.
func AddSeed(ctx context.Context, db *gorm.DB, seed *SeedEntry) error {
	if db == nil || seed == nil {
		return nil
	}
	return db.WithContext(ctx).Create(seed).Error
}

func NewCrash(run *types.RunContext, inputPath, digest string) *Crash {
	return &Crash{
		RunID:     run.RunID,
		CreatedAt: time.Now(),
		Target:    run.Target,
		Engine:    run.Engine,
		InputPath: inputPath,
		Digest:    digest,
	}
}

func NewSeedEntry(run *types.RunContext, path string, metric Metric) *SeedEntry {
	return &SeedEntry{
		RunID:     run.RunID,
		CreatedAt: time.Now(),
		Target:    run.Target,
		Engine:    run.Engine,
		Path:      path,
		Metric:    metric,
	}
}
