package database

import (
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"fuzzshim/config"
)

// NewDBConnection opens the crash/seed record store. Persistence is
// optional: with no DATABASE_URL configured it returns nil and callers
// keep results on the local filesystem only.
func NewDBConnection(appConfig *config.AppConfig, logger *zap.Logger) *gorm.DB {
	if appConfig.DatabaseURL == "" {
		logger.Info("no database configured, crash and seed records stay local")
		return nil
	}

	db, err := gorm.Open(postgres.Open(appConfig.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	if err := db.AutoMigrate(&Crash{}, &SeedEntry{}); err != nil {
		logger.Fatal("failed to migrate record tables", zap.Error(err))
	}
	logger.Debug("connected to database")
	return db
}
