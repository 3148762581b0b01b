package database

import (
	"outreach-backend/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewPostgresConnection opens a gorm connection using the configured DSN.
func NewPostgresConnection(cfg *config.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{}
	if cfg.Environment == "production" {
		gormConfig.Logger = logger.Default.LogMode(logger.Warn)
	}

	return gorm.Open(postgres.Open(cfg.DatabaseURL), gormConfig)
}
