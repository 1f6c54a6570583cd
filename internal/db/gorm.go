package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenGorm opens gorm on an existing pool and migrates the fleet tables.
func OpenGorm(sqlDB *sql.DB, log *zap.Logger) (*gorm.DB, error) {
	gormLogger := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	err = gdb.AutoMigrate(
		&models.Machine{},
		&models.HourMeterReading{},
		&models.OilChange{},
		&models.MaintenanceOrder{},
		&models.MaintenancePart{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate fleet tables: %w", err)
	}
	return gdb, nil
}
