package database

import (
	"fmt"
	"sync"

	"github.com/wacrm/pkg/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	db          *gorm.DB
	err         error
	client_once sync.Once
)

func InitDB(dbc config.Database) {
	client_once.Do(func() {
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbc.Host, dbc.Port, dbc.User, dbc.Pass, dbc.Name)
		db, err = gorm.Open(
			postgres.New(
				postgres.Config{
					DSN:                  dsn,
					PreferSimpleProtocol: true,
				},
			),
			&gorm.Config{
				DisableForeignKeyConstraintWhenMigrating: false,
			},
		)
		if err != nil {
			zap.L().Fatal("failed to initialize database", zap.Error(err))
		}

		sqlDB, err := db.DB()
		if err != nil {
			zap.L().Fatal("failed to get underlying database connection", zap.Error(err))
		}

		if err := sqlDB.Ping(); err != nil {
			zap.L().Fatal("failed to ping database", zap.Error(err))
		}

		zap.L().Info("database connection established", zap.String("host", dbc.Host), zap.String("name", dbc.Name))

		if err := AutoMigrate(db); err != nil {
			zap.L().Fatal("migration failed", zap.Error(err))
		}

		zap.L().Info("database migrations completed")
	})
}

func DBClient() *gorm.DB {
	if db == nil {
		zap.L().Panic("Postgres is not initialized. Call InitDB first.")
	}
	return db
}

// Close releases the pooled connections.
func Close() {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
