package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"Poolfund/config"
	"Poolfund/internal/logger"
	"Poolfund/internal/metrics"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const pingTimeout = 5 * time.Second

// NewDb connects to PostgreSQL or SQLite depending on DATABASE_URL and runs the migrations.
func NewDb(cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Open connects without migrating.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	driver := "postgres"

	if cfg.Database.IsPostgres() {
		dialector = postgres.Open(cfg.Database.URL)
	} else {
		driver = "sqlite"
		path := cfg.Database.SQLitePath()
		sqlDB, err := sql.Open("sqlite", path)
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("failed to open sqlite database")
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		dialector = sqlite.Dialector{
			DriverName: "sqlite",
			DSN:        path,
			Conn:       sqlDB,
		}
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		logger.Error().Err(err).Str("driver", driver).Msg("failed to connect to database")
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// one writer at a time; transactions and plain queries share the connection
		sqlDB.SetMaxOpenConns(1)
		if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, err
		}
		if _, err := sqlDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			return nil, err
		}
	} else {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		logger.Error().Err(err).Str("driver", driver).Msg("database ping failed")
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info().Str("driver", driver).Msg("database connection established")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	logger.Info().Msg("running migrations")

	entities := []interface{}{
		&poolDB{},
		&investorDB{},
		&poolEventDB{},
		&refundObligationDB{},
		&distributionDB{},
		&payoutDB{},
	}

	for _, entity := range entities {
		if err := db.AutoMigrate(entity); err != nil {
			logger.Error().
				Err(err).
				Str("entity", fmt.Sprintf("%T", entity)).
				Msg("migration failed")
			return err
		}
	}

	logger.Info().Msg("migrations finished")
	return nil
}

// Ping checks the connection and publishes pool stats.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	stats := sqlDB.Stats()
	metrics.UpdateDBConnections(stats.InUse, stats.Idle)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
