package database

import (
	"fmt"
	"time"

	"storefront/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// openOrderIndex enforces at most one unordered order per user.
const openOrderIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_one_open ON orders (user_id) WHERE ordered = false`

// slowQueryThreshold is the duration above which GORM logs a query as slow.
const slowQueryThreshold = 200 * time.Millisecond

// Open connects to the configured database. TranslateError is enabled so unique
// violations surface as gorm.ErrDuplicatedKey on every driver. GORM warnings go
// to logger; record-not-found misses are expected and not logged.
func Open(driver, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	gormLog := gormlogger.New(zap.NewStdLog(logger.Named("gorm")), gormlogger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	return db, nil
}

// Migrate creates or updates every table the storefront uses.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.UserProfile{},
		&models.Item{},
		&models.Variation{},
		&models.ItemVariation{},
		&models.Coupon{},
		&models.Address{},
		&models.Payment{},
		&models.Order{},
		&models.OrderItem{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	if err := db.Exec(openOrderIndex).Error; err != nil {
		return fmt.Errorf("failed to create open order index: %w", err)
	}
	return nil
}
