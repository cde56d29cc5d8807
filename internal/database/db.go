package database

import (
	"fmt"
	"log"
	"net/url"
	"time"

	"go-pos-sync/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options tune how a connection is opened.
type Options struct {
	Attempts int
	Wait     time.Duration
	LogLevel logger.LogLevel
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		if dsn == "" {
			return nil, fmt.Errorf("DB_DSN is required for mysql")
		}
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// Connect opens the remote store database, waiting for it to come up.
// TranslateError is on so unique index violations surface as gorm.ErrDuplicatedKey
// whatever the driver.
func Connect(driver, dsn string, opts Options) (*gorm.DB, error) {
	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}
	if opts.Wait <= 0 {
		opts.Wait = 2 * time.Second
	}
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Warn
	}

	var db *gorm.DB
	for i := 0; i < opts.Attempts; i++ {
		db, err = gorm.Open(d, &gorm.Config{
			Logger:         logger.Default.LogMode(opts.LogLevel),
			TranslateError: true,
		})
		if err == nil {
			break
		}
		log.Printf("Failed to connect to database. Retrying in %s... (%d/%d)", opts.Wait, i+1, opts.Attempts)
		time.Sleep(opts.Wait)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", opts.Attempts, err)
	}

	if driver == "sqlite" {
		// SQLite allows one writer; a single connection avoids "database is locked".
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, err
		}
	}

	log.Printf("✅ Successfully connected to %s!", driver)
	return db, nil
}

// Migrate creates or updates the remote store schema.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Sale{},
		&models.SaleItem{},
		&models.Shift{},
		&models.StockLog{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	log.Println("✅ Database Schema Synced!")
	return nil
}

// OpenMemory returns a migrated, private in-memory SQLite database.
// name must be unique per caller; tests pass t.Name().
func OpenMemory(name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(name))
	db, err := Connect("sqlite", dsn, Options{Attempts: 1, LogLevel: logger.Silent})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
