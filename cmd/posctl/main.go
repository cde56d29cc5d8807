// posctl maintains the remote store database: schema migration, seeding and
// integrity checks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go-pos-sync/internal/admin"
	"go-pos-sync/internal/config"
	"go-pos-sync/internal/database"
	"go-pos-sync/internal/repository"
	"go-pos-sync/internal/session"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const usage = `usage: posctl [-env file] <command>

commands:
  migrate   create or update the schema
  seed      add placeholder operators and sample products if missing
  check     report broken invariants, exit status 1 when any are found
`

func main() {
	os.Exit(run())
}

// run returns the exit status, so deferred cleanup happens before exiting.
func run() int {
	envFile := flag.String("env", ".env", "environment file to load")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}

	config.Load(*envFile)
	cfg := config.LoadAdmin()
	db, err := database.Connect(cfg.DBDriver, cfg.DBDSN, database.Options{Attempts: 3, LogLevel: logger.Error})
	if err != nil {
		log.Printf("Database connection failed: %v", err)
		return 1
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch cmd := flag.Arg(0); cmd {
	case "migrate":
		err = database.Migrate(db)
	case "seed":
		err = seed(ctx, db, cfg)
	case "check":
		err = check(ctx, db)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		return 2
	}
	switch {
	case errors.Is(err, admin.ErrProblemsFound):
		return 1
	case err != nil:
		log.Printf("posctl %s: %v", flag.Arg(0), err)
		return 1
	}
	return 0
}

func seed(ctx context.Context, db *gorm.DB, cfg config.Admin) error {
	if err := database.Migrate(db); err != nil {
		return err
	}
	password := cfg.SeedPassword
	if password == "" {
		log.Println("⚠️ WARNING: seeding operators with the placeholder password. Set SEED_PASSWORD to override.")
		password = session.DefaultPassword
	}
	users, err := session.PlaceholderUsers(password, cfg.BcryptCost)
	if err != nil {
		return err
	}
	_, err = admin.Seed(ctx, repository.NewGormRepository(db), users, admin.SampleProducts(time.Now()))
	return err
}

func check(ctx context.Context, db *gorm.DB) error {
	problems, err := admin.Check(ctx, db)
	if err != nil {
		return err
	}
	return admin.Report(os.Stdout, problems)
}
