package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/cache"
	"github.com/tbourn/go-forms-backend/internal/config"
	httpapi "github.com/tbourn/go-forms-backend/internal/http"
	"github.com/tbourn/go-forms-backend/internal/repo"
	"github.com/tbourn/go-forms-backend/internal/storage"
	"github.com/tbourn/go-forms-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds what every subcommand shares once the configuration is loaded.
type app struct {
	cfg config.Config
	out io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "formsd",
		Short:         "Forms builder API and maintenance tasks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.LoadDotEnv()
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.out = cmd.OutOrStdout()
			sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, cmd.ErrOrStderr())
			if path != "" {
				log.Debug().Str("path", path).Msg("loaded .env")
			}
			return nil
		},
	}
	root.AddCommand(
		a.serveCmd(),
		a.migrateCmd(),
		a.fixOrderCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.adminCmd(),
	)
	return root
}

// openDB connects to the configured database and migrates the schema.
// The returned func closes the connection pool.
func (a *app) openDB() (*gorm.DB, func(), error) {
	db, err := repo.Open(a.cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s database: %w", a.cfg.DB.Driver, err)
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return db, closeDB, nil
}

// deps opens everything the services need: database, upload storage and
// the (optional) Redis cache.
func (a *app) deps(ctx context.Context) (httpapi.Deps, func(), error) {
	db, closeDB, err := a.openDB()
	if err != nil {
		return httpapi.Deps{}, nil, err
	}
	store, err := storage.New(a.cfg.UploadsDir)
	if err != nil {
		closeDB()
		return httpapi.Deps{}, nil, fmt.Errorf("uploads dir: %w", err)
	}
	kv := cache.Connect(ctx, a.cfg.RedisAddr)
	return httpapi.Deps{DB: db, Files: store, Cache: kv}, func() {
		if err := kv.Close(); err != nil {
			log.Warn().Err(err).Msg("cache close")
		}
		closeDB()
	}, nil
}
