package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/petal-labs/pez/config"
	"github.com/petal-labs/pez/sequence"
	"github.com/petal-labs/pez/store"
)

func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to pez.yaml (env PEZ_* overrides it)")
}

// loadConfig resolves configuration for cmd. Failures exit with exitConfig.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, exitError(exitConfig, "loading configuration: %v", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. --verbose enables debug output.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// openStore connects to the counter store selected by cfg.DB.Driver.
func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.DB.Driver {
	case config.DriverPostgres:
		return store.NewPostgresStore(store.PostgresStoreConfig{
			Host:     cfg.DB.Host,
			Port:     cfg.DB.Port,
			Database: cfg.DB.Name,
			Username: cfg.DB.Username,
			Password: cfg.DB.Password,
		})
	case config.DriverSQLite:
		path := cfg.DB.Path
		if path == "" {
			defaultPath, err := store.DefaultSQLitePath()
			if err != nil {
				return nil, err
			}
			path = defaultPath
		}
		return store.NewSQLiteStore(store.SQLiteStoreConfig{Path: path})
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DB.Driver)
	}
}

// connectStore opens the configured store and waits for it to answer.
func connectStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, exitError(exitStore, "opening counter store: %v", err)
	}
	if err := store.WaitReady(ctx, st, cfg.ConnectTimeout, logger); err != nil {
		_ = st.Close()
		return nil, exitError(exitStore, "counter store %s not reachable: %v", st.Target(), err)
	}
	return st, nil
}

func builtinSeeds() []store.Seed {
	defs := sequence.Builtins()
	seeds := make([]store.Seed, 0, len(defs))
	for _, def := range defs {
		seeds = append(seeds, def.Seed())
	}
	return seeds
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func closeStore(st store.Store, logger *slog.Logger) {
	if err := st.Close(); err != nil {
		logger.Warn("closing counter store", "error", err)
	}
}
