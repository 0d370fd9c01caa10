package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"datachat/internal/app"
	"datachat/internal/backend"
	"datachat/internal/config"
	"datachat/internal/db"
	"datachat/internal/domain"
)

// runtime carries the persistent flag values shared by every subcommand.
type runtime struct {
	mode    string
	envFile string
}

// session is a fully opened application: config, pools, and wired services.
// Every subcommand opens one, does its work, and closes it.
type session struct {
	App    *app.App
	Cfg    *config.Config
	Logger *slog.Logger

	writeDB   *sql.DB
	readDB    *sql.DB
	warehouse *sql.DB
}

func (rt *runtime) open(ctx context.Context) (*session, error) {
	if err := config.LoadDotEnv(rt.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if rt.mode != "" {
		cfg.DefaultMode = rt.mode
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	writeDB, readDB, err := db.OpenSQLitePair(cfg.MetaDBPath, 4)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}
	if err := db.RunMigrations(writeDB); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, err
	}

	var warehouse *sql.DB
	if cfg.WarehouseDSN != "" {
		warehouse, err = backend.OpenOracle(cfg.WarehouseDSN, 8)
		if err != nil {
			// Degrade instead of refusing to start: the metadata catalog,
			// cache, and embedded dialect still work without the warehouse.
			logger.Warn("warehouse unreachable, oracle-dialect plans will fail", "error", err)
			warehouse = nil
		}
	}

	a, err := app.New(ctx, app.Deps{
		Cfg:       cfg,
		WriteDB:   writeDB,
		ReadDB:    readDB,
		Warehouse: warehouse,
		Logger:    logger,
	})
	if err != nil {
		if warehouse != nil {
			warehouse.Close()
		}
		writeDB.Close()
		readDB.Close()
		return nil, err
	}

	return &session{
		App:       a,
		Cfg:       cfg,
		Logger:    logger,
		writeDB:   writeDB,
		readDB:    readDB,
		warehouse: warehouse,
	}, nil
}

// Mode returns the routing mode the session was opened with.
func (s *session) Mode() domain.Mode {
	return domain.Mode(s.Cfg.DefaultMode)
}

func (s *session) Close() {
	s.App.Close()
	if s.warehouse != nil {
		s.warehouse.Close()
	}
	s.readDB.Close()
	s.writeDB.Close()
}
