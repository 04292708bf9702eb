// Package bootstrap brings up the shared infrastructure before the bot starts.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	coreconfig "github.com/m3rciful/reservebot/core/config"
	coredatabase "github.com/m3rciful/reservebot/core/database"
	"github.com/m3rciful/reservebot/core/logger"
)

// Check is a named startup probe for an external dependency.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	// SkipDatabase leaves DB nil; used when no component needs Postgres.
	SkipDatabase bool
	// Checks run concurrently after migrations, together with a ping of the
	// database when one was opened; the first failure aborts startup.
	Checks       []Check
	CheckTimeout time.Duration

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
}

// Close releases what Run opened.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger, connects to the database, applies migrations and runs the checks.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	if !opts.SkipDatabase {
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(opts.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		res.DB = db

		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(opts.Database); err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	}

	checks := opts.Checks
	if res.DB != nil {
		checks = append([]Check{{Name: "postgres", Run: res.DB.PingContext}}, checks...)
	}
	if err := runChecks(checks, opts.CheckTimeout); err != nil {
		_ = res.Close()
		return nil, err
	}
	return res, nil
}

func runChecks(checks []Check, timeout time.Duration) error {
	if len(checks) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range checks {
		if c.Run == nil {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			if err := c.Run(gctx); err != nil {
				logger.Error(gctx, logger.CompApp, "check", logger.Failed(err, slog.String("name", c.Name))...)
				return fmt.Errorf("bootstrap: %s check failed: %w", c.Name, err)
			}
			logger.Info(gctx, logger.CompApp, "check",
				slog.String("status", "ok"),
				slog.String("name", c.Name),
				slog.Duration("duration", logger.Took(start)),
			)
			return nil
		})
	}
	return g.Wait()
}
