package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/bookstore/bootstrap"
	"github.com/GoCodeAlone/bookstore/config"
	"github.com/GoCodeAlone/bookstore/export"
	"github.com/GoCodeAlone/bookstore/internal/version"
	"github.com/GoCodeAlone/bookstore/scheduler"
	"github.com/GoCodeAlone/bookstore/server"
)

// runFlags are the configuration overrides shared by run, serve and inspect.
type runFlags struct {
	fs         *flag.FlagSet
	configPath string
	customers  int
	employees  int
	steps      int
	seed       uint64
	policy     string
	output     string
	db         string
	logLevel   string
}

func newRunFlags(name string) *runFlags {
	f := &runFlags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	f.fs.StringVar(&f.configPath, "config", "", "path to YAML config file")
	f.fs.IntVar(&f.customers, "customers", 0, "customer count")
	f.fs.IntVar(&f.employees, "employees", 0, "employee count")
	f.fs.IntVar(&f.steps, "steps", 0, "step count")
	f.fs.Uint64Var(&f.seed, "seed", 0, "random seed")
	f.fs.StringVar(&f.policy, "policy", "", "purchase policy (preference|impulse)")
	f.fs.StringVar(&f.output, "output", "", "write export record JSON to this file")
	f.fs.StringVar(&f.db, "db", "", "save export record to this SQLite database")
	f.fs.StringVar(&f.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	return f
}

// load reads the config file, if any, and applies the flags that were set.
func (f *runFlags) load() (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *runFlags) apply(cfg *config.Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "customers":
			cfg.Customers = f.customers
		case "employees":
			cfg.Employees = f.employees
		case "steps":
			cfg.Steps = f.steps
		case "seed":
			cfg.Seed = f.seed
		case "policy":
			cfg.Policy = f.policy
		case "output":
			cfg.Export.JSONPath = f.output
		case "db":
			cfg.Export.SQLitePath = f.db
		case "log-level":
			cfg.LogLevel = f.logLevel
		}
	})
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func cmdRun(args []string) error {
	f := newRunFlags("run")
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	cfg, err := f.load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	sim, err := bootstrap.Build(cfg)
	if err != nil {
		return err
	}
	sched, err := sim.Scheduler(logger, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	rec, err := exportRun(cfg, sched, store, logger)
	if err != nil {
		return err
	}
	fmt.Println(renderSummary(rec.Summary, rec.Digest))
	return nil
}

// openStore opens the configured SQLite export database, or returns nil.
func openStore(cfg *config.Config) (*export.SQLiteStore, error) {
	if cfg.Export.SQLitePath == "" {
		return nil, nil
	}
	return export.NewSQLiteStore(cfg.Export.SQLitePath)
}

// exportRun builds the export record and writes it to the JSON path and store when
// configured.
func exportRun(cfg *config.Config, sched *scheduler.Scheduler, store *export.SQLiteStore, logger *slog.Logger) (*export.Record, error) {
	rec, err := export.NewRecord(cfg, sched.Export())
	if err != nil {
		return nil, err
	}
	if path := cfg.Export.JSONPath; path != "" {
		if err := export.WriteJSON(path, rec); err != nil {
			return nil, err
		}
		logger.Info("export written", "path", path, "run_id", rec.RunID)
	}
	if store != nil {
		if err := store.Save(rec); err != nil {
			return nil, err
		}
		logger.Info("export saved", "db", cfg.Export.SQLitePath, "run_id", rec.RunID)
	}
	return rec, nil
}

func cmdServe(args []string) error {
	f := newRunFlags("serve")
	addr := f.fs.String("addr", "", "listen address")
	interval := f.fs.Duration("interval", 0, "wall time between steps")
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	cfg, err := f.load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *interval > 0 {
		cfg.StepInterval = *interval
	}
	if cfg.StepInterval == 0 {
		cfg.StepInterval = 500 * time.Millisecond
	}
	logger := newLogger(cfg)
	logger.Info("starting bookstore", "version", version.Version, "commit", version.Commit)

	sim, err := bootstrap.Build(cfg)
	if err != nil {
		return err
	}
	sched, err := sim.Scheduler(logger, nil)
	if err != nil {
		return err
	}

	srv := server.New(cfg, sched, version.Version, logger)
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		srv.SetRunStore(store)
	}
	sched.OnStep(srv.OnStep)

	ctx, cancel := signalContext()
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			cancel()
		}
	}()
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("server stop error", "error", err)
		}
	}()

	runErr := sched.Run(ctx)
	srv.Finished()
	select {
	case err := <-errCh:
		return err
	default:
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	rec, err := exportRun(cfg, sched, store, logger)
	if err != nil {
		return err
	}
	fmt.Println(renderSummary(rec.Summary, rec.Digest))
	if ctx.Err() == nil {
		fmt.Println("Simulation finished; server still running. Press Ctrl-C to exit.")
		<-ctx.Done()
	}
	select {
	case err := <-errCh:
		return err
	default:
	}
	return nil
}

func cmdInspect(args []string) error {
	f := newRunFlags("inspect")
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	cfg, err := f.load()
	if err != nil {
		return err
	}
	sim, err := bootstrap.Build(cfg)
	if err != nil {
		return err
	}
	fmt.Println(renderWorld(sim.World))
	return nil
}
