package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"benchsuite/internal/logging"
	"benchsuite/internal/server"
	"benchsuite/internal/worker"
	"benchsuite/internal/worker/runner"
	"benchsuite/pkg/suitedb"
)

var waitForDB = flag.Duration("wait-db", 0, "wait up to this long for the target database before serving")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	env := newEnv()
	if err := logging.Setup(logging.Config{
		Level:  env.GetString("log_level"),
		Format: env.GetString("log_format"),
	}, os.Stderr); err != nil {
		return err
	}

	cfg, err := readWorkerConfig(env)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *waitForDB > 0 {
		if err := awaitDatabase(ctx, cfg, *waitForDB); err != nil {
			return err
		}
	}

	runner := runner.New(cfg)
	go runner.Run(ctx)

	router := chi.NewRouter()
	router.Use(middleware.CleanPath)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestLogger(
		&middleware.DefaultLogFormatter{
			Logger:  &log.Logger,
			NoColor: true,
		},
	))
	router.Use(middleware.NoCache)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.AllowContentType("application/json"))
	router.Use(middleware.Heartbeat("/ping"))

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector())
	h := server.NewHandler(runner)
	h.Metrics = metrics

	router.Get("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}).ServeHTTP)
	h.RegisterRoutes(router)

	listen := env.GetString("listen")
	srv := &http.Server{Addr: listen, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("listen", listen).
		Str("driver", cfg.Target.Driver).
		Msg("benchdriver listening")
	defer log.Info().Msg("Goodbye!")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newEnv() *viper.Viper {
	env := viper.New()
	env.SetDefault("listen", ":8080")
	env.SetDefault("log_level", "info")
	env.SetDefault("log_format", logging.FormatJSON)
	env.SetDefault("driver", suitedb.Postgres.Driver)
	env.SetDefault("pguser", "postgres")
	env.SetDefault("pgpass", "postgres")
	env.SetDefault("pgsslmode", "disable")

	bind := map[string]string{
		"listen":        "BENCHDRIVER_LISTEN",
		"driver":        "BENCHDRIVER_DRIVER",
		"dsn":           "BENCHDRIVER_DSN",
		"suites_driver": "BENCHDRIVER_SUITES_DRIVER",
		"suites_dsn":    "BENCHDRIVER_SUITES_DSN",
		"log_level":     "LOG_LEVEL",
		"log_format":    "LOG_FORMAT",
		"pghost":        "PGHOST",
		"pgport":        "PGPORT",
		"pguser":        "PGUSER",
		"pgpass":        "PGPASS",
		"pgdatabase":    "PGDATABASE",
		"pgsslmode":     "PGSSLMODE",
	}
	for key, name := range bind {
		env.BindEnv(key, name)
	}
	return env
}

func readWorkerConfig(env *viper.Viper) (worker.Config, error) {
	cfg := worker.Config{
		Target: suitedb.Config{
			Driver:   env.GetString("driver"),
			DSN:      env.GetString("dsn"),
			Host:     env.GetString("pghost"),
			Port:     env.GetString("pgport"),
			User:     env.GetString("pguser"),
			Password: env.GetString("pgpass"),
			Database: env.GetString("pgdatabase"),
			SSLMode:  env.GetString("pgsslmode"),
		},
		Suites: suitedb.Config{
			Driver: env.GetString("suites_driver"),
			DSN:    env.GetString("suites_dsn"),
		},
	}
	if cfg.Target.Database == "" {
		cfg.Target.Database = cfg.Target.User
	}
	if cfg.Suites.DSN != "" && cfg.Suites.Driver == "" {
		cfg.Suites.Driver = cfg.Target.Driver
	}

	if _, err := cfg.Target.Dialect(); err != nil {
		return cfg, fmt.Errorf("target database: %w", err)
	}
	if _, err := cfg.SuiteStore().Dialect(); err != nil {
		return cfg, fmt.Errorf("suite store: %w", err)
	}
	return cfg, nil
}

// awaitDatabase pings the target database until it answers or timeout
// elapses.
func awaitDatabase(ctx context.Context, cfg worker.Config, timeout time.Duration) error {
	db, _, err := worker.OpenDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := db.PingContext(ctx); err != nil {
			log.Info().Err(err).Msg("waiting for database")
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(timeout),
	)
	if err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	return nil
}
