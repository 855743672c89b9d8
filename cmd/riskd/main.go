// riskd is the SentryGate decision service: it scores intercepted HTTP
// requests, executes automated mitigations, and tracks incidents.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sentrygate/sentrygate/common/audit"
	"github.com/sentrygate/sentrygate/common/logging"
	"github.com/sentrygate/sentrygate/common/messaging"
	natsclient "github.com/sentrygate/sentrygate/common/messaging/nats"
	"github.com/sentrygate/sentrygate/internal/archive"
	"github.com/sentrygate/sentrygate/internal/config"
	"github.com/sentrygate/sentrygate/internal/detect"
	"github.com/sentrygate/sentrygate/internal/enforce"
	"github.com/sentrygate/sentrygate/internal/events"
	"github.com/sentrygate/sentrygate/internal/handlers"
	"github.com/sentrygate/sentrygate/internal/incident"
	"github.com/sentrygate/sentrygate/internal/pipeline"
	"github.com/sentrygate/sentrygate/internal/planner"
	"github.com/sentrygate/sentrygate/internal/repository"
	"github.com/sentrygate/sentrygate/internal/reputation"
	"github.com/sentrygate/sentrygate/internal/rollback"
	"github.com/sentrygate/sentrygate/internal/server"
	"github.com/sentrygate/sentrygate/internal/verdict"
)

var (
	cfgFile        string
	migrationsPath string
)

var rootCmd = &cobra.Command{
	Use:     "riskd",
	Short:   "SentryGate risk decision service",
	Long:    `riskd scores intercepted HTTP requests, decides and executes mitigation actions, and tracks the resulting incidents.`,
	Version: "0.1.0",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the riskd HTTP service",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	serveCmd.Flags().StringVar(&migrationsPath, "migrations", "migrations", "path to migration files")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	connString := cfg.Database.Postgres.ConnString()

	log.Println("Running database migrations...")
	m, err := migrate.New("file://"+migrationsPath, connString)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	repo, err := repository.NewPostgresRepository(context.Background(), connString)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer repo.Close()

	rdb, err := newRedisClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer rdb.Close()

	var bus messaging.Publisher
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Name = "riskd"
		client, err := natsclient.NewClient(natsCfg)
		if err != nil {
			// The bus is best effort; the decision path works without it.
			log.Printf("NATS unavailable, lifecycle events disabled: %v", err)
		} else {
			bus = client
			defer client.Drain()
		}
	}
	pub := events.NewPublisher(bus, logger)

	var archiver *archive.Archiver
	if cfg.Archive.Enabled {
		indexer, err := archive.NewOpenSearchIndexer(
			cfg.Archive.URL, cfg.Archive.Username, cfg.Archive.Password, cfg.Archive.Insecure,
		)
		if err != nil {
			log.Printf("OpenSearch unavailable, archival disabled: %v", err)
		} else {
			archiver = archive.NewArchiver(indexer, cfg.Archive.Index, cfg.Archive.QueueSize, logger)
			defer archiver.Close()
		}
	}

	engine, err := newEngine(cfg.Detect)
	if err != nil {
		return fmt.Errorf("failed to load signature pack: %w", err)
	}

	store := config.NewStore(cfg)
	enforcer := enforce.NewRedisEnforcerWithClient(rdb)
	executor := enforce.NewExecutor(enforcer, logger)
	rep := reputation.NewTracker(repo, logger)
	incidents := incident.NewTracker(repo, rdb, pub, logger,
		cfg.Incident.CorrelationWindow, cfg.Incident.FalsePositiveCooldown)
	verdicts := verdict.NewHTTPClient(cfg.Verdict.URL, cfg.Verdict.Timeout)
	plans := planner.NewHTTPClient(cfg.Planner.URL, cfg.Planner.Timeout)
	signer := audit.NewActionSigner(cfg.Audit.SigningKey)

	pipe := pipeline.New(store, engine, rep, verdicts, executor, enforcer,
		incidents, repo, repo, signer, archiver, pub, logger)

	rb := rollback.NewManager(repo, executor, pub, logger)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go rb.RunSweeper(sweepCtx, cfg.Rollback.SweepInterval)

	handler := handlers.NewHandler(pipe, rep, incidents, rb, enforcer, plans,
		repo, repo, store, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("riskd listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server stopped gracefully")
	return nil
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func newEngine(cfg config.DetectConfig) (*detect.Engine, error) {
	if cfg.PackPath == "" {
		return detect.NewDefaultEngine(cfg.MaxInspectBytes)
	}
	data, err := os.ReadFile(cfg.PackPath)
	if err != nil {
		return nil, err
	}
	pack, err := detect.ParsePack(data)
	if err != nil {
		return nil, err
	}
	return detect.NewEngine(pack, cfg.MaxInspectBytes), nil
}
