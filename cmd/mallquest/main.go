// Command mallquest is the production binary: `serve` starts the HTTP/WS
// transport plus the background scheduler, `worker` starts the scheduler
// alone, `migrate` runs shard-wide schema migrations, and `tenant add|list`
// manages the tenant directory. Structure follows the teacher's
// cmd/server/main.go (flag-based config path, JSON structured logging,
// component construction order, signal-driven graceful shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mallquest/mallquest/internal/authgate"
	"github.com/mallquest/mallquest/internal/cache"
	"github.com/mallquest/mallquest/internal/companion"
	"github.com/mallquest/mallquest/internal/config"
	"github.com/mallquest/mallquest/internal/domain"
	"github.com/mallquest/mallquest/internal/empire"
	"github.com/mallquest/mallquest/internal/ingest/pos"
	"github.com/mallquest/mallquest/internal/progression"
	"github.com/mallquest/mallquest/internal/ratelimit"
	"github.com/mallquest/mallquest/internal/scheduler"
	"github.com/mallquest/mallquest/internal/store"
	"github.com/mallquest/mallquest/internal/tenant"
	httptransport "github.com/mallquest/mallquest/internal/transport/http"
	"github.com/mallquest/mallquest/internal/transport/ws"
)

const (
	exitOK             = 0
	exitBadArgs        = 2
	exitSchemaOutdated = 3
	exitStoreUnreach   = 4
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitBadArgs)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	switch os.Args[1] {
	case "serve":
		os.Exit(runServe(logger, os.Args[2:]))
	case "worker":
		os.Exit(runWorker(logger, os.Args[2:]))
	case "migrate":
		os.Exit(runMigrate(logger, os.Args[2:]))
	case "tenant":
		os.Exit(runTenant(logger, os.Args[2:]))
	default:
		usage()
		os.Exit(exitBadArgs)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mallquest <serve|worker|migrate|tenant> [flags]")
}

func loadConfig(fs *flag.FlagSet, args []string) *config.Config {
	path := fs.String("config", "config.yaml", "path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*path)
	if err != nil {
		slog.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	return cfg
}

// buildStore opens the sharded Store; returns exitStoreUnreach on failure.
func buildStore(ctx context.Context, cfg config.ShardConfig, logger *slog.Logger) (*store.Store, int) {
	s, err := store.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to store", "error", err)
		return nil, exitStoreUnreach
	}
	return s, exitOK
}

func runMigrate(logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	cfg := loadConfig(fs, args)

	ctx := context.Background()
	s, code := buildStore(ctx, cfg.Postgres, logger)
	if code != exitOK {
		return code
	}
	defer s.Close()

	if err := s.RunMigrations(ctx); err != nil {
		logger.Error("migration failed", "error", err)
		return exitSchemaOutdated
	}
	logger.Info("migrations applied")
	return exitOK
}

func runTenant(logger *slog.Logger, args []string) int {
	if len(args) < 1 {
		usage()
		return exitBadArgs
	}

	fs := flag.NewFlagSet("tenant", flag.ExitOnError)
	tenantsPath := fs.String("tenants-file", "tenants.yaml", "path to the tenant directory file")
	id := fs.String("id", "", "tenant id")
	host := fs.String("host", "", "tenant host domain")
	brand := fs.String("brand", "", "tenant brand name")
	timezone := fs.String("timezone", "UTC", "tenant default timezone")
	fs.Parse(args[1:])

	reg, err := tenant.LoadFromFile(*tenantsPath)
	if err != nil {
		logger.Error("failed to load tenant directory", "error", err)
		return exitStoreUnreach
	}

	switch args[0] {
	case "add":
		if *id == "" || *host == "" {
			fmt.Fprintln(os.Stderr, "tenant add requires -id and -host")
			return exitBadArgs
		}
		t := domain.Tenant{
			ID:         *id,
			HostDomain: *host,
			BrandName:  *brand,
			Timezone:   *timezone,
			Policy:     domain.DefaultPolicy(),
			CreatedAt:  time.Now(),
		}
		if err := reg.Add(t); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitBadArgs
		}
		if err := reg.SaveToFile(*tenantsPath); err != nil {
			logger.Error("failed to save tenant directory", "error", err)
			return exitStoreUnreach
		}
		fmt.Printf("tenant %s added (%s)\n", t.ID, t.HostDomain)
		return exitOK

	case "list":
		for _, t := range reg.List() {
			fmt.Printf("%s\t%s\t%s\n", t.ID, t.HostDomain, t.BrandName)
		}
		return exitOK

	default:
		usage()
		return exitBadArgs
	}
}

// components bundles every long-lived dependency shared by `serve` and
// `worker`, since a worker process is a serve process without the
// transport layer.
type components struct {
	store     *store.Store
	cache     *cache.Cache
	limiter   *ratelimit.Limiter
	tenants   *tenant.Registry
	gate      *authgate.Gate
	missions  *progression.MissionEvaluator
	prog      *progression.Coordinator
	emp       *empire.Coordinator
	comp      *companion.Coordinator
	sched     *scheduler.Scheduler
	hub       *ws.Hub
	cfg       *config.Config
}

func buildComponents(ctx context.Context, cfg *config.Config, tenantsPath string, logger *slog.Logger) (*components, int) {
	s, code := buildStore(ctx, cfg.Postgres, logger)
	if code != exitOK {
		return nil, code
	}

	reg, err := tenant.LoadFromFile(tenantsPath)
	if err != nil {
		logger.Error("failed to load tenant directory", "error", err)
		return nil, exitStoreUnreach
	}

	c := cache.New(ctx, cfg.Cache, cfg.Redis, logger)
	limiter := ratelimit.New(s, cfg.RateLimit, logger)
	gate := authgate.New(s, cfg.Auth, logger)
	missions := progression.NewMissionEvaluator(s, cfg.Mission)
	hub := ws.NewHub(logger)
	go hub.Run()

	prog := progression.New(s, reg, c, limiter, gate, missions, hub, logger)
	emp := empire.New(s)
	comp := companion.New(s)
	sched := scheduler.New(s, cfg.Scheduler, logger)

	return &components{
		store: s, cache: c, limiter: limiter, tenants: reg, gate: gate,
		missions: missions, prog: prog, emp: emp, comp: comp, sched: sched,
		hub: hub, cfg: cfg,
	}, exitOK
}

func (c *components) shutdown() {
	c.sched.Stop()
	c.hub.Stop()
	c.cache.Close()
	c.store.Close()
}

func runServe(logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	tenantsPath := fs.String("tenants-file", "tenants.yaml", "path to the tenant directory file")
	configPath := fs.String("config", "config.yaml", "path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	comps, code := buildComponents(ctx, cfg, *tenantsPath, logger)
	if code != exitOK {
		return code
	}
	defer comps.shutdown()

	comps.sched.Start(ctx)

	var posConsumer *pos.Consumer
	if cfg.Kafka.Enabled {
		posConsumer, err = pos.NewConsumer(&cfg.Kafka, comps.prog, logger)
		if err != nil {
			logger.Warn("failed to create pos consumer, continuing without kafka ingest", "error", err)
			posConsumer = nil
		} else if err := posConsumer.Start(); err != nil {
			logger.Warn("failed to start pos consumer, continuing without kafka ingest", "error", err)
			posConsumer = nil
		}
	}

	handler := httptransport.New(comps.prog, comps.emp, comps.comp, comps.gate, comps.missions, comps.tenants, comps.store, comps.hub, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(exitStoreUnreach)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if posConsumer != nil {
		if err := posConsumer.Stop(); err != nil {
			logger.Error("failed to stop pos consumer", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}
	logger.Info("server stopped")
	return exitOK
}

func runWorker(logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	tenantsPath := fs.String("tenants-file", "tenants.yaml", "path to the tenant directory file")
	configPath := fs.String("config", "config.yaml", "path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	comps, code := buildComponents(ctx, cfg, *tenantsPath, logger)
	if code != exitOK {
		return code
	}
	defer comps.shutdown()

	comps.sched.Start(ctx)
	logger.Info("worker started, running scheduler jobs only", "instance", uuid.NewString())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("worker stopping")
	return exitOK
}
