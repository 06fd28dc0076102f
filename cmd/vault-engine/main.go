// Package main runs the read-only vault engine HTTP service: positions,
// vault risk parameters and a health probe over a JSON-RPC node.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/archon-research/stl/vault-engine/internal/adapters/inbound/http"
	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/coingecko"
	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/ethrpc"
	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/memory"
	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/redis"
	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/telemetry"
	"github.com/archon-research/stl/vault-engine/internal/pkg/env"
	"github.com/archon-research/stl/vault-engine/internal/pkg/registry"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
	"github.com/archon-research/stl/vault-engine/internal/services/position_aggregator"
	"github.com/archon-research/stl/vault-engine/internal/services/pricing"
	"github.com/archon-research/stl/vault-engine/internal/services/vault_config"
)

// Build-time variables - can be set via ldflags, otherwise populated from Go's build info.
var (
	GitCommit string
	GitBranch string
	BuildTime string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "" {
					GitCommit = setting.Value
				}
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	}
}

func main() {
	addr := flag.String("addr", "", "HTTP listen address (default $HTTP_ADDR or :8080)")
	registryPath := flag.String("registry", "", "Path to the token/vault registry (default $REGISTRY_PATH or config/registry.yaml)")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vault-engine\n")
		fmt.Printf("  Commit:     %s\n", GitCommit)
		fmt.Printf("  Branch:     %s\n", GitBranch)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	logger := env.NewLogger(os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	cfg := loadConfig(*addr, *registryPath)

	logger.Info("starting vault-engine",
		"commit", GitCommit,
		"addr", cfg.httpAddr,
		"registry", cfg.registryPath,
	)

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// config is the environment-derived service configuration.
type config struct {
	httpAddr        string
	registryPath    string
	rpcURL          string
	rpcFallbackURL  string
	rpcTimeout      time.Duration
	coingeckoAPIKey string
	priceTTL        time.Duration
	redisAddr       string
	redisPassword   string
	redisDB         int
	otlpEndpoint    string
	environment     string
	shutdownTimeout time.Duration
}

func loadConfig(addrFlag, registryFlag string) config {
	cfg := config{
		httpAddr:        env.Get("HTTP_ADDR", ":8080"),
		registryPath:    env.Get("REGISTRY_PATH", "config/registry.yaml"),
		rpcURL:          env.Get("RPC_URL", "http://localhost:8545"),
		rpcFallbackURL:  env.Get("RPC_FALLBACK_URL", ""),
		rpcTimeout:      env.GetDuration("RPC_TIMEOUT", 15*time.Second),
		coingeckoAPIKey: env.Get("COINGECKO_API_KEY", ""),
		priceTTL:        env.GetDuration("PRICE_CACHE_TTL", 30*time.Second),
		redisAddr:       env.Get("REDIS_ADDR", ""),
		redisPassword:   env.Get("REDIS_PASSWORD", ""),
		redisDB:         env.GetInt("REDIS_DB", 0),
		otlpEndpoint:    env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		environment:     env.Get("ENVIRONMENT", "development"),
		shutdownTimeout: env.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if addrFlag != "" {
		cfg.httpAddr = addrFlag
	}
	if registryFlag != "" {
		cfg.registryPath = registryFlag
	}
	return cfg
}

func run(ctx context.Context, logger *slog.Logger, cfg config) error {
	reg, err := registry.Load(cfg.registryPath)
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}

	telemetryConfig := telemetry.Config{
		ServiceName:    "vault-engine",
		ServiceVersion: GitCommit,
		Environment:    cfg.environment,
		OTLPEndpoint:   cfg.otlpEndpoint,
	}
	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetryConfig)
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer shutdownTelemetry(logger, "metrics", shutdownMetrics)

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetryConfig)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer shutdownTelemetry(logger, "tracer", shutdownTracer)

	rpcTelemetry, err := ethrpc.NewTelemetry()
	if err != nil {
		return fmt.Errorf("creating rpc telemetry: %w", err)
	}
	rpc, err := ethrpc.NewClient(ethrpc.ClientConfig{
		PrimaryURL:  cfg.rpcURL,
		FallbackURL: cfg.rpcFallbackURL,
		Timeout:     cfg.rpcTimeout,
		Logger:      logger,
		Telemetry:   rpcTelemetry,
	})
	if err != nil {
		return fmt.Errorf("creating rpc client: %w", err)
	}

	oracle, err := coingecko.NewClient(coingecko.ClientConfig{
		APIKey:   cfg.coingeckoAPIKey,
		AssetIDs: reg.AssetIDs(),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating coingecko client: %w", err)
	}

	cache, closeCache, err := newPriceCache(ctx, logger, cfg, reg.ChainID)
	if err != nil {
		return err
	}
	defer closeCache()

	prices, err := pricing.NewService(pricing.ServiceConfig{TTL: cfg.priceTTL, Logger: logger}, oracle, cache)
	if err != nil {
		return fmt.Errorf("creating pricing service: %w", err)
	}

	configs, err := vault_config.NewService(vault_config.ServiceConfig{
		Resolver: reg.ResolverAddress(),
		Logger:   logger,
	}, rpc)
	if err != nil {
		return fmt.Errorf("creating vault config reader: %w", err)
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	positions, err := position_aggregator.NewService(position_aggregator.ServiceConfig{
		Resolver: reg.ResolverAddress(),
		Metrics:  metrics,
		Logger:   logger,
	}, rpc, configs, prices, reg)
	if err != nil {
		return fmt.Errorf("creating position aggregator: %w", err)
	}

	handler := httpadapter.NewHandler(positions, configs, rpc, logger)
	server := httpadapter.NewServer(httpadapter.ServerConfig{Addr: cfg.httpAddr, Logger: logger}, handler)
	server.Start()

	<-ctx.Done()

	if err := server.Shutdown(cfg.shutdownTimeout); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// newPriceCache returns a Redis cache when REDIS_ADDR is set and an
// in-process cache otherwise.
func newPriceCache(ctx context.Context, logger *slog.Logger, cfg config, chainID int64) (outbound.PriceCache, func(), error) {
	if cfg.redisAddr == "" {
		logger.Info("REDIS_ADDR not set, using in-memory price cache")
		c := memory.NewPriceCache()
		return c, func() { _ = c.Close() }, nil
	}

	rc := redis.ConfigDefaults()
	rc.Addr = cfg.redisAddr
	rc.Password = cfg.redisPassword
	rc.DB = cfg.redisDB
	rc.ChainID = chainID

	c, err := redis.NewPriceCache(rc, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating redis price cache: %w", err)
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return c, func() {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close redis", "error", err)
		}
	}, nil
}

func shutdownTelemetry(logger *slog.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown failed", "provider", name, "error", err)
	}
}
