package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/httplog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshdurbin/shortlink/internal/cache/memory"
	"github.com/joshdurbin/shortlink/internal/cache/redisbus"
	"github.com/joshdurbin/shortlink/internal/config"
	"github.com/joshdurbin/shortlink/internal/metrics"
	"github.com/joshdurbin/shortlink/internal/repository"
	"github.com/joshdurbin/shortlink/internal/repository/postgres"
	"github.com/joshdurbin/shortlink/internal/repository/sqlite"
	"github.com/joshdurbin/shortlink/internal/service"
	"github.com/joshdurbin/shortlink/internal/shortener"
	"github.com/joshdurbin/shortlink/internal/transport/client"
	httpTransport "github.com/joshdurbin/shortlink/internal/transport/http"
)

const appName = "shortlink"

var rootCmd = &cobra.Command{
	Use:          appName,
	Short:        "A URL shortening service written in Go",
	Long:         "A URL shortener with a coherent in-memory resolver cache over a SQLite or PostgreSQL record store",
	SilenceUsage: true,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the URL shortening server",
	RunE:  runServer,
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Client commands for interacting with the server",
}

var createCmd = &cobra.Command{
	Use:   "create [URL]",
	Short: "Create a short URL",
	Args:  cobra.ExactArgs(1),
	RunE: withCommands(func(ctx context.Context, c *client.Commands, args []string) error {
		return c.Create(ctx, args[0])
	}),
}

var getCmd = &cobra.Command{
	Use:   "get [SHORT_KEY]",
	Short: "Get information about a short URL",
	Args:  cobra.ExactArgs(1),
	RunE: withCommands(func(ctx context.Context, c *client.Commands, args []string) error {
		return c.Get(ctx, args[0])
	}),
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all short URLs",
	Args:  cobra.NoArgs,
	RunE: withCommands(func(ctx context.Context, c *client.Commands, args []string) error {
		return c.List(ctx)
	}),
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate [SHORT_KEY]",
	Short: "Stop a short URL from resolving",
	Args:  cobra.ExactArgs(1),
	RunE: withCommands(func(ctx context.Context, c *client.Commands, args []string) error {
		return c.Deactivate(ctx, args[0])
	}),
}

var reactivateCmd = &cobra.Command{
	Use:   "reactivate [SHORT_KEY]",
	Short: "Let a deactivated short URL resolve again",
	Args:  cobra.ExactArgs(1),
	RunE: withCommands(func(ctx context.Context, c *client.Commands, args []string) error {
		return c.Reactivate(ctx, args[0])
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete [SHORT_KEY...]",
	Short: "Delete one or more short URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE: withCommands(func(ctx context.Context, c *client.Commands, args []string) error {
		return c.Delete(ctx, args...)
	}),
}

var purgeInactiveCmd = &cobra.Command{
	Use:   "purge-inactive",
	Short: "Delete every deactivated short URL",
	Args:  cobra.NoArgs,
	RunE: withCommands(func(ctx context.Context, c *client.Commands, args []string) error {
		return c.PurgeInactive(ctx)
	}),
}

func init() {
	// Server command flags
	serverCmd.Flags().StringP("config", "c", "", "Path to a YAML config file")
	serverCmd.Flags().StringP("port", "p", "8080", "Server port")
	serverCmd.Flags().String("server-url", "http://localhost:8080", "Public base URL used to build short URLs")
	serverCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")

	// Store flags
	serverCmd.Flags().String("db-driver", config.DriverSQLite, "Record store driver (sqlite or postgres)")
	serverCmd.Flags().String("db-path", "urls.db", "SQLite database file path")
	serverCmd.Flags().String("db-dsn", "", "PostgreSQL connection string")
	serverCmd.Flags().Duration("store-timeout", 2*time.Second, "Timeout for each record store call")

	// Cache and click flags
	serverCmd.Flags().Int("cache-capacity", 1024, "Maximum number of cached records")
	serverCmd.Flags().Int("cache-shards", 1, "Number of independently locked cache shards")
	serverCmd.Flags().Duration("cache-ttl", 0, "Maximum age of a cached record (0 disables expiry)")
	serverCmd.Flags().Duration("click-flush-interval", time.Second, "Interval between click counter flushes")

	// Shortener configuration flags
	serverCmd.Flags().Int("short-key-length", 6, "Length of generated short keys")
	serverCmd.Flags().Int("secret-key-length", 12, "Length of generated secret keys")

	// Broadcast flags
	serverCmd.Flags().String("redis-addr", "", "Redis address or URL for cross-instance cache invalidation")
	serverCmd.Flags().String("redis-channel", redisbus.DefaultChannel, "Redis channel for cache invalidations")

	// Logging configuration flags
	serverCmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	serverCmd.Flags().Bool("log-json", false, "Log in JSON format")

	// Client command flags
	clientCmd.PersistentFlags().StringP("server-url", "u", "http://localhost:8080", "Server URL")

	// Add subcommands
	clientCmd.AddCommand(createCmd, getCmd, listCmd, deactivateCmd, reactivateCmd, deleteCmd, purgeInactiveCmd)
	rootCmd.AddCommand(serverCmd, clientCmd)
}

// loadConfig builds the configuration from defaults, the optional config file and explicitly set flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetString("port")
	}
	if flags.Changed("server-url") {
		cfg.Server.ServerURL, _ = flags.GetString("server-url")
	}
	if flags.Changed("shutdown-timeout") {
		cfg.Server.ShutdownTimeout, _ = flags.GetDuration("shutdown-timeout")
	}
	if flags.Changed("db-driver") {
		cfg.Database.Driver, _ = flags.GetString("db-driver")
	}
	if flags.Changed("db-path") {
		cfg.Database.Path, _ = flags.GetString("db-path")
	}
	if flags.Changed("db-dsn") {
		cfg.Database.DSN, _ = flags.GetString("db-dsn")
	}
	if flags.Changed("store-timeout") {
		cfg.Database.StoreTimeout, _ = flags.GetDuration("store-timeout")
	}
	if flags.Changed("cache-capacity") {
		cfg.Cache.Capacity, _ = flags.GetInt("cache-capacity")
	}
	if flags.Changed("cache-shards") {
		cfg.Cache.Shards, _ = flags.GetInt("cache-shards")
	}
	if flags.Changed("cache-ttl") {
		cfg.Cache.TTL, _ = flags.GetDuration("cache-ttl")
	}
	if flags.Changed("click-flush-interval") {
		cfg.Clicks.FlushInterval, _ = flags.GetDuration("click-flush-interval")
	}
	if flags.Changed("short-key-length") {
		cfg.Shortener.ShortKeyLength, _ = flags.GetInt("short-key-length")
	}
	if flags.Changed("secret-key-length") {
		cfg.Shortener.SecretKeyLength, _ = flags.GetInt("secret-key-length")
	}
	if flags.Changed("redis-addr") {
		cfg.Broadcast.RedisAddr, _ = flags.GetString("redis-addr")
	}
	if flags.Changed("redis-channel") {
		cfg.Broadcast.Channel, _ = flags.GetString("redis-channel")
	}
	if flags.Changed("verbose") {
		cfg.Logging.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("log-json") {
		cfg.Logging.JSON, _ = flags.GetBool("log-json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	logger := httplog.NewLogger(appName, httplog.Options{
		JSON:    cfg.JSON,
		Concise: true,
		Tags: map[string]string{
			"app": appName,
		},
	})
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return logger
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (repository.RecordStore, error) {
	if cfg.Driver == config.DriverPostgres {
		store, err := postgres.New(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := sqlite.New(cfg.Path, logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newRedisClient(addr string) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	logger.Info().
		Str("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Int("cache_capacity", cfg.Cache.Capacity).
		Msg("Starting URL shortener server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(appName, registry)

	// Record store
	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize record store: %w", err)
	}

	// Key generator
	generator, err := shortener.NewGenerator(cfg.Shortener, store)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to create shortener generator: %w", err)
	}
	logger.Info().Str("generator", generator.Type()).Msg("Using shortener generator")

	// Resolver cache
	memoryCache, err := memory.New(memory.Options{
		Capacity: cfg.Cache.Capacity,
		Shards:   cfg.Cache.Shards,
		TTL:      cfg.Cache.TTL,
		Metrics:  m,
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to create cache: %w", err)
	}

	// Optional cross-instance invalidation
	var (
		bus         *redisbus.Bus
		broadcaster service.Broadcaster
	)
	if cfg.Broadcast.RedisAddr != "" {
		redisClient, err := newRedisClient(cfg.Broadcast.RedisAddr)
		if err != nil {
			_ = store.Close()
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn().Err(err).Msg("Error closing redis client")
			}
		}()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = store.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		bus = redisbus.New(redisClient, cfg.Broadcast.Channel, logger)
		broadcaster = bus
		logger.Info().Str("channel", cfg.Broadcast.Channel).Msg("Cross-instance cache invalidation enabled")
	}

	resolver := service.NewResolver(store, memoryCache, service.ResolverOptions{
		StoreTimeout: cfg.Database.StoreTimeout,
		Metrics:      m,
		Broadcaster:  broadcaster,
		Logger:       logger,
	})

	urlShortener := service.NewURLShortener(store, resolver, generator, service.Options{
		StoreTimeout:       cfg.Database.StoreTimeout,
		ClickFlushInterval: cfg.Clicks.FlushInterval,
		MaxInsertAttempts:  cfg.Shortener.MaxAttempts,
		Metrics:            m,
		Logger:             logger,
	})
	// Close flushes pending clicks and closes the store
	defer func() {
		if err := urlShortener.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing shortener")
		}
	}()

	if err := urlShortener.StartClickSync(ctx); err != nil {
		return fmt.Errorf("failed to start click sync: %w", err)
	}

	server := httpTransport.NewServer(urlShortener, httpTransport.ServerOptions{
		Port:      cfg.Server.Port,
		ServerURL: cfg.Server.ServerURL,
		Logger:    logger,
		Observer:  m,
		Gatherer:  registry,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if bus != nil {
		g.Go(func() error {
			return bus.Run(gctx, resolver)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("Server stopped")
	return nil
}

// withCommands adapts a client operation into a cobra RunE
func withCommands(fn func(ctx context.Context, c *client.Commands, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server-url")
		commands := client.NewCommands(client.NewClient(serverURL), cmd.OutOrStdout())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return fn(ctx, commands, args)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
