// Package main provides specserve, the spectra relay service.
//
// specserve resolves SDSS object identifiers to archive spectra, aggregates
// every epoch of an object into one bundle and serves it over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bhm-spectra/specviewer/internal/api"
	"github.com/bhm-spectra/specviewer/internal/api/middleware"
	"github.com/bhm-spectra/specviewer/internal/archive"
	"github.com/bhm-spectra/specviewer/internal/catalog"
	"github.com/bhm-spectra/specviewer/internal/credentials"
	"github.com/bhm-spectra/specviewer/internal/fetch"
	"github.com/bhm-spectra/specviewer/internal/retrieval"
	"github.com/bhm-spectra/specviewer/internal/storage"
)

const (
	name          = "specserve"
	verifyTimeout = 2 * time.Minute
)

// Set at build time with -ldflags.
var version = "1.0.0-dev"

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", name, version)

		return
	}

	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting spectra relay",
		slog.String("service", name),
		slog.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	settings, err := archive.LoadSettingsFromEnv()
	if err != nil {
		logger.Error("Failed to load engine settings", slog.String("error", err.Error()))

		return err
	}

	fetcher, err := newFetcher(ctx, registry, logger)
	if err != nil {
		return err
	}

	index, closeIndex := openIndex(logger)
	defer closeIndex()

	engineConfig := retrieval.LoadConfig()

	engine, err := retrieval.NewEngine(engineConfig, settings, fetcher, index,
		retrieval.NewMetrics(registry), logger)
	if err != nil {
		logger.Error("Failed to create aggregation engine", slog.String("error", err.Error()))

		return err
	}

	retrieval.RegisterCacheStats(registry, engine)

	logger.Info("Aggregation engine initialized",
		slog.Int("result_cache_size", engineConfig.ResultCacheSize),
		slog.Int("fps_cutoff_mjd", settings.FPSCutoffMJD),
	)

	go func() {
		verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
		defer cancel()

		// Failures are logged by Verify; the relay still serves what it can reach.
		_ = engine.Verify(verifyCtx)
	}()

	keyStore, err := openKeyStore(logger)
	if err != nil {
		return err
	}

	rateLimitConfig := middleware.LoadConfig()
	if err := rateLimitConfig.Validate(); err != nil {
		logger.Error("Invalid rate limit configuration", slog.String("error", err.Error()))

		return err
	}

	rateLimiter := middleware.NewInMemoryRateLimiter(rateLimitConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", rateLimitConfig.GlobalRPS),
		slog.Int("global_burst", rateLimitConfig.GlobalBurst),
		slog.Int("client_rps", rateLimitConfig.ClientRPS),
		slog.Int("client_burst", rateLimitConfig.ClientBurst),
		slog.Int("unauth_rps", rateLimitConfig.UnAuthRPS),
		slog.Int("unauth_burst", rateLimitConfig.UnAuthBurst),
	)

	deps := api.Dependencies{
		Engine:      engine,
		Index:       index,
		RateLimiter: rateLimiter,
		Gatherer:    registry,
		Version:     version,
	}

	if keyStore != nil {
		deps.APIKeyStore = keyStore
	}

	server := api.NewServer(serverConfig, deps, logger)

	if err := server.Run(ctx); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))

		return err
	}

	logger.Info("Spectra relay stopped")

	return nil
}

// newFetcher builds the archive transport behind a URL memo. Credentials are
// optional: without them only public data releases can be read.
func newFetcher(ctx context.Context, registry prometheus.Registerer, logger *slog.Logger) (*fetch.Memo, error) {
	fetchConfig := fetch.LoadConfig()

	var creds fetch.CredentialProvider

	credentialsConfig := credentials.LoadConfig()

	store, err := credentials.Load(credentialsConfig, os.Stdin, os.Stdout, logger)
	if err != nil {
		logger.Warn("Archive credentials unavailable, reading public releases only",
			slog.String("error", err.Error()),
		)
	} else {
		creds = store

		if credentialsConfig.Watch {
			go func() {
				if err := store.Watch(ctx); err != nil {
					logger.Warn("Credentials watcher stopped", slog.String("error", err.Error()))
				}
			}()
		}
	}

	transport, err := fetch.NewHTTPFetcher(fetchConfig, nil, creds, fetch.NewMetrics(registry), logger)
	if err != nil {
		logger.Error("Failed to create archive transport", slog.String("error", err.Error()))

		return nil, err
	}

	logger.Info("Archive transport initialized",
		slog.Duration("timeout", fetchConfig.Timeout),
		slog.Int("max_attempts", fetchConfig.MaxAttempts),
		slog.Duration("retry_backoff", fetchConfig.RetryBackoff),
		slog.Float64("archive_rps", fetchConfig.RequestsPerSecond),
		slog.Int("url_memo_size", fetchConfig.MemoSize),
	)

	return fetch.NewMemo(transport, fetchConfig.MemoSize), nil
}

// openIndex opens the catalog index. A missing index is not fatal: pinned
// identifiers still resolve, and index-mode requests answer 503.
func openIndex(logger *slog.Logger) (catalog.Index, func()) {
	index, closer, err := catalog.Open(catalog.LoadConfig(), logger)
	if err != nil {
		logger.Warn("Catalog index unavailable, only pinned identifiers can be served",
			slog.String("error", err.Error()),
		)

		return nil, func() {}
	}

	return index, func() {
		if err := closer.Close(); err != nil {
			logger.Warn("Failed to close catalog index", slog.String("error", err.Error()))
		}
	}
}

func openKeyStore(logger *slog.Logger) (*storage.FileKeyStore, error) {
	keyStoreConfig := storage.LoadKeyStoreConfig()
	if !keyStoreConfig.Enabled() {
		logger.Warn("API key authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set SPECVIEWER_API_KEYS_FILE to enable API key authentication"),
		)

		return nil, nil //nolint:nilnil // authentication is optional
	}

	store, err := storage.OpenFileKeyStore(keyStoreConfig.Path, logger)
	if err != nil {
		logger.Error("Failed to open API key file",
			slog.String("path", keyStoreConfig.Path),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	return store, nil
}
