package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/config"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/gallery"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/model"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/pool"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/stores"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/telemetry"
)

// shutdownTimeout bounds telemetry flushing and metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// app is the wiring shared by every command: configuration, telemetry, the
// SQLite store, and the initialized handle pool.
type app struct {
	cfg     *config.Config
	tel     *telemetry.Telemetry
	store   *stores.SQLiteStore
	pool    *pool.Pool
	gallery *gallery.Gallery
	metrics *http.Server
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(resolvedConfigPath())
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	cfg.Telemetry.ServiceVersion = buildVersion
	return cfg, nil
}

// openApp loads the configuration and initializes the pool, which creates
// the schema on first use.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openAppWith(ctx, cfg)
}

func openAppWith(ctx context.Context, cfg *config.Config) (*app, error) {
	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	fail := func(err error) (*app, error) {
		_ = tel.Shutdown(context.Background())
		return nil, err
	}

	reg, err := model.NewRegistry(cfg.Mapping.Path)
	if err != nil {
		return fail(fmt.Errorf("failed to load mapping: %w", err))
	}

	store, err := stores.NewSQLiteStore(cfg.StoreConfig(reg, tel))
	if err != nil {
		return fail(fmt.Errorf("failed to create store: %w", err))
	}

	p := pool.New(store, pool.WithTxMode(cfg.TxMode()), pool.WithTelemetry(tel))
	if err := p.Initialize(ctx); err != nil {
		return fail(fmt.Errorf("failed to initialize %s: %w", cfg.Database.Path, err))
	}

	log.Debug().
		Str("database", cfg.Database.Path).
		Str("tx_mode", p.Mode().String()).
		Msg("Persistence layer initialized")

	return &app{
		cfg:     cfg,
		tel:     tel,
		store:   store,
		pool:    p,
		gallery: gallery.New(p, tel),
		metrics: tel.Metrics.StartMetricsServer(tel.Logger),
	}, nil
}

// Close releases the pool and flushes telemetry.
func (a *app) Close() {
	if err := a.pool.Cleanup(); err != nil {
		log.Warn().Err(err).Msg("Cleanup failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}
