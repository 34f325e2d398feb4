package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/airrelay/internal/api"
	"github.com/nerrad567/airrelay/internal/bridge"
	"github.com/nerrad567/airrelay/internal/cache"
	"github.com/nerrad567/airrelay/internal/directory"
	"github.com/nerrad567/airrelay/internal/gateway"
	"github.com/nerrad567/airrelay/internal/infrastructure/config"
	"github.com/nerrad567/airrelay/internal/infrastructure/influxdb"
	"github.com/nerrad567/airrelay/internal/infrastructure/logging"
	"github.com/nerrad567/airrelay/internal/infrastructure/mqtt"
	"github.com/nerrad567/airrelay/internal/store"
	"github.com/nerrad567/airrelay/internal/store/rediskv"
	"github.com/nerrad567/airrelay/internal/store/sqlitekv"
	"github.com/nerrad567/airrelay/internal/telegram"
)

// backend is a durable store that can report its health.
type backend interface {
	store.Store
	HealthCheck(ctx context.Context) error
}

// openStore opens the configured durable store.
func openStore(ctx context.Context, cfg config.StoreConfig) (backend, error) {
	switch cfg.Backend {
	case config.StoreBackendSQLite:
		s, err := sqlitekv.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreBackendRedis:
		s, err := rediskv.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// loadConfig loads the configuration and builds the configured logger.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.New(cfg.Logging, version), nil
}

// run is the bridge lifecycle, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting AirRelay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "path", configPath)

	// Directory: durable store behind the LRU cache.
	kvBackend, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	kv, err := cache.New(kvBackend, cfg.Cache.Size, cache.WithMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		kvBackend.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("creating cache: %w", err)
	}
	defer func() {
		log.Info("closing store")
		if closeErr := kv.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()
	log.Info("store opened", "backend", cfg.Store.Backend, "cache_size", cfg.Cache.Size)

	dir := directory.New(kv)
	dir.SetLogger(log.Component("directory"))

	// Chat platform and bridge service.
	tg, err := telegram.New(cfg.Telegram)
	if err != nil {
		return fmt.Errorf("creating telegram bot: %w", err)
	}
	tg.SetLogger(log.Component("telegram"))

	svc := bridge.NewService(dir, tg)
	svc.SetLogger(log.Component("bridge"))

	// Device channel. Subscriptions are registered before the broker
	// connection so the first Connected state already covers them.
	mqttClient := mqtt.New(cfg.MQTT)
	mqttClient.SetLogger(log.Component("mqtt"))

	relay, err := startDeviceRelay(ctx, cfg, mqttClient, svc, prometheus.DefaultRegisterer, log)
	if err != nil {
		return err
	}
	defer relay.Close()

	if err := mqttClient.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Operations HTTP server (optional)
	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{
			"store": kvBackend,
			"mqtt":  mqttClient,
		}
		if relay.influx != nil {
			checks["influxdb"] = relay.influx
		}
		srv, err := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Checks:  checks,
			Cache:   kv,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	// Chat updates flow only once every outbound path is wired.
	tg.SetHandler(svc)
	pollCtx, stopPolling := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tg.Start(pollCtx)
	}()
	defer func() {
		stopPolling()
		wg.Wait()
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// deviceRelay owns the device channel and the telemetry sink its handlers
// write to.
type deviceRelay struct {
	channel   io.Closer
	telemetry io.Closer
	influx    *influxdb.Client
	log       *logging.Logger
}

// startDeviceRelay connects telemetry first, then starts the device
// channel and hands it to svc as the SMS sender.
func startDeviceRelay(ctx context.Context, cfg *config.Config, client *mqtt.Client, svc *bridge.Service,
	reg prometheus.Registerer, log *logging.Logger) (*deviceRelay, error) {
	r := &deviceRelay{log: log}

	if cfg.InfluxDB.Enabled {
		influx, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxLog := log.Component("influxdb")
		influx.SetOnError(func(err error) {
			influxLog.Error("InfluxDB write error", "error", err)
		})
		svc.SetTelemetry(influx)
		r.influx = influx
		r.telemetry = influx
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	channel, err := gateway.New(client, svc, gateway.WithMetrics(reg))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("creating device channel: %w", err)
	}
	channel.SetLogger(log.Component("gateway"))
	if err := channel.Start(ctx); err != nil {
		r.Close()
		return nil, fmt.Errorf("starting device channel: %w", err)
	}
	r.channel = channel
	svc.SetSender(channel)
	return r, nil
}

// Close waits for in-flight device messages, then flushes and closes
// telemetry.
func (r *deviceRelay) Close() {
	if r.channel != nil {
		r.log.Info("waiting for in-flight device messages")
		if err := r.channel.Close(); err != nil {
			r.log.Error("error closing device channel", "error", err)
		}
	}
	if r.telemetry != nil {
		r.log.Info("closing InfluxDB connection")
		if err := r.telemetry.Close(); err != nil {
			r.log.Error("error closing InfluxDB", "error", err)
		}
	}
}
