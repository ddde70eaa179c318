package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/notification-service/internal/api"
	"github.com/ahrav/notification-service/internal/api/debug"
	"github.com/ahrav/notification-service/internal/api/mux"
	"github.com/ahrav/notification-service/internal/api/routes"
	"github.com/ahrav/notification-service/internal/api/routes/health"
	appConfig "github.com/ahrav/notification-service/internal/app/configuration"
	"github.com/ahrav/notification-service/internal/app/notification"
	"github.com/ahrav/notification-service/internal/app/recorder"
	"github.com/ahrav/notification-service/internal/config"
	"github.com/ahrav/notification-service/internal/domain/events"
	eventdispatcher "github.com/ahrav/notification-service/internal/infra/event_dispatcher"
	"github.com/ahrav/notification-service/internal/infra/messaging/registry"
	"github.com/ahrav/notification-service/pkg/common/logger"
	"github.com/ahrav/notification-service/pkg/common/otel"
)

var build = "develop"

const serviceType = "notification"

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	configPath := flag.String("config", os.Getenv("NOTIFY_CONFIG_FILE"), "path to an optional YAML config file")
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	cfg, err := config.NewViperLoader(*configPath).Load(context.Background())
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.Service.Version == "" || cfg.Service.Version == "develop" {
		cfg.Service.Version = build
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("%s-%s", cfg.Service.Name, hostname)
	metadata := map[string]string{
		"service":   svcName,
		"hostname":  hostname,
		"pod":       os.Getenv("POD_NAME"),
		"namespace": os.Getenv("POD_NAMESPACE"),
		"app":       serviceType,
	}

	log := logger.NewWithMetadata(os.Stdout, logger.ParseLevel(cfg.Log.Level), svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, log, cfg, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, cfg *config.Config, hostname string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "version", cfg.Service.Version)

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing tracing support")

	otelCfg := otel.Config{
		ServiceName: cfg.Service.Name,
		ExcludedRoutes: map[string]struct{}{
			"/v1/readiness": {},
			"/v1/health":    {},
			"/debug":        {},
		},
		Probability: cfg.Otel.Probability,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"k8s.pod.name":     os.Getenv("POD_NAME"),
			"k8s.namespace":    os.Getenv("POD_NAMESPACE"),
			"k8s.container.id": hostname,
		},
		InsecureExporter: cfg.Otel.Insecure,
	}
	if cfg.Otel.Enabled {
		otelCfg.ExporterEndpoint = cfg.Otel.Endpoint
	}

	traceProvider, teardown, err := otel.InitTelemetry(log, otelCfg)
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(ctx)

	tracer := traceProvider.Tracer(cfg.Service.Name)
	mp := otel.GetMeterProvider()

	// -------------------------------------------------------------------------
	// Storage
	log.Info(ctx, "startup", "status", "initializing storage", "storage", cfg.Storage)

	st, err := openStores(ctx, cfg, tracer)
	if err != nil {
		return err
	}
	defer st.close()

	// -------------------------------------------------------------------------
	// Initialize Event Bus
	log.Info(ctx, "startup", "status", "initializing event bus", "transport", cfg.Transport)

	bus, err := connectBus(cfg, log, mp, tracer)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Error(ctx, "shutdown", "status", "closing event bus", "err", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Handler Registry and Dispatcher
	log.Info(ctx, "startup", "status", "registering event handlers")

	reg := registry.NewSelectorRegistry(log, tracer)
	rec, err := registerHandlers(reg, cfg, st, log)
	if err != nil {
		return fmt.Errorf("registering handlers: %w", err)
	}
	reg.Freeze()

	policy, err := cfg.Dispatcher.DispatchPolicy()
	if err != nil {
		return fmt.Errorf("parsing dispatch policy: %w", err)
	}

	dispatcherMetrics, err := eventdispatcher.NewMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating dispatcher metrics: %w", err)
	}

	dispatcher := eventdispatcher.New(reg, eventdispatcher.Config{
		HandlerTimeout: cfg.Dispatcher.HandlerTimeout,
		Workers:        cfg.Dispatcher.Workers,
		Policy:         policy,
	}, tracer, log, dispatcherMetrics)

	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()

	if err := bus.SubscribeAsync(subCtx, reg.Selectors(), dispatchAsync(dispatcher)); err != nil {
		return fmt.Errorf("subscribing dispatcher: %w", err)
	}

	// -------------------------------------------------------------------------
	// Initialize
	if st.pool != nil && cfg.Database.Migrate {
		log.Info(ctx, "startup", "status", "applying migrations")

		version, err := initialize(ctx, cfg, st.pool, bus, log, tracer)
		if err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
		log.Info(ctx, "startup", "status", "schema current", "version", version)
	}

	// -------------------------------------------------------------------------
	// Start Debug Service

	go func() {
		log.Info(ctx, "startup", "status", "debug router started", "host", cfg.HTTP.DebugHost)

		debugMux := debug.Mux()
		if rec != nil {
			debugMux.Handle("/debug/events", recordedEvents(rec))
		}

		if err := http.ListenAndServe(cfg.HTTP.DebugHost, debugMux); err != nil {
			log.Error(ctx, "shutdown", "status", "debug router closed", "host", cfg.HTTP.DebugHost, "msg", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Start API Service

	log.Info(ctx, "startup", "status", "initializing API support")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	apiMetrics, err := api.NewAPIMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating api metrics: %w", err)
	}
	serviceMetrics, err := appConfig.NewMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating configuration metrics: %w", err)
	}

	readiness := map[string]health.Check{}
	if st.pool != nil {
		readiness["database"] = func(ctx context.Context) error { return st.pool.Ping(ctx) }
	}

	cfgMux := mux.Config{
		Build:         cfg.Service.Version,
		Log:           log,
		Tracer:        tracer,
		SMS:           appConfig.NewSMSService(st.sms, bus, log, tracer, serviceMetrics),
		Email:         appConfig.NewEmailService(st.email, bus, log, tracer, serviceMetrics),
		Notifications: notification.NewService(bus, log, tracer),
		Metrics:       apiMetrics,
		Readiness:     readiness,
	}

	webAPI := mux.WebAPI(cfgMux,
		routes.Routes(),
		mux.WithCORS(cfg.HTTP.CORSAllowedOrigins),
	)

	apiServer := http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      webAPI,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ErrorLog:     logger.NewStdLogger(log, logger.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info(ctx, "startup", "status", "api router started", "host", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// -------------------------------------------------------------------------
	// Shutdown

	g.Go(func() error {
		select {
		case sig := <-shutdown:
			log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		case <-gctx.Done():
			log.Info(ctx, "shutdown", "status", "shutdown started", "cause", context.Cause(gctx))
		}
		defer log.Info(ctx, "shutdown", "status", "shutdown complete")

		apiCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := apiServer.Shutdown(apiCtx); err != nil {
			errs = append(errs, fmt.Errorf("could not stop server gracefully: %w", err))
		}

		// Stop consuming before draining so no new envelopes are admitted.
		cancelSub()

		graceCtx, cancelGrace := context.WithTimeout(ctx, cfg.Dispatcher.ShutdownGrace)
		defer cancelGrace()

		if err := dispatcher.Close(graceCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// dispatchAsync hands envelopes to the dispatcher worker pool. The bus is
// told about completion once every handler has finished, which is when Kafka
// may mark the record.
func dispatchAsync(d *eventdispatcher.Dispatcher) events.AsyncHandlerFunc {
	return func(ctx context.Context, env events.EventEnvelope, done func(error)) error {
		return d.PublishAsyncFunc(ctx, env, func(_ eventdispatcher.Result, err error) {
			done(err)
		})
	}
}

// recordedEvents serves the recorder's events for ?tenant=&selector=.
func recordedEvents(rec *recorder.Recorder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.URL.Query().Get("tenant")
		selector := events.Selector(r.URL.Query().Get("selector"))
		if tenant == "" || selector == "" {
			http.Error(w, "tenant and selector are required", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rec.Events(tenant, selector)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
