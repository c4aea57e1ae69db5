package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/studio-reminders/internal/application"
	"github.com/example/studio-reminders/internal/config"
	httptransport "github.com/example/studio-reminders/internal/http"
	"github.com/example/studio-reminders/internal/metrics"
	"github.com/example/studio-reminders/internal/notify"
	"github.com/example/studio-reminders/internal/persistence/sqlite"
	"github.com/example/studio-reminders/internal/storeadapter"
	"github.com/example/studio-reminders/internal/tracing"
)

// app holds the wired services for one process.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	storage    *sqlite.Storage
	dispatcher *application.Dispatcher
	redeemer   *application.Redeemer
	registry   *prometheus.Registry
	closers    []func(context.Context) error
}

func openStorage(cfg config.Config, logger *slog.Logger) (*sqlite.Storage, error) {
	storage, err := sqlite.OpenPath(cfg.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return storage, nil
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) (err error) {
	cfg, logger := a.cfg, a.logger

	a.storage, err = openStorage(cfg, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.storage.Close() })
	if err = a.storage.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	tracer, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		ServiceName: serviceName,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, tracer.Shutdown)

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewRecorder("reminders", a.registry)
	if err != nil {
		return err
	}

	provider, err := a.newProvider()
	if err != nil {
		return err
	}

	bookings := storeadapter.NewBookings(a.storage)
	selector := application.NewSelectorWithLogger(bookings, cfg.SelectorConfig(), nil, logger)
	issuer := application.NewTokenIssuerWithLogger(storeadapter.NewActionTokens(a.storage), nil, nil, cfg.TokenTTL, logger)
	renderer, err := application.NewRenderer(application.RendererConfig{BaseURL: cfg.PublicBaseURL, TokenTTL: cfg.TokenTTL})
	if err != nil {
		return err
	}

	opts := []application.DispatcherOption{
		application.WithDispatchLogger(logger),
		application.WithDispatchObserver(recorder),
		application.WithMaxConcurrency(cfg.MaxConcurrency),
		application.WithTracer(tracer.Tracer()),
	}
	if cfg.Dedupe {
		opts = append(opts, application.WithReminderLedger(storeadapter.NewLedger(a.storage, nil, nil, cfg.ClaimTimeout)))
	}
	a.dispatcher = application.NewDispatcher(selector, issuer, renderer, provider, opts...)
	a.redeemer = application.NewRedeemerWithLogger(storeadapter.NewRedemption(a.storage, a.storage), nil, logger)

	return nil
}

func (a *app) newProvider() (notify.Provider, error) {
	switch a.cfg.Provider {
	case notify.KindHTTP:
		return notify.NewHTTPProvider(notify.HTTPConfig{
			Endpoint: a.cfg.ProviderURL,
			APIKey:   a.cfg.ProviderAPIKey,
			From:     a.cfg.SenderAddress,
		}, nil)
	case notify.KindAMQP:
		conn, err := notify.DialAMQP(a.cfg.AMQPURL, a.cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return conn.Close() })
		return notify.NewAMQPProvider(conn.Channel(), a.cfg.AMQPExchange), nil
	case notify.KindLog, "":
		return notify.NewLogProvider(a.logger), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", a.cfg.Provider)
	}
}

func (a *app) handler() http.Handler {
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Reminders:   httptransport.NewReminderHandler(a.dispatcher, a.logger),
		Actions:     httptransport.NewActionHandler(a.redeemer, a.logger),
		Health:      httptransport.NewHealthHandler(a.storage, a.logger),
		Metrics:     promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		TriggerAuth: httptransport.RequireTriggerSecret(httptransport.ArgonSecretVerifier(a.cfg.TriggerSecretHash), a.logger),
	})
	return httptransport.RequestLogger(a.logger)(router)
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("failed to release resources", "error", err)
	}
}
