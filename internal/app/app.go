// Package app собирает сервис галереи: конфигурация, зависимости,
// HTTP API, служебный сервер и фоновые работники с общим жизненным циклом.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/aurabyshenoi/gallery/internal/health"
	"github.com/aurabyshenoi/gallery/internal/metrics"
	"github.com/aurabyshenoi/gallery/internal/service/catalog"
	"github.com/aurabyshenoi/gallery/internal/service/checkout"
	"github.com/aurabyshenoi/gallery/internal/service/enquiry"
	"github.com/aurabyshenoi/gallery/internal/service/httpapi"
	"github.com/aurabyshenoi/gallery/internal/service/idempotency"
	"github.com/aurabyshenoi/gallery/internal/service/notify"
	"github.com/aurabyshenoi/gallery/internal/service/payment"
	"github.com/aurabyshenoi/gallery/internal/service/sequence"
	"github.com/aurabyshenoi/gallery/internal/version"
)

// Run запускает сервис и блокируется до отмены ctx или фатальной ошибки
// сервера. Остановка упорядочена: сначала закрывается HTTP API, затем
// фоновые работники, затем дожидаются письма в доставке.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Сервисы галереи поверх собранных зависимостей.
	sequencer := sequence.NewSequencer(deps.repos.sequences)
	gateway := payment.NewMockGateway()

	breaker := notify.NewCircuitBreaker(5, 30*time.Second, logger)
	scheduler := notify.NewScheduler(deps.Relay, map[string]notify.StateStore{
		notify.KindOrder:   deps.repos.orders,
		notify.KindContact: deps.repos.contacts,
	},
		notify.WithBreaker(breaker),
		notify.WithEvents(deps.Events),
	)

	catalogSvc := catalog.NewService(deps.repos.items, catalog.WithCache(deps.Cache))
	checkoutSvc := checkout.NewService(deps.repos.items, deps.repos.orders, gateway, sequencer,
		checkout.WithScheduler(scheduler),
		checkout.WithListingCache(catalogSvc),
		checkout.WithEvents(deps.Events),
		checkout.WithCurrency(cfg.Currency),
	)
	enquirySvc := enquiry.NewService(deps.repos.contacts, deps.repos.newsletters, sequencer,
		enquiry.WithScheduler(scheduler),
		enquiry.WithEvents(deps.Events),
		enquiry.WithRateLimiter(deps.Cache, 5, 60),
	)

	guard := idempotency.NewGuard(deps.repos.idempotency)
	cleanup := idempotency.NewCleanupWorker(deps.repos.idempotency)
	monitor := notify.NewMonitor(deps.repos.orders, deps.repos.contacts)

	healthHandler := healthcheck.NewHandler(version.Current().Version)
	if deps.Store != nil {
		healthHandler.RegisterFunc("database", deps.Store.Ping)
	}

	api := httpapi.NewHandler(catalogSvc, checkoutSvc, enquirySvc,
		httpapi.WithLogger(log.WithField("component", "httpapi")),
		httpapi.WithGuard(guard),
		httpapi.WithHealth(healthHandler),
		httpapi.WithMetrics(metrics.NewHTTPMetrics()),
	)

	// Фоновые работники: монитор просроченных уведомлений и очистка
	// отработавших идемпотентных ключей.
	workersCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		monitor.Run(workersCtx)
	}()
	go func() {
		defer workers.Done()
		cleanup.Run(workersCtx)
	}()

	opsSrv := startOpsServer(cfg.OpsAddr, logger, healthHandler)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Routes()}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	// Общий хвост остановки для обеих веток select ниже.
	finish := func() {
		stopWorkers()
		workers.Wait()
		drainScheduler(scheduler, logger)
		stopServer(opsSrv, "ops", logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, closing http api")
		stopServer(srv, "api", logger)
		finish()
		return ctx.Err()
	case err := <-errCh:
		finish()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startOpsServer запускает служебный HTTP-сервер: метрики Prometheus
// и пробы живости, здоровья и готовности. Остановку выполняет Run.
func startOpsServer(addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.WithField("addr", addr).Info("ops server listening: /metrics, /healthz, /livez, /readyz")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("ops server failed")
		}
	}()
	return srv
}

// stopServer гасит HTTP-сервер, давая запросам в полёте время дожить.
func stopServer(srv *http.Server, name string, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("server", name).Warn("server shutdown with error")
	}
}

// drainScheduler дожидается писем, находящихся в доставке.
func drainScheduler(scheduler *notify.Scheduler, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := scheduler.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("notification scheduler drained with error")
	}
}
