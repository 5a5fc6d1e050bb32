// Сервис галереи AuraByShenoi: каталог картин, оформление заказов
// и обращения покупателей за одним HTTP API.
//
//	@title			AuraByShenoi Gallery API
//	@version		1.0
//	@description	Painting catalog, order checkout with idempotent payment, and customer enquiries.
//	@BasePath		/
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/app"
	"github.com/aurabyshenoi/gallery/internal/telemetry"
	"github.com/aurabyshenoi/gallery/internal/version"
)

const serviceName = "gallery-service"

// setupLogger переводит глобальный logrus в текстовый формат с полными
// метками времени. Нераспознанный уровень откатывается к info.
func setupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.WithError(err).Fatal("failed to set up tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stopTracing(flushCtx); err != nil {
			log.WithError(err).Warn("failed to flush traces")
		}
	}()

	log.WithFields(log.Fields{
		"http_addr": cfg.HTTPAddr,
		"ops_addr":  cfg.OpsAddr,
		"storage":   cfg.StorageDriver,
		"version":   version.Current().Version,
	}).Info("starting gallery service")

	err = app.Run(ctx, cfg)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("gallery service exited with error")
	}

	log.Info("gallery service stopped")
}
