package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики обоих компонентов пакета: guard считает развязанные повторы,
// уборка считает свои проходы и удалённые записи.
var (
	guardReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_idempotency_replays_total",
		Help: "Total number of repeated requests resolved by the idempotency guard, grouped by result.",
	}, []string{"result"})

	cleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_idempotency_cleanup_runs_total",
		Help: "Idempotency sweep passes grouped by result.",
	}, []string{"result"})

	cleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_idempotency_cleanup_deleted_total",
		Help: "Expired idempotency records removed since process start.",
	})

	cleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_idempotency_cleanup_last_deleted",
		Help: "Records removed by the most recent sweep.",
	})
)
