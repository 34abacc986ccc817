package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Contadores del ciclo de vida de reservas. Se exponen en /metrics.
var (
	HoldsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_holds_placed_total",
		Help: "Holds de stock creados con éxito.",
	})

	HoldsCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_holds_captured_total",
		Help: "Holds capturados (convertidos en decremento real del ledger).",
	})

	HoldsReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_holds_released_total",
		Help: "Holds liberados, por motivo (manual, timeout, other).",
	}, []string{"reason"})

	InsufficientStockRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_holds_insufficient_total",
		Help: "Reservas rechazadas por stock insuficiente.",
	})

	IdempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_idempotent_replays_total",
		Help: "Operaciones detectadas como replay y resueltas al resultado previo.",
	})

	LedgerEntriesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_entries_total",
		Help: "Asientos agregados al ledger, por tipo de referencia.",
	}, []string{"reference_type"})

	IdempotencyRecordsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_idempotency_purged_total",
		Help: "Registros de idempotencia recolectados por retención.",
	})
)
