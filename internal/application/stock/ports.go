package stock

import (
	"context"

	"github.com/jhoicas/StockLedger-api/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD con aislamiento
// de snapshot, pasando repositorios atados a esa tx. La lectura de
// disponibilidad y la escritura del hold (o el asiento y el flip de estado)
// ocurren dentro de la misma transacción: sin esto, dos reservas concurrentes
// pueden observar ambas stock suficiente y sobrevender.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		ledgerRepo repository.StockLedgerRepository,
		holdRepo repository.StockHoldRepository,
		idemRepo repository.IdempotencyRepository,
	) error) error
}
