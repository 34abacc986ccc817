package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/StockLedger-api/internal/application/stock"
	"github.com/jhoicas/StockLedger-api/internal/domain"
	"github.com/jhoicas/StockLedger-api/internal/domain/repository"
)

var _ stock.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL SERIALIZABLE:
// la lectura de disponibilidad y la escritura dependiente ven el mismo
// snapshot, y dos reservas en carrera no pueden observar ambas stock
// suficiente — la perdedora aborta con fallo de serialización.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// Run inicia una transacción SERIALIZABLE, ejecuta fn con repos atados a la tx
// y hace Commit o Rollback. Los abortos de serialización y deadlocks salen como
// domain.ErrTransientStore: reintentar la llamada completa es seguro.
func (r *TxRunner) Run(ctx context.Context, fn func(
	ledgerRepo repository.StockLedgerRepository,
	holdRepo repository.StockHoldRepository,
	idemRepo repository.IdempotencyRepository,
) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", domain.ErrTransientStore, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ledgerRepo := NewStockLedgerRepository(tx)
	holdRepo := NewStockHoldRepository(tx)
	idemRepo := NewIdempotencyRepository(tx)

	if err := fn(ledgerRepo, holdRepo, idemRepo); err != nil {
		if isSerializationFailure(err) {
			return fmt.Errorf("%w: %v", domain.ErrTransientStore, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return fmt.Errorf("%w: %v", domain.ErrTransientStore, err)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
