package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jhoicas/StockLedger-api/internal/domain"
	"github.com/jhoicas/StockLedger-api/internal/domain/repository"
)

var _ repository.IdempotencyRepository = (*IdempotencyRepo)(nil)

// IdempotencyRepo guardia de idempotencia sobre una tabla con clave única.
// La detección de repetición es el propio unique violation del INSERT: ningún
// SELECT previo, sin ventana de carrera.
type IdempotencyRepo struct {
	q Querier
}

// NewIdempotencyRepository construye el adaptador. Pasar pool o tx (Querier).
func NewIdempotencyRepository(q Querier) *IdempotencyRepo {
	return &IdempotencyRepo{q: q}
}

// Guard inserta la clave; ErrReplay si ya existía. Llamar dentro de la misma
// transacción que el efecto protegido: si la transacción aborta, la clave
// desaparece con ella y un reintento puede volver a pasar.
func (r *IdempotencyRepo) Guard(key string, meta map[string]any) error {
	var metaJSON []byte
	if meta != nil {
		var err error
		metaJSON, err = json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal idempotency meta: %w", err)
		}
	}
	query := `INSERT INTO idempotency (key, meta, created_at) VALUES ($1, $2, now())`
	_, err := r.q.Exec(context.Background(), query, key, metaJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReplay
		}
		return fmt.Errorf("guard idempotency key: %w", err)
	}
	return nil
}

// DeleteOlderThan purga registros anteriores al corte; devuelve filas borradas.
func (r *IdempotencyRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	tag, err := r.q.Exec(context.Background(),
		`DELETE FROM idempotency WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency records: %w", err)
	}
	return tag.RowsAffected(), nil
}
