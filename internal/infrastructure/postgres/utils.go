package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
)

// optIDArg convierte un identificador opcional a argumento SQL (nil = NULL).
func optIDArg(id *entity.ID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// optID reconstruye un identificador opcional desde un scan nullable.
func optID(s *string) *entity.ID {
	if s == nil {
		return nil
	}
	id := entity.ID(*s)
	return &id
}

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return strings.Contains(err.Error(), "23505")
}

// isSerializationFailure verifica si un error es un aborto de serialización o
// deadlock (40001 / 40P01): la transacción completa es segura de reintentar
// porque el guard de idempotencia hace inocuos los reintentos.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return strings.Contains(err.Error(), "40001") || strings.Contains(err.Error(), "40P01")
}
