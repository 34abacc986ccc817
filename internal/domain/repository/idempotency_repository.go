package repository

import "time"

// IdempotencyRepository puerto del guard de idempotencia.
type IdempotencyRepository interface {
	// Guard intenta el insert único de {key, created_at, meta}. Una violación de
	// unicidad se convierte en domain.ErrReplay tipado, no en un error genérico:
	// el caller debe resolverlo al resultado previo, nunca reintentar el efecto.
	Guard(key string, meta map[string]any) error
	// DeleteOlderThan recolecta registros fuera de la ventana de retención.
	DeleteOlderThan(cutoff time.Time) (int64, error)
}
