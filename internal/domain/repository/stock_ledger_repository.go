package repository

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
)

// StockLedgerRepository puerto de persistencia del ledger de stock.
// Append-only: las filas nunca se modifican ni se borran; el ledger registra
// la verdad, no la vigila (aquí no se impone piso de stock).
type StockLedgerRepository interface {
	// Append inserta un asiento nuevo (atómico por llamada).
	Append(entry *entity.LedgerEntry) error
	// SumOnHand suma los deltas de una identidad exacta (variante-o-nula).
	SumOnHand(identity entity.StockIdentity) (decimal.Decimal, error)
	// ListByReference lista asientos de un documento de referencia del negocio.
	ListByReference(businessID entity.ID, referenceType string, referenceID entity.ID) ([]*entity.LedgerEntry, error)
	// ListByIdentity lista asientos de una identidad en un rango de fechas.
	ListByIdentity(identity entity.StockIdentity, from, to *time.Time, limit, offset int) ([]*entity.LedgerEntry, error)
}
