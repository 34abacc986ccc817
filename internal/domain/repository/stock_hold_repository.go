package repository

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
)

// StockHoldRepository puerto de persistencia de holds de stock.
// Los holds se mutan in situ (solo el campo status y sus satélites), por lo que
// toda decisión que lea committed debe tomarse en la misma transacción que la
// escritura dependiente.
type StockHoldRepository interface {
	// Create inserta el hold con sus líneas, en estado ACTIVE.
	Create(hold *entity.StockHold) error
	// GetByID carga el hold con sus líneas; nil si no existe.
	GetByID(holdID string) (*entity.StockHold, error)
	// FindActiveByCart devuelve el hold ACTIVE de un carrito; nil si no hay.
	FindActiveByCart(businessID entity.ID, cartID string) (*entity.StockHold, error)
	// SumCommitted suma qty de las líneas de holds ACTIVE que calzan la identidad.
	SumCommitted(identity entity.StockIdentity) (decimal.Decimal, error)
	// MarkCaptured transiciona ACTIVE→CAPTURED; ErrHoldNotActive si perdió la carrera.
	MarkCaptured(holdID string, saleID *entity.ID) error
	// MarkReleased transiciona ACTIVE→RELEASED; ErrHoldNotActive si perdió la carrera.
	MarkReleased(holdID string, reason string) error
	// ListExpired holds ACTIVE de un negocio con expires_at <= asOf (batch acotado).
	ListExpired(businessID entity.ID, asOf time.Time, limit int) ([]*entity.StockHold, error)
	// BusinessesWithExpired negocios con al menos un hold ACTIVE vencido.
	BusinessesWithExpired(asOf time.Time) ([]entity.ID, error)
}
