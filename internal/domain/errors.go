package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
)

// Errores de dominio (sin dependencias de infraestructura).
var (
	ErrNotFound       = errors.New("recurso no encontrado")
	ErrInvalidInput   = errors.New("entrada inválida")
	ErrReplay         = errors.New("operación ya ejecutada (replay idempotente)")
	ErrHoldNotActive  = errors.New("hold inexistente o ya terminal")
	ErrTenantMismatch = errors.New("el hold pertenece a otro negocio")
	ErrTransientStore = errors.New("fallo transitorio del almacén; reintentar la operación completa")
)

// StockShortfall faltante de una línea al intentar reservar.
type StockShortfall struct {
	ProductID entity.ID
	VariantID *entity.ID
	Requested int64
	Available decimal.Decimal
}

// InsufficientStockError falla de reserva con el detalle de TODAS las líneas
// cortas, no solo la primera, para que el caller muestre faltantes exactos.
// No es reintentable sin cambiar la petición.
type InsufficientStockError struct {
	Shortfalls []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	var b strings.Builder
	b.WriteString("stock insuficiente")
	for _, s := range e.Shortfalls {
		variant := ""
		if s.VariantID != nil {
			variant = "/" + s.VariantID.String()
		}
		fmt.Fprintf(&b, "; producto %s%s: pedido %d, disponible %s",
			s.ProductID, variant, s.Requested, s.Available)
	}
	return b.String()
}

// IsInsufficientStock extrae el detalle de faltantes si err lo es.
func IsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return ise, true
	}
	return nil, false
}
