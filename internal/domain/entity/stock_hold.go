package entity

import "time"

// Estados del ciclo de vida de un hold. Transiciones permitidas:
// ACTIVE→CAPTURED y ACTIVE→RELEASED, ambas terminales. Nunca se revierte ni se
// borra un hold (rastro de auditoría).
const (
	HoldStatusActive   = "ACTIVE"
	HoldStatusCaptured = "CAPTURED"
	HoldStatusReleased = "RELEASED"
)

// HoldItem una línea de reserva dentro de un hold (qty siempre > 0).
type HoldItem struct {
	ProductID ID
	VariantID *ID
	Qty       int64
}

// StockHold una reserva provisional de stock para un carrito previo al cobro.
// Un documento por carrito con varias líneas; compromete capacidad sin tocar
// el on-hand hasta que se captura.
type StockHold struct {
	HoldID         string
	BusinessID     ID
	OutletID       ID
	CashierID      ID
	CartID         string
	Items          []HoldItem
	Status         string
	Purpose        string
	Ref            string
	CapturedSaleID *ID
	ReleaseReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
}

// IsActive indica si el hold sigue comprometiendo capacidad.
func (h *StockHold) IsActive() bool { return h.Status == HoldStatusActive }

// Expired indica si el hold venció respecto a now.
func (h *StockHold) Expired(now time.Time) bool { return !h.ExpiresAt.After(now) }

// CanTransition valida una transición del estado actual a target.
// Solo existen ACTIVE→CAPTURED y ACTIVE→RELEASED.
func (h *StockHold) CanTransition(target string) bool {
	if h.Status != HoldStatusActive {
		return false
	}
	return target == HoldStatusCaptured || target == HoldStatusReleased
}
