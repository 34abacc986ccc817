package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/StockLedger-api/internal/domain"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
)

// HoldItemDTO una línea de reserva en peticiones y respuestas.
type HoldItemDTO struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Qty       int64  `json:"qty"`
}

// PlaceHoldRequest body para POST /api/stock/holds.
type PlaceHoldRequest struct {
	CartID           string        `json:"cart_id"`
	Items            []HoldItemDTO `json:"items"`
	IdempotencyKey   string        `json:"idempotency_key,omitempty"`
	Purpose          string        `json:"purpose,omitempty"`
	Ref              string        `json:"ref,omitempty"`
	ExpiresInMinutes int           `json:"expires_in_minutes,omitempty"`
}

// CaptureHoldRequest body para POST /api/stock/holds/:hold_id/capture.
type CaptureHoldRequest struct {
	SaleID         string         `json:"sale_id,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// ReleaseHoldRequest body para POST /api/stock/holds/:hold_id/release.
type ReleaseHoldRequest struct {
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// StockHoldResponse representación HTTP de un hold.
type StockHoldResponse struct {
	HoldID         string        `json:"hold_id"`
	BusinessID     string        `json:"business_id"`
	OutletID       string        `json:"outlet_id"`
	CashierID      string        `json:"cashier_id"`
	CartID         string        `json:"cart_id"`
	Items          []HoldItemDTO `json:"items"`
	Status         string        `json:"status"`
	Purpose        string        `json:"purpose,omitempty"`
	Ref            string        `json:"ref,omitempty"`
	CapturedSaleID string        `json:"captured_sale_id,omitempty"`
	ReleaseReason  string        `json:"release_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	ExpiresAt      time.Time     `json:"expires_at"`
}

// NewStockHoldResponse mapea la entidad a su respuesta HTTP.
func NewStockHoldResponse(h *entity.StockHold) StockHoldResponse {
	items := make([]HoldItemDTO, 0, len(h.Items))
	for _, it := range h.Items {
		d := HoldItemDTO{ProductID: it.ProductID.String(), Qty: it.Qty}
		if it.VariantID != nil {
			d.VariantID = it.VariantID.String()
		}
		items = append(items, d)
	}
	resp := StockHoldResponse{
		HoldID:        h.HoldID,
		BusinessID:    h.BusinessID.String(),
		OutletID:      h.OutletID.String(),
		CashierID:     h.CashierID.String(),
		CartID:        h.CartID,
		Items:         items,
		Status:        h.Status,
		Purpose:       h.Purpose,
		Ref:           h.Ref,
		ReleaseReason: h.ReleaseReason,
		CreatedAt:     h.CreatedAt,
		UpdatedAt:     h.UpdatedAt,
		ExpiresAt:     h.ExpiresAt,
	}
	if h.CapturedSaleID != nil {
		resp.CapturedSaleID = h.CapturedSaleID.String()
	}
	return resp
}

// CaptureHoldResponse resultado de una captura.
type CaptureHoldResponse struct {
	HoldID   string `json:"hold_id"`
	Captured bool   `json:"captured"`
	Replayed bool   `json:"replayed"`
}

// ReleaseHoldResponse resultado de una liberación.
type ReleaseHoldResponse struct {
	HoldID   string `json:"hold_id"`
	Released bool   `json:"released"`
	Replayed bool   `json:"replayed"`
}

// SweepExpiredResponse resultado del barrido de holds vencidos.
type SweepExpiredResponse struct {
	Released int `json:"released"`
}

// AvailabilityResponse disponibilidad derivada de una identidad de stock.
type AvailabilityResponse struct {
	ProductID          string          `json:"product_id"`
	VariantID          string          `json:"variant_id,omitempty"`
	OutletID           string          `json:"outlet_id"`
	OnHand             decimal.Decimal `json:"on_hand"`
	Committed          decimal.Decimal `json:"committed"`
	AvailableToReserve decimal.Decimal `json:"available_to_reserve"`
}

// RegisterEntryRequest body para POST /api/stock/movements.
type RegisterEntryRequest struct {
	OutletID       string           `json:"outlet_id"`
	ProductID      string           `json:"product_id"`
	VariantID      string           `json:"variant_id,omitempty"`
	QuantityDelta  decimal.Decimal  `json:"quantity_delta"`
	ReferenceType  string           `json:"reference_type"`
	ReferenceID    string           `json:"reference_id,omitempty"`
	UnitCost       *decimal.Decimal `json:"unit_cost,omitempty"`
	Note           string           `json:"note,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
}

// LedgerEntryResponse representación HTTP de un asiento del ledger.
type LedgerEntryResponse struct {
	ID            string           `json:"id"`
	BusinessID    string           `json:"business_id"`
	OutletID      string           `json:"outlet_id"`
	ProductID     string           `json:"product_id"`
	VariantID     string           `json:"variant_id,omitempty"`
	QuantityDelta decimal.Decimal  `json:"quantity_delta"`
	ReferenceType string           `json:"reference_type"`
	ReferenceID   string           `json:"reference_id,omitempty"`
	UnitCost      *decimal.Decimal `json:"unit_cost,omitempty"`
	Note          string           `json:"note,omitempty"`
	CreatedBy     string           `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NewLedgerEntryResponse mapea la entidad a su respuesta HTTP.
func NewLedgerEntryResponse(e *entity.LedgerEntry) LedgerEntryResponse {
	resp := LedgerEntryResponse{
		ID:            e.ID.String(),
		BusinessID:    e.BusinessID.String(),
		OutletID:      e.OutletID.String(),
		ProductID:     e.ProductID.String(),
		QuantityDelta: e.QuantityDelta,
		ReferenceType: e.ReferenceType,
		UnitCost:      e.UnitCost,
		Note:          e.Note,
		CreatedBy:     e.CreatedBy.String(),
		CreatedAt:     e.CreatedAt,
	}
	if e.VariantID != nil {
		resp.VariantID = e.VariantID.String()
	}
	if e.ReferenceID != nil {
		resp.ReferenceID = e.ReferenceID.String()
	}
	return resp
}

// ShortfallDTO detalle por línea de un rechazo por stock insuficiente.
type ShortfallDTO struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Requested int64           `json:"requested"`
	Available decimal.Decimal `json:"available"`
}

// NewShortfallDTOs mapea los faltantes de un rechazo de reserva.
func NewShortfallDTOs(e *domain.InsufficientStockError) []ShortfallDTO {
	out := make([]ShortfallDTO, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		d := ShortfallDTO{
			ProductID: s.ProductID.String(),
			Requested: s.Requested,
			Available: s.Available,
		}
		if s.VariantID != nil {
			d.VariantID = s.VariantID.String()
		}
		out = append(out, d)
	}
	return out
}
