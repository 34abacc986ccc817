package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/StockLedger-api/internal/domain"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
	"github.com/jhoicas/StockLedger-api/internal/domain/repository"
	"github.com/jhoicas/StockLedger-api/internal/metrics"
)

// LedgerUseCase registra movimientos directos del ledger (aperturas, compras,
// ajustes, transferencias, devoluciones) y resuelve consultas de historial.
// El ledger no impone piso de stock: registra la verdad, no la vigila.
type LedgerUseCase struct {
	txRunner   TxRunner
	ledgerRepo repository.StockLedgerRepository // atado al pool: consultas
}

// NewLedgerUseCase construye el caso de uso del ledger.
func NewLedgerUseCase(txRunner TxRunner, ledgerRepo repository.StockLedgerRepository) *LedgerUseCase {
	return &LedgerUseCase{txRunner: txRunner, ledgerRepo: ledgerRepo}
}

// RegisterEntryInput entrada para un asiento directo del ledger.
type RegisterEntryInput struct {
	BusinessID     entity.ID
	OutletID       entity.ID
	ProductID      entity.ID
	VariantID      *entity.ID
	QuantityDelta  decimal.Decimal
	ReferenceType  string
	ReferenceID    *entity.ID
	UnitCost       *decimal.Decimal
	Note           string
	CreatedBy      entity.ID
	IdempotencyKey string // opcional: protege reintentos de cargas/ajustes
}

// RegisterEntry agrega un asiento con delta firmado. Los asientos SALE solo
// nacen de la captura de un hold, nunca por esta vía.
func (uc *LedgerUseCase) RegisterEntry(ctx context.Context, in RegisterEntryInput) (*entity.LedgerEntry, error) {
	if in.BusinessID.IsZero() || in.OutletID.IsZero() || in.ProductID.IsZero() {
		return nil, domain.ErrInvalidInput
	}
	if !entity.ValidReferenceType(in.ReferenceType) || in.ReferenceType == entity.ReferenceTypeSALE {
		return nil, domain.ErrInvalidInput
	}
	if in.QuantityDelta.IsZero() {
		return nil, domain.ErrInvalidInput
	}
	if in.UnitCost != nil && in.UnitCost.IsNegative() {
		return nil, domain.ErrInvalidInput
	}

	entry := &entity.LedgerEntry{
		ID:            entity.NewID(),
		BusinessID:    in.BusinessID,
		OutletID:      in.OutletID,
		ProductID:     in.ProductID,
		VariantID:     in.VariantID,
		QuantityDelta: in.QuantityDelta,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		UnitCost:      in.UnitCost,
		Note:          in.Note,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     time.Now().UTC(),
	}

	err := uc.txRunner.Run(ctx, func(
		ledgerRepo repository.StockLedgerRepository,
		_ repository.StockHoldRepository,
		idemRepo repository.IdempotencyRepository,
	) error {
		if in.IdempotencyKey != "" {
			if err := idemRepo.Guard(in.IdempotencyKey, map[string]any{
				"op":             "stock_entry",
				"business_id":    in.BusinessID.String(),
				"reference_type": in.ReferenceType,
			}); err != nil {
				return err
			}
		}
		return ledgerRepo.Append(entry)
	})
	if err != nil {
		return nil, err
	}

	metrics.LedgerEntriesAppended.WithLabelValues(in.ReferenceType).Inc()
	return entry, nil
}

// MovementsByReference lista los asientos generados por un documento
// (p. ej. todos los SALE de una venta concreta).
func (uc *LedgerUseCase) MovementsByReference(ctx context.Context, businessID entity.ID, referenceType string, referenceID entity.ID) ([]*entity.LedgerEntry, error) {
	if businessID.IsZero() || !entity.ValidReferenceType(referenceType) || referenceID.IsZero() {
		return nil, domain.ErrInvalidInput
	}
	_ = ctx
	return uc.ledgerRepo.ListByReference(businessID, referenceType, referenceID)
}

// MovementsByIdentity lista el historial de una identidad en un rango de fechas.
func (uc *LedgerUseCase) MovementsByIdentity(ctx context.Context, identity entity.StockIdentity, from, to *time.Time, limit, offset int) ([]*entity.LedgerEntry, error) {
	if identity.BusinessID.IsZero() || identity.OutletID.IsZero() || identity.ProductID.IsZero() {
		return nil, domain.ErrInvalidInput
	}
	_ = ctx
	return uc.ledgerRepo.ListByIdentity(identity, from, to, limit, offset)
}
