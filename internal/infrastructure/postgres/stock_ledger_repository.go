package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
	"github.com/jhoicas/StockLedger-api/internal/domain/repository"
)

var _ repository.StockLedgerRepository = (*StockLedgerRepo)(nil)

// StockLedgerRepo implementación del ledger sobre PostgreSQL (usable con pool o tx).
// Solo INSERT y SELECT: no existen UPDATE ni DELETE sobre stock_ledger.
type StockLedgerRepo struct {
	q Querier
}

// NewStockLedgerRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockLedgerRepository(q Querier) *StockLedgerRepo {
	return &StockLedgerRepo{q: q}
}

// Append inserta un asiento del ledger.
func (r *StockLedgerRepo) Append(entry *entity.LedgerEntry) error {
	if entry.ID.IsZero() {
		entry.ID = entity.NewID()
	}
	query := `
		INSERT INTO stock_ledger (id, business_id, outlet_id, product_id, variant_id,
			quantity_delta, reference_type, reference_id, unit_cost, note, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	note := (*string)(nil)
	if entry.Note != "" {
		note = &entry.Note
	}
	_, err := r.q.Exec(context.Background(), query,
		entry.ID.String(), entry.BusinessID.String(), entry.OutletID.String(),
		entry.ProductID.String(), optIDArg(entry.VariantID),
		entry.QuantityDelta, entry.ReferenceType, optIDArg(entry.ReferenceID),
		entry.UnitCost, note, entry.CreatedBy.String(), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// SumOnHand suma los deltas de la identidad exacta. variant_id NULL es una
// identidad propia: IS NOT DISTINCT FROM nunca mezcla "sin variante" con una
// variante concreta.
func (r *StockLedgerRepo) SumOnHand(identity entity.StockIdentity) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(quantity_delta), 0)
		FROM stock_ledger
		WHERE business_id = $1 AND outlet_id = $2 AND product_id = $3
		  AND variant_id IS NOT DISTINCT FROM $4`
	var sum decimal.Decimal
	err := r.q.QueryRow(context.Background(), query,
		identity.BusinessID.String(), identity.OutletID.String(),
		identity.ProductID.String(), optIDArg(identity.VariantID),
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum on hand: %w", err)
	}
	return sum, nil
}

const ledgerColumns = `id, business_id, outlet_id, product_id, variant_id,
	quantity_delta, reference_type, reference_id, unit_cost, note, created_by, created_at`

// ListByReference lista los asientos de un documento de referencia.
func (r *StockLedgerRepo) ListByReference(businessID entity.ID, referenceType string, referenceID entity.ID) ([]*entity.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM stock_ledger
		WHERE business_id = $1 AND reference_type = $2 AND reference_id = $3
		ORDER BY created_at ASC`
	rows, err := r.q.Query(context.Background(), query, businessID.String(), referenceType, referenceID.String())
	if err != nil {
		return nil, fmt.Errorf("list by reference: %w", err)
	}
	defer rows.Close()
	return scanLedgerEntries(rows)
}

// ListByIdentity lista los asientos de una identidad en un rango de fechas.
func (r *StockLedgerRepo) ListByIdentity(identity entity.StockIdentity, from, to *time.Time, limit, offset int) ([]*entity.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM stock_ledger
		WHERE business_id = $1 AND outlet_id = $2 AND product_id = $3
		  AND variant_id IS NOT DISTINCT FROM $4`
	args := []any{
		identity.BusinessID.String(), identity.OutletID.String(),
		identity.ProductID.String(), optIDArg(identity.VariantID),
	}
	pos := 5
	if from != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", pos)
		args = append(args, *from)
		pos++
	}
	if to != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", pos)
		args = append(args, *to)
		pos++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", pos, pos+1)
	args = append(args, limit, offset)

	rows, err := r.q.Query(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list by identity: %w", err)
	}
	defer rows.Close()
	return scanLedgerEntries(rows)
}

type ledgerRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanLedgerEntries(rows ledgerRows) ([]*entity.LedgerEntry, error) {
	var list []*entity.LedgerEntry
	for rows.Next() {
		var e entity.LedgerEntry
		var id, businessID, outletID, productID, createdBy string
		var variantID, referenceID, note *string
		var unitCost *decimal.Decimal
		if err := rows.Scan(&id, &businessID, &outletID, &productID, &variantID,
			&e.QuantityDelta, &e.ReferenceType, &referenceID, &unitCost, &note,
			&createdBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.ID = entity.ID(id)
		e.BusinessID = entity.ID(businessID)
		e.OutletID = entity.ID(outletID)
		e.ProductID = entity.ID(productID)
		e.VariantID = optID(variantID)
		e.ReferenceID = optID(referenceID)
		e.UnitCost = unitCost
		if note != nil {
			e.Note = *note
		}
		e.CreatedBy = entity.ID(createdBy)
		list = append(list, &e)
	}
	return list, rows.Err()
}
