package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/jhoicas/StockLedger-api/internal/domain"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
	"github.com/jhoicas/StockLedger-api/internal/domain/repository"
)

var _ repository.StockHoldRepository = (*StockHoldRepo)(nil)

// StockHoldRepo implementación de holds sobre PostgreSQL (usable con pool o tx).
// Un hold es una fila en stock_holds más sus líneas en stock_hold_items. Las
// transiciones de estado van guardadas por status='ACTIVE' en el UPDATE: quien
// pierde la carrera ve cero filas afectadas y recibe ErrHoldNotActive.
type StockHoldRepo struct {
	q Querier
}

// NewStockHoldRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockHoldRepository(q Querier) *StockHoldRepo {
	return &StockHoldRepo{q: q}
}

// Create inserta el hold con sus líneas.
func (r *StockHoldRepo) Create(hold *entity.StockHold) error {
	query := `
		INSERT INTO stock_holds (hold_id, business_id, outlet_id, cashier_id, cart_id,
			status, purpose, ref, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.Exec(context.Background(), query,
		hold.HoldID, hold.BusinessID.String(), hold.OutletID.String(),
		hold.CashierID.String(), hold.CartID, hold.Status, hold.Purpose, hold.Ref,
		hold.CreatedAt, hold.UpdatedAt, hold.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create stock hold: %w", err)
	}
	itemQuery := `
		INSERT INTO stock_hold_items (hold_id, line_no, product_id, variant_id, qty)
		VALUES ($1, $2, $3, $4, $5)`
	for i, it := range hold.Items {
		_, err := r.q.Exec(context.Background(), itemQuery,
			hold.HoldID, i+1, it.ProductID.String(), optIDArg(it.VariantID), it.Qty,
		)
		if err != nil {
			return fmt.Errorf("create stock hold item: %w", err)
		}
	}
	return nil
}

const holdColumns = `hold_id, business_id, outlet_id, cashier_id, cart_id,
	status, purpose, ref, captured_sale_id, release_reason, created_at, updated_at, expires_at`

// GetByID carga el hold con sus líneas; nil si no existe.
func (r *StockHoldRepo) GetByID(holdID string) (*entity.StockHold, error) {
	query := `SELECT ` + holdColumns + ` FROM stock_holds WHERE hold_id = $1`
	hold, err := r.scanHold(r.q.QueryRow(context.Background(), query, holdID))
	if err != nil || hold == nil {
		return hold, err
	}
	if err := r.loadItems(hold); err != nil {
		return nil, err
	}
	return hold, nil
}

// FindActiveByCart devuelve el hold ACTIVE más reciente del carrito; nil si no hay.
func (r *StockHoldRepo) FindActiveByCart(businessID entity.ID, cartID string) (*entity.StockHold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM stock_holds
		WHERE business_id = $1 AND cart_id = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1`
	hold, err := r.scanHold(r.q.QueryRow(context.Background(), query,
		businessID.String(), cartID, entity.HoldStatusActive))
	if err != nil || hold == nil {
		return hold, err
	}
	if err := r.loadItems(hold); err != nil {
		return nil, err
	}
	return hold, nil
}

// SumCommitted suma qty de las líneas de holds ACTIVE que calzan la identidad
// exacta (variante-o-nula, sin mezclar).
func (r *StockHoldRepo) SumCommitted(identity entity.StockIdentity) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(i.qty), 0)
		FROM stock_hold_items i
		JOIN stock_holds h ON h.hold_id = i.hold_id
		WHERE h.business_id = $1 AND h.outlet_id = $2 AND h.status = $3
		  AND i.product_id = $4 AND i.variant_id IS NOT DISTINCT FROM $5`
	var sum decimal.Decimal
	err := r.q.QueryRow(context.Background(), query,
		identity.BusinessID.String(), identity.OutletID.String(), entity.HoldStatusActive,
		identity.ProductID.String(), optIDArg(identity.VariantID),
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum committed: %w", err)
	}
	return sum, nil
}

// MarkCaptured transiciona ACTIVE→CAPTURED registrando captured_sale_id.
func (r *StockHoldRepo) MarkCaptured(holdID string, saleID *entity.ID) error {
	query := `
		UPDATE stock_holds
		SET status = $2, captured_sale_id = $3, updated_at = now()
		WHERE hold_id = $1 AND status = $4`
	tag, err := r.q.Exec(context.Background(), query,
		holdID, entity.HoldStatusCaptured, optIDArg(saleID), entity.HoldStatusActive)
	if err != nil {
		return fmt.Errorf("mark captured: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotActive
	}
	return nil
}

// MarkReleased transiciona ACTIVE→RELEASED registrando release_reason.
func (r *StockHoldRepo) MarkReleased(holdID string, reason string) error {
	query := `
		UPDATE stock_holds
		SET status = $2, release_reason = $3, updated_at = now()
		WHERE hold_id = $1 AND status = $4`
	tag, err := r.q.Exec(context.Background(), query,
		holdID, entity.HoldStatusReleased, reason, entity.HoldStatusActive)
	if err != nil {
		return fmt.Errorf("mark released: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotActive
	}
	return nil
}

// ListExpired holds ACTIVE del negocio con expires_at <= asOf, batch acotado.
// Carga superficial (sin líneas): el sweep solo necesita hold_id.
func (r *StockHoldRepo) ListExpired(businessID entity.ID, asOf time.Time, limit int) ([]*entity.StockHold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM stock_holds
		WHERE business_id = $1 AND status = $2 AND expires_at <= $3
		ORDER BY expires_at ASC
		LIMIT $4`
	rows, err := r.q.Query(context.Background(), query,
		businessID.String(), entity.HoldStatusActive, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	defer rows.Close()

	var list []*entity.StockHold
	for rows.Next() {
		hold, err := r.scanHoldFromRows(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, hold)
	}
	return list, rows.Err()
}

// BusinessesWithExpired negocios con al menos un hold ACTIVE vencido.
func (r *StockHoldRepo) BusinessesWithExpired(asOf time.Time) ([]entity.ID, error) {
	query := `
		SELECT DISTINCT business_id
		FROM stock_holds
		WHERE status = $1 AND expires_at <= $2`
	rows, err := r.q.Query(context.Background(), query, entity.HoldStatusActive, asOf)
	if err != nil {
		return nil, fmt.Errorf("businesses with expired holds: %w", err)
	}
	defer rows.Close()

	var ids []entity.ID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan business id: %w", err)
		}
		ids = append(ids, entity.ID(s))
	}
	return ids, rows.Err()
}

func (r *StockHoldRepo) loadItems(hold *entity.StockHold) error {
	query := `
		SELECT product_id, variant_id, qty
		FROM stock_hold_items
		WHERE hold_id = $1
		ORDER BY line_no ASC`
	rows, err := r.q.Query(context.Background(), query, hold.HoldID)
	if err != nil {
		return fmt.Errorf("load hold items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it entity.HoldItem
		var productID string
		var variantID *string
		if err := rows.Scan(&productID, &variantID, &it.Qty); err != nil {
			return fmt.Errorf("scan hold item: %w", err)
		}
		it.ProductID = entity.ID(productID)
		it.VariantID = optID(variantID)
		hold.Items = append(hold.Items, it)
	}
	return rows.Err()
}

func (r *StockHoldRepo) scanHold(row pgx.Row) (*entity.StockHold, error) {
	hold, err := scanHoldColumns(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock hold: %w", err)
	}
	return hold, nil
}

func (r *StockHoldRepo) scanHoldFromRows(rows pgx.Rows) (*entity.StockHold, error) {
	hold, err := scanHoldColumns(rows.Scan)
	if err != nil {
		return nil, fmt.Errorf("scan stock hold: %w", err)
	}
	return hold, nil
}

func scanHoldColumns(scan func(dest ...any) error) (*entity.StockHold, error) {
	var h entity.StockHold
	var businessID, outletID, cashierID string
	var purpose, ref, capturedSaleID, releaseReason *string
	if err := scan(&h.HoldID, &businessID, &outletID, &cashierID, &h.CartID,
		&h.Status, &purpose, &ref, &capturedSaleID, &releaseReason,
		&h.CreatedAt, &h.UpdatedAt, &h.ExpiresAt); err != nil {
		return nil, err
	}
	h.BusinessID = entity.ID(businessID)
	h.OutletID = entity.ID(outletID)
	h.CashierID = entity.ID(cashierID)
	if purpose != nil {
		h.Purpose = *purpose
	}
	if ref != nil {
		h.Ref = *ref
	}
	h.CapturedSaleID = optID(capturedSaleID)
	if releaseReason != nil {
		h.ReleaseReason = *releaseReason
	}
	return &h, nil
}
