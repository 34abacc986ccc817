package stock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/jhoicas/StockLedger-api/internal/domain"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
	"github.com/jhoicas/StockLedger-api/internal/domain/repository"
	"github.com/jhoicas/StockLedger-api/internal/metrics"
)

// Valores por defecto del ciclo de vida de holds.
const (
	DefaultHoldTTLMinutes = 15
	DefaultSweepBatchSize = 200
)

// HoldUseCase gestiona el ciclo de vida de reservas de stock
// (place/capture/release/sweep) sobre el ledger y el guard de idempotencia.
// Cada entrada mutadora anida el insert de idempotencia dentro de la misma
// transacción, de modo que una petición duplicada en carrera o falla rápido
// como replay o se ejecuta exactamente una vez.
type HoldUseCase struct {
	txRunner   TxRunner
	ledgerRepo repository.StockLedgerRepository // atado al pool: lecturas fuera de tx
	holdRepo   repository.StockHoldRepository   // atado al pool: resolución de replays y sweep
	defaultTTL time.Duration
	sweepBatch int
}

// NewHoldUseCase construye el caso de uso. ttlMinutes/sweepBatch en cero toman
// los valores por defecto.
func NewHoldUseCase(
	txRunner TxRunner,
	ledgerRepo repository.StockLedgerRepository,
	holdRepo repository.StockHoldRepository,
	ttlMinutes, sweepBatch int,
) *HoldUseCase {
	if ttlMinutes <= 0 {
		ttlMinutes = DefaultHoldTTLMinutes
	}
	if sweepBatch <= 0 {
		sweepBatch = DefaultSweepBatchSize
	}
	return &HoldUseCase{
		txRunner:   txRunner,
		ledgerRepo: ledgerRepo,
		holdRepo:   holdRepo,
		defaultTTL: time.Duration(ttlMinutes) * time.Minute,
		sweepBatch: sweepBatch,
	}
}

// PlaceHoldInput entrada para reservar stock para un carrito.
type PlaceHoldInput struct {
	BusinessID       entity.ID
	OutletID         entity.ID
	CashierID        entity.ID
	CartID           string
	Items            []entity.HoldItem
	IdempotencyKey   string // vacío = derivar del payload normalizado
	Purpose          string
	Ref              string
	ExpiresInMinutes int // <=0 usa el TTL por defecto
}

// PlaceHold reserva stock para un carrito: un hold con varias líneas.
// Transacción única: guard de idempotencia, chequeo de disponibilidad por línea
// (todo-o-nada: una sola línea corta rechaza la llamada completa sin holds
// parciales) e insert del hold en ACTIVE con expires_at = now + ttl.
// En replay resuelve al hold ACTIVE existente del carrito en vez de fallar.
func (uc *HoldUseCase) PlaceHold(ctx context.Context, in PlaceHoldInput) (*entity.StockHold, error) {
	if in.BusinessID.IsZero() || in.OutletID.IsZero() || in.CashierID.IsZero() ||
		in.CartID == "" || len(in.Items) == 0 {
		return nil, domain.ErrInvalidInput
	}
	for _, it := range in.Items {
		if it.ProductID.IsZero() || it.Qty <= 0 {
			return nil, domain.ErrInvalidInput
		}
	}

	key := in.IdempotencyKey
	ref := in.Ref
	if key == "" {
		k := KeysForPlaceHold(in.BusinessID, in.OutletID, in.CashierID, in.CartID, in.Items)
		key = k.Idem
		if ref == "" {
			ref = k.Ref
		}
	}

	ttl := uc.defaultTTL
	if in.ExpiresInMinutes > 0 {
		ttl = time.Duration(in.ExpiresInMinutes) * time.Minute
	}

	now := time.Now().UTC()
	hold := &entity.StockHold{
		HoldID:     "stock-hold-" + uuid.New().String(),
		BusinessID: in.BusinessID,
		OutletID:   in.OutletID,
		CashierID:  in.CashierID,
		CartID:     in.CartID,
		Items:      in.Items,
		Status:     entity.HoldStatusActive,
		Purpose:    in.Purpose,
		Ref:        ref,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	err := uc.txRunner.Run(ctx, func(
		ledgerRepo repository.StockLedgerRepository,
		holdRepo repository.StockHoldRepository,
		idemRepo repository.IdempotencyRepository,
	) error {
		if err := idemRepo.Guard(key, map[string]any{
			"op":          "stock_hold",
			"business_id": in.BusinessID.String(),
			"cart_id":     in.CartID,
			"ref":         ref,
		}); err != nil {
			return err
		}

		// Chequeo on_hand - committed dentro de la misma transacción que el
		// insert del hold. Las líneas que repiten identidad se agregan antes
		// de comparar: el carrito compite con su total pedido, nunca línea a
		// línea contra el mismo snapshot. Se acumulan TODOS los faltantes.
		demands := aggregateDemand(in.BusinessID, in.OutletID, in.Items)
		var shortfalls []domain.StockShortfall
		for _, d := range demands {
			onHand, err := ledgerRepo.SumOnHand(d.identity)
			if err != nil {
				return err
			}
			committed, err := holdRepo.SumCommitted(d.identity)
			if err != nil {
				return err
			}
			available := onHand.Sub(committed)
			if available.LessThan(decimal.NewFromInt(d.qty)) {
				shortfalls = append(shortfalls, domain.StockShortfall{
					ProductID: d.identity.ProductID,
					VariantID: d.identity.VariantID,
					Requested: d.qty,
					Available: available,
				})
			}
		}
		if len(shortfalls) > 0 {
			return &domain.InsufficientStockError{Shortfalls: shortfalls}
		}
		return holdRepo.Create(hold)
	})

	if err != nil {
		if errors.Is(err, domain.ErrReplay) {
			metrics.IdempotentReplays.Inc()
			// Misma petición ya ejecutada: resolver al hold ACTIVE del carrito.
			existing, ferr := uc.holdRepo.FindActiveByCart(in.BusinessID, in.CartID)
			if ferr == nil && existing != nil {
				return existing, nil
			}
			return nil, err
		}
		if _, ok := domain.IsInsufficientStock(err); ok {
			metrics.InsufficientStockRejections.Inc()
		}
		return nil, err
	}

	metrics.HoldsPlaced.Inc()
	return hold, nil
}

// CaptureHoldInput entrada de captura.
type CaptureHoldInput struct {
	BusinessID     entity.ID
	HoldID         string
	IdempotencyKey string
	SaleID         *entity.ID
	Meta           map[string]any
}

// CaptureResult resultado de una captura (Replayed indica no-op por repetición).
type CaptureResult struct {
	HoldID   string
	Captured bool
	Replayed bool
}

// CaptureHold finaliza un carrito reservado: agrega un asiento SALE con delta
// negativo por cada línea y marca el hold CAPTURED, todo en una transacción.
// Este es el único camino que convierte una reserva en decremento real: los
// holds por sí solos nunca tocan el on-hand.
// Una recaptura con el mismo sale_id es no-op exitoso; con otro sale_id es
// conflicto HoldNotActive.
func (uc *HoldUseCase) CaptureHold(ctx context.Context, in CaptureHoldInput) (*CaptureResult, error) {
	if in.BusinessID.IsZero() || in.HoldID == "" {
		return nil, domain.ErrInvalidInput
	}
	key := in.IdempotencyKey
	if key == "" {
		key = KeysForCapture(in.BusinessID, in.HoldID, in.SaleID).Idem
	}

	var replayed bool
	err := uc.txRunner.Run(ctx, func(
		ledgerRepo repository.StockLedgerRepository,
		holdRepo repository.StockHoldRepository,
		idemRepo repository.IdempotencyRepository,
	) error {
		hold, err := holdRepo.GetByID(in.HoldID)
		if err != nil {
			return err
		}
		if hold == nil {
			return domain.ErrHoldNotActive
		}
		if hold.BusinessID != in.BusinessID {
			return domain.ErrTenantMismatch
		}
		if hold.Status == entity.HoldStatusCaptured {
			if sameSale(hold.CapturedSaleID, in.SaleID) {
				replayed = true
				return nil
			}
			return domain.ErrHoldNotActive
		}
		if !hold.IsActive() {
			return domain.ErrHoldNotActive
		}

		meta := map[string]any{
			"op":          "stock_capture",
			"business_id": in.BusinessID.String(),
			"hold_id":     in.HoldID,
		}
		for k, v := range in.Meta {
			meta[k] = v
		}
		if err := idemRepo.Guard(key, meta); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, it := range hold.Items {
			entry := &entity.LedgerEntry{
				ID:            entity.NewID(),
				BusinessID:    hold.BusinessID,
				OutletID:      hold.OutletID,
				ProductID:     it.ProductID,
				VariantID:     it.VariantID,
				QuantityDelta: decimal.NewFromInt(-it.Qty), // SALE -> negativo
				ReferenceType: entity.ReferenceTypeSALE,
				ReferenceID:   in.SaleID,
				CreatedBy:     hold.CashierID,
				CreatedAt:     now,
			}
			if err := ledgerRepo.Append(entry); err != nil {
				return err
			}
		}
		return holdRepo.MarkCaptured(hold.HoldID, in.SaleID)
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		metrics.IdempotentReplays.Inc()
	} else {
		metrics.HoldsCaptured.Inc()
	}
	return &CaptureResult{HoldID: in.HoldID, Captured: true, Replayed: replayed}, nil
}

// ReleaseHoldInput entrada de liberación.
type ReleaseHoldInput struct {
	BusinessID     entity.ID
	HoldID         string
	IdempotencyKey string
	Reason         string
}

// ReleaseResult resultado de una liberación.
type ReleaseResult struct {
	HoldID   string
	Released bool
	Replayed bool
}

// ReleaseHold cancela una reserva: marca el hold RELEASED con release_reason.
// Sin escrituras al ledger — liberar solo devuelve capacidad comprometida.
// Una repetición de la misma liberación (misma clave) es no-op exitoso; liberar
// un hold terminal por otra vía es conflicto HoldNotActive.
func (uc *HoldUseCase) ReleaseHold(ctx context.Context, in ReleaseHoldInput) (*ReleaseResult, error) {
	if in.BusinessID.IsZero() || in.HoldID == "" {
		return nil, domain.ErrInvalidInput
	}
	key := in.IdempotencyKey
	if key == "" {
		key = KeysForRelease(in.BusinessID, in.HoldID, in.Reason).Idem
	}

	meta := map[string]any{
		"op":          "stock_release",
		"business_id": in.BusinessID.String(),
		"hold_id":     in.HoldID,
		"reason":      in.Reason,
	}

	var replayed bool
	err := uc.txRunner.Run(ctx, func(
		_ repository.StockLedgerRepository,
		holdRepo repository.StockHoldRepository,
		idemRepo repository.IdempotencyRepository,
	) error {
		hold, err := holdRepo.GetByID(in.HoldID)
		if err != nil {
			return err
		}
		if hold == nil {
			return domain.ErrHoldNotActive
		}
		if hold.BusinessID != in.BusinessID {
			return domain.ErrTenantMismatch
		}
		if !hold.IsActive() {
			// Si esta misma liberación ya corrió, el guard la detecta como
			// replay y la respuesta es el resultado previo. Si el hold quedó
			// terminal por otra operación, es conflicto (el insert del guard
			// se revierte junto con la transacción).
			if err := idemRepo.Guard(key, meta); errors.Is(err, domain.ErrReplay) {
				replayed = true
				return nil
			} else if err != nil {
				return err
			}
			return domain.ErrHoldNotActive
		}
		if err := idemRepo.Guard(key, meta); err != nil {
			return err
		}
		return holdRepo.MarkReleased(hold.HoldID, in.Reason)
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		metrics.IdempotentReplays.Inc()
	} else {
		metrics.HoldsReleased.WithLabelValues(releaseReasonLabel(in.Reason)).Inc()
	}
	return &ReleaseResult{HoldID: in.HoldID, Released: true, Replayed: replayed}, nil
}

// SweepExpired barre holds ACTIVE vencidos de un negocio (batch acotado) y los
// libera uno a uno con reason="timeout" y clave determinista por
// (negocio, hold): un sweep concurrente, una liberación manual o una captura
// compitiendo por el mismo hold no pueden transicionarlo dos veces — quien
// pierde observa "no ACTIVE" y se cuenta como ya atendido, no como error.
// olderThanMinutes se acepta por contrato; el instante de vencimiento es dato
// del propio hold (expires_at <= now).
func (uc *HoldUseCase) SweepExpired(ctx context.Context, businessID entity.ID, olderThanMinutes int) (int, error) {
	if businessID.IsZero() {
		return 0, domain.ErrInvalidInput
	}
	_ = olderThanMinutes

	expired, err := uc.holdRepo.ListExpired(businessID, time.Now().UTC(), uc.sweepBatch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, h := range expired {
		k := KeysForExpiredRelease(businessID, h.HoldID)
		res, err := uc.ReleaseHold(ctx, ReleaseHoldInput{
			BusinessID:     businessID,
			HoldID:         h.HoldID,
			IdempotencyKey: k.Idem,
			Reason:         "timeout",
		})
		switch {
		case err == nil:
			if !res.Replayed {
				released++
			}
		case errors.Is(err, domain.ErrHoldNotActive):
			// Otro worker, una liberación manual o una captura ganó: ya atendido.
		default:
			return released, err
		}
	}
	return released, nil
}

// GetAvailability deriva on_hand, committed y available_to_reserve para una
// identidad. Lectura informativa fuera de transacción; la decisión de reservar
// siempre se recalcula dentro de la transacción de PlaceHold.
func (uc *HoldUseCase) GetAvailability(ctx context.Context, identity entity.StockIdentity) (*entity.Availability, error) {
	if identity.BusinessID.IsZero() || identity.OutletID.IsZero() || identity.ProductID.IsZero() {
		return nil, domain.ErrInvalidInput
	}
	_ = ctx
	onHand, err := uc.ledgerRepo.SumOnHand(identity)
	if err != nil {
		return nil, err
	}
	committed, err := uc.holdRepo.SumCommitted(identity)
	if err != nil {
		return nil, err
	}
	return &entity.Availability{
		OnHand:             onHand,
		Committed:          committed,
		AvailableToReserve: onHand.Sub(committed),
	}, nil
}

// GetHold carga un hold verificando pertenencia al negocio.
func (uc *HoldUseCase) GetHold(ctx context.Context, businessID entity.ID, holdID string) (*entity.StockHold, error) {
	if businessID.IsZero() || holdID == "" {
		return nil, domain.ErrInvalidInput
	}
	_ = ctx
	hold, err := uc.holdRepo.GetByID(holdID)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, domain.ErrNotFound
	}
	if hold.BusinessID != businessID {
		return nil, domain.ErrTenantMismatch
	}
	return hold, nil
}

// releaseReasonLabel acota el motivo libre del caller a un conjunto conocido:
// la etiqueta de la métrica no puede tener cardinalidad abierta.
func releaseReasonLabel(reason string) string {
	switch reason {
	case "", "manual":
		return "manual"
	case "timeout":
		return "timeout"
	default:
		return "other"
	}
}

// identityDemand total pedido por identidad exacta dentro de un carrito.
type identityDemand struct {
	identity entity.StockIdentity
	qty      int64
}

// aggregateDemand suma las qty de las líneas que comparten identidad
// (producto + variante-o-nula), preservando el orden de primera aparición.
func aggregateDemand(businessID, outletID entity.ID, items []entity.HoldItem) []identityDemand {
	demands := make([]identityDemand, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		k := it.ProductID.String()
		if it.VariantID != nil {
			k += "|" + it.VariantID.String()
		}
		if i, ok := index[k]; ok {
			demands[i].qty += it.Qty
			continue
		}
		index[k] = len(demands)
		demands = append(demands, identityDemand{
			identity: entity.StockIdentity{
				BusinessID: businessID,
				OutletID:   outletID,
				ProductID:  it.ProductID,
				VariantID:  it.VariantID,
			},
			qty: it.Qty,
		})
	}
	return demands
}

func sameSale(a, b *entity.ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
