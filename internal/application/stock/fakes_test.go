package stock_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/StockLedger-api/internal/application/stock"
	"github.com/jhoicas/StockLedger-api/internal/domain"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
	"github.com/jhoicas/StockLedger-api/internal/domain/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Almacén en memoria con semántica transaccional para los casos de uso:
// el runner serializa las transacciones con un mutex (equivalente funcional del
// aislamiento SERIALIZABLE para estos tests) y revierte el snapshot si fn falla,
// igual que el rollback real revierte el insert del guard de idempotencia.
// ──────────────────────────────────────────────────────────────────────────────

type memStore struct {
	mu      sync.Mutex
	entries []*entity.LedgerEntry
	holds   map[string]*entity.StockHold
	idem    map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		holds: make(map[string]*entity.StockHold),
		idem:  make(map[string]time.Time),
	}
}

type memSnapshot struct {
	entryCount int
	holds      map[string]*entity.StockHold
	idem       map[string]time.Time
}

func (s *memStore) snapshot() memSnapshot {
	holds := make(map[string]*entity.StockHold, len(s.holds))
	for k, h := range s.holds {
		cp := *h
		cp.Items = append([]entity.HoldItem(nil), h.Items...)
		holds[k] = &cp
	}
	idem := make(map[string]time.Time, len(s.idem))
	for k, v := range s.idem {
		idem[k] = v
	}
	return memSnapshot{entryCount: len(s.entries), holds: holds, idem: idem}
}

func (s *memStore) restore(snap memSnapshot) {
	s.entries = s.entries[:snap.entryCount]
	s.holds = snap.holds
	s.idem = snap.idem
}

func sameVariant(a, b *entity.ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func matchesIdentity(id entity.StockIdentity, businessID, outletID, productID entity.ID, variantID *entity.ID) bool {
	return id.BusinessID == businessID && id.OutletID == outletID &&
		id.ProductID == productID && sameVariant(id.VariantID, variantID)
}

// ── ledger ────────────────────────────────────────────────────────────────────

type memLedgerRepo struct{ s *memStore }

func (r *memLedgerRepo) Append(entry *entity.LedgerEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *entry
	r.s.entries = append(r.s.entries, &cp)
	return nil
}

func (r *memLedgerRepo) SumOnHand(identity entity.StockIdentity) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := decimal.Zero
	for _, e := range r.s.entries {
		if matchesIdentity(identity, e.BusinessID, e.OutletID, e.ProductID, e.VariantID) {
			sum = sum.Add(e.QuantityDelta)
		}
	}
	return sum, nil
}

func (r *memLedgerRepo) ListByReference(businessID entity.ID, referenceType string, referenceID entity.ID) ([]*entity.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.LedgerEntry
	for _, e := range r.s.entries {
		if e.BusinessID == businessID && e.ReferenceType == referenceType &&
			e.ReferenceID != nil && *e.ReferenceID == referenceID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memLedgerRepo) ListByIdentity(identity entity.StockIdentity, from, to *time.Time, limit, offset int) ([]*entity.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.LedgerEntry
	for _, e := range r.s.entries {
		if !matchesIdentity(identity, e.BusinessID, e.OutletID, e.ProductID, e.VariantID) {
			continue
		}
		if from != nil && e.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && e.CreatedAt.After(*to) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// ── holds ─────────────────────────────────────────────────────────────────────

type memHoldRepo struct{ s *memStore }

func (r *memHoldRepo) Create(hold *entity.StockHold) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *hold
	cp.Items = append([]entity.HoldItem(nil), hold.Items...)
	r.s.holds[hold.HoldID] = &cp
	return nil
}

func (r *memHoldRepo) GetByID(holdID string) (*entity.StockHold, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.holds[holdID]
	if !ok {
		return nil, nil
	}
	cp := *h
	cp.Items = append([]entity.HoldItem(nil), h.Items...)
	return &cp, nil
}

func (r *memHoldRepo) FindActiveByCart(businessID entity.ID, cartID string) (*entity.StockHold, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *entity.StockHold
	for _, h := range r.s.holds {
		if h.BusinessID == businessID && h.CartID == cartID && h.Status == entity.HoldStatusActive {
			if latest == nil || h.CreatedAt.After(latest.CreatedAt) {
				latest = h
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	cp.Items = append([]entity.HoldItem(nil), latest.Items...)
	return &cp, nil
}

func (r *memHoldRepo) SumCommitted(identity entity.StockIdentity) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := decimal.Zero
	for _, h := range r.s.holds {
		if h.Status != entity.HoldStatusActive {
			continue
		}
		for _, it := range h.Items {
			if matchesIdentity(identity, h.BusinessID, h.OutletID, it.ProductID, it.VariantID) {
				sum = sum.Add(decimal.NewFromInt(it.Qty))
			}
		}
	}
	return sum, nil
}

func (r *memHoldRepo) MarkCaptured(holdID string, saleID *entity.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.holds[holdID]
	if !ok || h.Status != entity.HoldStatusActive {
		return domain.ErrHoldNotActive
	}
	h.Status = entity.HoldStatusCaptured
	h.CapturedSaleID = saleID
	h.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memHoldRepo) MarkReleased(holdID string, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.holds[holdID]
	if !ok || h.Status != entity.HoldStatusActive {
		return domain.ErrHoldNotActive
	}
	h.Status = entity.HoldStatusReleased
	h.ReleaseReason = reason
	h.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memHoldRepo) ListExpired(businessID entity.ID, asOf time.Time, limit int) ([]*entity.StockHold, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.StockHold
	for _, h := range r.s.holds {
		if h.BusinessID == businessID && h.Status == entity.HoldStatusActive && !h.ExpiresAt.After(asOf) {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memHoldRepo) BusinessesWithExpired(asOf time.Time) ([]entity.ID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[entity.ID]bool)
	var out []entity.ID
	for _, h := range r.s.holds {
		if h.Status == entity.HoldStatusActive && !h.ExpiresAt.After(asOf) && !seen[h.BusinessID] {
			seen[h.BusinessID] = true
			out = append(out, h.BusinessID)
		}
	}
	return out, nil
}

// ── idempotencia ──────────────────────────────────────────────────────────────

type memIdemRepo struct{ s *memStore }

func (r *memIdemRepo) Guard(key string, meta map[string]any) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.idem[key]; ok {
		return domain.ErrReplay
	}
	r.s.idem[key] = time.Now().UTC()
	return nil
}

func (r *memIdemRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, at := range r.s.idem {
		if at.Before(cutoff) {
			delete(r.s.idem, k)
			n++
		}
	}
	return n, nil
}

// ── runner ────────────────────────────────────────────────────────────────────

type memTxRunner struct {
	s    *memStore
	txMu sync.Mutex
}

func (r *memTxRunner) Run(ctx context.Context, fn func(
	ledgerRepo repository.StockLedgerRepository,
	holdRepo repository.StockHoldRepository,
	idemRepo repository.IdempotencyRepository,
) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.s.mu.Lock()
	snap := r.s.snapshot()
	r.s.mu.Unlock()

	err := fn(&memLedgerRepo{s: r.s}, &memHoldRepo{s: r.s}, &memIdemRepo{s: r.s})
	if err != nil {
		r.s.mu.Lock()
		r.s.restore(snap)
		r.s.mu.Unlock()
	}
	return err
}

var _ stock.TxRunner = (*memTxRunner)(nil)

// ── arnés ─────────────────────────────────────────────────────────────────────

type fixture struct {
	store  *memStore
	holdUC *stock.HoldUseCase
	ledgUC *stock.LedgerUseCase
	ledger *memLedgerRepo
	holds  *memHoldRepo
	idem   *memIdemRepo
}

func newFixture() *fixture {
	store := newMemStore()
	runner := &memTxRunner{s: store}
	ledger := &memLedgerRepo{s: store}
	holds := &memHoldRepo{s: store}
	return &fixture{
		store:  store,
		holdUC: stock.NewHoldUseCase(runner, ledger, holds, 15, 200),
		ledgUC: stock.NewLedgerUseCase(runner, ledger),
		ledger: ledger,
		holds:  holds,
		idem:   &memIdemRepo{s: store},
	}
}

// loadStock hace un asiento OPENING para dejar on_hand en qty.
func (f *fixture) loadStock(businessID, outletID, productID entity.ID, variantID *entity.ID, qty int64) {
	_ = f.ledger.Append(&entity.LedgerEntry{
		ID:            entity.NewID(),
		BusinessID:    businessID,
		OutletID:      outletID,
		ProductID:     productID,
		VariantID:     variantID,
		QuantityDelta: decimal.NewFromInt(qty),
		ReferenceType: entity.ReferenceTypeOPENING,
		CreatedBy:     entity.NewID(),
		CreatedAt:     time.Now().UTC(),
	})
}

// expireHold retrocede expires_at de un hold para simular el paso del tiempo.
func (f *fixture) expireHold(holdID string) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if h, ok := f.store.holds[holdID]; ok {
		h.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	}
}
