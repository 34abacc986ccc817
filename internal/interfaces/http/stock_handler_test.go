package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/StockLedger-api/internal/application/stock"
	"github.com/jhoicas/StockLedger-api/internal/domain"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
	"github.com/jhoicas/StockLedger-api/internal/domain/repository"
	apphttp "github.com/jhoicas/StockLedger-api/internal/interfaces/http"
	"github.com/jhoicas/StockLedger-api/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Backend en memoria: un solo tipo implementa los tres puertos y el runner.
// El runner serializa con un mutex y revierte el snapshot si la función falla,
// igual que el rollback de la transacción real.
// ──────────────────────────────────────────────────────────────────────────────

type memBackend struct {
	mu      sync.Mutex
	entries []*entity.LedgerEntry
	holds   map[string]*entity.StockHold
	idem    map[string]struct{}
}

func newMemBackend() *memBackend {
	return &memBackend{
		holds: make(map[string]*entity.StockHold),
		idem:  make(map[string]struct{}),
	}
}

func variantEq(a, b *entity.ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memBackend) Append(entry *entity.LedgerEntry) error {
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memBackend) SumOnHand(id entity.StockIdentity) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range m.entries {
		if e.BusinessID == id.BusinessID && e.OutletID == id.OutletID &&
			e.ProductID == id.ProductID && variantEq(e.VariantID, id.VariantID) {
			sum = sum.Add(e.QuantityDelta)
		}
	}
	return sum, nil
}

func (m *memBackend) ListByReference(businessID entity.ID, referenceType string, referenceID entity.ID) ([]*entity.LedgerEntry, error) {
	var out []*entity.LedgerEntry
	for _, e := range m.entries {
		if e.BusinessID == businessID && e.ReferenceType == referenceType &&
			e.ReferenceID != nil && *e.ReferenceID == referenceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memBackend) ListByIdentity(id entity.StockIdentity, from, to *time.Time, limit, offset int) ([]*entity.LedgerEntry, error) {
	var out []*entity.LedgerEntry
	for _, e := range m.entries {
		if e.BusinessID == id.BusinessID && e.OutletID == id.OutletID &&
			e.ProductID == id.ProductID && variantEq(e.VariantID, id.VariantID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memBackend) Create(hold *entity.StockHold) error {
	cp := *hold
	cp.Items = append([]entity.HoldItem(nil), hold.Items...)
	m.holds[hold.HoldID] = &cp
	return nil
}

func (m *memBackend) GetByID(holdID string) (*entity.StockHold, error) {
	h, ok := m.holds[holdID]
	if !ok {
		return nil, nil
	}
	cp := *h
	cp.Items = append([]entity.HoldItem(nil), h.Items...)
	return &cp, nil
}

func (m *memBackend) FindActiveByCart(businessID entity.ID, cartID string) (*entity.StockHold, error) {
	for _, h := range m.holds {
		if h.BusinessID == businessID && h.CartID == cartID && h.Status == entity.HoldStatusActive {
			cp := *h
			cp.Items = append([]entity.HoldItem(nil), h.Items...)
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memBackend) SumCommitted(id entity.StockIdentity) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, h := range m.holds {
		if h.Status != entity.HoldStatusActive || h.BusinessID != id.BusinessID || h.OutletID != id.OutletID {
			continue
		}
		for _, it := range h.Items {
			if it.ProductID == id.ProductID && variantEq(it.VariantID, id.VariantID) {
				sum = sum.Add(decimal.NewFromInt(it.Qty))
			}
		}
	}
	return sum, nil
}

func (m *memBackend) MarkCaptured(holdID string, saleID *entity.ID) error {
	h, ok := m.holds[holdID]
	if !ok || h.Status != entity.HoldStatusActive {
		return domain.ErrHoldNotActive
	}
	h.Status = entity.HoldStatusCaptured
	h.CapturedSaleID = saleID
	return nil
}

func (m *memBackend) MarkReleased(holdID string, reason string) error {
	h, ok := m.holds[holdID]
	if !ok || h.Status != entity.HoldStatusActive {
		return domain.ErrHoldNotActive
	}
	h.Status = entity.HoldStatusReleased
	h.ReleaseReason = reason
	return nil
}

func (m *memBackend) ListExpired(businessID entity.ID, asOf time.Time, limit int) ([]*entity.StockHold, error) {
	var out []*entity.StockHold
	for _, h := range m.holds {
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

func (m *memBackend) BusinessesWithExpired(asOf time.Time) ([]entity.ID, error) {
	seen := make(map[entity.ID]bool)
	var out []entity.ID
	for _, h := range m.holds {
		if h.Status == entity.HoldStatusActive && !h.ExpiresAt.After(asOf) && !seen[h.BusinessID] {
			seen[h.BusinessID] = true
			out = append(out, h.BusinessID)
		}
	}
	return out, nil
}

func (m *memBackend) Guard(key string, meta map[string]any) error {
	if _, ok := m.idem[key]; ok {
		return domain.ErrReplay
	}
	m.idem[key] = struct{}{}
	return nil
}

func (m *memBackend) DeleteOlderThan(cutoff time.Time) (int64, error) { return 0, nil }

func (m *memBackend) Run(ctx context.Context, fn func(
	ledgerRepo repository.StockLedgerRepository,
	holdRepo repository.StockHoldRepository,
	idemRepo repository.IdempotencyRepository,
) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entryCount := len(m.entries)
	holds := make(map[string]*entity.StockHold, len(m.holds))
	for k, h := range m.holds {
		cp := *h
		cp.Items = append([]entity.HoldItem(nil), h.Items...)
		holds[k] = &cp
	}
	idem := make(map[string]struct{}, len(m.idem))
	for k := range m.idem {
		idem[k] = struct{}{}
	}

	if err := fn(m, m, m); err != nil {
		m.entries = m.entries[:entryCount]
		m.holds = holds
		m.idem = idem
		return err
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Arnés HTTP
// ──────────────────────────────────────────────────────────────────────────────

type httpFixture struct {
	app     *fiber.App
	backend *memBackend
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	backend := newMemBackend()
	log := logger.New(logger.Config{Env: "production", Level: "error"})

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		HoldUC:    stock.NewHoldUseCase(backend, backend, backend, 15, 200),
		LedgerUC:  stock.NewLedgerUseCase(backend, backend),
		JWTSecret: testJWTSecret,
		Log:       log,
	})
	return &httpFixture{app: app, backend: backend}
}

func (f *httpFixture) loadStock(t *testing.T, productID string, qty int64) {
	t.Helper()
	businessID, _ := entity.ParseID(testBusinessID)
	outletID, _ := entity.ParseID(testOutletID)
	pid, err := entity.ParseID(productID)
	require.NoError(t, err)
	require.NoError(t, f.backend.Append(&entity.LedgerEntry{
		ID:            entity.NewID(),
		BusinessID:    businessID,
		OutletID:      outletID,
		ProductID:     pid,
		QuantityDelta: decimal.NewFromInt(qty),
		ReferenceType: entity.ReferenceTypeOPENING,
		CreatedBy:     entity.NewID(),
		CreatedAt:     time.Now().UTC(),
	}))
}

func (f *httpFixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", testToken(t))
	if body != nil {
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

const testProductID = "10000000-0000-0000-0000-00000000aaaa"

// ──────────────────────────────────────────────────────────────────────────────
// Flujos end-to-end por HTTP
// ──────────────────────────────────────────────────────────────────────────────

func TestHTTP_PlaceCaptureFlow(t *testing.T) {
	f := newHTTPFixture(t)
	f.loadStock(t, testProductID, 10)

	resp := f.do(t, http.MethodPost, "/api/stock/holds", fiber.Map{
		"cart_id": "cart-77",
		"items":   []fiber.Map{{"product_id": testProductID, "qty": 4}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var hold struct {
		HoldID string `json:"hold_id"`
		Status string `json:"status"`
	}
	decodeBody(t, resp, &hold)
	assert.Equal(t, entity.HoldStatusActive, hold.Status)
	require.NotEmpty(t, hold.HoldID)

	// La disponibilidad refleja el compromiso sin tocar el on-hand.
	resp = f.do(t, http.MethodGet, "/api/stock/availability?product_id="+testProductID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var av struct {
		OnHand             string `json:"on_hand"`
		Committed          string `json:"committed"`
		AvailableToReserve string `json:"available_to_reserve"`
	}
	decodeBody(t, resp, &av)
	assert.Equal(t, "10", av.OnHand)
	assert.Equal(t, "4", av.Committed)
	assert.Equal(t, "6", av.AvailableToReserve)

	saleID := "20000000-0000-0000-0000-00000000bbbb"
	resp = f.do(t, http.MethodPost, "/api/stock/holds/"+hold.HoldID+"/capture", fiber.Map{"sale_id": saleID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var capRes struct {
		Captured bool `json:"captured"`
		Replayed bool `json:"replayed"`
	}
	decodeBody(t, resp, &capRes)
	assert.True(t, capRes.Captured)
	assert.False(t, capRes.Replayed)

	// Repetir la captura: no-op idempotente.
	resp = f.do(t, http.MethodPost, "/api/stock/holds/"+hold.HoldID+"/capture", fiber.Map{"sale_id": saleID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &capRes)
	assert.True(t, capRes.Replayed)

	// Los asientos de la venta son consultables por referencia.
	resp = f.do(t, http.MethodGet, "/api/stock/movements?reference_type=SALE&reference_id="+saleID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []struct {
		QuantityDelta string `json:"quantity_delta"`
	}
	decodeBody(t, resp, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "-4", entries[0].QuantityDelta)
}

func TestHTTP_PlaceHold_StockInsuficiente_409ConDetalle(t *testing.T) {
	f := newHTTPFixture(t)
	f.loadStock(t, testProductID, 2)

	resp := f.do(t, http.MethodPost, "/api/stock/holds", fiber.Map{
		"cart_id": "cart-77",
		"items":   []fiber.Map{{"product_id": testProductID, "qty": 5}},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body struct {
		Code   string `json:"code"`
		Detail []struct {
			ProductID string `json:"product_id"`
			Requested int64  `json:"requested"`
			Available string `json:"available"`
		} `json:"detail"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "INSUFFICIENT_STOCK", body.Code)
	require.Len(t, body.Detail, 1)
	assert.Equal(t, testProductID, body.Detail[0].ProductID)
	assert.Equal(t, int64(5), body.Detail[0].Requested)
	assert.Equal(t, "2", body.Detail[0].Available)
}

func TestHTTP_ReleaseHold_ConflictoTrasCaptura(t *testing.T) {
	f := newHTTPFixture(t)
	f.loadStock(t, testProductID, 10)

	resp := f.do(t, http.MethodPost, "/api/stock/holds", fiber.Map{
		"cart_id": "cart-77",
		"items":   []fiber.Map{{"product_id": testProductID, "qty": 1}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var hold struct {
		HoldID string `json:"hold_id"`
	}
	decodeBody(t, resp, &hold)

	resp = f.do(t, http.MethodPost, "/api/stock/holds/"+hold.HoldID+"/capture",
		fiber.Map{"sale_id": "20000000-0000-0000-0000-00000000bbbb"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/api/stock/holds/"+hold.HoldID+"/release",
		fiber.Map{"reason": "customer_cancelled"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "HOLD_NOT_ACTIVE", body.Code)
}

func TestHTTP_PlaceHold_BodyInvalido_400(t *testing.T) {
	f := newHTTPFixture(t)

	resp := f.do(t, http.MethodPost, "/api/stock/holds", fiber.Map{
		"cart_id": "cart-77",
		"items":   []fiber.Map{{"product_id": "no-es-uuid", "qty": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/api/stock/holds", fiber.Map{
		"cart_id": "", "items": []fiber.Map{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHTTP_RegisterEntry_RechazaSALE(t *testing.T) {
	f := newHTTPFixture(t)

	resp := f.do(t, http.MethodPost, "/api/stock/movements", fiber.Map{
		"outlet_id":      testOutletID,
		"product_id":     testProductID,
		"quantity_delta": "-3",
		"reference_type": "SALE",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode,
		"los asientos SALE solo nacen de capturar un hold")
	resp.Body.Close()
}

func TestHTTP_RegisterEntry_Purchase_201(t *testing.T) {
	f := newHTTPFixture(t)

	resp := f.do(t, http.MethodPost, "/api/stock/movements", fiber.Map{
		"outlet_id":      testOutletID,
		"product_id":     testProductID,
		"quantity_delta": "24",
		"reference_type": "PURCHASE",
		"unit_cost":      "3.50",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var entry struct {
		QuantityDelta string `json:"quantity_delta"`
		ReferenceType string `json:"reference_type"`
		CreatedBy     string `json:"created_by"`
	}
	decodeBody(t, resp, &entry)
	assert.Equal(t, "24", entry.QuantityDelta)
	assert.Equal(t, "PURCHASE", entry.ReferenceType)
	assert.Equal(t, testCashierID, entry.CreatedBy, "el autor sale del token")
}

func TestHTTP_SweepExpired_LiberaVencidos(t *testing.T) {
	f := newHTTPFixture(t)
	f.loadStock(t, testProductID, 10)

	resp := f.do(t, http.MethodPost, "/api/stock/holds", fiber.Map{
		"cart_id": "cart-77",
		"items":   []fiber.Map{{"product_id": testProductID, "qty": 2}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var hold struct {
		HoldID string `json:"hold_id"`
	}
	decodeBody(t, resp, &hold)

	// Simular el paso del tiempo venciendo el hold directamente en el backend.
	f.backend.holds[hold.HoldID].ExpiresAt = time.Now().UTC().Add(-time.Minute)

	resp = f.do(t, http.MethodPost, "/api/stock/holds/sweep-expired", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sweep struct {
		Released int `json:"released"`
	}
	decodeBody(t, resp, &sweep)
	assert.Equal(t, 1, sweep.Released)

	resp = f.do(t, http.MethodGet, "/api/stock/holds/"+hold.HoldID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Status        string `json:"status"`
		ReleaseReason string `json:"release_reason"`
	}
	decodeBody(t, resp, &got)
	assert.Equal(t, entity.HoldStatusReleased, got.Status)
	assert.Equal(t, "timeout", got.ReleaseReason)
}

func TestHTTP_RutasProtegidas_SinToken_401(t *testing.T) {
	f := newHTTPFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/stock/availability?product_id="+testProductID, nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
