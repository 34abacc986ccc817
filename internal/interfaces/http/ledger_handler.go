package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/StockLedger-api/internal/application/dto"
	"github.com/jhoicas/StockLedger-api/internal/application/stock"
	"github.com/jhoicas/StockLedger-api/internal/domain"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
	"github.com/jhoicas/StockLedger-api/pkg/logger"
)

// LedgerHandler maneja las peticiones HTTP del libro de movimientos (protegido).
type LedgerHandler struct {
	uc  *stock.LedgerUseCase
	log *logger.Logger
}

// NewLedgerHandler construye el handler.
func NewLedgerHandler(uc *stock.LedgerUseCase, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{uc: uc, log: log.Component("http")}
}

// RegisterEntry godoc
// @Summary      Registrar asiento directo del ledger
// @Description  Asientos de apertura, compra, ajuste, transferencia o devolución.
//
//	Los asientos SALE solo nacen de la captura de un hold.
//
// @Tags         ledger
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RegisterEntryRequest  true  "outlet_id, product_id, quantity_delta firmado, reference_type"
// @Success      201   {object}  dto.LedgerEntryResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/stock/movements [post]
func (h *LedgerHandler) RegisterEntry(c *fiber.Ctx) error {
	businessID, err := entity.ParseID(GetBusinessID(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	createdBy, err := entity.ParseID(GetCashierID(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}

	var req dto.RegisterEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	outletID, err := entity.ParseID(req.OutletID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "outlet_id inválido"})
	}
	productID, err := entity.ParseID(req.ProductID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "product_id inválido"})
	}
	variantID, err := entity.ParseOptionalID(req.VariantID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "variant_id inválido"})
	}
	referenceID, err := entity.ParseOptionalID(req.ReferenceID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "reference_id inválido"})
	}

	entry, err := h.uc.RegisterEntry(c.Context(), stock.RegisterEntryInput{
		BusinessID:     businessID,
		OutletID:       outletID,
		ProductID:      productID,
		VariantID:      variantID,
		QuantityDelta:  req.QuantityDelta,
		ReferenceType:  req.ReferenceType,
		ReferenceID:    referenceID,
		UnitCost:       req.UnitCost,
		Note:           req.Note,
		CreatedBy:      createdBy,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return h.mapError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewLedgerEntryResponse(entry))
}

// ListMovements godoc
// @Summary      Historial de movimientos
// @Description  Por documento (reference_type + reference_id) o por identidad
//
//	(outlet_id + product_id + variant_id?) con rango de fechas.
//
// @Tags         ledger
// @Security     Bearer
// @Produce      json
// @Param        reference_type  query  string  false  "Tipo de documento (con reference_id)"
// @Param        reference_id    query  string  false  "Documento de referencia (UUID)"
// @Param        outlet_id       query  string  false  "Punto de venta (UUID, modo identidad)"
// @Param        product_id      query  string  false  "Producto (UUID, modo identidad)"
// @Param        variant_id      query  string  false  "Variante (UUID). Vacío = sin variante."
// @Param        from            query  string  false  "Desde (RFC3339)"
// @Param        to              query  string  false  "Hasta (RFC3339)"
// @Param        limit           query  int     false  "Máximo de filas"
// @Param        offset          query  int     false  "Desplazamiento"
// @Success      200  {array}   dto.LedgerEntryResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/stock/movements [get]
func (h *LedgerHandler) ListMovements(c *fiber.Ctx) error {
	businessID, err := entity.ParseID(GetBusinessID(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}

	if refID := c.Query("reference_id"); refID != "" {
		referenceID, err := entity.ParseID(refID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "reference_id inválido"})
		}
		entries, err := h.uc.MovementsByReference(c.Context(), businessID, c.Query("reference_type"), referenceID)
		if err != nil {
			return h.mapError(c, err)
		}
		return c.JSON(mapEntries(entries))
	}

	outletID, err := entity.ParseID(c.Query("outlet_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "outlet_id inválido"})
	}
	productID, err := entity.ParseID(c.Query("product_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "product_id inválido"})
	}
	variantID, err := entity.ParseOptionalID(c.Query("variant_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "variant_id inválido"})
	}
	from, err := parseTimeQuery(c.Query("from"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "from inválido (RFC3339)"})
	}
	to, err := parseTimeQuery(c.Query("to"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "to inválido (RFC3339)"})
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()

	entries, err := h.uc.MovementsByIdentity(c.Context(), entity.StockIdentity{
		BusinessID: businessID,
		OutletID:   outletID,
		ProductID:  productID,
		VariantID:  variantID,
	}, from, to, page.Limit, page.Offset)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(mapEntries(entries))
}

func mapEntries(entries []*entity.LedgerEntry) []dto.LedgerEntryResponse {
	out := make([]dto.LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.NewLedgerEntryResponse(e))
	}
	return out
}

func parseTimeQuery(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *LedgerHandler) mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "datos inválidos"})
	case errors.Is(err, domain.ErrReplay):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "REPLAY", Message: "asiento ya registrado con esa clave"})
	case errors.Is(err, domain.ErrTransientStore):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "RETRY", Message: "conflicto transitorio; reintentar la operación completa"})
	}
	h.log.Error().Err(err).Str("path", c.Path()).Msg("error no mapeado")
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}
