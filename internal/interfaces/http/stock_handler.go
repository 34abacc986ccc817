package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/StockLedger-api/internal/application/dto"
	"github.com/jhoicas/StockLedger-api/internal/application/stock"
	"github.com/jhoicas/StockLedger-api/internal/domain"
	"github.com/jhoicas/StockLedger-api/internal/domain/entity"
	"github.com/jhoicas/StockLedger-api/pkg/logger"
)

// StockHandler maneja las peticiones HTTP de reservas y disponibilidad (protegido).
type StockHandler struct {
	uc  *stock.HoldUseCase
	log *logger.Logger
}

// NewStockHandler construye el handler.
func NewStockHandler(uc *stock.HoldUseCase, log *logger.Logger) *StockHandler {
	return &StockHandler{uc: uc, log: log.Component("http")}
}

// PlaceHold godoc
// @Summary      Reservar stock para un carrito
// @Description  Crea un hold ACTIVE con varias líneas si hay disponibilidad en
//
//	todas; una sola línea corta rechaza la petición completa con el
//	detalle de faltantes.
//
// @Tags         stock
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.PlaceHoldRequest  true  "cart_id, items (product_id, variant_id?, qty)"
// @Success      201   {object}  dto.StockHoldResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/stock/holds [post]
func (h *StockHandler) PlaceHold(c *fiber.Ctx) error {
	claims, ok := h.requireClaims(c)
	if !ok {
		return nil
	}
	var req dto.PlaceHoldRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	items := make([]entity.HoldItem, 0, len(req.Items))
	for _, it := range req.Items {
		productID, err := entity.ParseID(it.ProductID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "product_id inválido"})
		}
		variantID, err := entity.ParseOptionalID(it.VariantID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "variant_id inválido"})
		}
		items = append(items, entity.HoldItem{ProductID: productID, VariantID: variantID, Qty: it.Qty})
	}

	hold, err := h.uc.PlaceHold(c.Context(), stock.PlaceHoldInput{
		BusinessID:       claims.businessID,
		OutletID:         claims.outletID,
		CashierID:        claims.cashierID,
		CartID:           req.CartID,
		Items:            items,
		IdempotencyKey:   req.IdempotencyKey,
		Purpose:          req.Purpose,
		Ref:              req.Ref,
		ExpiresInMinutes: req.ExpiresInMinutes,
	})
	if err != nil {
		return h.mapError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewStockHoldResponse(hold))
}

// GetHold godoc
// @Summary      Consultar un hold
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        hold_id  path  string  true  "Identificador del hold"
// @Success      200  {object}  dto.StockHoldResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/stock/holds/{hold_id} [get]
func (h *StockHandler) GetHold(c *fiber.Ctx) error {
	claims, ok := h.requireClaims(c)
	if !ok {
		return nil
	}
	hold, err := h.uc.GetHold(c.Context(), claims.businessID, c.Params("hold_id"))
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(dto.NewStockHoldResponse(hold))
}

// CaptureHold godoc
// @Summary      Capturar un hold (finalizar venta)
// @Description  Agrega los asientos SALE del ledger y marca el hold CAPTURED en
//
//	una sola transacción. Repetir con el mismo sale_id es no-op.
//
// @Tags         stock
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        hold_id  path  string  true  "Identificador del hold"
// @Param        body     body  dto.CaptureHoldRequest  true  "sale_id, idempotency_key?"
// @Success      200  {object}  dto.CaptureHoldResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/stock/holds/{hold_id}/capture [post]
func (h *StockHandler) CaptureHold(c *fiber.Ctx) error {
	claims, ok := h.requireClaims(c)
	if !ok {
		return nil
	}
	var req dto.CaptureHoldRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	saleID, err := entity.ParseOptionalID(req.SaleID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "sale_id inválido"})
	}

	res, err := h.uc.CaptureHold(c.Context(), stock.CaptureHoldInput{
		BusinessID:     claims.businessID,
		HoldID:         c.Params("hold_id"),
		IdempotencyKey: req.IdempotencyKey,
		SaleID:         saleID,
		Meta:           req.Meta,
	})
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(dto.CaptureHoldResponse{HoldID: res.HoldID, Captured: res.Captured, Replayed: res.Replayed})
}

// ReleaseHold godoc
// @Summary      Liberar un hold (cancelación o abandono)
// @Tags         stock
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        hold_id  path  string  true  "Identificador del hold"
// @Param        body     body  dto.ReleaseHoldRequest  true  "reason?, idempotency_key?"
// @Success      200  {object}  dto.ReleaseHoldResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/stock/holds/{hold_id}/release [post]
func (h *StockHandler) ReleaseHold(c *fiber.Ctx) error {
	claims, ok := h.requireClaims(c)
	if !ok {
		return nil
	}
	var req dto.ReleaseHoldRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	res, err := h.uc.ReleaseHold(c.Context(), stock.ReleaseHoldInput{
		BusinessID:     claims.businessID,
		HoldID:         c.Params("hold_id"),
		IdempotencyKey: req.IdempotencyKey,
		Reason:         req.Reason,
	})
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(dto.ReleaseHoldResponse{HoldID: res.HoldID, Released: res.Released, Replayed: res.Replayed})
}

// SweepExpired godoc
// @Summary      Barrer holds vencidos del negocio
// @Description  Libera con reason=timeout los holds ACTIVE ya vencidos (batch
//
//	acotado). El job interno lo invoca periódicamente; esta ruta
//	existe para operación manual.
//
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.SweepExpiredResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/stock/holds/sweep-expired [post]
func (h *StockHandler) SweepExpired(c *fiber.Ctx) error {
	claims, ok := h.requireClaims(c)
	if !ok {
		return nil
	}
	released, err := h.uc.SweepExpired(c.Context(), claims.businessID, c.QueryInt("older_than_minutes"))
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(dto.SweepExpiredResponse{Released: released})
}

// GetAvailability godoc
// @Summary      Disponibilidad de una identidad de stock
// @Description  Devuelve on_hand, committed y available_to_reserve. Lectura
//
//	informativa: la decisión de reservar se recalcula en PlaceHold.
//
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        product_id  query  string  true   "Producto (UUID)"
// @Param        variant_id  query  string  false  "Variante (UUID). Vacío = identidad sin variante."
// @Success      200  {object}  dto.AvailabilityResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/stock/availability [get]
func (h *StockHandler) GetAvailability(c *fiber.Ctx) error {
	claims, ok := h.requireClaims(c)
	if !ok {
		return nil
	}
	productID, err := entity.ParseID(c.Query("product_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "product_id inválido"})
	}
	variantID, err := entity.ParseOptionalID(c.Query("variant_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "variant_id inválido"})
	}

	av, err := h.uc.GetAvailability(c.Context(), entity.StockIdentity{
		BusinessID: claims.businessID,
		OutletID:   claims.outletID,
		ProductID:  productID,
		VariantID:  variantID,
	})
	if err != nil {
		return h.mapError(c, err)
	}
	resp := dto.AvailabilityResponse{
		ProductID:          productID.String(),
		OutletID:           claims.outletID.String(),
		OnHand:             av.OnHand,
		Committed:          av.Committed,
		AvailableToReserve: av.AvailableToReserve,
	}
	if variantID != nil {
		resp.VariantID = variantID.String()
	}
	return c.JSON(resp)
}

type requestClaims struct {
	businessID entity.ID
	outletID   entity.ID
	cashierID  entity.ID
}

// requireClaims parsea los ids del token ya validado; responde 401 y devuelve
// false si algún claim no es un identificador válido.
func (h *StockHandler) requireClaims(c *fiber.Ctx) (requestClaims, bool) {
	businessID, err1 := entity.ParseID(GetBusinessID(c))
	outletID, err2 := entity.ParseID(GetOutletID(c))
	cashierID, err3 := entity.ParseID(GetCashierID(c))
	if err1 != nil || err2 != nil || err3 != nil {
		_ = c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
		return requestClaims{}, false
	}
	return requestClaims{businessID: businessID, outletID: outletID, cashierID: cashierID}, true
}

// mapError traduce errores de dominio a respuestas HTTP.
func (h *StockHandler) mapError(c *fiber.Ctx, err error) error {
	if ise, ok := domain.IsInsufficientStock(err); ok {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Code:    "INSUFFICIENT_STOCK",
			Message: "stock insuficiente para una o más líneas",
			Detail:  dto.NewShortfallDTOs(ise),
		})
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "datos inválidos"})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "recurso no encontrado"})
	case errors.Is(err, domain.ErrTenantMismatch):
		h.log.Warn().Str("path", c.Path()).Msg("acceso a hold de otro negocio")
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado al recurso"})
	case errors.Is(err, domain.ErrHoldNotActive):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "HOLD_NOT_ACTIVE", Message: "el hold no existe o ya es terminal"})
	case errors.Is(err, domain.ErrReplay):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "REPLAY", Message: "operación ya ejecutada con resultado no recuperable"})
	case errors.Is(err, domain.ErrTransientStore):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "RETRY", Message: "conflicto transitorio; reintentar la operación completa"})
	}
	h.log.Error().Err(err).Str("path", c.Path()).Msg("error no mapeado")
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}
