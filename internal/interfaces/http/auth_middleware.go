package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/StockLedger-api/internal/application/dto"
	"github.com/jhoicas/StockLedger-api/pkg/jwt"
)

// Locals keys para los claims del operador en Fiber.
const (
	LocalBusinessID = "business_id"
	LocalOutletID   = "outlet_id"
	LocalCashierID  = "cashier_id"
)

// AuthMiddleware valida el Bearer Token JWT y extrae BusinessID, OutletID y
// CashierID a c.Locals. Toda ruta de stock cuelga de este middleware: el tenant
// sale siempre del token, nunca del body.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "Authorization header requerido"})
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "formato: Bearer <token>"})
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "token vacío"})
		}
		claims, err := jwt.Parse(jwtSecret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "token inválido o expirado"})
		}
		c.Locals(LocalBusinessID, claims.BusinessID)
		c.Locals(LocalOutletID, claims.OutletID)
		c.Locals(LocalCashierID, claims.CashierID)
		return c.Next()
	}
}

// GetBusinessID devuelve el BusinessID del contexto (después del middleware de auth).
func GetBusinessID(c *fiber.Ctx) string {
	return localString(c, LocalBusinessID)
}

// GetOutletID devuelve el OutletID del contexto (después del middleware de auth).
func GetOutletID(c *fiber.Ctx) string {
	return localString(c, LocalOutletID)
}

// GetCashierID devuelve el CashierID del contexto (después del middleware de auth).
func GetCashierID(c *fiber.Ctx) string {
	return localString(c, LocalCashierID)
}

func localString(c *fiber.Ctx, key string) string {
	v := c.Locals(key)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
