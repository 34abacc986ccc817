package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "github.com/jhoicas/StockLedger-api/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/StockLedger-api/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	testJWTSecret  = "test-secret-key-for-unit-tests"
	testBusinessID = "00000000-0000-0000-0000-000000000001"
	testOutletID   = "00000000-0000-0000-0000-000000000002"
	testCashierID  = "00000000-0000-0000-0000-000000000003"
	testIssuer     = "stockledger-test"
	testExpMin     = 60
)

func testToken(t *testing.T) string {
	t.Helper()
	tok, err := pkgjwt.Generate(testJWTSecret, testBusinessID, testOutletID, testCashierID, "cashier", testIssuer, testExpMin)
	require.NoError(t, err, "debe generarse un token JWT válido")
	return "Bearer " + tok
}

func buildClaimsApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", apphttp.AuthMiddleware(testJWTSecret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"business_id": apphttp.GetBusinessID(c),
			"outlet_id":   apphttp.GetOutletID(c),
			"cashier_id":  apphttp.GetCashierID(c),
		})
	})
	return app
}

func doAuthRequest(t *testing.T, app *fiber.App, authHeader string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests AuthMiddleware
// ──────────────────────────────────────────────────────────────────────────────

func TestAuthMiddleware_ExtraeClaims(t *testing.T) {
	app := buildClaimsApp()
	resp := doAuthRequest(t, app, testToken(t))
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testBusinessID, body["business_id"], "el tenant sale del token, nunca del body")
	assert.Equal(t, testOutletID, body["outlet_id"])
	assert.Equal(t, testCashierID, body["cashier_id"])
}

func TestAuthMiddleware_SinHeader_Retorna401(t *testing.T) {
	app := buildClaimsApp()
	resp := doAuthRequest(t, app, "")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMiddleware_FormatoInvalido_Retorna401(t *testing.T) {
	app := buildClaimsApp()
	for _, header := range []string{"token-sin-esquema", "Basic abc123", "Bearer "} {
		resp := doAuthRequest(t, app, header)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, header)
		resp.Body.Close()
	}
}

func TestAuthMiddleware_TokenMalformado_Retorna401(t *testing.T) {
	app := buildClaimsApp()
	resp := doAuthRequest(t, app, "Bearer token.invalido.aqui")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests JWT pkg — integridad del generate/parse
// ──────────────────────────────────────────────────────────────────────────────

func TestJWT_GenerateAndParse(t *testing.T) {
	tok, err := pkgjwt.Generate(testJWTSecret, testBusinessID, testOutletID, testCashierID, "manager", testIssuer, testExpMin)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := pkgjwt.Parse(testJWTSecret, tok)
	require.NoError(t, err)

	assert.Equal(t, testBusinessID, claims.BusinessID)
	assert.Equal(t, testOutletID, claims.OutletID)
	assert.Equal(t, testCashierID, claims.CashierID)
	assert.Equal(t, "manager", claims.Role)
}

func TestJWT_TokenExpirado_RetornaError(t *testing.T) {
	// Token con expiración -1 minuto (ya expirado)
	tok, err := pkgjwt.Generate(testJWTSecret, testBusinessID, testOutletID, testCashierID, "cashier", testIssuer, -1)
	require.NoError(t, err)

	_, err = pkgjwt.Parse(testJWTSecret, tok)
	assert.Error(t, err, "token expirado debe retornar error")
}

func TestJWT_SecretIncorrecto_RetornaError(t *testing.T) {
	tok, err := pkgjwt.Generate(testJWTSecret, testBusinessID, testOutletID, testCashierID, "cashier", testIssuer, testExpMin)
	require.NoError(t, err)

	_, err = pkgjwt.Parse("otro-secret-completamente-distinto", tok)
	assert.Error(t, err, "secret incorrecto debe invalidar el token")
}
