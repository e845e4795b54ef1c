package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/ticketops/sla-engine/pkg/util"
)

func newTestApp(t *testing.T, apiKeyHash string) (*fiber.App, *TokenManager) {
	t.Helper()
	tokens := NewTokenManager("test-secret")
	m := NewAuthMiddleware(tokens, apiKeyHash)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Get("/operator", m.Handle, RequireRole(RoleAdmin, RoleOperator), func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		return c.SendString(principal.SubjectID)
	})
	app.Get("/admin", m.Handle, RequireRole(RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/machine", m.HandleAPIKey, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	return app, tokens
}

func TestBearerAuth(t *testing.T) {
	app, tokens := newTestApp(t, "")

	token, err := tokens.GenerateToken("op-1", RoleOperator, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/operator", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// no header
	resp, err = app.Test(httptest.NewRequest("GET", "/operator", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// garbage token
	req = httptest.NewRequest("GET", "/operator", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// expired token
	expired, err := tokens.GenerateToken("op-1", RoleOperator, -time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/operator", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireRole(t *testing.T) {
	app, tokens := newTestApp(t, "")

	operatorToken, err := tokens.GenerateToken("op-1", RoleOperator, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+operatorToken)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	adminToken, err := tokens.GenerateToken("admin-1", RoleAdmin, time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("machine-key"), bcrypt.MinCost)
	require.NoError(t, err)
	app, _ := newTestApp(t, string(hash))

	req := httptest.NewRequest("POST", "/machine", nil)
	req.Header.Set("X-API-Key", "machine-key")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	req = httptest.NewRequest("POST", "/machine", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/machine", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyAuthRejectsWhenUnconfigured(t *testing.T) {
	app, _ := newTestApp(t, "")

	req := httptest.NewRequest("POST", "/machine", nil)
	req.Header.Set("X-API-Key", "anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
