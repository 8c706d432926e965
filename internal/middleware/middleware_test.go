package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashmitsharp/homeledger-api/internal/config"
	"github.com/ashmitsharp/homeledger-api/internal/logger"
	"github.com/ashmitsharp/homeledger-api/internal/utils"
)

func whoAmI(c fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	return c.JSON(fiber.Map{"user_id": userID})
}

func fakeVerifier(_ context.Context, token string) (string, error) {
	if token == "good-token" {
		return "user_2abc", nil
	}
	return "", errors.New("token expired")
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"valid token", "Bearer good-token", fiber.StatusOK, "user_2abc"},
		{"missing header", "", fiber.StatusUnauthorized, ""},
		{"no bearer prefix", "good-token", fiber.StatusUnauthorized, ""},
		{"empty bearer", "Bearer ", fiber.StatusUnauthorized, ""},
		{"rejected token", "Bearer stale-token", fiber.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: utils.ErrorHandler})
			app.Get("/me", Auth(fakeVerifier), whoAmI)

			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tt.wantUser != "" {
				assert.Equal(t, tt.wantUser, body["user_id"])
			} else {
				assert.Equal(t, "UNAUTHORIZED", body["code"])
				assert.Contains(t, body, "error")
			}
		})
	}
}

func TestClerkAuth_Disabled(t *testing.T) {
	app := fiber.New()
	app.Get("/me", ClerkAuth(&config.Config{DisableAuth: true}), whoAmI)

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, LocalUserID, body["user_id"])
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(RequestLogger(logger.NewWithWriter(&buf)))
	app.Get("/ok", func(c fiber.Ctx) error {
		log := logger.FromContext(c.Context())
		log.Info().Msg("inside handler")
		return c.SendString("ok")
	})
	app.Get("/missing", func(c fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inside, done map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &inside))
	require.NoError(t, json.Unmarshal(lines[1], &done))
	assert.Equal(t, "req-123", inside["request_id"])
	assert.Equal(t, "req-123", done["request_id"])
	assert.Equal(t, float64(200), done["status"])
	assert.Equal(t, "/ok", done["path"])

	buf.Reset()
	resp, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	var missing map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &missing))
	assert.Equal(t, float64(404), missing["status"])
	assert.Equal(t, "warn", missing["level"])
}

func TestCORS(t *testing.T) {
	app := fiber.New()
	app.Use(CORS([]string{"https://ledger.example.com"}))
	app.Get("/health", func(c fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "https://ledger.example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://ledger.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
