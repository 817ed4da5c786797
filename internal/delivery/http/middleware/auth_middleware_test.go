package middleware

import (
	"io"
	"net/http"
	"testing"
	"time"

	"grid-pulse/internal/pkg/jwt"

	"github.com/gofiber/fiber/v3"
)

func newAuthTestApp(svc jwt.Service) *fiber.App {
	app := fiber.New()
	app.Use(NewErrorMiddleware().Middleware())

	protected := app.Group("/protected", NewAuthMiddleware(svc).Middleware())
	protected.Get("/", func(c fiber.Ctx) error {
		operator, _ := c.Locals(CtxOperatorKey).(string)
		return c.SendString(operator)
	})
	return app
}

func authRequest(t *testing.T, app *fiber.App, header string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "/protected/", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestAuthMiddleware_ValidTokenSetsOperator(t *testing.T) {
	svc := jwt.NewHMACService("test-secret")
	app := newAuthTestApp(svc)

	token, err := svc.GenerateToken("ops@grid", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	resp := authRequest(t, app, "Bearer "+token)
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ops@grid" {
		t.Fatalf("expected operator in locals, got %q", string(body))
	}
}

func TestAuthMiddleware_MissingTokenRejected(t *testing.T) {
	app := newAuthTestApp(jwt.NewHMACService("test-secret"))

	resp := authRequest(t, app, "")
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthMiddleware_MalformedHeaderRejected(t *testing.T) {
	app := newAuthTestApp(jwt.NewHMACService("test-secret"))

	for _, header := range []string{"Bearer", "Bearer  ", "Token abc", "abc"} {
		resp := authRequest(t, app, header)
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, resp.StatusCode)
		}
	}
}

func TestAuthMiddleware_ExpiredTokenRejected(t *testing.T) {
	svc := jwt.NewHMACService("test-secret")
	app := newAuthTestApp(svc)

	token, err := svc.GenerateToken("ops@grid", -time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	resp := authRequest(t, app, "Bearer "+token)
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", resp.StatusCode)
	}
}

func TestAuthMiddleware_ForeignTokenRejected(t *testing.T) {
	app := newAuthTestApp(jwt.NewHMACService("test-secret"))

	token, err := jwt.NewHMACService("other-secret").GenerateToken("ops@grid", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	resp := authRequest(t, app, "Bearer "+token)
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign token, got %d", resp.StatusCode)
	}
}

func TestAuthMiddleware_NilServicePassesThrough(t *testing.T) {
	app := newAuthTestApp(nil)

	resp := authRequest(t, app, "")
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected pass-through with auth disabled, got %d", resp.StatusCode)
	}
}
