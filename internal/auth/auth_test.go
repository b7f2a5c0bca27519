package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mythicmate/internal/domain"
	apperrors "github.com/spec-kit/mythicmate/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expiresAt, err := tm.GenerateToken("ops-1", domain.SubjectOperator, 0)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if d := time.Until(expiresAt); d <= 4*time.Minute || d > 5*time.Minute {
		t.Errorf("expiry in %s, want about 5m", d)
	}
	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.SubjectID != "ops-1" || claims.Subject != domain.SubjectOperator {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := NewTokenManager("other", 5).ParseToken(token); err == nil {
		t.Error("token signed with another secret must be rejected")
	}
	if _, _, err := tm.GenerateToken("x", domain.SubjectType("ROOT"), 0); err == nil {
		t.Error("unknown subject types must not be minted")
	}
}

func newTestApp(tm *TokenManager, allowed ...domain.SubjectType) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var de *apperrors.DomainError
			if errors.As(err, &de) {
				return c.Status(de.HTTPStatus).SendString(de.Code)
			}
			return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
		},
	})
	app.Get("/ops", NewAuthMiddleware(tm).Handle, RequireSubject(allowed...), func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.SubjectID)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	operator, _, _ := tm.GenerateToken("ops-1", domain.SubjectOperator, 0)
	adapter, _, _ := tm.GenerateToken("adapter-1", domain.SubjectAdapter, 0)
	app := newTestApp(tm, domain.SubjectOperator)

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{name: "missing", status: fiber.StatusUnauthorized},
		{name: "malformed", header: "Token abc", status: fiber.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc", status: fiber.StatusUnauthorized},
		{name: "operator", header: "Bearer " + operator, status: fiber.StatusOK},
		{name: "query token", query: "?access_token=" + operator, status: fiber.StatusOK},
		{name: "wrong subject", header: "Bearer " + adapter, status: fiber.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ops"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}
