package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func contextWithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, UserRoleKey, role)
}

var testSecret = []byte("test-session-secret")

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, "user-1", "radiologist", "Dr A", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.Role != "radiologist" {
		t.Errorf("role = %q, want radiologist", claims.Role)
	}
}

func TestParseToken_Expired(t *testing.T) {
	token, err := IssueToken(testSecret, "user-1", "viewer", "", -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ParseToken(testSecret, token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, _ := IssueToken(testSecret, "user-1", "viewer", "", time.Hour)
	if _, err := ParseToken([]byte("other-secret"), token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestMiddleware_SetsContext(t *testing.T) {
	e := echo.New()
	token, _ := IssueToken(testSecret, "user-9", "typist", "T", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotID, gotRole string
	h := Middleware(testSecret)(func(c echo.Context) error {
		gotID = UserIDFromContext(c.Request().Context())
		gotRole = RoleFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != "user-9" || gotRole != "typist" {
		t.Errorf("context = (%q, %q), want (user-9, typist)", gotID, gotRole)
	}
}

func TestMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	h := Middleware(testSecret)(func(c echo.Context) error { return nil })
	err := h(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 HTTPError, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()

	call := func(role string, guard echo.MiddlewareFunc) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		if role != "" {
			ctx := c.Request().Context()
			c.SetRequest(c.Request().WithContext(
				contextWithRole(ctx, role)))
		}
		return guard(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	}

	guard := RequireRole("radiologist")

	if err := call("radiologist", guard); err != nil {
		t.Errorf("radiologist should pass: %v", err)
	}
	if err := call("admin", guard); err != nil {
		t.Errorf("admin should always pass: %v", err)
	}
	err := call("typist", guard)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusForbidden {
		t.Errorf("typist should be forbidden, got %v", err)
	}
	err = call("", guard)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("anonymous should be unauthorized, got %v", err)
	}
}
