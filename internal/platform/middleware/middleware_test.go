package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/impilo-health/impilo/internal/platform/auth"
)

// withIdentity attaches a user to the request context the way the auth
// middleware does.
func withIdentity(c echo.Context, userID, role string) {
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, auth.UserIDKey, userID)
	ctx = context.WithValue(ctx, auth.UserRoleKey, role)
	c.SetRequest(c.Request().WithContext(ctx))
}

func TestRequestIDGenerated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	rid, _ := c.Get("request_id").(string)
	if rid == "" {
		t.Fatal("expected a generated request id")
	}
	if got := rec.Header().Get("X-Request-ID"); got != rid {
		t.Errorf("header X-Request-ID = %q, want %q", got, rid)
	}
}

func TestRequestIDHonoursIncoming(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rid, _ := c.Get("request_id").(string); rid != "abc-123" {
		t.Errorf("request_id = %q, want abc-123", rid)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	h := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	var lastErr error
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		lastErr = h(c)
	}

	httpErr, ok := lastErr.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError on third request, got %v", lastErr)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", httpErr.Code)
	}
}

func TestRateLimitSeparateClients(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	h := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := h(c); err != nil {
			t.Errorf("client %s: unexpected error %v", addr, err)
		}
	}
}

func TestRateLimitKeyedByUser(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	h := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	// Two authenticated users behind the same IP get separate buckets.
	for _, userID := range []string{"u1", "u2"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		withIdentity(c, userID, "radiologist")
		if err := h(c); err != nil {
			t.Errorf("user %s: unexpected error %v", userID, err)
		}
	}

	// The same user is limited regardless of source address.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	withIdentity(c, "u1", "radiologist")
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 for exhausted user bucket, got %v", err)
	}
}

func TestLoggerIncludesActorIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	h := Logger(logger)(func(c echo.Context) error {
		// Identity is attached downstream of the logger, as in the real
		// middleware chain.
		withIdentity(c, "u1", "radiologist")
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/studies", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	line := buf.String()
	if !strings.Contains(line, `"user_id":"u1"`) {
		t.Errorf("log line missing user_id: %s", line)
	}
	if !strings.Contains(line, `"role":"radiologist"`) {
		t.Errorf("log line missing role: %s", line)
	}
}

func TestLoggerSkipsHealthProbes(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	h := Logger(logger)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log output for /health, got %s", buf.String())
	}
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	e := echo.New()
	h := Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", httpErr.Code)
	}
}

func TestAuditRecordsAPIRequests(t *testing.T) {
	e := echo.New()
	var got []AccessEntry
	rec := AccessRecorderFunc(func(entry AccessEntry) error {
		got = append(got, entry)
		return nil
	})

	h := Audit(zerolog.Nop(), rec)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/secure-links/abc", nil)
	w := httptest.NewRecorder()
	c := e.NewContext(req, w)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(got))
	}
	entry := got[0]
	if entry.Action != "create" {
		t.Errorf("action = %q, want create", entry.Action)
	}
	if entry.Resource != "secure-links" {
		t.Errorf("resource = %q, want secure-links", entry.Resource)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", entry.StatusCode)
	}
}

func TestAuditSeesIdentityAttachedDownstream(t *testing.T) {
	e := echo.New()
	var got []AccessEntry
	rec := AccessRecorderFunc(func(entry AccessEntry) error {
		got = append(got, entry)
		return nil
	})

	h := Audit(zerolog.Nop(), rec)(func(c echo.Context) error {
		withIdentity(c, "u1", "radiologist")
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/studies", nil)
	w := httptest.NewRecorder()
	c := e.NewContext(req, w)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(got))
	}
	if got[0].UserID != "u1" || got[0].Role != "radiologist" {
		t.Errorf("entry identity = %s/%s, want u1/radiologist", got[0].UserID, got[0].Role)
	}
}

func TestAuditSkipsNonAPIRequests(t *testing.T) {
	e := echo.New()
	called := false
	rec := AccessRecorderFunc(func(entry AccessEntry) error {
		called = true
		return nil
	})

	h := Audit(zerolog.Nop(), rec)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	c := e.NewContext(req, w)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if called {
		t.Error("expected no audit entry for non-API path")
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	h := SecurityHeaders()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
