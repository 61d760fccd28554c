package sharelink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func redeemRequest(t *testing.T, h *Handler, token, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/shared/"+token, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/shared/:token")
	c.SetParamNames("token")
	c.SetParamValues(token)
	return rec, h.RedeemLink(c)
}

func TestRedeemLinkStatusCodes(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo)
	h := NewHandler(svc)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateRequest{
		ResourceType: ResourceStudy, ResourceID: "uid", Password: "s3cret",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Unknown token is a 404.
	_, err = redeemRequest(t, h, "bogus-token", "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("unknown token: got %v, want 404", err)
	}

	// Missing password is a 401.
	_, err = redeemRequest(t, h, created.Link.AccessToken, "")
	httpErr, ok = err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("missing password: got %v, want 401", err)
	}

	// Correct password succeeds.
	rec, err := redeemRequest(t, h, created.Link.AccessToken, `{"password":"s3cret"}`)
	if err != nil {
		t.Fatalf("valid redeem: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "data_key") {
		t.Error("response should include the data key")
	}
	if strings.Contains(rec.Body.String(), created.Link.EncryptionKey) {
		t.Error("encrypted key material must not appear in responses")
	}
}
