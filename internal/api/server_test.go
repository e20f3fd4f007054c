package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"
)

type testTranslator struct {
	out string
	err error
}

func (t testTranslator) Translate(ctx context.Context, text string) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return t.out, nil
}

func newTestEcho(tr Translator) *echo.Echo {
	e := echo.New()
	NewServer(tr, nil).Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTranslateEndpoint(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testTranslator{out: "the dog"})
	rec := doJSON(t, e, http.MethodPost, "/v1/translate", `{"text":"der hund"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body.String())
	}

	var resp TranslateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Translation != "the dog" {
		t.Fatalf("translation: got %q", resp.Translation)
	}
	if resp.Text != "der hund" {
		t.Fatalf("echoed text: got %q", resp.Text)
	}
	if !strings.HasPrefix(resp.ID, "tr_") {
		t.Fatalf("id: got %q", resp.ID)
	}
}

func TestTranslateRejectsEmptyText(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testTranslator{out: "x"})
	for _, body := range []string{`{"text":""}`, `{"text":"   "}`, `{}`} {
		rec := doJSON(t, e, http.MethodPost, "/v1/translate", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status %d", body, rec.Code)
		}
	}
}

func TestTranslateRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testTranslator{out: "x"})
	rec := doJSON(t, e, http.MethodPost, "/v1/translate", `{"text":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestTranslateReportsFailure(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testTranslator{err: errors.New("model exploded")})
	rec := doJSON(t, e, http.MethodPost, "/v1/translate", `{"text":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "model exploded") {
		t.Fatalf("body: %s", rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testTranslator{})
	rec := doJSON(t, e, http.MethodGet, "/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("body: %s", rec.Body.String())
	}
}
