package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var env APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestEnvelopeCarriesSemanticStatus(t *testing.T) {
	c, rec := newTestContext(t)
	if err := NotFoundResponse(c, "missing"); err != nil {
		t.Fatalf("write: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("transport status must stay 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Status != http.StatusNotFound || env.Data != "missing" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestAppErrorResponseMapsAppError(t *testing.T) {
	c, rec := newTestContext(t)
	appErr := NotFoundError("no forecasts stored").WithError(errors.New("sql: no rows"))
	if err := AppErrorResponse(c, appErr); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := decodeEnvelope(t, rec)
	if env.Status != http.StatusNotFound {
		t.Fatalf("expected 404 envelope, got %d", env.Status)
	}
	payload, _ := json.Marshal(env.Data)
	var errs []AppError
	if err := json.Unmarshal(payload, &errs); err != nil || len(errs) != 1 {
		t.Fatalf("unexpected error payload %s: %v", payload, err)
	}
	if errs[0].Code != "ERR_NOT_FOUND" || errs[0].Message != "no forecasts stored" {
		t.Fatalf("unexpected error body %+v", errs[0])
	}
}

func TestAppErrorResponseHidesPlainErrors(t *testing.T) {
	c, rec := newTestContext(t)
	if err := AppErrorResponse(c, errors.New("pq: connection refused")); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := decodeEnvelope(t, rec)
	if env.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 envelope, got %d", env.Status)
	}
	if env.Data != "Something went wrong" {
		t.Fatalf("internal detail leaked: %v", env.Data)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := InternalError("lookup failed").WithError(cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause must be reachable through errors.Is")
	}
	if err.Error() != "lookup failed: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
