package quotation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenpass/greenpass/internal/platform/httpx"
	"github.com/greenpass/greenpass/internal/settings"
)

func newTestRouter(f fixture) http.Handler {
	h := NewHandler(nil, f.svc, settings.Static(settings.Defaults()))
	r := chi.NewRouter()
	r.Route("/quotations", h.MountRoutes)
	return r
}

func call(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpx.ActorHeader, "7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const createBody = `{
	"customer": {"name": "Kumul Mining Ltd", "email": "accounts@kumul.pg"},
	"lines": [{"description": "Exit fee", "quantity": 10, "unit_price": "50.00"}],
	"discount_rate": "10"
}`

func TestHandlerQuotationFlow(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	rec := call(t, router, http.MethodPost, "/quotations", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "QUO-202503-0001", created["number"])
	assert.Equal(t, "450.00", created["total_amount"])
	assert.Equal(t, "10.00", created["discount_rate"])
	assert.Equal(t, "draft", created["status"])

	rec = call(t, router, http.MethodPost, "/quotations/1/convert", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	for _, step := range []string{"send", "approve"} {
		rec = call(t, router, http.MethodPost, "/quotations/1/"+step, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = call(t, router, http.MethodPost, "/quotations/1/convert", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var converted ConvertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &converted))
	assert.Equal(t, StatusConverted, converted.Quotation.Status)
	assert.Equal(t, "INV-202503-0001", converted.InvoiceNumber)
	assert.Equal(t, "450.00", converted.InvoiceTotal.String())

	rec = call(t, router, http.MethodPost, "/quotations/1/convert", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, router, http.MethodGet, "/quotations/1/approvals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"action":"APPROVE"`)
}

func TestHandlerRejectsInvalidPayloads(t *testing.T) {
	router := newTestRouter(newFixture())
	cases := map[string]string{
		"no lines":       `{"customer": {"name": "Walk-in"}, "lines": []}`,
		"no customer":    `{"customer": {}, "lines": [{"quantity": 1}]}`,
		"bad amount":     `{"customer": {"name": "A"}, "lines": [{"quantity": 1, "unit_price": "1.234"}]}`,
		"bad valid date": `{"customer": {"name": "A"}, "lines": [{"quantity": 1}], "valid_until": "soon"}`,
		"malformed":      `{"customer":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := call(t, router, http.MethodPost, "/quotations", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerExpiredAndMissing(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)
	rec := call(t, router, http.MethodPost, "/quotations", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	*f.clock = testNow.Add(DefaultValidity + time.Hour)
	rec = call(t, router, http.MethodGet, "/quotations/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"expired"`)

	rec = call(t, router, http.MethodPost, "/quotations/1/send", "")
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = call(t, router, http.MethodGet, "/quotations/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, router, http.MethodGet, "/quotations/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
