package purchase

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenpass/greenpass/internal/settings"
)

const testSecret = "whsec_test"

func newTestRouter(f fixture, secret string) http.Handler {
	h := NewHandler(nil, f.svc, settings.Static(settings.Defaults()), secret)
	r := chi.NewRouter()
	r.Route("/purchases", func(r chi.Router) { h.MountRoutes(r, 0) })
	return r
}

func send(router http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func signed(body string) map[string]string {
	return map[string]string{SignatureHeader: Sign([]byte(testSecret), []byte(body))}
}

func TestHandlerCheckoutAndWebhook(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f, testSecret)

	rec := send(router, http.MethodPost, "/purchases", `{
		"email": "ruth@example.pg",
		"passport": {"passportNo": "pa123456", "lastName": "Kila", "firstName": "Ruth", "gender": "F"}
	}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, StatusPending, created.Status)
	assert.Equal(t, "50.00", created.Total.String())
	assert.Nil(t, created.Batch)

	event := fmt.Sprintf(`{"session_id": %q, "status": "completed", "gateway_ref": "ch_100"}`, created.ID)
	for i := 0; i < 2; i++ {
		rec = send(router, http.MethodPost, "/purchases/webhook", event, signed(event))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, fmt.Sprintf(`{"received": true, "completed": true, "session_id": %q, "batch_id": 1}`, created.ID), rec.Body.String())
	}
	assert.Equal(t, 1, f.issuer.issued)

	rec = send(router, http.MethodGet, "/purchases/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var shown Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shown))
	assert.Equal(t, StatusCompleted, shown.Status)
	require.NotNil(t, shown.Batch)
	assert.Len(t, shown.Batch.Vouchers, 1)
	assert.Equal(t, created.Reference, shown.Batch.SaleReference)
}

func TestHandlerWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture()
	sess := f.open(t, 1)
	router := newTestRouter(f, testSecret)
	event := fmt.Sprintf(`{"session_id": %q, "status": "completed"}`, sess.ID)

	rec := send(router, http.MethodPost, "/purchases/webhook", event, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = send(router, http.MethodPost, "/purchases/webhook", event, map[string]string{
		SignatureHeader: Sign([]byte("other"), []byte(event)),
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	disabled := newTestRouter(f, "")
	rec = send(disabled, http.MethodPost, "/purchases/webhook", event, signed(event))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, f.issuer.issued)
}

func TestHandlerWebhookOutcomes(t *testing.T) {
	f := newFixture()
	sess := f.open(t, 1)
	router := newTestRouter(f, testSecret)

	failed := fmt.Sprintf(`{"session_id": %q, "status": "failed"}`, sess.ID)
	rec := send(router, http.MethodPost, "/purchases/webhook", failed, signed(failed))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received": true, "completed": false}`, rec.Body.String())
	assert.Zero(t, f.issuer.issued)

	malformed := `{"session_id": "not-a-uuid", "status": "completed"}`
	rec = send(router, http.MethodPost, "/purchases/webhook", malformed, signed(malformed))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	*f.clock = testNow.Add(time.Hour)
	late := fmt.Sprintf(`{"session_id": %q, "status": "success"}`, sess.ID)
	rec = send(router, http.MethodPost, "/purchases/webhook", late, signed(late))
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Zero(t, f.issuer.issued)

	rec = send(router, http.MethodGet, "/purchases/"+sess.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"expired"`)
}

func TestHandlerCreateValidation(t *testing.T) {
	router := newTestRouter(newFixture(), testSecret)
	rec := send(router, http.MethodPost, "/purchases", `{"quantity": 1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(router, http.MethodGet, "/purchases/12", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := Sign([]byte("k"), body)
	assert.True(t, Verify([]byte("k"), body, sig))
	assert.True(t, Verify([]byte("k"), body, "sha256="+strings.ToUpper(sig)))
	assert.False(t, Verify([]byte("k"), []byte(`{"a":2}`), sig))
	assert.False(t, Verify(nil, body, sig))
	assert.False(t, Verify([]byte("k"), body, "zz"))
}
