package reconciliation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenpass/greenpass/internal/platform/httpx"
	"github.com/greenpass/greenpass/internal/shared"
)

type approvalLog struct {
	logs []shared.ApprovalLog
}

func (a *approvalLog) Record(_ context.Context, log shared.ApprovalLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func doRequest(router http.Handler, method, path, actor, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(httpx.ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const drawerCount = `{
	"period_start": "2025-03-01",
	"period_end": "2025-03-01",
	"opening_float": "100.00",
	"counts": [{"denomination": "50", "count": 13}, {"denomination": "0.50", "count": 0}]
}`

func TestHandlerPreviewSubmitReview(t *testing.T) {
	svc, repo := newTestService()
	approvals := &approvalLog{}
	svc.SetApprovals(approvals)
	router := chi.NewRouter()
	router.Route("/reconciliations", NewHandler(nil, svc).MountRoutes)

	rec := doRequest(router, http.MethodPost, "/reconciliations/preview", "3", drawerCount)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	result := preview["result"].(map[string]any)
	assert.Equal(t, "650.00", result["counted_total"])
	assert.Equal(t, "600.00", result["expected_cash"])
	assert.Equal(t, "-50.00", result["variance"])
	assert.Equal(t, "shortage", result["classification"])
	assert.Empty(t, repo.records)

	rec = doRequest(router, http.MethodPost, "/reconciliations", "3", drawerCount)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var stored Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, int64(3), stored.AgentID)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, periodEnd, stored.PeriodEnd)

	rec = doRequest(router, http.MethodPost, "/reconciliations/1/review", "8", `{"decision": "maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodPost, "/reconciliations/1/review", "8", `{"decision": "approve"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"approved"`)

	rec = doRequest(router, http.MethodPost, "/reconciliations/1/review", "8", `{"decision": "reject"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(router, http.MethodGet, "/reconciliations/1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reviewed_by":8`)

	require.Len(t, approvals.logs, 2)
	assert.Equal(t, shared.ApprovalSubmit, approvals.logs[0].Action)
	assert.Equal(t, int64(3), approvals.logs[0].ActorID)
	assert.Equal(t, shared.ApprovalApprove, approvals.logs[1].Action)
	assert.Equal(t, RefID(1), approvals.logs[1].RefID)
}

func TestHandlerRequiresAgentAndValidCounts(t *testing.T) {
	svc, _ := newTestService()
	router := chi.NewRouter()
	router.Route("/reconciliations", NewHandler(nil, svc).MountRoutes)

	rec := doRequest(router, http.MethodPost, "/reconciliations/preview", "", drawerCount)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodPost, "/reconciliations/preview", "3",
		`{"period_start": "2025-03-01", "period_end": "2025-03-01", "counts": [{"denomination": "50", "count": -1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodPost, "/reconciliations/preview", "3",
		`{"period_start": "2025-03-02", "period_end": "2025-03-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodGet, "/reconciliations/42", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
