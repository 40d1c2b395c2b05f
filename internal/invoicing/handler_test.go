package invoicing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/platform/httpx"
)

func newTestRouter() chi.Router {
	repo := newMemoryRepo()
	r := chi.NewRouter()
	NewHandler(newService(repo)).MountRoutes(r)
	return r
}

func doRequest(t *testing.T, router chi.Router, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	router.ServeHTTP(rr, req)
	return rr
}

func requireProblem(t *testing.T, rr *httptest.ResponseRecorder, status int) httpx.ProblemDetail {
	t.Helper()
	require.Equal(t, status, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, status, problem.Status)
	return problem
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	router := newTestRouter()

	for _, target := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/invoices"},
		{http.MethodPut, "/invoices/1/lines"},
		{http.MethodPost, "/invoices/1/cancel"},
	} {
		rr := doRequest(t, router, target.method, target.path, "{not json")
		problem := requireProblem(t, rr, http.StatusBadRequest)
		require.Equal(t, "Validation Failed", problem.Title)
	}
}

func TestHandlerRejectsInvalidDocumentID(t *testing.T) {
	router := newTestRouter()

	rr := doRequest(t, router, http.MethodPost, "/invoices/abc/issue", "")
	problem := requireProblem(t, rr, http.StatusBadRequest)
	require.Contains(t, problem.Detail, "document id")
}

func TestHandlerRejectsBadListTimestamps(t *testing.T) {
	router := newTestRouter()

	rr := doRequest(t, router, http.MethodGet, "/invoices?from=yesterday", "")
	requireProblem(t, rr, http.StatusBadRequest)

	rr = doRequest(t, router, http.MethodGet, "/invoices?to=2026-99-01", "")
	requireProblem(t, rr, http.StatusBadRequest)
}
