package licensing

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

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	_, svc, _ := newFixture(t)
	r := chi.NewRouter()
	NewHandler(svc).MountRoutes(r)
	return r
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/license/requests", "/license/requests/KMB-1/activate"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{not json"))
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		var problem httpx.ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
		require.Equal(t, "Validation Failed", problem.Title)
	}
}

func TestHandlerRejectsMissingOrgOnEvaluate(t *testing.T) {
	router := newTestRouter(t)

	for _, target := range []string{"/license/evaluate", "/license/evaluate?org=0", "/license/evaluate?org=abc"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))

		require.Equal(t, http.StatusBadRequest, rr.Code)
		var problem httpx.ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
		require.Contains(t, problem.Detail, "org query parameter")
	}
}
