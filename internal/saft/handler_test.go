package saft

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/platform/httpx"
)

func TestHandlerRejectsBadQueryParameters(t *testing.T) {
	exporter := NewExporter(&stubSource{}, CompanyInfo{Name: "x", TaxID: "1"})
	router := chi.NewRouter()
	NewHandler(exporter).MountRoutes(router)

	cases := []struct {
		name   string
		target string
		detail string
	}{
		{"missing org", "/saft?from=2026-01-01&to=2026-01-31", "org query parameter"},
		{"bad from", "/saft?org=1&from=january&to=2026-01-31", "from must be"},
		{"bad to", "/saft?org=1&from=2026-01-01&to=soon", "to must be"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.target, nil))

			require.Equal(t, http.StatusBadRequest, rr.Code)
			require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
			var problem httpx.ProblemDetail
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
			require.Contains(t, problem.Detail, tc.detail)
		})
	}
}

func TestHandlerStreamsExportWithDownloadHeaders(t *testing.T) {
	source := &stubSource{}
	exporter := NewExporter(source, CompanyInfo{Name: "x", TaxID: "1"})
	router := chi.NewRouter()
	NewHandler(exporter).MountRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/saft?org=1&from=2026-01-01&to=2026-01-31", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/xml; charset=windows-1252", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "saft.xml")
	// The end day is inclusive, so the filter upper bound lands inside Jan 31.
	require.Equal(t, int64(1), source.filter.OrgID)
	require.Equal(t, 31, source.filter.To.Day())
}
