package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"cdigit/internal/audit"
	"cdigit/internal/policy"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/requestcontext"
	"cdigit/pkg/testutil"
)

type allowAll struct{}

func (allowAll) RequirePermission(...policy.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newAuditRouter(t *testing.T) (chi.Router, *audit.Trail) {
	t.Helper()
	trail := audit.NewTrail(100)
	ctx := requestcontext.WithTime(context.Background(), now)
	for _, e := range []audit.Entry{
		{Category: audit.CategoryAuthorization, ActorID: "m-1", Role: "Manager", Action: "access", Resource: "GET /audit/export", Success: false},
		{Category: audit.CategoryAuthorization, ActorID: "adm-1", Role: "Admin", Action: "access", Resource: "GET /audit/export", Success: true},
		{Category: audit.CategoryApproval, ActorID: "m-1", Role: "Manager", Action: "approve", VoucherID: "V-1", Success: true},
	} {
		_, err := trail.Record(ctx, e)
		require.NoError(t, err)
	}

	h := New(trail, allowAll{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)
	return r, trail
}

func get(t *testing.T, path string) *http.Request {
	req := testutil.NewRequest(t, http.MethodGet, path)
	return testutil.WithTime(testutil.WithActor(req, "adm-1", "Admin"), now)
}

func TestEntries(t *testing.T) {
	router, _ := newAuditRouter(t)

	t.Run("filters by outcome", func(t *testing.T) {
		rr := testutil.DoRequest(router, get(t, "/audit/authorization?success=false"))
		testutil.AssertStatusOK(t, rr)

		resp := testutil.UnmarshalResponse[entriesResponse](t, rr)
		require.Len(t, resp.Entries, 1)
		assert.Equal(t, "m-1", resp.Entries[0].ActorID.String())
	})

	t.Run("accepts the hyphenated category", func(t *testing.T) {
		rr := testutil.DoRequest(router, get(t, "/audit/signature-binding"))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "count", float64(0))
	})

	t.Run("unknown category", func(t *testing.T) {
		rr := testutil.DoRequest(router, get(t, "/audit/payroll"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	t.Run("bad limit", func(t *testing.T) {
		rr := testutil.DoRequest(router, get(t, "/audit/approval?limit=0"))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestAnalytics(t *testing.T) {
	router, _ := newAuditRouter(t)

	rr := testutil.DoRequest(router, get(t, "/audit/analytics"))
	testutil.AssertStatusOK(t, rr)

	resp := testutil.UnmarshalResponse[audit.Analytics](t, rr)
	assert.Equal(t, 2, resp.Categories[audit.CategoryAuthorization].Total)
	require.NotEmpty(t, resp.TopDenials)
	assert.Equal(t, "GET /audit/export", resp.TopDenials[0].Resource)
}

func TestExport(t *testing.T) {
	router, _ := newAuditRouter(t)

	t.Run("json by default", func(t *testing.T) {
		rr := testutil.DoRequest(router, get(t, "/audit/export"))
		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Header().Get("Content-Disposition"), "audit-20260601T120000Z.json")
		testutil.AssertJSONHasKey(t, rr, "logs")
	})

	t.Run("csv of one category", func(t *testing.T) {
		rr := testutil.DoRequest(router, get(t, "/audit/export?format=csv&category=approval"))
		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))

		rows, err := csv.NewReader(rr.Body).ReadAll()
		require.NoError(t, err)
		assert.Len(t, rows, 2, "header plus one approval entry")
	})

	t.Run("xlsx opens as a workbook", func(t *testing.T) {
		rr := testutil.DoRequest(router, get(t, "/audit/export?format=xlsx"))
		testutil.AssertStatusOK(t, rr)

		f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		assert.Contains(t, f.GetSheetList(), string(audit.CategoryAuthorization))
	})

	t.Run("unknown format", func(t *testing.T) {
		rr := testutil.DoRequest(router, get(t, "/audit/export?format=pdf"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}
