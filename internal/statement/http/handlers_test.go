package statementhttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finverse/finverse/internal/entitystore"
	"github.com/finverse/finverse/internal/statement"
	"github.com/finverse/finverse/internal/statement/export"
)

var fixedNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

type stubPDF struct {
	err error
}

func (s stubPDF) Render(ctx context.Context, stmt *statement.Statement) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF"), nil
}

type brokenService struct{}

func (brokenService) Generate(context.Context, statement.Request) (*statement.Statement, error) {
	return nil, statement.ErrStatementUnavailable
}

func (brokenService) Resolver() statement.Resolver { return statement.NewResolver(time.Time{}) }

func (brokenService) Now() time.Time { return fixedNow }

func newRouter(t *testing.T, service StatementService, pdf PDFService) http.Handler {
	t.Helper()
	html, err := export.NewHTMLExporter()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, service, html, pdf, time.Second)
	h.WithNow(func() time.Time { return fixedNow })
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func newService(t *testing.T) *statement.Service {
	t.Helper()
	store := entitystore.NewMemory()
	ctx := context.Background()
	_, err := store.Create(ctx, entitystore.CollectionUser, entitystore.Record{"id": "a1", "full_name": "Ravi Menon"})
	require.NoError(t, err)
	_, err = store.Create(ctx, entitystore.CollectionCommissionTracking, entitystore.Record{
		"advisor_id": "a1", "gross_amount": 1000, "platform_commission": 150, "advisor_payout": 850,
		"created_date": "2024-03-04T08:00:00Z",
	})
	require.NoError(t, err)
	svc := statement.NewService(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), statement.Config{})
	svc.WithNow(func() time.Time { return fixedNow })
	return svc
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestPeriodsFollowServiceClock(t *testing.T) {
	html, err := export.NewHTMLExporter()
	require.NoError(t, err)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newService(t), html, nil, time.Second)
	r := chi.NewRouter()
	h.MountRoutes(r)

	rr := get(r, "/finance/periods")
	require.Equal(t, http.StatusOK, rr.Code)
	var periods []periodView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &periods))
	assert.Equal(t, "2024-03-01 to 2024-03-31", periods[0].DateRange)
	assert.True(t, periods[0].Start.Equal(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)))
}

func TestPeriodsListsEveryToken(t *testing.T) {
	rr := get(newRouter(t, newService(t), nil), "/finance/periods")
	require.Equal(t, http.StatusOK, rr.Code)

	var periods []periodView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &periods))
	require.Len(t, periods, len(statement.Tokens()))
	assert.Equal(t, "last_month", periods[1].Token)
	assert.Equal(t, "2024-02-01 to 2024-02-29", periods[1].DateRange)
}

func TestStatementJSON(t *testing.T) {
	rr := get(newRouter(t, newService(t), nil), "/finance/statements/advisor/a1?period=current_month")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Entity  statement.Entity `json:"entity"`
		Summary struct {
			NetEarnings string `json:"net_earnings"`
		} `json:"summary"`
		Earnings []json.RawMessage `json:"earnings"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Ravi Menon", body.Entity.Name)
	assert.Equal(t, "850", body.Summary.NetEarnings)
	assert.Len(t, body.Earnings, 1)
}

func TestStatementRejectsUnknownKind(t *testing.T) {
	rr := get(newRouter(t, newService(t), nil), "/finance/statements/superadmin/a1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestStatementFailureIsGeneric(t *testing.T) {
	rr := get(newRouter(t, brokenService{}, nil), "/finance/statements/advisor/a1")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "Failed to load financial statement")
}

func TestExportCSV(t *testing.T) {
	rr := get(newRouter(t, newService(t), nil), "/finance/statements/advisor/a1/export.csv")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="financial_statement_Ravi_Menon_2024-03-15.csv"`, rr.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "Financial Statement\nEntity,Ravi Menon\n"))
	assert.Contains(t, rr.Body.String(), "Subscription Income,Subscription,1000.00,150.00,850.00")
}

func TestPrintServesDocumentWithRelaxedCSP(t *testing.T) {
	rr := get(newRouter(t, newService(t), nil), "/finance/statements/advisor/a1/print")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, printCSP, rr.Header().Get("Content-Security-Policy"))
	assert.Contains(t, rr.Body.String(), "Print / Save as PDF")
}

func TestExportXLSX(t *testing.T) {
	rr := get(newRouter(t, newService(t), nil), "/finance/statements/advisor/a1/export.xlsx")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, strings.HasPrefix(rr.Body.String(), "PK"))
}

func TestExportPDF(t *testing.T) {
	rr := get(newRouter(t, newService(t), stubPDF{}), "/finance/statements/advisor/a1/export.pdf")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))

	rr = get(newRouter(t, newService(t), nil), "/finance/statements/advisor/a1/export.pdf")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = get(newRouter(t, newService(t), stubPDF{err: errors.New("down")}), "/finance/statements/advisor/a1/export.pdf")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestExportsAreRateLimited(t *testing.T) {
	router := newRouter(t, newService(t), nil)
	var last int
	for i := 0; i < 25; i++ {
		last = get(router, "/finance/statements/advisor/a1/export.csv").Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
