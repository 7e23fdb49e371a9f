package statementhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finverse/finverse/internal/platform/httpx"
	"github.com/finverse/finverse/internal/statement"
	"github.com/finverse/finverse/internal/statement/export"
)

const defaultRequestTimeout = 10 * time.Second

// printCSP allows the inline styles and print button of the statement document.
const printCSP = "default-src 'none'; style-src 'unsafe-inline'; script-src 'unsafe-inline'"

// StatementService builds statements for the handler.
type StatementService interface {
	Generate(ctx context.Context, req statement.Request) (*statement.Statement, error)
	Resolver() statement.Resolver
	Now() time.Time
}

// PDFService renders statements to PDF bytes.
type PDFService interface {
	Render(ctx context.Context, stmt *statement.Statement) ([]byte, error)
}

// Handler serves statement pages and exports.
type Handler struct {
	logger  *slog.Logger
	service StatementService
	html    *export.HTMLExporter
	pdf     PDFService
	timeout time.Duration
	bufPool sync.Pool
	now     func() time.Time
}

// NewHandler constructs the statement HTTP handler. pdf may be nil when no renderer
// is configured.
func NewHandler(logger *slog.Logger, service StatementService, html *export.HTMLExporter, pdf PDFService, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	h := &Handler{
		logger:  logger,
		service: service,
		html:    html,
		pdf:     pdf,
		timeout: timeout,
		now:     service.Now,
	}
	h.bufPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock. By default the service clock is used so
// listed periods match the ranges statements are generated for.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type periodView struct {
	Token     string    `json:"token"`
	Label     string    `json:"label"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	DateRange string    `json:"date_range"`
}

func (h *Handler) handlePeriods(w http.ResponseWriter, r *http.Request) {
	resolver := h.service.Resolver()
	now := h.now()
	out := make([]periodView, 0, len(statement.Tokens()))
	for _, token := range statement.Tokens() {
		p := resolver.Resolve(token, now)
		out = append(out, periodView{Token: p.Token, Label: p.Label, Start: p.Start, End: p.End, DateRange: p.DateRange()})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, stmt)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.load(w, r)
	if !ok {
		return
	}
	buf := h.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.bufPool.Put(buf)
	}()
	if err := export.WriteCSV(buf, stmt); err != nil {
		h.handleServerError(w, "write statement csv", err)
		return
	}
	h.attach(w, "text/csv; charset=utf-8", export.Filename(stmt.Entity.Name, h.now(), "csv"), buf.Bytes())
}

func (h *Handler) handlePrint(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.load(w, r)
	if !ok {
		return
	}
	doc, err := h.html.Render(stmt)
	if err != nil {
		h.handleServerError(w, "render statement html", err)
		return
	}
	w.Header().Set("Content-Security-Policy", printCSP)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", export.Filename(stmt.Entity.Name, h.now(), "html")))
	if _, err := w.Write([]byte(doc)); err != nil {
		h.logError("stream statement html", err)
	}
}

func (h *Handler) handleXLSX(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.load(w, r)
	if !ok {
		return
	}
	buf := h.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.bufPool.Put(buf)
	}()
	if err := export.WriteXLSX(buf, stmt); err != nil {
		h.handleServerError(w, "write statement xlsx", err)
		return
	}
	h.attach(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.Filename(stmt.Entity.Name, h.now(), "xlsx"), buf.Bytes())
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "PDF rendering is not configured")
		return
	}
	stmt, ok := h.load(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	pdf, err := h.pdf.Render(ctx, stmt)
	if err != nil {
		h.logError("render statement pdf", err)
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "PDF renderer unavailable")
		return
	}
	h.attach(w, "application/pdf", export.Filename(stmt.Entity.Name, h.now(), "pdf"), pdf)
}

// load parses the route and builds the statement, writing the error response when
// it fails.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*statement.Statement, bool) {
	req := statement.Request{
		EntityKind:  statement.EntityKind(chi.URLParam(r, "kind")),
		EntityID:    chi.URLParam(r, "entityID"),
		PeriodToken: r.URL.Query().Get("period"),
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stmt, err := h.service.Generate(ctx, req)
	switch {
	case err == nil:
		return stmt, true
	case errors.Is(err, statement.ErrInvalidRequest):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logError("generate statement", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "Failed to load financial statement")
	}
	return nil, false
}

func (h *Handler) attach(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(body); err != nil {
		h.logError("stream "+filename, err)
	}
}

func (h *Handler) handleServerError(w http.ResponseWriter, context string, err error) {
	h.logError(context, err)
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func (h *Handler) logError(context string, err error) {
	if h.logger != nil {
		h.logger.Error(context, slog.Any("error", err))
	}
}
