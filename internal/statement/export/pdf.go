package export

import (
	"context"
	"fmt"

	"github.com/finverse/finverse/internal/statement"
)

// PDFRenderClient converts HTML into PDF bytes. report.Client satisfies it.
type PDFRenderClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// PDFExporter renders the printable statement through Gotenberg.
type PDFExporter struct {
	HTML   *HTMLExporter
	Client PDFRenderClient
}

// Render returns the statement as a PDF document.
func (p *PDFExporter) Render(ctx context.Context, stmt *statement.Statement) ([]byte, error) {
	if p == nil || p.HTML == nil || p.Client == nil {
		return nil, fmt.Errorf("pdf exporter not initialised")
	}
	html, err := p.HTML.Render(stmt)
	if err != nil {
		return nil, err
	}
	return p.Client.RenderHTML(ctx, html)
}
