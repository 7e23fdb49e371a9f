package export

import (
	"bytes"
	"io"

	"github.com/finverse/finverse/internal/statement"
	"github.com/finverse/finverse/internal/view"
)

const printTemplate = "statement/print"

// document is the template payload for the printable statement.
type document struct {
	Statement *statement.Statement
	Summary   []statement.SummaryLine
}

// HTMLExporter renders the self-contained printable statement document.
type HTMLExporter struct {
	engine *view.Engine
}

// NewHTMLExporter parses the embedded statement templates.
func NewHTMLExporter() (*HTMLExporter, error) {
	engine, err := view.NewEngine()
	if err != nil {
		return nil, err
	}
	return &HTMLExporter{engine: engine}, nil
}

// Write renders the statement into w. Nothing is written when rendering fails.
func (h *HTMLExporter) Write(w io.Writer, stmt *statement.Statement) error {
	html, err := h.Render(stmt)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, html)
	return err
}

// Render returns the statement document as a string.
func (h *HTMLExporter) Render(stmt *statement.Statement) (string, error) {
	if stmt == nil {
		return "", ErrNoStatementData
	}
	var buf bytes.Buffer
	if err := h.engine.Execute(&buf, printTemplate, document{Statement: stmt, Summary: stmt.Summary.Lines()}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
