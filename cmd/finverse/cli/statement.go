package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/finverse/finverse/internal/statement"
	"github.com/finverse/finverse/internal/statement/export"
)

// Output formats supported by the statement command.
const (
	FormatCSV  = "csv"
	FormatHTML = "html"
	FormatXLSX = "xlsx"
)

// ErrUnsupportedFormat is returned for unknown --format values.
var ErrUnsupportedFormat = errors.New("cli: unsupported format")

// StatementGenerator builds statements. statement.Service satisfies it.
type StatementGenerator interface {
	Generate(ctx context.Context, req statement.Request) (*statement.Statement, error)
}

// WriteStatement generates one statement and writes it to w in format.
func WriteStatement(ctx context.Context, gen StatementGenerator, w io.Writer, req statement.Request, format string) error {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}
	var write func(io.Writer, *statement.Statement) error
	switch format {
	case FormatCSV:
		write = export.WriteCSV
	case FormatXLSX:
		write = export.WriteXLSX
	case FormatHTML:
		html, err := export.NewHTMLExporter()
		if err != nil {
			return err
		}
		write = html.Write
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	stmt, err := gen.Generate(ctx, req)
	if err != nil {
		return err
	}
	return write(w, stmt)
}
