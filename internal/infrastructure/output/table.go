package output

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/reglet-dev/krew-wasm/internal/domain/entities"
)

// TableFormatter writes a NAME / LOCATION table.
type TableFormatter struct {
	writer io.Writer
}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{writer: w}
}

// Format writes one row per module.
func (f *TableFormatter) Format(modules []entities.InstalledModule) error {
	w := tabwriter.NewWriter(f.writer, 0, 0, 3, ' ', 0)
	if _, err := fmt.Fprintln(w, "NAME\tLOCATION"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, m := range modules {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", m.Name, m.Origin); err != nil {
			return fmt.Errorf("failed to write module info: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}
