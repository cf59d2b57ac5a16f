package output

import (
	"encoding/json"
	"io"

	"github.com/reglet-dev/krew-wasm/internal/domain/entities"
)

// JSONFormatter writes the listing as an indented JSON array.
type JSONFormatter struct {
	writer io.Writer
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

// Format writes the modules as JSON.
func (f *JSONFormatter) Format(modules []entities.InstalledModule) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records(modules))
}
