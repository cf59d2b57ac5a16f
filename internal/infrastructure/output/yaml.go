package output

import (
	"io"

	"github.com/goccy/go-yaml"
	"github.com/reglet-dev/krew-wasm/internal/domain/entities"
)

// YAMLFormatter writes the listing as a YAML sequence.
type YAMLFormatter struct {
	writer io.Writer
}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter(w io.Writer) *YAMLFormatter {
	return &YAMLFormatter{writer: w}
}

// Format writes the modules as YAML.
func (f *YAMLFormatter) Format(modules []entities.InstalledModule) error {
	encoder := yaml.NewEncoder(f.writer, yaml.Indent(2))

	if err := encoder.Encode(records(modules)); err != nil {
		return err
	}

	return encoder.Close()
}
