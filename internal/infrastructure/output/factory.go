// Package output renders installed-module listings.
package output

import (
	"fmt"
	"io"

	"github.com/reglet-dev/krew-wasm/internal/domain/entities"
)

// ModuleFormatter writes a module listing.
type ModuleFormatter interface {
	Format(modules []entities.InstalledModule) error
}

// FormatterFactory creates formatters by name.
type FormatterFactory struct{}

// NewFormatterFactory creates a new formatter factory.
func NewFormatterFactory() *FormatterFactory {
	return &FormatterFactory{}
}

// Create returns a formatter for the given format name.
func (f *FormatterFactory) Create(format string, writer io.Writer) (ModuleFormatter, error) {
	switch format {
	case "", "table":
		return NewTableFormatter(writer), nil
	case "json":
		return NewJSONFormatter(writer), nil
	case "yaml":
		return NewYAMLFormatter(writer), nil
	default:
		return nil, fmt.Errorf(
			"unknown format: %s (supported: %v)",
			format, f.SupportedFormats(),
		)
	}
}

// SupportedFormats returns list of available format names.
func (f *FormatterFactory) SupportedFormats() []string {
	return []string{"table", "json", "yaml"}
}

// moduleRecord is the serialized form of one installed module.
type moduleRecord struct {
	Name     string `json:"name" yaml:"name"`
	Location string `json:"location" yaml:"location"`
	Target   string `json:"target" yaml:"target"`
	InStore  bool   `json:"in_store" yaml:"in_store"`
}

func records(modules []entities.InstalledModule) []moduleRecord {
	out := make([]moduleRecord, 0, len(modules))
	for _, m := range modules {
		out = append(out, moduleRecord{
			Name:     m.Name.String(),
			Location: m.Origin,
			Target:   m.Target,
			InStore:  m.InStore,
		})
	}
	return out
}
