package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ExportFormat specifies the output format for spec export
type ExportFormat string

const (
	FormatYAML ExportFormat = "yaml"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures spec export behavior
type ExportOptions struct {
	// Format specifies the output format (yaml or json)
	Format ExportFormat

	// PrettyPrint enables indented output
	PrettyPrint bool

	// AddComments adds a YAML header comment (YAML only)
	AddComments bool
}

// DefaultExportOptions returns the default export options
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:      FormatYAML,
		PrettyPrint: true,
		AddComments: true,
	}
}

// ImportOptions configures spec import behavior
type ImportOptions struct {
	// OverrideName replaces the imported name when set
	OverrideName string

	// OverrideDescription replaces the imported description when set
	OverrideDescription string
}

// DefaultImportOptions returns the default import options
func DefaultImportOptions() ImportOptions {
	return ImportOptions{}
}

// Export serializes a spec to the specified format
func Export(s *Spec, opts ExportOptions) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("spec cannot be nil")
	}

	// Work on a copy so the caller's spec is untouched
	out := *s
	if out.SchemaVersion == "" {
		out.SchemaVersion = SchemaVersion
	}

	switch opts.Format {
	case FormatYAML:
		return exportToYAML(&out, opts)
	case FormatJSON:
		return exportToJSON(&out, opts)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}
}

func exportToYAML(s *Spec, opts ExportOptions) ([]byte, error) {
	var buf bytes.Buffer

	if opts.AddComments {
		buf.WriteString("# StockFunk Strategy Spec\n")
		buf.WriteString(fmt.Sprintf("# Schema Version: %s\n", s.SchemaVersion))
		buf.WriteString(fmt.Sprintf("# Exported: %s\n", time.Now().Format(time.RFC3339)))
		buf.WriteString("\n")
	}

	encoder := yaml.NewEncoder(&buf)
	if opts.PrettyPrint {
		encoder.SetIndent(2)
	}

	if err := encoder.Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode spec to YAML: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to close YAML encoder: %w", err)
	}

	return buf.Bytes(), nil
}

func exportToJSON(s *Spec, opts ExportOptions) ([]byte, error) {
	var data []byte
	var err error

	if opts.PrettyPrint {
		data, err = json.MarshalIndent(s, "", "  ")
	} else {
		data, err = json.Marshal(s)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to encode spec to JSON: %w", err)
	}

	return data, nil
}

// ExportToFile exports a spec to a file
func ExportToFile(s *Spec, path string, opts ExportOptions) error {
	// Determine format from file extension if not specified
	if opts.Format == "" {
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			opts.Format = FormatYAML
		case ".json":
			opts.Format = FormatJSON
		default:
			opts.Format = FormatYAML
		}
	}

	data, err := Export(s, opts)
	if err != nil {
		return fmt.Errorf("failed to export spec: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write spec file: %w", err)
	}

	return nil
}

// Import deserializes a strategy document from bytes. The document is
// passed through Normalize, so any field the normalizer accepts (singular
// asset, whole-number percentages, loose entry-condition keys) is accepted
// here too.
func Import(data []byte, opts ImportOptions) (*Spec, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty spec data")
	}

	// Detect format from the first non-whitespace character
	isJSON := false
	for _, b := range data {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		isJSON = b == '{' || b == '['
		break
	}

	var raw map[string]interface{}
	if isJSON {
		if err := json.Unmarshal(data, &raw); err != nil {
			// Fall back to YAML, which also accepts JSON edge cases
			if yamlErr := yaml.Unmarshal(data, &raw); yamlErr != nil {
				return nil, fmt.Errorf("failed to parse as JSON (%v) or YAML (%v)", err, yamlErr)
			}
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			if jsonErr := json.Unmarshal(data, &raw); jsonErr != nil {
				return nil, fmt.Errorf("failed to parse as YAML (%v) or JSON (%v)", err, jsonErr)
			}
		}
	}

	s, err := Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("spec validation failed: %w", err)
	}

	if opts.OverrideName != "" {
		s.Name = opts.OverrideName
	}
	if opts.OverrideDescription != "" {
		s.Description = opts.OverrideDescription
	}

	return s, nil
}

// ImportFromFile imports a spec from a file
func ImportFromFile(path string, opts ImportOptions) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}

	s, err := Import(data, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to import spec from %s: %w", path, err)
	}

	return s, nil
}

// ImportFromReader imports a spec from an io.Reader
func ImportFromReader(r io.Reader, opts ImportOptions) (*Spec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec data: %w", err)
	}

	return Import(data, opts)
}

// Merge overlays non-zero override values onto a copy of base. Used to
// apply ad-hoc take-profit/stop-loss overrides to a stored strategy
// without mutating it.
//
// Due to Go's zero-value semantics an override of 0 is treated as "not
// specified"; to zero out a field, modify the base spec directly.
func Merge(base, override *Spec) (*Spec, error) {
	if base == nil {
		return nil, fmt.Errorf("base spec cannot be nil")
	}

	result, err := base.DeepCopy()
	if err != nil {
		return nil, fmt.Errorf("failed to copy base spec: %w", err)
	}

	if override == nil {
		return result, nil
	}

	if override.Name != "" {
		result.Name = override.Name
	}
	if override.Description != "" {
		result.Description = override.Description
	}
	if len(override.Assets) > 0 {
		result.Assets = append([]string(nil), override.Assets...)
	}

	if override.EntrySignal != "" && override.EntrySignal != result.EntrySignal {
		result.EntrySignal = override.EntrySignal
		result.EntryConditions.Signal = override.EntrySignal
	}
	for k, v := range override.EntryConditions.Parameters {
		if result.EntryConditions.Parameters == nil {
			result.EntryConditions.Parameters = make(map[string]interface{})
		}
		result.EntryConditions.Parameters[k] = v
	}

	if override.Exit.TakeProfit > 0 {
		result.Exit.TakeProfit = scalePercent(override.Exit.TakeProfit)
	}
	if override.Exit.StopLoss != 0 {
		result.Exit.StopLoss = scalePercent(math.Abs(override.Exit.StopLoss))
	}
	if override.Exit.TakeProfitPctShares > 0 {
		result.Exit.TakeProfitPctShares = scalePercent(override.Exit.TakeProfitPctShares)
	}
	if override.Exit.StopLossPctShares > 0 {
		result.Exit.StopLossPctShares = scalePercent(override.Exit.StopLossPctShares)
	}
	if override.Exit.CustomExit != "" {
		result.Exit.CustomExit = override.Exit.CustomExit
	}

	if override.Risk.PositionSize > 0 {
		result.Risk.PositionSize = scalePercent(override.Risk.PositionSize)
	}
	if override.Risk.MaxPositions > 0 {
		result.Risk.MaxPositions = override.Risk.MaxPositions
	}
	if override.Risk.Allocation != "" {
		result.Risk.Allocation = override.Risk.Allocation
	}

	if len(override.DataSources) > 0 {
		result.DataSources = append([]string(nil), override.DataSources...)
	}

	return result, nil
}
