package poem

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the encoding used for poem files.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format: %q (valid: json, yaml)", s)
	}
}

// FormatFromPath picks a format by file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads an ordered poem list from path and validates it.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := Decode(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := Validate(records); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// Decode reads a list of records in the given format.
func Decode(r io.Reader, format Format) ([]Record, error) {
	var records []Record
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&records); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&records); err != nil && err != io.EOF {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown format: %s", format)
	}
	return records, nil
}

// Write encodes results in the given format. Non-ASCII text is written as is.
func Write(w io.Writer, results []Result, format Format) error {
	if results == nil {
		results = []Result{}
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(results)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// WriteFile writes results to path, replacing any existing file.
func WriteFile(path string, results []Result, format Format) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, results, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
