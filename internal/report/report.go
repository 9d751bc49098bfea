// Package report serializes and deserializes TestReport values to the
// file formats: JSON (pretty, preserving the payload-size
// ordering), CBOR (binary, same schema), and HTML (output-only,
// rendered via a streaming template writer).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/nik1740/netspeed/pkg/measure"
)

// Format is the closed set of report file formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
	FormatHTML Format = "html"
)

// DetectFormat infers a Format from a file extension; it defaults to
// JSON for anything it doesn't recognize.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cbor":
		return FormatCBOR
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatJSON
	}
}

// Save writes report to path in the given format. HTML is output-only;
// Load never accepts it.
func Save(path string, format Format, r measure.TestReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()
	return Write(f, format, r)
}

// Write encodes report into w using the given format.
func Write(w io.Writer, format Format, r measure.TestReport) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("report: encode json: %w", err)
		}
		return nil
	case FormatCBOR:
		data, err := cbor.Marshal(r)
		if err != nil {
			return fmt.Errorf("report: encode cbor: %w", err)
		}
		_, err = w.Write(data)
		return err
	case FormatHTML:
		return renderHTML(w, r)
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}

// Load reads a report from path, inferring JSON or CBOR from its
// extension. HTML is output-only and is rejected.
func Load(path string) (measure.TestReport, error) {
	format := DetectFormat(path)
	if format == FormatHTML {
		return measure.TestReport{}, fmt.Errorf("report: html is an output-only format, cannot load %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return measure.TestReport{}, fmt.Errorf("report: read %s: %w", path, err)
	}

	var r measure.TestReport
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &r); err != nil {
			return measure.TestReport{}, fmt.Errorf("report: decode json %s: %w", path, err)
		}
	case FormatCBOR:
		if err := cbor.Unmarshal(data, &r); err != nil {
			return measure.TestReport{}, fmt.Errorf("report: decode cbor %s: %w", path, err)
		}
	}
	return r, nil
}
