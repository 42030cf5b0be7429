// Package ingest parses uploaded lead spreadsheets into field maps.
package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadFile parses a .csv or .xlsx spreadsheet, returning the header row and
// all data rows as string slices.
func ReadFile(path string) (header []string, rows [][]string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: open csv")
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.LazyQuotes = true

	var header []string
	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "ingest: read csv row")
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		if header == nil {
			header = record
			continue
		}
		rows = append(rows, record)
	}
	return header, rows, nil
}

func readXLSX(path string) ([]string, [][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, nil, eris.New("ingest: xlsx file has no sheets")
	}

	var header []string
	var rows [][]string
	for i, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		if i == 0 {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}
	return header, rows, nil
}

// LeadFields zips a header and a data row into a field map. Blank header
// cells are skipped; a short row leaves trailing fields absent.
func LeadFields(header, row []string) map[string]string {
	fields := make(map[string]string, len(header))
	for i, key := range header {
		if key == "" || i >= len(row) {
			continue
		}
		fields[key] = row[i]
	}
	return fields
}

// companyNameKeys are the recognized column names for a company name,
// compared case-insensitively.
var companyNameKeys = map[string]bool{
	"company":      true,
	"company name": true,
	"organisation": true,
	"organization": true,
	"business":     true,
	"firm":         true,
}

// ExtractCompanyName finds a lead's company name: first by recognized
// column name, then falling back to the first non-blank value in header
// order. Returns "" when nothing qualifies.
func ExtractCompanyName(fields map[string]string, header []string) string {
	for _, key := range keysInOrder(fields, header) {
		if companyNameKeys[strings.ToLower(key)] {
			if v := strings.TrimSpace(fields[key]); v != "" {
				return v
			}
		}
	}
	for _, key := range keysInOrder(fields, header) {
		if v := strings.TrimSpace(fields[key]); v != "" {
			return v
		}
	}
	return ""
}

// keysInOrder returns the field keys in header order, appending any keys
// the header does not mention.
func keysInOrder(fields map[string]string, header []string) []string {
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, key := range header {
		if _, ok := fields[key]; ok && !seen[key] {
			out = append(out, key)
			seen[key] = true
		}
	}
	for key := range fields {
		if !seen[key] {
			out = append(out, key)
		}
	}
	return out
}
