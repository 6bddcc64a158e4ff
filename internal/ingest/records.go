package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Record is one entity's attributes read from a record file.
type Record = map[string]interface{}

// parseRecords reads the records of a .json, .yaml/.yml or .xlsx file. JSON and YAML
// files hold a single record, a list of records or {"entities": [...]}.
func parseRecords(content []byte, ext string) ([]Record, error) {
	var doc interface{}
	switch ext {
	case ".json":
		if err := json.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	case ".xlsx":
		return sheetRecords(content)
	default:
		return nil, fmt.Errorf("unsupported record format %q", ext)
	}
	return recordsOf(doc)
}

func recordsOf(doc interface{}) ([]Record, error) {
	switch t := doc.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		if list, ok := t["entities"].([]interface{}); ok && len(t) == 1 {
			return recordsOf(list)
		}
		return []Record{t}, nil
	case []interface{}:
		out := make([]Record, 0, len(t))
		for i, x := range t {
			rec, ok := x.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("record %d is %T, not an object", i, x)
			}
			out = append(out, rec)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an object or a list of objects, got %T", doc)
	}
}

// sheetRecords reads every sheet: the first row names the attributes, each further
// row is a record. Empty cells are left out.
func sheetRecords(content []byte) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var out []Record
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		if len(rows) < 2 {
			continue
		}
		header := rows[0]
		for _, row := range rows[1:] {
			rec := make(Record)
			for c, cell := range row {
				if c >= len(header) || header[c] == "" || strings.TrimSpace(cell) == "" {
					continue
				}
				rec[header[c]] = cellValue(cell)
			}
			if len(rec) > 0 {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// cellValue types a spreadsheet cell so numeric and boolean fields index as such.
func cellValue(cell string) interface{} {
	s := strings.TrimSpace(cell)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
