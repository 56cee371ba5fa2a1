package scenario

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Export writes the scenario's non-geometry columns to w in the given format.
func Export(s *Scenario, format string, w io.Writer) error {
	switch format {
	case FormatCSV:
		return ExportCSV(s, w)
	case FormatXLSX:
		return ExportXLSX(s, w)
	default:
		return eris.Errorf("scenario export: unsupported format %q", format)
	}
}

// ExportCSV writes one header row followed by one row per unit.
func ExportCSV(s *Scenario, w io.Writer) error {
	cols := s.Columns()
	cw := csv.NewWriter(w)

	if err := cw.Write(cols); err != nil {
		return eris.Wrap(err, "scenario export: write header")
	}
	record := make([]string, len(cols))
	for _, u := range s.units {
		row := u.Row()
		for i, c := range cols {
			record[i] = formatCell(row[c])
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "scenario export: write unit %s", u.Code)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "scenario export: flush")
}

// ExportXLSX writes a single "scenario" sheet with numeric cells for
// indicator columns.
func ExportXLSX(s *Scenario, w io.Writer) error {
	cols := s.Columns()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("scenario")
	if err != nil {
		return eris.Wrap(err, "scenario export: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range cols {
		header.AddCell().SetString(c)
	}
	for _, u := range s.units {
		row := u.Row()
		r := sheet.AddRow()
		for _, c := range cols {
			cell := r.AddCell()
			switch v := row[c].(type) {
			case float64:
				cell.SetFloat(v)
			case string:
				cell.SetString(v)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "scenario export: write workbook")
	}
	return nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}
