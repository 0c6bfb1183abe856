package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/report-hub/internal/model"
)

// LibrarySheet is the sheet name used for the KPI library workbook.
const LibrarySheet = "KPI Library"

// WriteKPILibraryXLSX writes the KPI library as a single-sheet workbook with
// the same columns as the CSV export.
func WriteKPILibraryXLSX(w io.Writer, defs []model.KPIDefinition) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(LibrarySheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	addRow(sheet, libraryHeader)
	for _, d := range defs {
		r := newLibraryRecord(d)
		addRow(sheet, []string{
			r.Department, r.Section, r.KPIKey, r.KPIName, r.FormulaDisplay, r.Description,
			r.CalculationNotes, r.GreenRule, r.AmberRule, r.RedRule, r.OwnerTeam, r.UpdatedAt,
		})
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}

var libraryHeader = []string{
	"department", "section", "kpi_key", "kpi_name", "formula_display", "description",
	"calculation_notes", "green_rule", "amber_rule", "red_rule", "owner_team", "updated_at",
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// ReadKPILibraryXLSX parses a workbook in the WriteKPILibraryXLSX format. The
// "KPI Library" sheet is used when present, otherwise the first sheet.
func ReadKPILibraryXLSX(data []byte) ([]model.KPIDefinition, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}
	sheet, err := librarySheet(f)
	if err != nil {
		return nil, err
	}
	return decodeLibrary(&sheetReader{rows: sheet.Rows})
}

func librarySheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if sheet, ok := f.Sheet[LibrarySheet]; ok {
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

// sheetReader adapts worksheet rows to csvutil.Reader. Rows are padded or
// cut to the header width, since trailing empty cells are not stored.
type sheetReader struct {
	rows  []*xlsx.Row
	next  int
	width int
}

func (r *sheetReader) Read() ([]string, error) {
	for r.next < len(r.rows) {
		row := r.rows[r.next]
		r.next++
		if row == nil || len(row.Cells) == 0 {
			continue
		}
		cells := rowToStrings(row)
		if r.width == 0 {
			r.width = len(cells)
			return cells, nil
		}
		for len(cells) < r.width {
			cells = append(cells, "")
		}
		return cells[:r.width], nil
	}
	return nil, io.EOF
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
