package export

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/maps-harvest/internal/model"
)

// Format is an export serialization.
type Format string

const (
	TSV  Format = "tsv"
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// SheetName is the worksheet written to XLSX exports.
const SheetName = "Businesses"

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case TSV, CSV, XLSX:
		return f, nil
	}
	return "", eris.Errorf("export: unknown format %q (want tsv, csv or xlsx)", s)
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv; charset=utf-8"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/tab-separated-values; charset=utf-8"
}

// Write serializes recs to w in format f.
func Write(w io.Writer, f Format, recs []model.BusinessRecord, cols []Column) error {
	if len(cols) == 0 {
		cols = DefaultColumns()
	}
	switch f {
	case TSV:
		return WriteTSV(w, recs, cols)
	case CSV:
		return WriteCSV(w, recs, cols)
	case XLSX:
		return WriteXLSX(w, recs, cols)
	}
	return eris.Errorf("export: unknown format %q", f)
}

// WriteTSV writes the clipboard format: a header line, then one line per
// record. Tabs inside values become spaces.
func WriteTSV(w io.Writer, recs []model.BusinessRecord, cols []Column) error {
	bw := bufio.NewWriter(w)
	writeLine := func(vals []string) {
		for i, v := range vals {
			if i > 0 {
				bw.WriteByte('\t')
			}
			bw.WriteString(strings.ReplaceAll(v, "\t", " "))
		}
		bw.WriteByte('\n')
	}

	writeLine(headers(cols))
	row := make([]string, len(cols))
	for _, r := range recs {
		for i, c := range cols {
			row[i] = cell(c, r)
		}
		writeLine(row)
	}
	return eris.Wrap(bw.Flush(), "export: write tsv")
}

// ParseTSV reads text produced by WriteTSV back into records. Columns are
// matched by header; unknown headers are ignored.
func ParseTSV(r io.Reader) ([]model.BusinessRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		return nil, eris.Wrap(sc.Err(), "export: read tsv header")
	}
	var cols []*Column
	for _, h := range strings.Split(strings.TrimRight(sc.Text(), "\r"), "\t") {
		if c, ok := byHeader(h); ok {
			cols = append(cols, &c)
		} else {
			cols = append(cols, nil)
		}
	}

	var recs []model.BusinessRecord
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec model.BusinessRecord
		for i, v := range strings.Split(line, "\t") {
			if i < len(cols) && cols[i] != nil {
				cols[i].set(&rec, v)
			}
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(sc.Err(), "export: read tsv")
}

// WriteCSV writes RFC 4180 CSV with a header row.
func WriteCSV(w io.Writer, recs []model.BusinessRecord, cols []Column) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers(cols)); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	row := make([]string, len(cols))
	for _, r := range recs {
		for i, c := range cols {
			row[i] = cell(c, r)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes a workbook with a single Businesses sheet.
func WriteXLSX(w io.Writer, recs []model.BusinessRecord, cols []Column) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hdr := sheet.AddRow()
	for _, h := range headers(cols) {
		hdr.AddCell().SetString(h)
	}
	for _, r := range recs {
		row := sheet.AddRow()
		for _, c := range cols {
			row.AddCell().SetString(cell(c, r))
		}
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// ParseXLSX reads the Businesses sheet of a workbook produced by WriteXLSX.
func ParseXLSX(data []byte) ([]model.BusinessRecord, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "export: open xlsx")
	}
	sheet, ok := f.Sheet[SheetName]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", SheetName)
	}
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	var cols []*Column
	for _, c := range sheet.Rows[0].Cells {
		if col, ok := byHeader(c.String()); ok {
			cols = append(cols, &col)
		} else {
			cols = append(cols, nil)
		}
	}

	recs := make([]model.BusinessRecord, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		var rec model.BusinessRecord
		for i, c := range row.Cells {
			if i < len(cols) && cols[i] != nil {
				cols[i].set(&rec, c.String())
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
