// Package tabfile reads delimited and spreadsheet exports into a uniform
// in-memory table.
//
// Supported inputs are CSV (including the Windows-1252 files some reporting
// tools still emit) and XLSX/XLSM workbooks. Rows above the detected header
// are discarded, headers are canonicalized through the synonym table, and
// everything below the header becomes string cells. Type interpretation is
// left to the loaders.
package tabfile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"recruitingetl/internal/colnorm"
	"recruitingetl/internal/headerscan"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("file contains no data")
	ErrNoHeader          = errors.New("no plausible header row found")
)

// Table is the uniform result of reading any supported file.
type Table struct {
	// Path is the file the table was read from.
	Path string

	// Sheet is the worksheet name for spreadsheet inputs, empty for CSV.
	Sheet string

	// HeaderRow is the zero-based index of the header in the original file.
	HeaderRow int

	// Headers holds the raw header cells; Canonical holds the same cells
	// normalized and synonym-resolved, index-aligned with Headers.
	Headers   []string
	Canonical []string

	// Rows are the data rows below the header. Short rows are kept short;
	// Cell guards against ragged widths.
	Rows [][]string
}

// Col returns the index of a canonical column token, or -1.
func (t *Table) Col(canonical string) int {
	for i, c := range t.Canonical {
		if c == canonical {
			return i
		}
	}
	return -1
}

// Cell returns row[col] or "" when the row is shorter than col.
func (t *Table) Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// Options configures reading. The zero value uses the built-in synonym table
// and default header detection.
type Options struct {
	Synonyms colnorm.Table
	Header   headerscan.Options
}

// Read loads a file by extension. It dispatches on the lower-cased suffix:
// .csv and .txt go through the CSV path, .xlsx and .xlsm through excelize.
// Legacy binary .xls workbooks are rejected; exports must be resaved as
// .xlsx before upload.
func Read(path string, opt Options) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return ReadCSV(path, opt)
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, opt)
	case ".xls":
		return nil, fmt.Errorf("%w: legacy .xls workbooks are not readable, resave as .xlsx", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadCSV reads a delimited text file. Input is decoded as UTF-8 when valid,
// otherwise re-decoded as Windows-1252, which covers the degree signs and
// smart quotes legacy exports carry. A UTF-8 BOM is stripped.
func ReadCSV(path string, opt Options) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(raw) {
		decoded, derr := charmap.Windows1252.NewDecoder().Bytes(raw)
		if derr != nil {
			return nil, fmt.Errorf("decode %s: %w", path, derr)
		}
		raw = decoded
	}

	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		rows = append(rows, rec)
	}

	return build(path, "", rows, opt)
}

// ReadXLSX reads the first worksheet of a workbook. Cells come back as raw
// strings so numeric formatting in the sheet does not alter values.
func ReadXLSX(path string, opt Options) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s of %s: %w", sheet, path, err)
	}

	return build(path, sheet, rows, opt)
}

func build(path, sheet string, rows [][]string, opt Options) (*Table, error) {
	if !hasContent(rows) {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	synonyms := opt.Synonyms
	if synonyms == nil {
		synonyms = colnorm.DefaultTable()
	}
	hdrOpt := opt.Header
	if hdrOpt.Synonyms == nil {
		hdrOpt.Synonyms = synonyms
	}

	headerIdx, ok := headerscan.Detect(rows, hdrOpt)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNoHeader)
	}

	headers := rows[headerIdx]
	canonical := make([]string, len(headers))
	for i, h := range headers {
		canonical[i] = synonyms.Canonical(h)
	}

	var data [][]string
	for _, row := range rows[headerIdx+1:] {
		if rowEmpty(row) {
			continue
		}
		data = append(data, row)
	}

	return &Table{
		Path:      path,
		Sheet:     sheet,
		HeaderRow: headerIdx,
		Headers:   headers,
		Canonical: canonical,
		Rows:      data,
	}, nil
}

func hasContent(rows [][]string) bool {
	for _, row := range rows {
		if !rowEmpty(row) {
			return true
		}
	}
	return false
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
