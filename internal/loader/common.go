package loader

import (
	"strings"

	"recruitingetl/internal/field"
	"recruitingetl/internal/rsid"
	"recruitingetl/internal/tabfile"
)

// cols resolves canonical column tokens to indexes, split into required and
// optional. Missing optional columns resolve to -1 and read as empty cells.
type cols struct {
	tbl *tabfile.Table
	idx map[string]int
}

func requireCols(tbl *tabfile.Table, datasetKey string, required, optional []string) (*cols, error) {
	c := &cols{tbl: tbl, idx: make(map[string]int, len(required)+len(optional))}

	var missing []string
	for _, name := range required {
		i := tbl.Col(name)
		if i < 0 {
			missing = append(missing, name)
		}
		c.idx[name] = i
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{DatasetKey: datasetKey, Columns: missing}
	}
	for _, name := range optional {
		c.idx[name] = tbl.Col(name)
	}
	return c, nil
}

// soft degrades a failed coercion to a null field. Values read from
// optional columns never reject the row; only required fields are
// row-fatal.
func soft(v any, e *field.Error) any {
	if e != nil {
		return nil
	}
	return v
}

// get returns the trimmed cell for a resolved column, "" when the column is
// absent or the row too short.
func (c *cols) get(row []string, name string) string {
	return c.tbl.Cell(row, c.idx[name])
}

// station splits a station cell into its code and display name. When the
// cell carries no code ("RALEIGH RECRUITING"), the code comes back empty and
// the whole cell is the name. An explicit station-name column wins over the
// name embedded in the cell.
func station(cell, explicitName string) (code, name string) {
	if c, ok := rsid.Parse(cell); ok {
		code = c.Station
		name = c.Name
	} else {
		name = strings.TrimSpace(cell)
	}
	if explicitName != "" {
		name = explicitName
	}
	return code, name
}
