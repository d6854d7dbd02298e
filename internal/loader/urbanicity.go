package loader

import (
	"context"

	"recruitingetl/internal/field"
	"recruitingetl/internal/registry"
	"recruitingetl/internal/storage"
	"recruitingetl/internal/tabfile"
)

// urbanicityLoader loads the urban/rural locale classification per ZIP.
type urbanicityLoader struct{}

var urbanicityColumns = []string{
	"batch_id", "zip", "locale_code", "locale_name", "population",
}

func (urbanicityLoader) Load(ctx context.Context, repo storage.Repository, tbl *tabfile.Table, batchID string) (Result, error) {
	c, err := requireCols(tbl, registry.KeyUrbanicity,
		[]string{"ZIP", "LOCALE CODE"},
		[]string{"LOCALE NAME", "POPULATION"})
	if err != nil {
		return Result{}, err
	}

	var res Result
	var out [][]any
	for i, row := range tbl.Rows {
		var errs field.Errs

		zip, e := field.Zip("zip", c.get(row, "ZIP"))
		errs.Add(e)
		locale := c.get(row, "LOCALE CODE")
		if locale == "" {
			errs.Addf("locale_code", "", "empty locale code")
		}
		population := soft(field.Int("population", c.get(row, "POPULATION")))

		if !errs.Empty() {
			res.RowErrors = append(res.RowErrors, RowError{RowIndex: i, Messages: errs.Messages()})
			continue
		}
		out = append(out, []any{
			batchID, zip, locale, field.Text(c.get(row, "LOCALE NAME")), population,
		})
	}

	n, err := repo.InsertFactRows(ctx, "fact_urbanicity", urbanicityColumns, out)
	if err != nil {
		return Result{}, err
	}
	res.RowsInserted = int(n)
	return res, nil
}
