package loader

import (
	"context"

	"recruitingetl/internal/field"
	"recruitingetl/internal/registry"
	"recruitingetl/internal/storage"
	"recruitingetl/internal/tabfile"
)

// zipCategoryLoader loads the mission-category assignment per ZIP, with
// optional lead and contract counts.
type zipCategoryLoader struct{}

var zipCategoryColumns = []string{"batch_id", "zip", "category", "leads", "contracts"}

func (zipCategoryLoader) Load(ctx context.Context, repo storage.Repository, tbl *tabfile.Table, batchID string) (Result, error) {
	c, err := requireCols(tbl, registry.KeyZipCategory,
		[]string{"ZIP", "CATEGORY"},
		[]string{"LEADS", "CONTRACTS"})
	if err != nil {
		return Result{}, err
	}

	var res Result
	var out [][]any
	for i, row := range tbl.Rows {
		var errs field.Errs

		zip, e := field.Zip("zip", c.get(row, "ZIP"))
		errs.Add(e)
		category := c.get(row, "CATEGORY")
		if category == "" {
			errs.Addf("category", "", "empty category")
		}
		leads := soft(field.Int("leads", c.get(row, "LEADS")))
		contracts := soft(field.Int("contracts", c.get(row, "CONTRACTS")))

		if !errs.Empty() {
			res.RowErrors = append(res.RowErrors, RowError{RowIndex: i, Messages: errs.Messages()})
			continue
		}
		out = append(out, []any{batchID, zip, category, leads, contracts})
	}

	n, err := repo.InsertFactRows(ctx, "fact_zip_category", zipCategoryColumns, out)
	if err != nil {
		return Result{}, err
	}
	res.RowsInserted = int(n)
	return res, nil
}
