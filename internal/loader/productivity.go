package loader

import (
	"context"

	"recruitingetl/internal/field"
	"recruitingetl/internal/registry"
	"recruitingetl/internal/storage"
	"recruitingetl/internal/tabfile"
)

// productivityLoader loads recruiter productivity per station. The
// contracts-per-recruiter rate is derived, never read from the file; a zero
// recruiter count leaves the rate null rather than dividing.
type productivityLoader struct{}

var productivityColumns = []string{
	"batch_id", "fy", "month", "rsid", "recruiters", "contracts",
	"contracts_per_recruiter",
}

func (productivityLoader) Load(ctx context.Context, repo storage.Repository, tbl *tabfile.Table, batchID string) (Result, error) {
	c, err := requireCols(tbl, registry.KeyProductivity,
		[]string{"STATION", "CONTRACTS", "RECRUITERS"},
		[]string{"FY", "MONTH"})
	if err != nil {
		return Result{}, err
	}

	var res Result
	var out [][]any
	for i, row := range tbl.Rows {
		var errs field.Errs

		fy := soft(field.Int("fy", c.get(row, "FY")))
		contracts, e := field.Int("contracts", c.get(row, "CONTRACTS"))
		errs.Add(e)
		recruiters, e := field.Int("recruiters", c.get(row, "RECRUITERS"))
		errs.Add(e)

		if !errs.Empty() {
			res.RowErrors = append(res.RowErrors, RowError{RowIndex: i, Messages: errs.Messages()})
			continue
		}

		var rate any
		if contracts != nil && recruiters != nil {
			if r := recruiters.(int64); r > 0 {
				rate = float64(contracts.(int64)) / float64(r)
			}
		}

		code, _ := station(c.get(row, "STATION"), "")
		out = append(out, []any{
			batchID, fy, field.Text(c.get(row, "MONTH")), field.Text(code),
			recruiters, contracts, rate,
		})
	}

	n, err := repo.InsertFactRows(ctx, "fact_productivity", productivityColumns, out)
	if err != nil {
		return Result{}, err
	}
	res.RowsInserted = int(n)
	return res, nil
}
