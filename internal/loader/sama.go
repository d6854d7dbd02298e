package loader

import (
	"context"

	"recruitingetl/internal/field"
	"recruitingetl/internal/registry"
	"recruitingetl/internal/storage"
	"recruitingetl/internal/tabfile"
)

// samaLoader loads station market-potential scores keyed by ZIP and station.
type samaLoader struct{}

var samaColumns = []string{"batch_id", "zip", "rsid", "station_name", "sama_score"}

func (samaLoader) Load(ctx context.Context, repo storage.Repository, tbl *tabfile.Table, batchID string) (Result, error) {
	c, err := requireCols(tbl, registry.KeySama,
		[]string{"ZIP", "STATION", "SAMA SCORE"},
		[]string{"STATION NAME"})
	if err != nil {
		return Result{}, err
	}

	var res Result
	var out [][]any
	for i, row := range tbl.Rows {
		var errs field.Errs

		zip, e := field.Zip("zip", c.get(row, "ZIP"))
		errs.Add(e)
		score, e := field.Float("sama_score", c.get(row, "SAMA SCORE"))
		errs.Add(e)

		if !errs.Empty() {
			res.RowErrors = append(res.RowErrors, RowError{RowIndex: i, Messages: errs.Messages()})
			continue
		}

		code, name := station(c.get(row, "STATION"), c.get(row, "STATION NAME"))
		out = append(out, []any{batchID, zip, field.Text(code), field.Text(name), score})
	}

	n, err := repo.InsertFactRows(ctx, "fact_sama_score", samaColumns, out)
	if err != nil {
		return Result{}, err
	}
	res.RowsInserted = int(n)
	return res, nil
}
