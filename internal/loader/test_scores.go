package loader

import (
	"context"

	"recruitingetl/internal/field"
	"recruitingetl/internal/registry"
	"recruitingetl/internal/storage"
	"recruitingetl/internal/tabfile"
)

// testScoresLoader loads aptitude-test aggregates by ZIP.
type testScoresLoader struct{}

var testScoresColumns = []string{
	"batch_id", "zip", "fy", "test_name", "mean_score", "participants",
}

func (testScoresLoader) Load(ctx context.Context, repo storage.Repository, tbl *tabfile.Table, batchID string) (Result, error) {
	c, err := requireCols(tbl, registry.KeyTestScores,
		[]string{"ZIP", "MEAN SCORE"},
		[]string{"FY", "TEST NAME", "PARTICIPANTS"})
	if err != nil {
		return Result{}, err
	}

	var res Result
	var out [][]any
	for i, row := range tbl.Rows {
		var errs field.Errs

		zip, e := field.Zip("zip", c.get(row, "ZIP"))
		errs.Add(e)
		fy := soft(field.Int("fy", c.get(row, "FY")))
		mean, e := field.Float("mean_score", c.get(row, "MEAN SCORE"))
		errs.Add(e)
		participants := soft(field.Int("participants", c.get(row, "PARTICIPANTS")))

		if !errs.Empty() {
			res.RowErrors = append(res.RowErrors, RowError{RowIndex: i, Messages: errs.Messages()})
			continue
		}
		out = append(out, []any{
			batchID, zip, fy, field.Text(c.get(row, "TEST NAME")), mean, participants,
		})
	}

	n, err := repo.InsertFactRows(ctx, "fact_test_score", testScoresColumns, out)
	if err != nil {
		return Result{}, err
	}
	res.RowsInserted = int(n)
	return res, nil
}
