package loader

import (
	"context"

	"recruitingetl/internal/field"
	"recruitingetl/internal/registry"
	"recruitingetl/internal/storage"
	"recruitingetl/internal/tabfile"
)

// marketShareLoader loads contract counts and DoD market share by ZIP and
// station. When the export carries a raw market total instead of a computed
// share, the share is derived as contracts/total*100.
type marketShareLoader struct{}

var marketShareColumns = []string{
	"batch_id", "fy", "rq", "service", "zip", "rsid", "station_name",
	"contracts", "market_share",
}

func (marketShareLoader) Load(ctx context.Context, repo storage.Repository, tbl *tabfile.Table, batchID string) (Result, error) {
	c, err := requireCols(tbl, registry.KeyMarketShare,
		[]string{"FY", "ZIP", "STATION", "CONTRACTS"},
		[]string{"RQ", "SERVICE", "MARKET SHARE", "MARKET TOTAL", "STATION NAME"})
	if err != nil {
		return Result{}, err
	}

	var res Result
	var out [][]any
	for i, row := range tbl.Rows {
		var errs field.Errs

		fy, e := field.Int("fy", c.get(row, "FY"))
		errs.Add(e)
		zip, e := field.Zip("zip", c.get(row, "ZIP"))
		errs.Add(e)
		contracts, e := field.Int("contracts", c.get(row, "CONTRACTS"))
		errs.Add(e)
		share := soft(field.Float("market_share", c.get(row, "MARKET SHARE")))
		total := soft(field.Float("market_total", c.get(row, "MARKET TOTAL")))

		if !errs.Empty() {
			res.RowErrors = append(res.RowErrors, RowError{RowIndex: i, Messages: errs.Messages()})
			continue
		}

		if share == nil && total != nil && contracts != nil {
			if t := total.(float64); t > 0 {
				share = float64(contracts.(int64)) / t * 100
			}
		}

		code, name := station(c.get(row, "STATION"), c.get(row, "STATION NAME"))
		out = append(out, []any{
			batchID, fy,
			field.Text(c.get(row, "RQ")), field.Text(c.get(row, "SERVICE")),
			zip, field.Text(code), field.Text(name),
			contracts, share,
		})
	}

	n, err := repo.InsertFactRows(ctx, "fact_market_share", marketShareColumns, out)
	if err != nil {
		return Result{}, err
	}
	res.RowsInserted = int(n)
	return res, nil
}
