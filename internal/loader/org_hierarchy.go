package loader

import (
	"context"
	"sort"
	"strings"

	"recruitingetl/internal/field"
	"recruitingetl/internal/registry"
	"recruitingetl/internal/rsid"
	"recruitingetl/internal/storage"
	"recruitingetl/internal/tabfile"
)

// orgHierarchyLoader maintains the command hierarchy instead of a fact
// table. Every station row implies its brigade, battalion and company
// ancestors via RSID prefixes, so one roster upload rebuilds the whole tree.
type orgHierarchyLoader struct{}

var echelonRank = map[string]int{
	"command":   0,
	"brigade":   1,
	"battalion": 2,
	"company":   3,
	"station":   4,
}

func (orgHierarchyLoader) Load(ctx context.Context, repo storage.Repository, tbl *tabfile.Table, batchID string) (Result, error) {
	c, err := requireCols(tbl, registry.KeyOrgHierarchy,
		[]string{"STATION", "STATION NAME"},
		[]string{"BRIGADE NAME", "BATTALION NAME", "COMPANY NAME", "COMMAND"})
	if err != nil {
		return Result{}, err
	}

	var res Result
	units := map[string]storage.OrgUnit{}
	add := func(u storage.OrgUnit) {
		if u.Code == "" {
			return
		}
		// A named or parented row wins over one implied without them.
		if prev, ok := units[u.Code]; ok {
			if u.Name == "" {
				u.Name = prev.Name
			}
			if u.ParentCode == "" {
				u.ParentCode = prev.ParentCode
			}
		}
		units[u.Code] = u
	}

	for i, row := range tbl.Rows {
		cell := c.get(row, "STATION")
		code, ok := rsid.Parse(cell)
		if !ok {
			var errs field.Errs
			errs.Addf("rsid", cell, "no 4-character station code")
			res.RowErrors = append(res.RowErrors, RowError{RowIndex: i, Messages: errs.Messages()})
			continue
		}

		name := c.get(row, "STATION NAME")
		if name == "" {
			name = code.Name
		}

		// A COMMAND column puts a root above the brigades.
		command := strings.ToUpper(c.get(row, "COMMAND"))
		if command != "" {
			add(storage.OrgUnit{Code: command, Name: command, Echelon: "command"})
		}

		add(storage.OrgUnit{Code: code.Brigade, ParentCode: command, Name: c.get(row, "BRIGADE NAME"), Echelon: "brigade"})
		add(storage.OrgUnit{Code: code.Battalion, ParentCode: code.Brigade, Name: c.get(row, "BATTALION NAME"), Echelon: "battalion"})
		add(storage.OrgUnit{Code: code.Company, ParentCode: code.Battalion, Name: c.get(row, "COMPANY NAME"), Echelon: "company"})
		add(storage.OrgUnit{Code: code.Station, ParentCode: code.Company, Name: name, Echelon: "station"})
	}

	// Parents before children, for backends enforcing referential order.
	out := make([]storage.OrgUnit, 0, len(units))
	for _, u := range units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if echelonRank[out[i].Echelon] != echelonRank[out[j].Echelon] {
			return echelonRank[out[i].Echelon] < echelonRank[out[j].Echelon]
		}
		return out[i].Code < out[j].Code
	})

	if err := repo.UpsertOrgUnits(ctx, out); err != nil {
		return Result{}, err
	}
	res.RowsInserted = len(out)
	return res, nil
}
