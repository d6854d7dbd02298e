package loader

import (
	"context"
	"errors"
	"testing"

	"recruitingetl/internal/colnorm"
	"recruitingetl/internal/registry"
	"recruitingetl/internal/storage"
	"recruitingetl/internal/tabfile"
)

// fakeRepo records the writes loaders perform.
type fakeRepo struct {
	insertTable string
	insertCols  []string
	insertRows  [][]any
	insertCalls int
	insertErr   error

	units []storage.OrgUnit
}

func (f *fakeRepo) Close()                                  {}
func (f *fakeRepo) EnsureSchema(ctx context.Context) error  { return nil }
func (f *fakeRepo) InsertBatch(ctx context.Context, b storage.Batch) error { return nil }
func (f *fakeRepo) UpdateBatchStatus(ctx context.Context, id, status, notes string) error {
	return nil
}
func (f *fakeRepo) SetBatchDataset(ctx context.Context, id, key string) error { return nil }
func (f *fakeRepo) SetBatchCounts(ctx context.Context, id string, read, inserted int) error {
	return nil
}
func (f *fakeRepo) GetBatch(ctx context.Context, id string) (storage.Batch, error) {
	return storage.Batch{}, storage.ErrBatchNotFound
}
func (f *fakeRepo) ReplaceRawRows(ctx context.Context, batchID string, rows []storage.RawRow) error {
	return nil
}
func (f *fakeRepo) RecordRowErrors(ctx context.Context, batchID string, errs map[int][]string) error {
	return nil
}
func (f *fakeRepo) DeleteFactRowsForBatch(ctx context.Context, table, batchID string) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) InsertFactRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	f.insertCalls++
	f.insertTable = table
	f.insertCols = append([]string(nil), columns...)
	f.insertRows = rows
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	return int64(len(rows)), nil
}

func (f *fakeRepo) UpsertOrgUnits(ctx context.Context, units []storage.OrgUnit) error {
	f.units = units
	return nil
}

var _ storage.Repository = (*fakeRepo)(nil)

// makeTable builds an in-memory table the way tabfile would after header
// detection and canonicalization.
func makeTable(headers []string, rows [][]string) *tabfile.Table {
	syn := colnorm.DefaultTable()
	canonical := make([]string, len(headers))
	for i, h := range headers {
		canonical[i] = syn.Canonical(h)
	}
	return &tabfile.Table{
		Path:      "test.csv",
		Headers:   headers,
		Canonical: canonical,
		Rows:      rows,
	}
}

func col(t *testing.T, repo *fakeRepo, row []any, name string) any {
	t.Helper()
	for i, c := range repo.insertCols {
		if c == name {
			return row[i]
		}
	}
	t.Fatalf("column %s not in insert columns %v", name, repo.insertCols)
	return nil
}

func TestMarketShare_SingleRow(t *testing.T) {
	t.Parallel()
	tbl := makeTable(
		[]string{"FY", "RQ", "SERVICE", "SUM OF CONTRACTS", "ZIP", "STATION"},
		[][]string{{"2024", "Q1", "Logistics", "1234", "27587", "3J3H - WAKE FOREST"}},
	)
	repo := &fakeRepo{}

	l, ok := ForKey(registry.KeyMarketShare)
	if !ok {
		t.Fatal("no loader for market share")
	}
	res, err := l.Load(context.Background(), repo, tbl, "b1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RowsInserted != 1 || len(res.RowErrors) != 0 {
		t.Fatalf("res = %+v, want 1 insert and no errors", res)
	}
	if repo.insertTable != "fact_market_share" {
		t.Errorf("table = %s", repo.insertTable)
	}
	row := repo.insertRows[0]
	if got := col(t, repo, row, "fy"); got != int64(2024) {
		t.Errorf("fy = %v", got)
	}
	if got := col(t, repo, row, "zip"); got != "27587" {
		t.Errorf("zip = %v", got)
	}
	if got := col(t, repo, row, "rsid"); got != "3J3H" {
		t.Errorf("rsid = %v", got)
	}
	if got := col(t, repo, row, "station_name"); got != "WAKE FOREST" {
		t.Errorf("station_name = %v", got)
	}
	if got := col(t, repo, row, "contracts"); got != int64(1234) {
		t.Errorf("contracts = %v", got)
	}
	if got := col(t, repo, row, "batch_id"); got != "b1" {
		t.Errorf("batch_id = %v", got)
	}
}

func TestMarketShare_DerivedShare(t *testing.T) {
	t.Parallel()
	tbl := makeTable(
		[]string{"FY", "ZIP", "STATION", "CONTRACTS", "TOTAL MARKET"},
		[][]string{{"2025", "27587", "3J3H", "25", "100"}},
	)
	repo := &fakeRepo{}

	res, err := marketShareLoader{}.Load(context.Background(), repo, tbl, "b1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RowsInserted != 1 {
		t.Fatalf("res = %+v", res)
	}
	if got := col(t, repo, repo.insertRows[0], "market_share"); got != 25.0 {
		t.Errorf("derived market_share = %v, want 25", got)
	}
}

func TestMarketShare_MissingColumns(t *testing.T) {
	t.Parallel()
	tbl := makeTable([]string{"FY", "ZIP"}, nil)

	_, err := marketShareLoader{}.Load(context.Background(), &fakeRepo{}, tbl, "b1")
	var missing *MissingColumnsError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingColumnsError", err)
	}
	if missing.DatasetKey != registry.KeyMarketShare {
		t.Errorf("DatasetKey = %s", missing.DatasetKey)
	}
	if len(missing.Columns) != 2 {
		t.Errorf("Columns = %v, want STATION and CONTRACTS", missing.Columns)
	}
}

func TestMarketShare_BadRowsRejectedOthersLoaded(t *testing.T) {
	t.Parallel()
	tbl := makeTable(
		[]string{"FY", "ZIP", "STATION", "CONTRACTS"},
		[][]string{
			{"2025", "27587", "3J3H", "12"},
			{"2025", "27601", "3J3C", "twelve"},
			{"2025", "ABCDE", "3J3D", "4"},
			{"2025", "27609", "3J3E", "9"},
		},
	)
	repo := &fakeRepo{}

	res, err := marketShareLoader{}.Load(context.Background(), repo, tbl, "b1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RowsInserted != 2 {
		t.Errorf("RowsInserted = %d, want 2", res.RowsInserted)
	}
	if len(res.RowErrors) != 2 {
		t.Fatalf("RowErrors = %+v, want 2", res.RowErrors)
	}
	if res.RowErrors[0].RowIndex != 1 || res.RowErrors[1].RowIndex != 2 {
		t.Errorf("rejected indexes = %d,%d, want 1,2",
			res.RowErrors[0].RowIndex, res.RowErrors[1].RowIndex)
	}
	if len(res.RowErrors[0].Messages) == 0 {
		t.Error("rejected row has no messages")
	}
}

func TestMarketShare_MalformedOptionalFieldNulled(t *testing.T) {
	t.Parallel()
	tbl := makeTable(
		[]string{"FY", "ZIP", "STATION", "CONTRACTS", "SHARE"},
		[][]string{{"2025", "27587", "3J3H", "12", "N/A"}},
	)
	repo := &fakeRepo{}

	res, err := marketShareLoader{}.Load(context.Background(), repo, tbl, "b1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RowsInserted != 1 || len(res.RowErrors) != 0 {
		t.Fatalf("res = %+v, want 1 insert and no rejections", res)
	}
	if got := col(t, repo, repo.insertRows[0], "market_share"); got != nil {
		t.Errorf("market_share = %v, want nil", got)
	}
	if got := col(t, repo, repo.insertRows[0], "contracts"); got != int64(12) {
		t.Errorf("contracts = %v", got)
	}
}

func TestZipCategory_MalformedOptionalCountsNulled(t *testing.T) {
	t.Parallel()
	tbl := makeTable(
		[]string{"ZIP", "CATEGORY", "LEADS", "CONTRACTS"},
		[][]string{{"27587", "A", "n/a", "#REF!"}},
	)
	repo := &fakeRepo{}

	res, err := zipCategoryLoader{}.Load(context.Background(), repo, tbl, "b1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RowsInserted != 1 || len(res.RowErrors) != 0 {
		t.Fatalf("res = %+v, want 1 insert and no rejections", res)
	}
	if got := col(t, repo, repo.insertRows[0], "leads"); got != nil {
		t.Errorf("leads = %v, want nil", got)
	}
	if got := col(t, repo, repo.insertRows[0], "contracts"); got != nil {
		t.Errorf("contracts = %v, want nil", got)
	}
}

func TestZipCategory_EmptyCategoryRejected(t *testing.T) {
	t.Parallel()
	tbl := makeTable(
		[]string{"ZIP", "CATEGORY", "LEADS"},
		[][]string{
			{"27587", "A", "40"},
			{"27601", "", "11"},
		},
	)
	repo := &fakeRepo{}

	res, err := zipCategoryLoader{}.Load(context.Background(), repo, tbl, "b1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RowsInserted != 1 || len(res.RowErrors) != 1 {
		t.Fatalf("res = %+v, want 1 insert, 1 rejection", res)
	}
	if repo.insertTable != "fact_zip_category" {
		t.Errorf("table = %s", repo.insertTable)
	}
}

func TestSama_OptionalNameColumn(t *testing.T) {
	t.Parallel()
	tbl := makeTable(
		[]string{"Zip Code", "RSID", "SAMA Score"},
		[][]string{{"27587", "3J3H - WAKE FOREST", "82.5"}},
	)
	repo := &fakeRepo{}

	res, err := samaLoader{}.Load(context.Background(), repo, tbl, "b1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RowsInserted != 1 {
		t.Fatalf("res = %+v", res)
	}
	row := repo.insertRows[0]
	if got := col(t, repo, row, "sama_score"); got != 82.5 {
		t.Errorf("sama_score = %v", got)
	}
	if got := col(t, repo, row, "station_name"); got != "WAKE FOREST" {
		t.Errorf("station_name = %v, want name split from the code cell", got)
	}
}

func TestProductivity_RateDerivation(t *testing.T) {
	t.Parallel()
	tbl := makeTable(
		[]string{"STATION", "CONTRACTS", "RECRUITERS"},
		[][]string{
			{"3J3H", "12", "4"},
			{"3J3C", "3", "0"},
		},
	)
	repo := &fakeRepo{}

	res, err := productivityLoader{}.Load(context.Background(), repo, tbl, "b1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.RowsInserted != 2 {
		t.Fatalf("res = %+v", res)
	}
	if got := col(t, repo, repo.insertRows[0], "contracts_per_recruiter"); got != 3.0 {
		t.Errorf("rate = %v, want 3", got)
	}
	if got := col(t, repo, repo.insertRows[1], "contracts_per_recruiter"); got != nil {
		t.Errorf("zero-recruiter rate = %v, want nil", got)
	}
}

func TestOrgHierarchy_BuildsAncestors(t *testing.T) {
	t.Parallel()
	tbl := makeTable(
		[]string{"RSID", "Station Description", "BDE NAME", "BN NAME"},
		[][]string{
			{"3J3H", "WAKE FOREST", "3RD BDE", "RALEIGH BN"},
			{"3J3C", "RALEIGH", "3RD BDE", "RALEIGH BN"},
			{"RALEIGH NC", "X", "", ""},
		},
	)
	repo := &fakeRepo{}

	res, err := orgHierarchyLoader{}.Load(context.Background(), repo, tbl, "b1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.RowErrors) != 1 || res.RowErrors[0].RowIndex != 2 {
		t.Fatalf("RowErrors = %+v, want the codeless row rejected", res.RowErrors)
	}

	// 1 brigade + 1 battalion + 1 company + 2 stations.
	if len(repo.units) != 5 {
		t.Fatalf("units = %+v, want 5", repo.units)
	}
	byCode := map[string]storage.OrgUnit{}
	for _, u := range repo.units {
		byCode[u.Code] = u
	}
	if u := byCode["3"]; u.Echelon != "brigade" || u.Name != "3RD BDE" {
		t.Errorf("brigade = %+v", u)
	}
	if u := byCode["3J"]; u.Echelon != "battalion" || u.ParentCode != "3" {
		t.Errorf("battalion = %+v", u)
	}
	if u := byCode["3J3"]; u.Echelon != "company" || u.ParentCode != "3J" {
		t.Errorf("company = %+v", u)
	}
	if u := byCode["3J3H"]; u.Echelon != "station" || u.ParentCode != "3J3" || u.Name != "WAKE FOREST" {
		t.Errorf("station = %+v", u)
	}

	// Parents sort before children.
	if repo.units[0].Code != "3" {
		t.Errorf("first upsert = %s, want brigade code 3", repo.units[0].Code)
	}
}

func TestOrgHierarchy_CommandColumnRootsTree(t *testing.T) {
	t.Parallel()
	tbl := makeTable(
		[]string{"RSID", "Station Description", "COMMAND"},
		[][]string{
			{"3J3H", "WAKE FOREST", "USAREC"},
			{"3J3C", "RALEIGH", ""},
		},
	)
	repo := &fakeRepo{}

	res, err := orgHierarchyLoader{}.Load(context.Background(), repo, tbl, "b1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// 1 command + 1 brigade + 1 battalion + 1 company + 2 stations.
	if res.RowsInserted != 6 || len(repo.units) != 6 {
		t.Fatalf("units = %+v, want 6", repo.units)
	}

	byCode := map[string]storage.OrgUnit{}
	for _, u := range repo.units {
		byCode[u.Code] = u
	}
	if u := byCode["USAREC"]; u.Echelon != "command" || u.ParentCode != "" {
		t.Errorf("command = %+v", u)
	}
	// The commandless row does not detach the brigade from its root.
	if u := byCode["3"]; u.Echelon != "brigade" || u.ParentCode != "USAREC" {
		t.Errorf("brigade = %+v", u)
	}

	// The command root sorts before every code-derived unit.
	if repo.units[0].Code != "USAREC" {
		t.Errorf("first upsert = %s, want USAREC", repo.units[0].Code)
	}
}

func TestForKey_CoversEveryProfile(t *testing.T) {
	t.Parallel()
	for _, key := range registry.Default().Keys() {
		if _, ok := ForKey(key); !ok {
			t.Errorf("no loader for registry profile %s", key)
		}
	}
	if _, ok := ForKey("unknown"); ok {
		t.Error("ForKey(unknown) returned a loader")
	}
}
