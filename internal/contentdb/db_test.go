package contentdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/contentdb/internal/composite"
	"github.com/hyperjump/contentdb/internal/config"
	"github.com/hyperjump/contentdb/internal/models"
	"github.com/hyperjump/contentdb/internal/storage"
)

const dims = 16

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:    filepath.Join(dir, "db", "entities.db"),
			IndexPath:       filepath.Join(dir, "bleve"),
			VectorIndexPath: filepath.Join(dir, "vectors"),
		},
		Matrix: config.MatrixConfig{
			MaxRows: 50,
			Fields: []config.FieldConfig{
				{Name: "open", Type: config.KindBoolean},
				{Name: "stars", Type: config.KindNumerical},
				{Name: "tags", Type: config.KindMultinomial, Multivalued: true},
				{Name: "description", Type: config.KindText, Source: "body"},
				{Name: "summary", Type: config.KindEmbedding, Source: "body"},
			},
		},
		Embedding: config.EmbeddingConfig{UseMock: true, Dimensions: dims},
		Retrieval: config.RetrievalConfig{DefaultLimit: 5, MaxLimit: 20},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

var fixtures = []*models.EntityInput{
	{ID: 0, Attributes: map[string]interface{}{
		"open": true, "stars": 4, "tags": []interface{}{"spa", "pool"}, "body": "one sentence about the pool"}},
	{ID: 1, Attributes: map[string]interface{}{
		"open": false, "stars": 3, "tags": []interface{}{"pool"}, "body": "another sentence about a pool"}},
	{ID: 2, Attributes: map[string]interface{}{
		"open": true, "stars": 5, "tags": []interface{}{"garden"}, "body": "a quiet garden"}},
}

func openDB(t *testing.T, cfg *config.Config) *DB {
	t.Helper()
	db, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return db
}

func seed(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	for _, in := range fixtures {
		if _, err := db.SetContent(ctx, in); err != nil {
			t.Fatalf("SetContent(%d): %v", in.ID, err)
		}
	}
	n, err := db.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if n != len(fixtures) {
		t.Errorf("Rebuild visited %d entities, want %d", n, len(fixtures))
	}
}

func labelIndex(t *testing.T, db *DB, label string) int {
	t.Helper()
	for i, l := range db.Labels() {
		if l == label {
			return i
		}
	}
	t.Fatalf("no column %q", label)
	return -1
}

func TestOpen_EmptyDatabase(t *testing.T) {
	db := openDB(t, testConfig(t, t.TempDir()))
	defer db.Close()

	info := db.Info()
	if info.Rows != 50 {
		t.Errorf("rows = %d, want 50", info.Rows)
	}
	// No vocabulary yet: only the single-column fields and the embedding dimensions.
	if info.Cols != 2+dims {
		t.Errorf("cols = %d, want %d", info.Cols, 2+dims)
	}
	if len(info.Segments) != 5 {
		t.Fatalf("segments = %d, want 5", len(info.Segments))
	}
	last := info.Segments[4]
	if last.Field != "summary" || last.Offset != 2 || last.Width != dims {
		t.Errorf("summary segment = %+v", last)
	}
}

func TestDB_RowsAndColumns(t *testing.T) {
	db := openDB(t, testConfig(t, t.TempDir()))
	defer db.Close()
	seed(t, db)
	ctx := context.Background()

	row, err := db.Row(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	byLabel := make(map[string]float64)
	for _, c := range row.Cells {
		byLabel[c.Label] = c.Value
	}
	for label, want := range map[string]float64{"open": 1, "stars": 4, "tags:spa": 1, "tags:pool": 1} {
		if byLabel[label] != want {
			t.Errorf("row 0 %s = %v, want %v", label, byLabel[label], want)
		}
	}
	if _, ok := byLabel["tags:garden"]; ok {
		t.Error("row 0 should have no garden cell")
	}
	for i := 1; i < len(row.Cells); i++ {
		if row.Cells[i-1].Column >= row.Cells[i].Column {
			t.Fatal("cells should be in column order")
		}
	}

	pool := labelIndex(t, db, "tags:pool")
	col, err := db.Column(ctx, pool)
	if err != nil {
		t.Fatal(err)
	}
	if len(col.Cells) != 2 || col.Cells[0].Row != 0 || col.Cells[1].Row != 1 {
		t.Errorf("pool column = %+v", col.Cells)
	}

	cell, err := db.Cell(ctx, 2, labelIndex(t, db, "stars"))
	if err != nil {
		t.Fatal(err)
	}
	if cell.Value != 5 || cell.Label != "stars" {
		t.Errorf("cell = %+v", cell)
	}

	if _, err := db.Cell(ctx, 50, 0); !errors.Is(err, composite.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := db.Row(ctx, -1); !errors.Is(err, composite.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := db.Column(ctx, db.Matrix().Cols()); !errors.Is(err, composite.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestDB_MatrixIsReadOnly(t *testing.T) {
	db := openDB(t, testConfig(t, t.TempDir()))
	defer db.Close()
	seed(t, db)

	if err := db.Matrix().Set(0, 0, 3); !errors.Is(err, composite.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestDB_SetContentInvalidatesRows(t *testing.T) {
	db := openDB(t, testConfig(t, t.TempDir()))
	defer db.Close()
	seed(t, db)
	ctx := context.Background()
	stars := labelIndex(t, db, "stars")

	if _, err := db.Cell(ctx, 1, stars); err != nil {
		t.Fatal(err)
	}
	update := &models.EntityInput{ID: 1, Attributes: map[string]interface{}{"stars": 1, "tags": "pool"}}
	if _, err := db.SetContent(ctx, update); err != nil {
		t.Fatal(err)
	}
	cell, err := db.Cell(ctx, 1, stars)
	if err != nil {
		t.Fatal(err)
	}
	if cell.Value != 1 {
		t.Errorf("stars after update = %v, want 1", cell.Value)
	}

	tooBig := &models.EntityInput{ID: 50, Attributes: map[string]interface{}{"stars": 1}}
	if _, err := db.SetContent(ctx, tooBig); err == nil {
		t.Error("expected an error for an id beyond the row capacity")
	}
}

func TestDB_Candidates(t *testing.T) {
	db := openDB(t, testConfig(t, t.TempDir()))
	defer db.Close()
	seed(t, db)
	ctx := context.Background()

	tests := []struct {
		name  string
		query *models.CandidateQuery
		want  []int
	}{
		{"keyword", &models.CandidateQuery{Field: "tags", Keyword: "pool"}, []int{0, 1}},
		{"boolean", &models.CandidateQuery{Field: "open", Keyword: "true"}, []int{0, 2}},
		{"query string", &models.CandidateQuery{Query: "description:garden"}, []int{2}},
		{"no match", &models.CandidateQuery{Field: "tags", Keyword: "sauna"}, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := db.Candidates(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if len(resp.IDs) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", resp.IDs, tt.want)
			}
			for i := range tt.want {
				if resp.IDs[i] != tt.want[i] {
					t.Fatalf("ids = %v, want %v", resp.IDs, tt.want)
				}
			}
		})
	}

	q := &models.CandidateQuery{Field: "tags", Keyword: "pool", Limit: 500}
	if _, err := db.Candidates(ctx, q); err != nil {
		t.Fatal(err)
	}
	if q.Limit != 20 {
		t.Errorf("limit should be capped at 20, got %d", q.Limit)
	}
	if _, err := db.Candidates(ctx, &models.CandidateQuery{}); err == nil {
		t.Error("expected a validation error")
	}
}

func TestDB_Similar(t *testing.T) {
	db := openDB(t, testConfig(t, t.TempDir()))
	defer db.Close()
	seed(t, db)
	ctx := context.Background()

	resp, err := db.Similar(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected similar entities")
	}
	if resp.Results[0].ID != 1 {
		t.Errorf("entity 1 shares the most with 0, got %+v", resp.Results[0])
	}
	for i, r := range resp.Results {
		if r.ID == 0 {
			t.Error("the entity itself must not be returned")
		}
		if r.Rank != i+1 {
			t.Errorf("rank %d at position %d", r.Rank, i)
		}
	}

	if _, err := db.Similar(ctx, 42, 10); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDB_Recommend(t *testing.T) {
	db := openDB(t, testConfig(t, t.TempDir()))
	defer db.Close()
	seed(t, db)
	ctx := context.Background()

	resp, err := db.Recommend(ctx, 0, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected recommendations")
	}
	for i, r := range resp.Results {
		if r.ID == 0 {
			t.Error("the entity itself must not be recommended")
		}
		if i > 0 && r.Score > resp.Results[i-1].Score {
			t.Error("results should be sorted by score")
		}
	}

	// Restricting to candidates.
	resp, err = db.Recommend(ctx, 0, &models.CandidateQuery{Field: "tags", Keyword: "garden"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range resp.Results {
		if r.ID != 2 {
			t.Errorf("only entity 2 is a candidate, got %d", r.ID)
		}
	}

	if _, err := db.Recommend(ctx, 99, nil, 10); !errors.Is(err, composite.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestDB_Delete(t *testing.T) {
	db := openDB(t, testConfig(t, t.TempDir()))
	defer db.Close()
	seed(t, db)
	ctx := context.Background()

	if err := db.Delete(ctx, 2); err != nil {
		t.Fatal(err)
	}
	row, err := db.Row(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(row.Cells) != 0 {
		t.Errorf("deleted entity should be an empty row, got %+v", row.Cells)
	}
	resp, err := db.Candidates(ctx, &models.CandidateQuery{Field: "tags", Keyword: "garden"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 {
		t.Errorf("deleted entity still a candidate: %v", resp.IDs)
	}
	if err := db.Delete(ctx, 2); err != nil {
		t.Errorf("deleting twice should succeed: %v", err)
	}
}

func TestDB_StatusAndReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	db := openDB(t, cfg)
	seed(t, db)
	ctx := context.Background()

	st, err := db.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entities != 3 || st.Indexed != 3 || st.Vectors != 3 {
		t.Errorf("status = %+v", st)
	}
	if st.Segments != 5 || st.Rows != 50 {
		t.Errorf("status = %+v", st)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db = openDB(t, cfg)
	defer db.Close()
	st, err = db.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entities != 3 || st.Vectors != 3 {
		t.Errorf("after reopen: %+v", st)
	}
	if st.DiskUsageBytes <= 0 {
		t.Error("expected disk usage")
	}
	// Vocabulary is rebuilt from the reopened index.
	labelIndex(t, db, "tags:garden")
}

func TestAttributeText(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"  hello ", "hello"},
		{[]interface{}{"a", nil, "b"}, "a b"},
		{3.5, "3.5"},
	}
	for _, tt := range tests {
		if got := attributeText(tt.in); got != tt.want {
			t.Errorf("attributeText(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
