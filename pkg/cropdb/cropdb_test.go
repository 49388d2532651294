package cropdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/blockcheck/pkg/setup"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "catalog", "crops.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db))
	return db
}

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "empty", cfg: Config{}, wantErr: true},
		{name: "memory", cfg: Config{Path: ":memory:"}, want: ":memory:"},
		{name: "plain path", cfg: Config{Path: filepath.Join(dir, "a", "crops.db")}, want: "file:" + filepath.Join(dir, "a", "crops.db")},
		{name: "file dsn", cfg: Config{Path: "file:" + filepath.Join(dir, "b", "crops.db")}, want: "file:" + filepath.Join(dir, "b", "crops.db")},
		{name: "url", cfg: Config{URL: "libsql://crops.example.io"}, want: "libsql://crops.example.io"},
		{name: "url with token", cfg: Config{URL: "libsql://crops.example.io", AuthToken: "tok"}, want: "libsql://crops.example.io?authToken=tok"},
		{name: "url keeps existing token", cfg: Config{URL: "libsql://crops.example.io?authToken=a", AuthToken: "b"}, want: "libsql://crops.example.io?authToken=a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := os.Stat(filepath.Join(dir, "a"))
	assert.NoError(t, err, "parent directory is created")
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(context.Background(), db))

	var version int
	require.NoError(t, db.QueryRow(`SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&version))
	assert.Equal(t, SchemaVersion, version)
}

func TestUpsertAndList(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, UpsertCrop(ctx, db, Crop{Number: 113, PresentAnnotated: []int{3, 4}}))
	require.NoError(t, UpsertCrop(ctx, db, Crop{Number: 7, Purpose: PurposeTraining, DatasetID: "jrc_hela-2", PresentAnnotated: []int{16}}))
	require.NoError(t, UpsertCrop(ctx, db, Crop{Number: 20, Purpose: PurposeValidation}))

	all, err := ListCrops(ctx, db, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{7, 20, 113}, []int{all[0].Number, all[1].Number, all[2].Number})
	assert.Equal(t, "jrc_hela-2", all[0].DatasetID)
	assert.Equal(t, []int{}, all[1].PresentAnnotated)

	val, err := ValidationCrops(ctx, db)
	require.NoError(t, err)
	require.Len(t, val, 2)
	assert.Equal(t, Crop{Number: 113, Purpose: PurposeValidation, PresentAnnotated: []int{3, 4}}, val[1])

	// Upsert replaces in place.
	require.NoError(t, UpsertCrop(ctx, db, Crop{Number: 113, Purpose: PurposeTraining, PresentAnnotated: []int{5}}))
	val, err = ValidationCrops(ctx, db)
	require.NoError(t, err)
	require.Len(t, val, 1)
	assert.Equal(t, 20, val[0].Number)
}

func TestImportFile(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "crops.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`crops:
  - number: 1
    present_annotated: [3, 4, 5]
  - number: 2
    purpose: training
    present_annotated: [16]
`), 0o644))

	n, err := ImportFile(ctx, db, yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	jsonPath := filepath.Join(dir, "crops.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"crops": [{"number": 3, "present_annotated": [16, 17]}]}`), 0o644))
	n, err = ImportFile(ctx, db, jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	val, err := ValidationCrops(ctx, db)
	require.NoError(t, err)
	require.Len(t, val, 2)
	assert.Equal(t, 1, val[0].Number)
	assert.Equal(t, 3, val[1].Number)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing crops", "{}"},
		{"unknown purpose", "crops: [{number: 1, purpose: testing, present_annotated: []}]"},
		{"unknown field", "crops: [{number: 1, present_annotated: [], color: red}]"},
		{"negative label id", "crops: [{number: 1, present_annotated: [-1]}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.data), "crops.yaml")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCatalog))
		})
	}

	_, err := ParseCatalog([]byte("crops: [1, 2"), "crops.yaml")
	require.Error(t, err)
}

func TestLabelToCrops(t *testing.T) {
	labels := []setup.Label{
		{Name: "mito", IDs: []int{3, 4, 5}},
		{Name: "er", IDs: []int{16, 17}},
		{Name: "ribo", IDs: []int{22}},
	}
	crops := []Crop{
		{Number: 1, PresentAnnotated: []int{3}},
		{Number: 2, PresentAnnotated: []int{16, 4}},
		{Number: 3, PresentAnnotated: []int{1}},
	}

	got, unmatched := LabelToCrops(labels, crops)
	assert.Equal(t, map[string][]int{
		"mito": {1, 2},
		"er":   {2},
	}, got)
	assert.Equal(t, []string{"ribo"}, unmatched)

	got, unmatched = LabelToCrops(labels, nil)
	assert.Empty(t, got)
	assert.Equal(t, []string{"mito", "er", "ribo"}, unmatched)
}
