package cmd

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/blockcheck/internal/errors"
)

const setup8nm = `voxel_size_input: [8, 8, 8]
labels:
  - name: mito
    label_ids: [3, 4, 5]
  - name: er
    label_ids: [16, 17]
`

const setup4nm = `{"voxel_size_input": [4, 4, 4], "labels": [{"name": "ribo", "label_ids": [22]}]}`

// makeSetupRoots creates two search roots and returns their templates.
func makeSetupRoots(t *testing.T) (first, second string) {
	t.Helper()
	base := t.TempDir()
	writeFiles(t, filepath.Join(base, "a", "v1"), map[string]string{
		"setup01/unet_template.yaml": setup8nm,
	})
	writeFiles(t, filepath.Join(base, "b", "v1"), map[string]string{
		"setup01/unet_template.json": setup4nm,
		"setup02/unet_template.json": setup4nm,
	})
	return filepath.Join(base, "a", "{training_version}", "{setup}"),
		filepath.Join(base, "b", "{training_version}")
}

func TestSetupCommands(t *testing.T) {
	isolateEnv(t)
	first, second := makeSetupRoots(t)
	rootFlags := []string{"--root", first, "--root", second, "--training-version", "v1"}

	t.Run("labels", func(t *testing.T) {
		out, err := execute(t, append([]string{"setup", "labels", "setup01"}, rootFlags...)...)
		require.NoError(t, err)
		assert.Equal(t, "mito\ner\n", out)
	})

	t.Run("raw-datasets for 8nm", func(t *testing.T) {
		out, err := execute(t, append([]string{"setup", "raw-datasets", "setup01"}, rootFlags...)...)
		require.NoError(t, err)
		assert.Equal(t, "volumes/raw/s1\nvolumes/subsampled/raw/0\n", out)
	})

	t.Run("raw-datasets for 4nm", func(t *testing.T) {
		out, err := execute(t, append([]string{"setup", "raw-datasets", "setup02"}, rootFlags...)...)
		require.NoError(t, err)
		assert.Equal(t, "volumes/raw\n", out)
	})

	t.Run("is-8nm", func(t *testing.T) {
		out, err := execute(t, append([]string{"setup", "is-8nm", "setup01"}, rootFlags...)...)
		require.NoError(t, err)
		assert.Equal(t, "1\n", out)

		out, err = execute(t, append([]string{"setup", "is-8nm", "setup02"}, rootFlags...)...)
		require.NoError(t, err)
		assert.Equal(t, "0\n", out)
	})

	t.Run("show", func(t *testing.T) {
		out, err := execute(t, append([]string{"setup", "show", "setup01"}, rootFlags...)...)
		require.NoError(t, err)

		var doc struct {
			Location struct {
				Setup string `json:"setup"`
				Root  int    `json:"root"`
			} `json:"location"`
			Is8nm bool `json:"is_8nm"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &doc))
		assert.Equal(t, "setup01", doc.Location.Setup)
		assert.Equal(t, 0, doc.Location.Root)
		assert.True(t, doc.Is8nm)
	})

	t.Run("list", func(t *testing.T) {
		out, err := execute(t, append([]string{"setup", "list"}, rootFlags...)...)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "setup01\t"))
		assert.Contains(t, lines[0], filepath.Join("a", "v1", "setup01"))
		assert.True(t, strings.HasPrefix(lines[1], "setup02\t"))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := execute(t, append([]string{"setup", "labels", "setup99"}, rootFlags...)...)
		require.Error(t, err)
		assert.Equal(t, int(foundry.ExitFileNotFound), apperrors.ExitCodeOf(err))
	})
}

func TestSetupCommands_SearchRootsFromEnv(t *testing.T) {
	isolateEnv(t)
	first, _ := makeSetupRoots(t)
	t.Setenv("BLOCKCHECK_SETUP_SEARCH_ROOTS", first)
	t.Setenv("BLOCKCHECK_SETUP_TRAINING_VERSION", "v1")

	out, err := execute(t, "setup", "labels", "setup01")
	require.NoError(t, err)
	assert.Equal(t, "mito\ner\n", out)
}

func TestSetupLabelCrops(t *testing.T) {
	home := isolateEnv(t)
	first, _ := makeSetupRoots(t)
	writeFiles(t, home, map[string]string{"crops.yaml": `crops:
  - number: 1
    present_annotated: [3, 4, 5]
  - number: 2
    purpose: training
    present_annotated: [16]
  - number: 7
    purpose: validation
    present_annotated: [4]
`})

	out, err := execute(t, "crops", "import", filepath.Join(home, "crops.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, err = execute(t, "setup", "label-crops", "setup01", "--root", first, "--training-version", "v1")
	require.NoError(t, err)

	var doc struct {
		Setup     string           `json:"setup"`
		Crops     map[string][]int `json:"crops"`
		Unmatched []string         `json:"unmatched"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "setup01", doc.Setup)
	assert.Equal(t, []int{1, 7}, doc.Crops["mito"])
	assert.Equal(t, []string{"er"}, doc.Unmatched)
}
