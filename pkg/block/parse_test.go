package block

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	t.Run("valid triples", func(t *testing.T) {
		set, err := ParseManifest([]byte(`[[0,0,0],[1,0,0],[2,0,0],[1,0,0]]`), "list_gpu_0.json")
		require.NoError(t, err)
		assert.Equal(t, 3, set.Len())
		assert.True(t, set.Contains(Coord{2, 0, 0}))
	})

	t.Run("empty array", func(t *testing.T) {
		set, err := ParseManifest([]byte(`[]`), "")
		require.NoError(t, err)
		assert.Equal(t, 0, set.Len())
	})

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"object instead of array", `{"a": 1}`},
		{"pair instead of triple", `[[0,0]]`},
		{"float coordinate", `[[0,0.5,0]]`},
		{"string coordinate", `[["0",0,0]]`},
		{"truncated", `[[0,0,0],[1,0`},
		{"null", `null`},
		{"null entry", `[[0,0,0],null]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.data), "list_gpu_3.json")
			require.Error(t, err)
			assert.True(t, IsManifestCorrupt(err))
			assert.False(t, IsProgressLogCorrupt(err))

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, "list_gpu_3.json", pe.Source)
			assert.Contains(t, err.Error(), "list_gpu_3.json")
		})
	}
}

func TestRepairProgressLog(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "[]"},
		{"no closing bracket", "[0, 0", "[]"},
		{"entries with dangling tail", "[0, 0, 0], [1, 0, 0], [2, 0", "[[0, 0, 0], [1, 0, 0]]"},
		{"entries with trailing separator", "[0, 0, 0], [1, 0, 0], ", "[[0, 0, 0], [1, 0, 0]]"},
		{"whole list truncated", "[[0,0,0],[1,0,0],[2,0", "[[[0,0,0],[1,0,0]]"},
		{"whole list intact", "[[0,0,0]]", "[[[0,0,0]]]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RepairProgressLog(tt.in))
		})
	}
}

func TestParseProgressLog(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Coord
	}{
		{
			name: "appended entries",
			in:   "[0, 0, 0], [1, 0, 0], ",
			want: []Coord{{0, 0, 0}, {1, 0, 0}},
		},
		{
			name: "appended entries cut mid triple",
			in:   "[0, 0, 0], [1, 0, 0], [2, 0",
			want: []Coord{{0, 0, 0}, {1, 0, 0}},
		},
		{
			name: "bracketed list cut mid triple",
			in:   "[[0,0,0],[1,0,0],[2,0",
			want: []Coord{{0, 0, 0}, {1, 0, 0}},
		},
		{
			name: "bracketed list with extra entry",
			in:   "[[0,0,0],[1,0,0],[2,0,0],[9,9,9]]",
			want: []Coord{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {9, 9, 9}},
		},
		{
			name: "duplicates collapse",
			in:   "[4, 5, 6], [4, 5, 6], ",
			want: []Coord{{4, 5, 6}},
		},
		{
			name: "newline separated",
			in:   "[0, 0, 0],\n[0, 0, 1],\n[0, 0",
			want: []Coord{{0, 0, 0}, {0, 0, 1}},
		},
		{
			name: "empty log",
			in:   "",
			want: []Coord{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseProgressLog([]byte(tt.in), "log")
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, set.Sorted()); diff != "" {
				t.Fatalf("coords mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseProgressLog_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"garbage before last bracket", "[0, 0, 0], xx [1, 0, 0]"},
		{"wrong arity", "[0, 0], [1, 1], "},
		{"corrupted early entry", "[0, 0, 0], [1, 0, 0 [2, 0, 0], "},
		{"null entry", "[0,0,0], null, [1,0,0]"},
		{"null entry in bracketed list", "[[0,0,0],null,[1,0,0]]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProgressLog([]byte(tt.in), "list_gpu_1_100_processed.txt")
			require.Error(t, err)
			assert.True(t, IsProgressLogCorrupt(err))
			assert.False(t, IsManifestCorrupt(err))
		})
	}
}
