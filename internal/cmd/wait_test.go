package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/blockcheck/internal/errors"
	"github.com/3leaps/blockcheck/pkg/watch"
)

func TestWaitCommand_AlreadyComplete(t *testing.T) {
	isolateEnv(t)
	root := filepath.Join(t.TempDir(), "cell_it100.n5")
	writeFiles(t, root, map[string]string{
		"list_gpu_0.json":              "[[0,0,0]]",
		"list_gpu_0_100_processed.txt": "[0, 0, 0], ",
	})

	out, err := execute(t, "wait", "100", "--output-root", root, "--interval", "10ms", "--timeout", "5s")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestWaitCommand_CompletesLater(t *testing.T) {
	isolateEnv(t)
	root := filepath.Join(t.TempDir(), "cell_it100.n5")
	writeFiles(t, root, map[string]string{
		"list_gpu_0.json":              "[[0,0,0],[1,0,0]]",
		"list_gpu_0_100_processed.txt": "[0, 0, 0], ",
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		f, err := os.OpenFile(filepath.Join(root, "list_gpu_0_100_processed.txt"), os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		_, _ = f.WriteString("[1, 0, 0], ")
		_ = f.Close()
	}()

	out, err := execute(t, "wait", "100", "--output-root", root, "--interval", "20ms", "--timeout", "10s")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestWaitCommand_Timeout(t *testing.T) {
	isolateEnv(t)
	root := filepath.Join(t.TempDir(), "cell_it100.n5")
	writeFiles(t, root, map[string]string{"list_gpu_0.json": "[[0,0,0]]"})

	out, err := execute(t, "wait", "100", "--output-root", root, "--interval", "10ms", "--timeout", "60ms", "--no-watch")
	require.Error(t, err)
	assert.True(t, errors.Is(err, watch.ErrTimeout))
	assert.Equal(t, apperrors.ExitGeneric, apperrors.ExitCodeOf(err))
	assert.Equal(t, "0\n", out)
}

func TestWaitCommand_Corruption(t *testing.T) {
	isolateEnv(t)
	root := filepath.Join(t.TempDir(), "cell_it100.n5")
	writeFiles(t, root, map[string]string{
		"list_gpu_0.json":              "[[0,0,0]]",
		"list_gpu_0_100_processed.txt": "[0, 0, \"x\"], ",
	})

	out, err := execute(t, "wait", "100", "--output-root", root, "--interval", "10ms", "--timeout", "5s")
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Equal(t, int(foundry.ExitFileReadError), apperrors.ExitCodeOf(err))
}
