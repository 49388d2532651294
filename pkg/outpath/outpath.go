// Package outpath derives where an inference run writes its N5 container.
package outpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ContainerExt is the suffix every N5 container path carries.
const ContainerExt = ".n5"

// ErrInvalidContainer indicates a path that does not name an N5 container.
var ErrInvalidContainer = errors.New("path is not an n5 container")

// Paths is a resolved output location.
type Paths struct {
	// Dir is the directory holding the container.
	Dir string

	// Container is the N5 container the run writes into.
	Container string
}

// Derive computes the output location without touching the filesystem.
//
// With outputPath set, it must end in ".n5" (optionally followed by "/");
// Dir is its absolute parent and Container its absolute path.
//
// Otherwise the location is derived from the raw container: the raw
// container's parent directory names the cell, Dir is setupPath/<cell>, and
// Container is Dir/<raw name>_it<iteration>.n5.
func Derive(rawDataPath, setupPath, outputPath string, iteration int) (Paths, error) {
	if outputPath != "" {
		if !IsContainer(outputPath) {
			return Paths{}, fmt.Errorf("%w: output path %q", ErrInvalidContainer, outputPath)
		}
		container, err := filepath.Abs(outputPath)
		if err != nil {
			return Paths{}, fmt.Errorf("resolve output path: %w", err)
		}
		return Paths{Dir: filepath.Dir(container), Container: container}, nil
	}

	raw := strings.TrimRight(rawDataPath, "/")
	name := filepath.Base(raw)
	if raw == "" || !strings.HasSuffix(name, ContainerExt) || name == ContainerExt {
		return Paths{}, fmt.Errorf("%w: raw data path %q", ErrInvalidContainer, rawDataPath)
	}

	cell := filepath.Base(filepath.Dir(raw))
	if setupPath == "" {
		setupPath = "."
	}
	dir := filepath.Join(setupPath, cell)
	file := strings.TrimSuffix(name, ContainerExt) + fmt.Sprintf("_it%d", iteration) + ContainerExt
	return Paths{Dir: dir, Container: filepath.Join(dir, file)}, nil
}

// Resolve derives the output location and creates both directories.
func Resolve(rawDataPath, setupPath, outputPath string, iteration int) (Paths, error) {
	p, err := Derive(rawDataPath, setupPath, outputPath, iteration)
	if err != nil {
		return Paths{}, err
	}
	for _, dir := range []string{p.Dir, p.Container} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Paths{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return p, nil
}

// IsContainer reports whether path ends in ".n5" or ".n5/".
func IsContainer(path string) bool {
	return strings.HasSuffix(path, ContainerExt) || strings.HasSuffix(path, ContainerExt+"/")
}
