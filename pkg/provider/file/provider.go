package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/3leaps/blockcheck/pkg/provider"
)

// Provider implements provider.Provider over a directory on disk.
//
// Keys are slash-separated paths relative to BaseDir. Listings only return
// regular files directly under the requested prefix directory.
type Provider struct {
	baseDir string
}

var (
	_ provider.Provider    = (*Provider)(nil)
	_ provider.RootChecker = (*Provider)(nil)
)

type Config struct {
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

func (p *Provider) BaseDir() string { return p.baseDir }

func (p *Provider) Close() error { return nil }

// RootExists reports whether BaseDir exists and is a directory.
func (p *Provider) RootExists(ctx context.Context) (bool, error) {
	_ = ctx
	st, err := os.Stat(p.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, p.wrapError("RootExists", "", err)
	}
	return st.IsDir(), nil
}

func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	_ = ctx
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	dirKey, namePrefix := splitPrefix(opts.Prefix)
	dir, err := p.fullPath(dirKey)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// A missing or non-directory root lists as empty.
		if os.IsNotExist(err) || isNotDir(dir) {
			return &provider.ListResult{}, nil
		}
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	type item struct {
		key   string
		entry os.DirEntry
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), namePrefix) {
			continue
		}
		items = append(items, item{key: joinKey(dirKey, e.Name()), entry: e})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].key < items[j].key })

	start := 0
	if opts.ContinuationToken != "" {
		// Start strictly after the last returned key.
		start = sort.Search(len(items), func(i int) bool { return items[i].key > opts.ContinuationToken })
	}
	end := start + maxKeys
	if end > len(items) {
		end = len(items)
	}

	objects := make([]provider.ObjectSummary, 0, end-start)
	for _, it := range items[start:end] {
		info, err := it.entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			// Entries can vanish between ReadDir and Info while workers run.
			continue
		}
		objects = append(objects, provider.ObjectSummary{Key: it.key, Size: info.Size(), LastModified: info.ModTime()})
	}

	res := &provider.ListResult{Objects: objects}
	if end < len(items) {
		res.IsTruncated = true
		res.ContinuationToken = items[end-1].key
	}
	return res, nil
}

func (p *Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	_ = ctx
	full, err := p.fullPath(key)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, &provider.ProviderError{Op: "GetObject", Provider: provider.ProviderFile, Root: p.baseDir, Key: key, Err: provider.ErrNotFound}
	}
	return f, st.Size(), nil
}

// WatchDir is the directory whose writes signal progress for this root.
func (p *Provider) WatchDir() string { return p.baseDir }

func (p *Provider) fullPath(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	// Prevent path traversal.
	clean := strings.TrimPrefix(filepath.Clean("/"+key), "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path")
	}
	return filepath.Join(p.baseDir, filepath.FromSlash(clean)), nil
}

func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Root: p.baseDir, Key: key, Err: err}
	if err == nil {
		wrapped.Err = fmt.Errorf("unknown error")
	}
	// Normalize common filesystem errors to provider sentinels.
	if os.IsNotExist(err) {
		wrapped.Err = provider.ErrNotFound
	}
	if os.IsPermission(err) {
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}

// splitPrefix separates "a/b/list_" into the directory "a/b" and the name prefix "list_".
func splitPrefix(prefix string) (dir, name string) {
	prefix = strings.TrimPrefix(prefix, "/")
	idx := strings.LastIndex(prefix, "/")
	if idx < 0 {
		return "", prefix
	}
	return prefix[:idx], prefix[idx+1:]
}

func joinKey(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func isNotDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
