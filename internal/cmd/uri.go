package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/blockcheck/internal/config"
	"github.com/3leaps/blockcheck/internal/observability"
	"github.com/3leaps/blockcheck/pkg/provider"
	"github.com/3leaps/blockcheck/pkg/provider/file"
	"github.com/3leaps/blockcheck/pkg/provider/s3"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the root could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingBucket indicates an s3 URI without a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")
)

// RootURI is a parsed output root.
//
// Example roots:
//   - /groups/cosem/setup01/HeLa_Cell2_4x4x4nm/HeLa_Cell2_4x4x4nm_it10000.n5
//   - file:///scratch/run/cell_it100.n5
//   - s3://bucket/setup01/cell/cell_it100.n5
type RootURI struct {
	// Provider is "file" or "s3".
	Provider provider.ProviderType

	// Path is the local directory for file roots.
	Path string

	Bucket string

	// Prefix is the key prefix of the container within Bucket, without a
	// trailing slash.
	Prefix string
}

// String returns the root in canonical form.
func (u *RootURI) String() string {
	if u.Provider == provider.ProviderS3 {
		if u.Prefix == "" {
			return fmt.Sprintf("s3://%s/", u.Bucket)
		}
		return fmt.Sprintf("s3://%s/%s", u.Bucket, u.Prefix)
	}
	return u.Path
}

// IsLocal reports whether the root is on a filesystem.
func (u *RootURI) IsLocal() bool {
	return u.Provider == provider.ProviderFile
}

// ParseRoot parses an output root given as a local path, a file:// URI or an
// s3://bucket/prefix URI.
func ParseRoot(raw string) (*RootURI, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty root", ErrInvalidURI)
	}

	schemeEnd := strings.Index(raw, "://")
	if schemeEnd == -1 {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
		}
		return &RootURI{Provider: provider.ProviderFile, Path: abs}, nil
	}

	scheme := strings.ToLower(raw[:schemeEnd])
	remainder := raw[schemeEnd+3:]
	switch scheme {
	case "file":
		if remainder == "" {
			return nil, fmt.Errorf("%w: empty path in %s", ErrInvalidURI, raw)
		}
		return &RootURI{Provider: provider.ProviderFile, Path: filepath.Clean(remainder)}, nil
	case "s3":
	default:
		return nil, fmt.Errorf("%w: %s (supported: file, s3)", ErrUnsupportedProvider, scheme)
	}

	var bucket, key string
	if idx := strings.Index(remainder, "/"); idx == -1 {
		bucket = remainder
	} else {
		bucket = remainder[:idx]
		key = remainder[idx+1:]
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, raw)
	}
	if _, err := url.Parse("s3://" + bucket + "/"); err != nil {
		return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
	}

	return &RootURI{
		Provider: provider.ProviderS3,
		Bucket:   bucket,
		Prefix:   strings.Trim(key, "/"),
	}, nil
}

// openStore opens a provider rooted at u. S3 connection settings come from
// the s3.* configuration keys.
func openStore(ctx context.Context, u *RootURI, cfg *config.Config) (provider.Provider, error) {
	if u.IsLocal() {
		return file.New(file.Config{BaseDir: u.Path})
	}
	scfg := s3.Config{
		Bucket:         u.Bucket,
		Prefix:         u.Prefix,
		Region:         cfg.S3.Region,
		Endpoint:       cfg.S3.Endpoint,
		Profile:        cfg.S3.Profile,
		ForcePathStyle: cfg.S3.ForcePathStyle || cfg.S3.Endpoint != "",
	}
	observability.CLILogger.Debug("Opening S3 output root",
		zap.String("uri", scfg.URI()),
		zap.String("endpoint", scfg.Endpoint))
	return s3.New(ctx, scfg)
}
