// Package provider abstracts the storage that holds an inference output root.
//
// An output root is an N5 container directory. Job manifests and per-iteration
// progress logs sit directly under it as plain objects. The root may live on a
// local or network filesystem (file provider) or in S3-compatible object
// storage (s3 provider). Keys are always relative to the root and use '/'.
package provider

import (
	"context"
	"io"
	"time"
)

// Provider is the minimal read surface over an output root.
//
// Implementations must be safe for concurrent use. Readers never coordinate
// with the workers writing into the root.
type Provider interface {
	// List returns a page of objects directly under Prefix.
	// Nested keys (containing a '/' after Prefix) are not returned.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// GetObject opens an object for reading.
	// Returns ErrNotFound if the object does not exist.
	GetObject(ctx context.Context, key string) (body io.ReadCloser, size int64, err error)

	// Close releases any resources held by the provider.
	Close() error
}

// RootChecker reports whether the output root itself exists.
//
// Providers without a meaningful notion of a root (plain buckets) may omit it;
// callers then treat an empty listing as a missing root.
type RootChecker interface {
	RootExists(ctx context.Context) (bool, error)
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	Prefix string

	// ContinuationToken resumes listing from a previous ListResult.
	ContinuationToken string

	// MaxKeys limits the number of objects per page. Zero uses the provider default.
	MaxKeys int
}

// ListResult contains a page of objects from a List operation.
type ListResult struct {
	Objects []ObjectSummary

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string

	IsTruncated bool
}

// ObjectSummary contains basic metadata returned from List operations.
type ObjectSummary struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ProviderType identifies a storage backend.
type ProviderType string

const (
	// ProviderFile is a local or mounted filesystem.
	ProviderFile ProviderType = "file"

	// ProviderS3 is AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

// ListAll drains every page of a listing.
func ListAll(ctx context.Context, p Provider, prefix string) ([]ObjectSummary, error) {
	var out []ObjectSummary
	var token string
	for {
		res, err := p.List(ctx, ListOptions{Prefix: prefix, ContinuationToken: token})
		if err != nil {
			return nil, err
		}
		out = append(out, res.Objects...)
		if !res.IsTruncated || res.ContinuationToken == "" {
			return out, nil
		}
		token = res.ContinuationToken
	}
}

// ReadAll reads a whole object into memory.
func ReadAll(ctx context.Context, p Provider, key string) ([]byte, error) {
	body, _, err := p.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	return io.ReadAll(body)
}
