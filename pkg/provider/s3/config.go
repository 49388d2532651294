// Package s3 reads inference output roots stored in AWS S3 or S3-compatible storage.
package s3

import (
	"net/url"
	"slices"
	"strings"
)

// Config locates one output root in a bucket.
//
// Credentials come from the AWS SDK default chain (environment, shared
// files, instance roles) unless AccessKeyID and SecretAccessKey are both
// set. When Endpoint is set no default region is applied; otherwise an
// unset region falls back to DefaultAWSRegion.
type Config struct {
	Bucket string

	// Prefix is the key of the N5 container, e.g.
	// "setup01/HeLa_Cell2_4x4x4nm/HeLa_Cell2_4x4x4nm_it10000.n5".
	// Provider keys are relative to it.
	Prefix string

	Region string

	// Endpoint is the base URL of an S3-compatible store such as MinIO or
	// moto. Empty means AWS.
	Endpoint string

	// Profile selects a shared config profile.
	Profile string

	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the URL path. Most S3-compatible
	// stores need it.
	ForcePathStyle bool

	// MaxKeys is the List page size. Zero uses DefaultMaxKeys; larger
	// values are clamped to MaxAllowedKeys.
	MaxKeys int
}

// List page sizes.
const (
	DefaultMaxKeys = 1000
	MaxAllowedKeys = 1000
)

// DefaultAWSRegion applies to AWS endpoints when no region is configured.
const DefaultAWSRegion = "us-east-1"

const (
	uriScheme         = "s3://"
	prefixSeparator   = "/"
	parentDirSegment  = ".."
	currentDirSegment = "."
)

// Validate checks the bucket, prefix, endpoint and credential pairing.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if strings.Contains(c.Bucket, prefixSeparator) {
		return &ConfigError{Field: "Bucket", Message: "bucket name must not contain '/'"}
	}
	if strings.HasPrefix(c.Prefix, uriScheme) {
		return &ConfigError{Field: "Prefix", Message: "prefix must be a key, not an s3:// URI"}
	}
	segments := strings.Split(strings.Trim(c.Prefix, prefixSeparator), prefixSeparator)
	if slices.Contains(segments, parentDirSegment) || slices.Contains(segments, currentDirSegment) {
		return &ConfigError{Field: "Prefix", Message: "prefix must not contain '.' or '..' segments"}
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ConfigError{Field: "Endpoint", Message: "endpoint must be an http(s) URL"}
		}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// URI renders the output root as s3://bucket/prefix.
func (c *Config) URI() string {
	prefix := strings.Trim(c.Prefix, prefixSeparator)
	if prefix == "" {
		return uriScheme + c.Bucket
	}
	return uriScheme + c.Bucket + prefixSeparator + prefix
}

// ConfigError reports an invalid Config field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
