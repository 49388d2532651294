// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so the CLI validates documents the
// same way regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// SetupConfigSchema is the embedded network setup configuration schema.
//
//go:embed setup-config.schema.json
var SetupConfigSchema []byte

// CropCatalogSchema is the embedded schema for crop catalog import documents.
//
//go:embed crop-catalog.schema.json
var CropCatalogSchema []byte
