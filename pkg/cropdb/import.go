package cropdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/schema"
	"gopkg.in/yaml.v3"

	schemasassets "github.com/3leaps/blockcheck/internal/assets/schemas"
)

// ErrInvalidCatalog indicates an import document that failed schema validation.
var ErrInvalidCatalog = errors.New("crop catalog validation failed")

// Catalog is the import document format.
type Catalog struct {
	Crops []Crop `json:"crops" yaml:"crops"`
}

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// ImportFile loads a YAML or JSON catalog document and upserts every crop in
// one transaction. It returns the number of crops written.
func ImportFile(ctx context.Context, db *sql.DB, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read crop catalog: %w", err)
	}
	cat, err := ParseCatalog(data, path)
	if err != nil {
		return 0, err
	}
	return Import(ctx, db, cat)
}

// Import upserts every crop of cat in one transaction.
func Import(ctx context.Context, db *sql.DB, cat *Catalog) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, c := range cat.Crops {
		if err := upsertCrop(ctx, tx, c, now); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit crop import: %w", err)
	}
	return len(cat.Crops), nil
}

// ParseCatalog validates and decodes a catalog document. path selects the
// format: .json is JSON, anything else YAML.
func ParseCatalog(data []byte, path string) (*Catalog, error) {
	jsonData := data
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid YAML in crop catalog: %w", err)
		}
		converted, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to convert crop catalog to JSON: %w", err)
		}
		jsonData = converted
	}

	if err := validate(jsonData); err != nil {
		return nil, err
	}

	var cat Catalog
	if err := json.Unmarshal(jsonData, &cat); err != nil {
		return nil, fmt.Errorf("invalid crop catalog %s: %w", path, err)
	}
	return &cat, nil
}

func validate(jsonData []byte) error {
	validatorOnce.Do(func() {
		validator, validatorErr = schema.NewValidator(schemasassets.CropCatalogSchema)
	})
	if validatorErr != nil {
		return fmt.Errorf("failed to compile crop catalog schema: %w", validatorErr)
	}

	diags, err := validator.ValidateJSON(jsonData)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	var msgs []string
	for _, d := range diags {
		if d.Severity == schema.SeverityError {
			msgs = append(msgs, fmt.Sprintf("%s: %s", d.Pointer, d.Message))
		}
	}
	if len(msgs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(msgs, "; "))
	}
	return nil
}
