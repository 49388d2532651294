package cropdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Crop purposes.
const (
	PurposeValidation = "validation"
	PurposeTraining   = "training"
)

// Crop is one annotated sub-volume.
type Crop struct {
	Number    int    `json:"number" yaml:"number"`
	Purpose   string `json:"purpose,omitempty" yaml:"purpose,omitempty"`
	DatasetID string `json:"dataset_id,omitempty" yaml:"dataset_id,omitempty"`

	// PresentAnnotated lists the label ids annotated in this crop.
	PresentAnnotated []int `json:"present_annotated" yaml:"present_annotated"`
}

// UpsertCrop inserts or replaces a crop by number. An empty purpose is
// stored as validation.
func UpsertCrop(ctx context.Context, db *sql.DB, c Crop) error {
	return upsertCrop(ctx, db, c, time.Now().UTC())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertCrop(ctx context.Context, db execer, c Crop, now time.Time) error {
	if c.Purpose == "" {
		c.Purpose = PurposeValidation
	}
	ids := c.PresentAnnotated
	if ids == nil {
		ids = []int{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode present_annotated: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO crops (number, purpose, dataset_id, present_annotated, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET
			purpose = excluded.purpose,
			dataset_id = excluded.dataset_id,
			present_annotated = excluded.present_annotated,
			updated_at = excluded.updated_at`,
		c.Number, c.Purpose, nullString(c.DatasetID), string(encoded), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert crop %d: %w", c.Number, err)
	}
	return nil
}

// ListCrops returns crops ordered by number. An empty purpose lists all.
func ListCrops(ctx context.Context, db *sql.DB, purpose string) ([]Crop, error) {
	query := `SELECT number, purpose, dataset_id, present_annotated FROM crops`
	var args []any
	if purpose != "" {
		query += ` WHERE purpose = ?`
		args = append(args, purpose)
	}
	query += ` ORDER BY number`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query crops: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Crop
	for rows.Next() {
		var (
			c       Crop
			dataset sql.NullString
			encoded string
		)
		if err := rows.Scan(&c.Number, &c.Purpose, &dataset, &encoded); err != nil {
			return nil, fmt.Errorf("scan crop: %w", err)
		}
		c.DatasetID = dataset.String
		if err := json.Unmarshal([]byte(encoded), &c.PresentAnnotated); err != nil {
			return nil, fmt.Errorf("decode present_annotated for crop %d: %w", c.Number, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crops: %w", err)
	}
	return out, nil
}

// ValidationCrops returns every crop held out for validation.
func ValidationCrops(ctx context.Context, db *sql.DB) ([]Crop, error) {
	return ListCrops(ctx, db, PurposeValidation)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
