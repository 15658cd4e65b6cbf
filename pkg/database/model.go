package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Crash is a record of one collected crash input.
type Crash struct {
	ID        int       `gorm:"primaryKey;column:id"`
	RunID     string    `gorm:"column:run_id;not null"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	Target    string    `gorm:"column:target;not null"`
	Engine    string    `gorm:"column:engine;not null"`
	InputPath string    `gorm:"column:input_path;not null"`
	Digest    string    `gorm:"column:digest;not null"`
}

// SeedEntry is a record of one corpus entry an engine produced.
type SeedEntry struct {
	ID        int       `gorm:"primaryKey;column:id"`
	RunID     string    `gorm:"column:run_id;not null"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	Target    string    `gorm:"column:target"`
	Engine    string    `gorm:"column:engine"`
	Path      string    `gorm:"column:path"`
	Metric    Metric    `gorm:"column:metric;type:jsonb"`
}

// Metric is the jsonb payload on seed records.
type Metric map[string]any

// Value implements the driver.Valuer interface for the Metric type
func (m Metric) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for the Metric type
func (m *Metric) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, &m)
}
