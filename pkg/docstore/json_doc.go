package docstore

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// JSONDoc maps a document body onto a json/jsonb column.
type JSONDoc map[string]any

// Value serializes the document for storage.
func (d JSONDoc) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return string(raw), nil
}

// Scan deserializes the stored column back into the document.
func (d *JSONDoc) Scan(src any) error {
	if src == nil {
		*d = JSONDoc{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("unsupported document column type")
	}
	if len(raw) == 0 {
		*d = JSONDoc{}
		return nil
	}
	out := JSONDoc{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	*d = out
	return nil
}

// GormDataType instructs gorm about the column type.
func (JSONDoc) GormDataType() string {
	return "jsonb"
}
