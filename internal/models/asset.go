package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Asset is the durable record of a finished generated image. Rows are
// created only after the provider job succeeded and the bytes landed in
// the object store.
type Asset struct {
	ID          uuid.UUID       `json:"id"`
	StorageKey  string          `json:"storage_key"`
	Filename    string          `json:"filename"`
	ContentType string          `json:"content_type"`
	SizeBytes   int64           `json:"size_bytes"`
	OwnerID     uuid.UUID       `json:"owner_id"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
