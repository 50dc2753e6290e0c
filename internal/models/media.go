package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaFile describes an uploaded photo. Delivery and dispute proofs
// reference rows in this table by ID.
type MediaFile struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	FilePath  string     `db:"file_path" json:"file_path"`
	FileType  string     `db:"file_type" json:"file_type"`
	FileSize  int64      `db:"file_size" json:"file_size"`
	IsPublic  bool       `db:"is_public" json:"is_public"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// URL returns the public path the media is served from.
func (m *MediaFile) URL() string {
	return "/media/" + m.FilePath
}
