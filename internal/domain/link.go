package domain

import (
	"time"

	"github.com/google/uuid"
)

// DatasetFileLink - запись журнала "файл в такой-то версии попал в датасет".
// Строки журнала только добавляются.
type DatasetFileLink struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	FileID         uuid.UUID   `json:"file_id" db:"file_id"`
	DatasetID      uuid.UUID   `json:"dataset_id" db:"dataset_id"`
	DatasetVersion string      `json:"dataset_version" db:"dataset_version"`
	VersionCode    VersionCode `json:"-" db:"version_code"`
	BlobVersionID  string      `json:"version_id" db:"blob_version_id"`
	SizeBytes      int64       `json:"size_bytes" db:"size_bytes"`
	Status         int         `json:"status" db:"status"`
	CreatedBy      string      `json:"created_by" db:"created_by"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// SnapshotItem - файл в составе датасета на заданной версии
type SnapshotItem struct {
	FileID         uuid.UUID   `json:"file_id" db:"file_id"`
	BlobVersionID  string      `json:"version_id" db:"blob_version_id"`
	DatasetVersion string      `json:"dataset_version" db:"dataset_version"`
	VersionCode    VersionCode `json:"-" db:"version_code"`
	SizeBytes      int64       `json:"size_bytes" db:"size_bytes"`

	Name          string  `json:"name,omitempty" db:"-"`
	Path          string  `json:"path,omitempty" db:"-"`
	Extension     string  `json:"extension,omitempty" db:"-"`
	ThumbnailPath *string `json:"thumbnail_path,omitempty" db:"-"`
	URL           string  `json:"url,omitempty" db:"-"`
}

type SnapshotPage struct {
	DatasetID uuid.UUID      `json:"dataset_id"`
	Version   string         `json:"version"`
	Items     []SnapshotItem `json:"items"`
	Total     int64          `json:"total"`
	Page      int            `json:"page"`
	Size      int            `json:"size"`
	Pages     int            `json:"pages"`
}
