package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusHidden = 0
	StatusActive = 1
)

type Dataset struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	ProjectID       string     `json:"project_id" db:"project_id"`
	Name            string     `json:"name" db:"name"`
	Description     string     `json:"description" db:"description"`
	CreatedBy       string     `json:"created_by" db:"created_by"`
	CurrentVersion  string     `json:"current_version" db:"current_version"`
	Status          int        `json:"status" db:"status"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	StatusUpdatedAt *time.Time `json:"status_updated_at,omitempty" db:"status_updated_at"`
	FilesCount      int64      `json:"files_count" db:"-"`
}

// DatasetMetadata - поля, которые задает пользователь при создании
type DatasetMetadata struct {
	ProjectID   string
	Name        string
	Description string
}

// DatasetPatch - частичное обновление метаданных. nil означает "не менять".
type DatasetPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *int    `json:"status,omitempty"`
}

// DatasetFilter - параметры выборки списка датасетов проекта
type DatasetFilter struct {
	ProjectID string
	Keyword   string
	CreatedBy string
	Page      Page
}

type DatasetPage struct {
	Items []Dataset `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Size  int       `json:"size"`
	Pages int       `json:"pages"`
}

// CreateDatasetResult - ответ на создание датасета
type CreateDatasetResult struct {
	Dataset    *Dataset `json:"dataset"`
	FilesCount int      `json:"files_count"`
}

// AddVersionResult - ответ на загрузку новой версии
type AddVersionResult struct {
	DatasetID  uuid.UUID `json:"dataset_id"`
	NewVersion string    `json:"new_version"`
	FilesCount int       `json:"files_count"`
}

// VersionHistory - история версий в порядке убывания
type VersionHistory struct {
	DatasetID      uuid.UUID      `json:"dataset_id"`
	CurrentVersion string         `json:"current_version"`
	TotalVersions  int            `json:"total_versions"`
	Entries        []VersionEntry `json:"entries"`
}
