package domain

import (
	"time"

	"github.com/google/uuid"
)

// VersionEntry - одна версия в истории датасета
type VersionEntry struct {
	DatasetID uuid.UUID   `json:"-" db:"dataset_id"`
	Label     string      `json:"version" db:"label"`
	Code      VersionCode `json:"code" db:"code"`
	CreatedBy string      `json:"created_by" db:"created_by"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// VersionLedger - упорядоченная история версий датасета.
// CurrentVersion всегда совпадает с меткой последней записи.
type VersionLedger struct {
	DatasetID      uuid.UUID      `json:"dataset_id" db:"dataset_id"`
	CurrentVersion string         `json:"current_version" db:"current_version"`
	CurrentCode    VersionCode    `json:"current_code" db:"current_code"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
	Entries        []VersionEntry `json:"entries" db:"-"`
}

// NewVersionLedger создает историю с единственной начальной версией v1.0
func NewVersionLedger(datasetID uuid.UUID, author string, now time.Time) *VersionLedger {
	entry := VersionEntry{
		DatasetID: datasetID,
		Label:     InitialVersion.Label(),
		Code:      InitialVersion,
		CreatedBy: author,
		CreatedAt: now,
	}
	return &VersionLedger{
		DatasetID:      datasetID,
		CurrentVersion: entry.Label,
		CurrentCode:    entry.Code,
		CreatedAt:      now,
		UpdatedAt:      now,
		Entries:        []VersionEntry{entry},
	}
}

// Has проверяет, есть ли метка в истории
func (l *VersionLedger) Has(label string) bool {
	for _, e := range l.Entries {
		if e.Label == label {
			return true
		}
	}
	return false
}

// Bump добавляет следующую версию и переносит на нее указатель текущей.
// Если метка уже занята, история не меняется.
func (l *VersionLedger) Bump(author string, now time.Time) (VersionEntry, error) {
	next := l.CurrentCode.Next()
	entry := VersionEntry{
		DatasetID: l.DatasetID,
		Label:     next.Label(),
		Code:      next,
		CreatedBy: author,
		CreatedAt: now,
	}
	if l.Has(entry.Label) {
		return VersionEntry{}, ErrorDuplicateVersion(l.DatasetID.String(), entry.Label)
	}

	l.Entries = append(l.Entries, entry)
	l.CurrentVersion = entry.Label
	l.CurrentCode = entry.Code
	l.UpdatedAt = now
	return entry, nil
}
