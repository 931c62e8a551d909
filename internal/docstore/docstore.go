// Package docstore хранит документы файлов и историй версий датасетов.
// Источник истины - реляционная база; документы пишутся после коммита
// и при ошибке сбрасываются, чтобы следующее чтение восстановило их из базы.
package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"datasethub/internal/domain"
)

// ErrMiss - документа нет в индексе
var ErrMiss = errors.New("document not found in index")

// Index - хранилище документов
type Index interface {
	// PutFile заменяет документ файла целиком, вместе с версиями
	PutFile(ctx context.Context, file *domain.FileRecord) error
	// AppendFileVersion дописывает версию во встроенный список и обновляет шапку документа.
	// Если документа нет, возвращает ErrMiss и ничего не создает.
	AppendFileVersion(ctx context.Context, head *domain.FileRecord, v domain.FileVersionEntry) error
	GetFile(ctx context.Context, fileID uuid.UUID) (*domain.FileRecord, error)

	PutLedger(ctx context.Context, l *domain.VersionLedger) error
	AppendLedgerVersion(ctx context.Context, head *domain.VersionLedger, e domain.VersionEntry) error
	GetLedger(ctx context.Context, datasetID uuid.UUID) (*domain.VersionLedger, error)

	InvalidateFile(ctx context.Context, fileID uuid.UUID) error
	InvalidateLedger(ctx context.Context, datasetID uuid.UUID) error
}

type fileDoc struct {
	ID               uuid.UUID `cbor:"id"`
	Name             string    `cbor:"name"`
	Path             string    `cbor:"path"`
	Extension        string    `cbor:"ext"`
	SizeBytes        int64     `cbor:"size"`
	CurrentVersionID string    `cbor:"current_version_id"`
	ThumbnailPath    *string   `cbor:"thumbnail_path,omitempty"`
	Status           int       `cbor:"status"`
	CreatedBy        string    `cbor:"created_by"`
	CreatedAt        time.Time `cbor:"created_at"`
	UpdatedAt        time.Time `cbor:"updated_at"`
}

type fileVersionDoc struct {
	BlobVersionID string    `cbor:"version_id"`
	SizeBytes     int64     `cbor:"size"`
	Checksum      string    `cbor:"checksum"`
	CreatedBy     string    `cbor:"created_by"`
	CreatedAt     time.Time `cbor:"created_at"`
}

type ledgerDoc struct {
	DatasetID      uuid.UUID `cbor:"dataset_id"`
	CurrentVersion string    `cbor:"current_version"`
	CurrentCode    int64     `cbor:"current_code"`
	CreatedAt      time.Time `cbor:"created_at"`
	UpdatedAt      time.Time `cbor:"updated_at"`
}

type ledgerEntryDoc struct {
	Label     string    `cbor:"version"`
	Code      int64     `cbor:"code"`
	CreatedBy string    `cbor:"created_by"`
	CreatedAt time.Time `cbor:"created_at"`
}

func toFileDoc(f *domain.FileRecord) fileDoc {
	return fileDoc{
		ID:               f.ID,
		Name:             f.Name,
		Path:             f.Path,
		Extension:        f.Extension,
		SizeBytes:        f.SizeBytes,
		CurrentVersionID: f.CurrentVersionID,
		ThumbnailPath:    f.ThumbnailPath,
		Status:           f.Status,
		CreatedBy:        f.CreatedBy,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

func (d fileDoc) record(versions []fileVersionDoc) *domain.FileRecord {
	f := &domain.FileRecord{
		ID:               d.ID,
		Name:             d.Name,
		Path:             d.Path,
		Extension:        d.Extension,
		SizeBytes:        d.SizeBytes,
		CurrentVersionID: d.CurrentVersionID,
		ThumbnailPath:    d.ThumbnailPath,
		Status:           d.Status,
		CreatedBy:        d.CreatedBy,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		Versions:         make([]domain.FileVersionEntry, 0, len(versions)),
	}
	for _, v := range versions {
		f.Versions = append(f.Versions, domain.FileVersionEntry{
			FileID:        d.ID,
			BlobVersionID: v.BlobVersionID,
			SizeBytes:     v.SizeBytes,
			Checksum:      v.Checksum,
			CreatedBy:     v.CreatedBy,
			CreatedAt:     v.CreatedAt,
		})
	}
	return f
}

func toFileVersionDoc(v domain.FileVersionEntry) fileVersionDoc {
	return fileVersionDoc{
		BlobVersionID: v.BlobVersionID,
		SizeBytes:     v.SizeBytes,
		Checksum:      v.Checksum,
		CreatedBy:     v.CreatedBy,
		CreatedAt:     v.CreatedAt,
	}
}

func toLedgerDoc(l *domain.VersionLedger) ledgerDoc {
	return ledgerDoc{
		DatasetID:      l.DatasetID,
		CurrentVersion: l.CurrentVersion,
		CurrentCode:    int64(l.CurrentCode),
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}

func (d ledgerDoc) ledger(entries []ledgerEntryDoc) *domain.VersionLedger {
	l := &domain.VersionLedger{
		DatasetID:      d.DatasetID,
		CurrentVersion: d.CurrentVersion,
		CurrentCode:    domain.VersionCode(d.CurrentCode),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		Entries:        make([]domain.VersionEntry, 0, len(entries)),
	}
	for _, e := range entries {
		l.Entries = append(l.Entries, domain.VersionEntry{
			DatasetID: d.DatasetID,
			Label:     e.Label,
			Code:      domain.VersionCode(e.Code),
			CreatedBy: e.CreatedBy,
			CreatedAt: e.CreatedAt,
		})
	}
	return l
}

func toLedgerEntryDoc(e domain.VersionEntry) ledgerEntryDoc {
	return ledgerEntryDoc{
		Label:     e.Label,
		Code:      int64(e.Code),
		CreatedBy: e.CreatedBy,
		CreatedAt: e.CreatedAt,
	}
}
