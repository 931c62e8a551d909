package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"datasethub/internal/docstore"
	"datasethub/internal/domain"
	"datasethub/internal/logutils"
	"datasethub/internal/repository"
)

// BlobVersion - загруженная версия объекта, готовая к регистрации в каталоге
type BlobVersion struct {
	Name         string
	Key          string
	Extension    string
	VersionID    string
	Size         int64
	Checksum     string
	ContentType  string
	ThumbnailKey *string
}

// CatalogChange - результат Upsert, нужен для обновления индекса после коммита
type CatalogChange struct {
	Record  *domain.FileRecord
	Entry   domain.FileVersionEntry
	Created bool
}

// FileCatalog ведет карточки файлов и их версии. С хранилищем объектов не работает.
type FileCatalog struct {
	repo  *repository.FileRepository
	index docstore.Index
}

func NewFileCatalog(repo *repository.FileRepository, index docstore.Index) *FileCatalog {
	return &FileCatalog{repo: repo, index: index}
}

// Upsert добавляет версию к файлу с той же парой (имя, путь) или создает новый файл.
// Выполняется внутри транзакции вызывающего.
func (c *FileCatalog) Upsert(ctx context.Context, tx *sqlx.Tx, blob BlobVersion, author string, now time.Time) (*CatalogChange, error) {
	identity := domain.FileIdentity{Name: blob.Name, Path: blob.Key}

	existing, err := c.repo.FindByIdentity(ctx, tx, identity)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		rec := &domain.FileRecord{
			ID:               uuid.New(),
			Name:             blob.Name,
			Path:             blob.Key,
			Extension:        blob.Extension,
			SizeBytes:        blob.Size,
			CurrentVersionID: blob.VersionID,
			ThumbnailPath:    blob.ThumbnailKey,
			Status:           domain.StatusActive,
			CreatedBy:        author,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		entry := versionEntry(rec.ID, blob, author, now)
		rec.Versions = []domain.FileVersionEntry{entry}

		if err := c.repo.Create(ctx, tx, rec); err != nil {
			return nil, err
		}
		return &CatalogChange{Record: rec, Entry: entry, Created: true}, nil
	}

	entry := versionEntry(existing.ID, blob, author, now)
	existing.CurrentVersionID = blob.VersionID
	existing.SizeBytes = blob.Size
	existing.UpdatedAt = now
	if blob.ThumbnailKey != nil {
		existing.ThumbnailPath = blob.ThumbnailKey
	}

	if err := c.repo.AppendVersion(ctx, tx, existing, entry); err != nil {
		return nil, err
	}
	return &CatalogChange{Record: existing, Entry: entry}, nil
}

func versionEntry(fileID uuid.UUID, blob BlobVersion, author string, now time.Time) domain.FileVersionEntry {
	return domain.FileVersionEntry{
		FileID:        fileID,
		BlobVersionID: blob.VersionID,
		SizeBytes:     blob.Size,
		Checksum:      blob.Checksum,
		CreatedBy:     author,
		CreatedAt:     now,
	}
}

// Get возвращает карточку файла: сначала из индекса, при промахе из базы с заполнением индекса
func (c *FileCatalog) Get(ctx context.Context, fileID uuid.UUID) (*domain.FileRecord, error) {
	log := logutils.Component("catalog").WithField("file_id", fileID)

	rec, err := c.index.GetFile(ctx, fileID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, docstore.ErrMiss) {
		log.WithError(err).Warn("Document index read failed, falling back to database")
	}

	rec, err = c.repo.GetByID(ctx, fileID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.ErrorNotFound("file", fileID.String())
	}
	if err != nil {
		return nil, domain.ErrorStoreUnavailable("file lookup", err, [2]string{"fileID", fileID.String()})
	}

	if err := c.index.PutFile(ctx, rec); err != nil {
		log.WithError(err).Warn("Failed to backfill file document")
	}
	return rec, nil
}

// Details возвращает карточки без истории версий для обогащения списков
func (c *FileCatalog) Details(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.FileRecord, error) {
	files, err := c.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, domain.ErrorStoreUnavailable("file details", err)
	}
	return files, nil
}

// Publish переносит закоммиченные изменения в индекс документов.
// Ошибка индекса не отменяет операцию: документ сбрасывается и будет восстановлен при чтении.
func (c *FileCatalog) Publish(ctx context.Context, changes []*CatalogChange) {
	for _, ch := range changes {
		var err error
		if ch.Created {
			err = c.index.PutFile(ctx, ch.Record)
		} else {
			err = c.index.AppendFileVersion(ctx, ch.Record, ch.Entry)
		}
		if err == nil || errors.Is(err, docstore.ErrMiss) {
			continue
		}

		logutils.Component("catalog").WithError(err).WithFields(logutils.Fields{
			"file_id": ch.Record.ID,
			"file":    ch.Record.Name,
			"step":    "index",
		}).Warn("Failed to update file document, invalidating")
		if err := c.index.InvalidateFile(ctx, ch.Record.ID); err != nil {
			logutils.Component("catalog").WithError(err).WithField("file_id", ch.Record.ID).Error("Failed to invalidate file document")
		}
	}
}
