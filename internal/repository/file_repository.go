package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"datasethub/internal/domain"
)

type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, name, path, extension, size_bytes, current_version_id, thumbnail_path,
               status, created_by, created_at, updated_at`

// FindByIdentity ищет файл по паре (имя, путь). Если файла нет, возвращает nil без ошибки.
func (r *FileRepository) FindByIdentity(ctx context.Context, tx *sqlx.Tx, id domain.FileIdentity) (*domain.FileRecord, error) {
	var file domain.FileRecord
	query := r.db.Rebind(`SELECT ` + fileColumns + ` FROM dataset_files WHERE name = ? AND path = ?`)

	err := tx.GetContext(ctx, &file, query, id.Name, id.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find file %s: %w", id.Path, err)
	}
	return &file, nil
}

// Create сохраняет карточку файла и ее первую версию
func (r *FileRepository) Create(ctx context.Context, tx *sqlx.Tx, file *domain.FileRecord) error {
	query := r.db.Rebind(`
        INSERT INTO dataset_files (id, name, path, extension, size_bytes, current_version_id, thumbnail_path,
                                   status, created_by, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := tx.ExecContext(ctx, query,
		file.ID,
		file.Name,
		file.Path,
		file.Extension,
		file.SizeBytes,
		file.CurrentVersionID,
		file.ThumbnailPath,
		file.Status,
		file.CreatedBy,
		file.CreatedAt,
		file.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	for _, v := range file.Versions {
		if err := r.insertVersion(ctx, tx, v); err != nil {
			return err
		}
	}
	return nil
}

// AppendVersion добавляет версию и переносит на нее указатель current_version_id.
// Миниатюра обновляется, только если передана новая.
func (r *FileRepository) AppendVersion(ctx context.Context, tx *sqlx.Tx, file *domain.FileRecord, v domain.FileVersionEntry) error {
	if err := r.insertVersion(ctx, tx, v); err != nil {
		return err
	}

	query := r.db.Rebind(`
        UPDATE dataset_files
        SET current_version_id = ?,
            size_bytes = ?,
            thumbnail_path = COALESCE(?, thumbnail_path),
            updated_at = ?
        WHERE id = ?`)

	res, err := tx.ExecContext(ctx, query, v.BlobVersionID, v.SizeBytes, file.ThumbnailPath, v.CreatedAt, file.ID)
	if err != nil {
		return fmt.Errorf("failed to move file head: %w", err)
	}
	return expectOneRow(res)
}

func (r *FileRepository) insertVersion(ctx context.Context, tx *sqlx.Tx, v domain.FileVersionEntry) error {
	var seq int64
	seqQuery := r.db.Rebind(`SELECT COALESCE(MAX(seq), 0) + 1 FROM dataset_file_versions WHERE file_id = ?`)
	if err := tx.GetContext(ctx, &seq, seqQuery, v.FileID); err != nil {
		return fmt.Errorf("failed to get next file version number: %w", err)
	}

	query := r.db.Rebind(`
        INSERT INTO dataset_file_versions (file_id, seq, blob_version_id, size_bytes, checksum, created_by, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := tx.ExecContext(ctx, query,
		v.FileID,
		seq,
		v.BlobVersionID,
		v.SizeBytes,
		v.Checksum,
		v.CreatedBy,
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert file version: %w", err)
	}
	return nil
}

// GetByID возвращает карточку файла со всеми версиями
func (r *FileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error) {
	var file domain.FileRecord
	query := r.db.Rebind(`SELECT ` + fileColumns + ` FROM dataset_files WHERE id = ?`)

	err := r.db.GetContext(ctx, &file, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	versionsQuery := r.db.Rebind(`
        SELECT file_id, blob_version_id, size_bytes, checksum, created_by, created_at
        FROM dataset_file_versions WHERE file_id = ? ORDER BY seq ASC`)
	if err := r.db.SelectContext(ctx, &file.Versions, versionsQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get file versions: %w", err)
	}
	return &file, nil
}

// GetByIDs возвращает карточки без истории версий, ключ - id файла
func (r *FileRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.FileRecord, error) {
	result := make(map[uuid.UUID]domain.FileRecord, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	query, args, err := sqlx.In(`SELECT `+fileColumns+` FROM dataset_files WHERE id IN (?)`, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to build files query: %w", err)
	}

	var files []domain.FileRecord
	if err := r.db.SelectContext(ctx, &files, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get files: %w", err)
	}
	for _, f := range files {
		result[f.ID] = f
	}
	return result, nil
}
