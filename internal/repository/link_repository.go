package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"datasethub/internal/domain"
)

// LinkRepository - журнал связей "датасет - файл - версия". Строки только добавляются.
type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

func (r *LinkRepository) Append(ctx context.Context, tx *sqlx.Tx, link *domain.DatasetFileLink) error {
	query := r.db.Rebind(`
        INSERT INTO dataset_file_links (id, file_id, dataset_id, dataset_version, version_code, blob_version_id,
                                        size_bytes, status, created_by, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := tx.ExecContext(ctx, query,
		link.ID,
		link.FileID,
		link.DatasetID,
		link.DatasetVersion,
		link.VersionCode,
		link.BlobVersionID,
		link.SizeBytes,
		link.Status,
		link.CreatedBy,
		link.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert link: %w", err)
	}
	return nil
}

// Для каждого файла берется строка с наибольшим version_code не выше запрошенного.
// Сравнение идет по целому коду, а не по строковой метке.
const latestLinksSubquery = `
        SELECT file_id, MAX(version_code) AS max_code
        FROM dataset_file_links
        WHERE dataset_id = ? AND version_code <= ? AND status = 1
        GROUP BY file_id`

// ListAtVersion возвращает страницу состава датасета на версии code
func (r *LinkRepository) ListAtVersion(ctx context.Context, datasetID uuid.UUID, code domain.VersionCode, limit, offset int) ([]domain.SnapshotItem, error) {
	query := r.db.Rebind(`
        SELECT l.file_id, l.blob_version_id, l.dataset_version, l.version_code, l.size_bytes
        FROM dataset_file_links l
        JOIN (` + latestLinksSubquery + `) latest
          ON latest.file_id = l.file_id AND latest.max_code = l.version_code
        WHERE l.dataset_id = ? AND l.status = 1
        ORDER BY l.version_code DESC, l.file_id ASC
        LIMIT ? OFFSET ?`)

	items := []domain.SnapshotItem{}
	err := r.db.SelectContext(ctx, &items, query, datasetID, code, datasetID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list files at version: %w", err)
	}
	return items, nil
}

// CountAtVersion возвращает число различных файлов в составе датасета на версии code
func (r *LinkRepository) CountAtVersion(ctx context.Context, datasetID uuid.UUID, code domain.VersionCode) (int64, error) {
	query := r.db.Rebind(`
        SELECT COUNT(DISTINCT file_id)
        FROM dataset_file_links
        WHERE dataset_id = ? AND version_code <= ? AND status = 1`)

	var total int64
	if err := r.db.GetContext(ctx, &total, query, datasetID, code); err != nil {
		return 0, fmt.Errorf("failed to count files at version: %w", err)
	}
	return total, nil
}

// ListByDataset возвращает весь журнал датасета в порядке добавления
func (r *LinkRepository) ListByDataset(ctx context.Context, datasetID uuid.UUID) ([]domain.DatasetFileLink, error) {
	query := r.db.Rebind(`
        SELECT id, file_id, dataset_id, dataset_version, version_code, blob_version_id,
               size_bytes, status, created_by, created_at
        FROM dataset_file_links WHERE dataset_id = ?
        ORDER BY version_code ASC, file_id ASC`)

	links := []domain.DatasetFileLink{}
	if err := r.db.SelectContext(ctx, &links, query, datasetID); err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return links, nil
}
