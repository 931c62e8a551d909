package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"datasethub/internal/domain"
)

// likeEscaper экранирует спецсимволы LIKE, ключевое слово ищется буквально
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type DatasetRepository struct {
	db *sqlx.DB
}

func NewDatasetRepository(db *sqlx.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

// BeginTx открывает транзакцию, в которой выполняются все изменения метаданных одной операции
func (r *DatasetRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

func (r *DatasetRepository) Create(ctx context.Context, tx *sqlx.Tx, ds *domain.Dataset) error {
	query := r.db.Rebind(`
        INSERT INTO datasets (id, project_id, name, description, created_by, current_version, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := tx.ExecContext(ctx, query,
		ds.ID,
		ds.ProjectID,
		ds.Name,
		ds.Description,
		ds.CreatedBy,
		ds.CurrentVersion,
		ds.Status,
		ds.CreatedAt,
		ds.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert dataset: %w", err)
	}
	return nil
}

// ExistsActiveName проверяет занятость имени среди активных датасетов проекта.
// excludeID исключает сам обновляемый датасет.
func (r *DatasetRepository) ExistsActiveName(ctx context.Context, projectID, name string, excludeID *uuid.UUID) (bool, error) {
	return r.existsActiveName(ctx, r.db, projectID, name, excludeID)
}

// ExistsActiveNameTx - ExistsActiveName внутри транзакции
func (r *DatasetRepository) ExistsActiveNameTx(ctx context.Context, tx *sqlx.Tx, projectID, name string, excludeID *uuid.UUID) (bool, error) {
	return r.existsActiveName(ctx, tx, projectID, name, excludeID)
}

func (r *DatasetRepository) existsActiveName(ctx context.Context, q sqlx.QueryerContext, projectID, name string, excludeID *uuid.UUID) (bool, error) {
	query := `SELECT COUNT(*) FROM datasets WHERE project_id = ? AND name = ? AND status = ?`
	args := []interface{}{projectID, name, domain.StatusActive}
	if excludeID != nil {
		query += ` AND id <> ?`
		args = append(args, *excludeID)
	}

	var n int64
	if err := sqlx.GetContext(ctx, q, &n, r.db.Rebind(query), args...); err != nil {
		return false, fmt.Errorf("failed to check dataset name: %w", err)
	}
	return n > 0, nil
}

func (r *DatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Dataset, error) {
	return r.getByID(ctx, r.db, id)
}

// GetByIDTx читает датасет внутри транзакции
func (r *DatasetRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Dataset, error) {
	return r.getByID(ctx, tx, id)
}

func (r *DatasetRepository) getByID(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*domain.Dataset, error) {
	var ds domain.Dataset
	query := r.db.Rebind(`
        SELECT id, project_id, name, description, created_by, current_version, status,
               created_at, updated_at, status_updated_at
        FROM datasets WHERE id = ?`)

	err := sqlx.GetContext(ctx, q, &ds, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return &ds, nil
}

// UpdateCurrentVersion переносит указатель текущей версии датасета
func (r *DatasetRepository) UpdateCurrentVersion(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, label string, now time.Time) error {
	query := r.db.Rebind(`UPDATE datasets SET current_version = ?, updated_at = ? WHERE id = ?`)
	res, err := tx.ExecContext(ctx, query, label, now, id)
	if err != nil {
		return fmt.Errorf("failed to update current version: %w", err)
	}
	return expectOneRow(res)
}

// UpdateMetadata сохраняет имя, описание и статус
func (r *DatasetRepository) UpdateMetadata(ctx context.Context, tx *sqlx.Tx, ds *domain.Dataset) error {
	query := r.db.Rebind(`
        UPDATE datasets
        SET name = ?, description = ?, status = ?, status_updated_at = ?, updated_at = ?
        WHERE id = ?`)

	res, err := tx.ExecContext(ctx, query,
		ds.Name,
		ds.Description,
		ds.Status,
		ds.StatusUpdatedAt,
		ds.UpdatedAt,
		ds.ID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to update dataset: %w", err)
	}
	return expectOneRow(res)
}

// List возвращает страницу активных датасетов проекта и общее их число
func (r *DatasetRepository) List(ctx context.Context, filter domain.DatasetFilter) ([]domain.Dataset, int64, error) {
	where := []string{"project_id = ?", "status = ?"}
	args := []interface{}{filter.ProjectID, domain.StatusActive}

	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		where = append(where, `LOWER(name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(kw))+"%")
	}
	if filter.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM datasets WHERE ` + cond)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count datasets: %w", err)
	}

	page := filter.Page.Normalize()
	listQuery := r.db.Rebind(`
        SELECT id, project_id, name, description, created_by, current_version, status,
               created_at, updated_at, status_updated_at
        FROM datasets WHERE ` + cond + `
        ORDER BY created_at DESC, id ASC
        LIMIT ? OFFSET ?`)

	datasets := []domain.Dataset{}
	if err := r.db.SelectContext(ctx, &datasets, listQuery, append(args, page.Size, page.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("failed to list datasets: %w", err)
	}

	return datasets, total, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
