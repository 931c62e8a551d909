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

type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create сохраняет новую историю вместе с ее записями.
// Повторное создание для того же датасета возвращает ErrDuplicate.
func (r *LedgerRepository) Create(ctx context.Context, tx *sqlx.Tx, l *domain.VersionLedger) error {
	query := r.db.Rebind(`
        INSERT INTO dataset_ledgers (dataset_id, current_version, current_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)`)

	_, err := tx.ExecContext(ctx, query, l.DatasetID, l.CurrentVersion, l.CurrentCode, l.CreatedAt, l.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert ledger: %w", err)
	}

	for _, e := range l.Entries {
		if err := r.insertEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}

// GetForUpdate читает историю внутри транзакции.
// В postgres строка истории блокируется до конца транзакции.
func (r *LedgerRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, datasetID uuid.UUID) (*domain.VersionLedger, error) {
	query := `
        SELECT dataset_id, current_version, current_code, created_at, updated_at
        FROM dataset_ledgers WHERE dataset_id = ?`
	if r.db.DriverName() == "postgres" {
		query += ` FOR UPDATE`
	}
	return r.load(ctx, tx, r.db.Rebind(query), datasetID)
}

// Get читает историю вне транзакции
func (r *LedgerRepository) Get(ctx context.Context, datasetID uuid.UUID) (*domain.VersionLedger, error) {
	query := r.db.Rebind(`
        SELECT dataset_id, current_version, current_code, created_at, updated_at
        FROM dataset_ledgers WHERE dataset_id = ?`)
	return r.load(ctx, r.db, query, datasetID)
}

func (r *LedgerRepository) load(ctx context.Context, q sqlx.QueryerContext, query string, datasetID uuid.UUID) (*domain.VersionLedger, error) {
	var l domain.VersionLedger
	err := sqlx.GetContext(ctx, q, &l, query, datasetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}

	entriesQuery := r.db.Rebind(`
        SELECT dataset_id, label, code, created_by, created_at
        FROM dataset_ledger_entries WHERE dataset_id = ? ORDER BY code ASC`)
	if err := sqlx.SelectContext(ctx, q, &l.Entries, entriesQuery, datasetID); err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	return &l, nil
}

// AppendEntry добавляет запись и переносит указатель текущей версии.
// Занятая метка возвращает ErrDuplicate.
func (r *LedgerRepository) AppendEntry(ctx context.Context, tx *sqlx.Tx, l *domain.VersionLedger, e domain.VersionEntry) error {
	if err := r.insertEntry(ctx, tx, e); err != nil {
		return err
	}

	query := r.db.Rebind(`
        UPDATE dataset_ledgers SET current_version = ?, current_code = ?, updated_at = ?
        WHERE dataset_id = ?`)
	res, err := tx.ExecContext(ctx, query, l.CurrentVersion, l.CurrentCode, l.UpdatedAt, l.DatasetID)
	if err != nil {
		return fmt.Errorf("failed to move ledger head: %w", err)
	}
	return expectOneRow(res)
}

func (r *LedgerRepository) insertEntry(ctx context.Context, tx *sqlx.Tx, e domain.VersionEntry) error {
	query := r.db.Rebind(`
        INSERT INTO dataset_ledger_entries (dataset_id, label, code, created_by, created_at)
        VALUES (?, ?, ?, ?, ?)`)

	_, err := tx.ExecContext(ctx, query, e.DatasetID, e.Label, e.Code, e.CreatedBy, e.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry %s: %w", e.Label, err)
	}
	return nil
}
