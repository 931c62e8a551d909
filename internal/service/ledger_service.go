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

// LedgerService ведет историю версий датасетов
type LedgerService struct {
	repo  *repository.LedgerRepository
	index docstore.Index
}

func NewLedgerService(repo *repository.LedgerRepository, index docstore.Index) *LedgerService {
	return &LedgerService{repo: repo, index: index}
}

// Create заводит историю с начальной версией v1.0
func (s *LedgerService) Create(ctx context.Context, tx *sqlx.Tx, datasetID uuid.UUID, author string, now time.Time) (*domain.VersionLedger, error) {
	l := domain.NewVersionLedger(datasetID, author, now)
	err := s.repo.Create(ctx, tx, l)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, domain.ErrorDuplicateLedger(datasetID.String())
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Bump блокирует историю в транзакции и добавляет следующую версию
func (s *LedgerService) Bump(ctx context.Context, tx *sqlx.Tx, datasetID uuid.UUID, author string, now time.Time) (*domain.VersionLedger, domain.VersionEntry, error) {
	l, err := s.repo.GetForUpdate(ctx, tx, datasetID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.VersionEntry{}, domain.ErrorNotFound("version ledger", datasetID.String())
	}
	if err != nil {
		return nil, domain.VersionEntry{}, err
	}

	entry, err := l.Bump(author, now)
	if err != nil {
		return nil, domain.VersionEntry{}, err
	}

	err = s.repo.AppendEntry(ctx, tx, l, entry)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, domain.VersionEntry{}, domain.ErrorDuplicateVersion(datasetID.String(), entry.Label)
	}
	if err != nil {
		return nil, domain.VersionEntry{}, err
	}
	return l, entry, nil
}

// Get возвращает историю: сначала из индекса, при промахе из базы
func (s *LedgerService) Get(ctx context.Context, datasetID uuid.UUID) (*domain.VersionLedger, error) {
	log := logutils.Component("ledger").WithField("dataset_id", datasetID)

	l, err := s.index.GetLedger(ctx, datasetID)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, docstore.ErrMiss) {
		log.WithError(err).Warn("Document index read failed, falling back to database")
	}

	l, err = s.repo.Get(ctx, datasetID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.ErrorNotFound("version ledger", datasetID.String())
	}
	if err != nil {
		return nil, domain.ErrorStoreUnavailable("ledger lookup", err, [2]string{"datasetID", datasetID.String()})
	}

	if err := s.index.PutLedger(ctx, l); err != nil {
		log.WithError(err).Warn("Failed to backfill ledger document")
	}
	return l, nil
}

// Publish переносит закоммиченную историю в индекс. entry == nil - история только что создана.
func (s *LedgerService) Publish(ctx context.Context, l *domain.VersionLedger, entry *domain.VersionEntry) {
	var err error
	if entry == nil {
		err = s.index.PutLedger(ctx, l)
	} else {
		err = s.index.AppendLedgerVersion(ctx, l, *entry)
	}
	if err == nil || errors.Is(err, docstore.ErrMiss) {
		return
	}

	log := logutils.Component("ledger").WithFields(logutils.Fields{
		"dataset_id": l.DatasetID,
		"step":       "index",
	})
	log.WithError(err).Warn("Failed to update ledger document, invalidating")
	if err := s.index.InvalidateLedger(ctx, l.DatasetID); err != nil {
		log.WithError(err).Error("Failed to invalidate ledger document")
	}
}
