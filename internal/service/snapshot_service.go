package service

import (
	"context"

	"github.com/google/uuid"

	"datasethub/internal/domain"
	"datasethub/internal/repository"
)

// SnapshotService восстанавливает состав датасета на любой версии из журнала связей.
// Файл, не менявшийся в версии, наследуется из последней версии, где он менялся.
type SnapshotService struct {
	links *repository.LinkRepository
}

func NewSnapshotService(links *repository.LinkRepository) *SnapshotService {
	return &SnapshotService{links: links}
}

// ListAtVersion возвращает страницу файлов датасета на версии version.
// Принадлежность версии истории не проверяется: любая корректная метка дает состав на эту точку.
func (s *SnapshotService) ListAtVersion(ctx context.Context, datasetID uuid.UUID, version string, page domain.Page) (*domain.SnapshotPage, error) {
	code, err := domain.ParseVersionLabel(version)
	if err != nil {
		return nil, err
	}
	p := page.Normalize()

	total, err := s.links.CountAtVersion(ctx, datasetID, code)
	if err != nil {
		return nil, domain.ErrorStoreUnavailable("snapshot count", err, [2]string{"datasetID", datasetID.String()})
	}

	items, err := s.links.ListAtVersion(ctx, datasetID, code, p.Size, p.Offset())
	if err != nil {
		return nil, domain.ErrorStoreUnavailable("snapshot query", err, [2]string{"datasetID", datasetID.String()})
	}

	return &domain.SnapshotPage{
		DatasetID: datasetID,
		Version:   code.Label(),
		Items:     items,
		Total:     total,
		Page:      p.Number,
		Size:      p.Size,
		Pages:     p.Pages(total),
	}, nil
}

// CountAtVersion возвращает число файлов в составе датасета на версии code
func (s *SnapshotService) CountAtVersion(ctx context.Context, datasetID uuid.UUID, code domain.VersionCode) (int64, error) {
	total, err := s.links.CountAtVersion(ctx, datasetID, code)
	if err != nil {
		return 0, domain.ErrorStoreUnavailable("snapshot count", err, [2]string{"datasetID", datasetID.String()})
	}
	return total, nil
}

// Changes возвращает журнал изменений датасета: каждая запись - файл, измененный в версии
func (s *SnapshotService) Changes(ctx context.Context, datasetID uuid.UUID) ([]domain.DatasetFileLink, error) {
	links, err := s.links.ListByDataset(ctx, datasetID)
	if err != nil {
		return nil, domain.ErrorStoreUnavailable("change log", err, [2]string{"datasetID", datasetID.String()})
	}
	return links, nil
}
