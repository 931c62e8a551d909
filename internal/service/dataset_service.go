package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"datasethub/internal/domain"
	"datasethub/internal/logutils"
	"datasethub/internal/repository"
	"datasethub/internal/service/s3"
)

// DatasetService - точка входа для операций над датасетами.
// Проверяет принадлежность датасета проекту и его активность, остальное делегирует.
type DatasetService struct {
	datasets   *repository.DatasetRepository
	ledgers    *LedgerService
	catalog    *FileCatalog
	snapshots  *SnapshotService
	uploads    *UploadOrchestrator
	validator  *BatchValidator
	storage    s3.Storage
	presignTTL time.Duration
	now        func() time.Time
}

func NewDatasetService(
	datasets *repository.DatasetRepository,
	ledgers *LedgerService,
	catalog *FileCatalog,
	snapshots *SnapshotService,
	uploads *UploadOrchestrator,
	validator *BatchValidator,
	storage s3.Storage,
	presignTTL time.Duration,
) *DatasetService {
	return &DatasetService{
		datasets:   datasets,
		ledgers:    ledgers,
		catalog:    catalog,
		snapshots:  snapshots,
		uploads:    uploads,
		validator:  validator,
		storage:    storage,
		presignTTL: presignTTL,
		now:        uploads.now,
	}
}

// CreateDataset создает датасет с первым пакетом файлов на версии v1.0
func (s *DatasetService) CreateDataset(ctx context.Context, meta domain.DatasetMetadata, files []domain.FileUpload, author string) (*domain.CreateDatasetResult, error) {
	meta.Name = strings.TrimSpace(meta.Name)
	if err := s.validator.ValidateMetadata(meta); err != nil {
		return nil, err
	}
	if _, err := s.validator.Validate(files); err != nil {
		return nil, err
	}

	// ранняя проверка имени, чтобы не загружать объекты зря; окончательная - в транзакции
	taken, err := s.datasets.ExistsActiveName(ctx, meta.ProjectID, meta.Name, nil)
	if err != nil {
		return nil, domain.ErrorStoreUnavailable("name check", err)
	}
	if taken {
		return nil, domain.ErrorDuplicateName(meta.ProjectID, meta.Name)
	}

	now := s.now()
	ds := &domain.Dataset{
		ID:             uuid.New(),
		ProjectID:      meta.ProjectID,
		Name:           meta.Name,
		Description:    meta.Description,
		CreatedBy:      author,
		CurrentVersion: domain.InitialVersion.Label(),
		Status:         domain.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	n, err := s.uploads.CreateWithFiles(ctx, ds, files)
	if err != nil {
		return nil, err
	}
	ds.FilesCount = int64(n)

	logutils.Component("datasets").WithFields(logutils.Fields{
		"dataset_id": ds.ID,
		"project_id": ds.ProjectID,
		"files":      n,
	}).Info("Dataset created")

	return &domain.CreateDatasetResult{Dataset: ds, FilesCount: n}, nil
}

// AddVersion загружает пакет файлов как новую версию датасета
func (s *DatasetService) AddVersion(ctx context.Context, projectID string, datasetID uuid.UUID, files []domain.FileUpload, author string) (*domain.AddVersionResult, error) {
	ds, err := s.activeDataset(ctx, projectID, datasetID)
	if err != nil {
		return nil, err
	}
	return s.uploads.AddVersion(ctx, ds, files, author)
}

// ListFilesAtVersion возвращает состав датасета на версии; пустая версия - текущая
func (s *DatasetService) ListFilesAtVersion(ctx context.Context, projectID string, datasetID uuid.UUID, version string, page domain.Page) (*domain.SnapshotPage, error) {
	ds, err := s.activeDataset(ctx, projectID, datasetID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(version) == "" {
		version = ds.CurrentVersion
	}

	snap, err := s.snapshots.ListAtVersion(ctx, ds.ID, version, page)
	if err != nil {
		return nil, err
	}
	if err := s.enrich(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// ListFileURLsAtVersion - то же, что ListFilesAtVersion, с временными ссылками на нужные версии объектов
func (s *DatasetService) ListFileURLsAtVersion(ctx context.Context, projectID string, datasetID uuid.UUID, version string, page domain.Page) (*domain.SnapshotPage, error) {
	snap, err := s.ListFilesAtVersion(ctx, projectID, datasetID, version, page)
	if err != nil {
		return nil, err
	}

	for i := range snap.Items {
		item := &snap.Items[i]
		url, err := s.storage.PresignURL(ctx, item.Path, item.BlobVersionID, s.presignTTL)
		if err != nil {
			return nil, domain.ErrorStoreUnavailable("presign", err,
				[2]string{"datasetID", datasetID.String()}, [2]string{"file", item.Name})
		}
		item.URL = url
	}
	return snap, nil
}

// GetVersionHistory возвращает все версии датасета, новые первыми
func (s *DatasetService) GetVersionHistory(ctx context.Context, projectID string, datasetID uuid.UUID) (*domain.VersionHistory, error) {
	ds, err := s.activeDataset(ctx, projectID, datasetID)
	if err != nil {
		return nil, err
	}

	l, err := s.ledgers.Get(ctx, ds.ID)
	if err != nil {
		return nil, err
	}

	entries := append([]domain.VersionEntry(nil), l.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Code > entries[j].Code })

	return &domain.VersionHistory{
		DatasetID:      ds.ID,
		CurrentVersion: l.CurrentVersion,
		TotalVersions:  len(entries),
		Entries:        entries,
	}, nil
}

// ListChanges возвращает журнал изменений файлов по версиям, от старых к новым
func (s *DatasetService) ListChanges(ctx context.Context, projectID string, datasetID uuid.UUID) ([]domain.DatasetFileLink, error) {
	ds, err := s.activeDataset(ctx, projectID, datasetID)
	if err != nil {
		return nil, err
	}
	return s.snapshots.Changes(ctx, ds.ID)
}

// ListDatasets возвращает страницу активных датасетов проекта с числом файлов на текущей версии
func (s *DatasetService) ListDatasets(ctx context.Context, filter domain.DatasetFilter) (*domain.DatasetPage, error) {
	if strings.TrimSpace(filter.ProjectID) == "" {
		return nil, domain.ErrorValidation("project id is required")
	}
	filter.Page = filter.Page.Normalize()

	items, total, err := s.datasets.List(ctx, filter)
	if err != nil {
		return nil, domain.ErrorStoreUnavailable("dataset list", err, [2]string{"projectID", filter.ProjectID})
	}

	for i := range items {
		code, err := domain.ParseVersionLabel(items[i].CurrentVersion)
		if err != nil {
			return nil, err
		}
		n, err := s.snapshots.CountAtVersion(ctx, items[i].ID, code)
		if err != nil {
			return nil, err
		}
		items[i].FilesCount = n
	}

	return &domain.DatasetPage{
		Items: items,
		Total: total,
		Page:  filter.Page.Number,
		Size:  filter.Page.Size,
		Pages: filter.Page.Pages(total),
	}, nil
}

// UpdateDataset меняет имя, описание или статус. Скрытый датасет можно снова сделать активным.
func (s *DatasetService) UpdateDataset(ctx context.Context, projectID string, datasetID uuid.UUID, patch domain.DatasetPatch) (*domain.Dataset, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, domain.ErrorValidation("dataset name is required")
		}
		patch.Name = &name
	}
	if patch.Status != nil && *patch.Status != domain.StatusActive && *patch.Status != domain.StatusHidden {
		return nil, domain.ErrorValidation("status must be 0 or 1")
	}

	tx, err := s.datasets.BeginTx(ctx)
	if err != nil {
		return nil, domain.ErrorStoreUnavailable("begin transaction", err)
	}
	defer tx.Rollback()

	ds, err := s.datasets.GetByIDTx(ctx, tx, datasetID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && ds.ProjectID != projectID) {
		return nil, domain.ErrorNotFound("dataset", datasetID.String())
	}
	if err != nil {
		return nil, domain.ErrorStoreUnavailable("dataset lookup", err)
	}

	now := s.now()
	if patch.Name != nil {
		ds.Name = *patch.Name
	}
	if patch.Description != nil {
		ds.Description = *patch.Description
	}
	if patch.Status != nil && *patch.Status != ds.Status {
		ds.Status = *patch.Status
		ds.StatusUpdatedAt = &now
	}
	ds.UpdatedAt = now

	if ds.Status == domain.StatusActive {
		taken, err := s.datasets.ExistsActiveNameTx(ctx, tx, ds.ProjectID, ds.Name, &ds.ID)
		if err != nil {
			return nil, domain.ErrorStoreUnavailable("name check", err)
		}
		if taken {
			return nil, domain.ErrorDuplicateName(ds.ProjectID, ds.Name)
		}
	}

	if err := s.datasets.UpdateMetadata(ctx, tx, ds); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.ErrorDuplicateName(ds.ProjectID, ds.Name)
		}
		return nil, domain.ErrorStoreUnavailable("dataset update", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.ErrorStoreUnavailable("commit", err)
	}
	return ds, nil
}

// GetFile возвращает карточку файла с историей версий
func (s *DatasetService) GetFile(ctx context.Context, fileID uuid.UUID) (*domain.FileRecord, error) {
	return s.catalog.Get(ctx, fileID)
}

// GetThumbnail открывает миниатюру файла
func (s *DatasetService) GetThumbnail(ctx context.Context, fileID uuid.UUID) (s3.Object, error) {
	file, err := s.catalog.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.ThumbnailPath == nil {
		return nil, domain.ErrorNotFound("thumbnail", fileID.String())
	}

	obj, err := s.storage.GetObject(ctx, *file.ThumbnailPath, "")
	if errors.Is(err, s3.ErrObjectNotFound) {
		return nil, domain.ErrorNotFound("thumbnail", fileID.String())
	}
	if err != nil {
		return nil, domain.ErrorStoreUnavailable("thumbnail read", err, [2]string{"fileID", fileID.String()})
	}
	return obj, nil
}

func (s *DatasetService) activeDataset(ctx context.Context, projectID string, datasetID uuid.UUID) (*domain.Dataset, error) {
	ds, err := s.datasets.GetByID(ctx, datasetID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.ErrorNotFound("dataset", datasetID.String())
	}
	if err != nil {
		return nil, domain.ErrorStoreUnavailable("dataset lookup", err, [2]string{"datasetID", datasetID.String()})
	}
	if ds.Status != domain.StatusActive || ds.ProjectID != projectID {
		return nil, domain.ErrorNotFound("dataset", datasetID.String())
	}
	return ds, nil
}

// enrich дополняет элементы состава именами и путями из каталога
func (s *DatasetService) enrich(ctx context.Context, snap *domain.SnapshotPage) error {
	ids := make([]uuid.UUID, 0, len(snap.Items))
	for _, item := range snap.Items {
		ids = append(ids, item.FileID)
	}

	files, err := s.catalog.Details(ctx, ids)
	if err != nil {
		return err
	}

	for i := range snap.Items {
		f, ok := files[snap.Items[i].FileID]
		if !ok {
			continue
		}
		snap.Items[i].Name = f.Name
		snap.Items[i].Path = f.Path
		snap.Items[i].Extension = f.Extension
		snap.Items[i].ThumbnailPath = f.ThumbnailPath
	}
	return nil
}
