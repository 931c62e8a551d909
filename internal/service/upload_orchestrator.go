package service

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"datasethub/internal/domain"
	"datasethub/internal/logutils"
	"datasethub/internal/repository"
	"datasethub/internal/service/s3"
)

// Thumbnailer строит миниатюру изображения
type Thumbnailer interface {
	Thumbnail(data []byte) ([]byte, error)
}

// UploadOrchestrator проводит пакет файлов через все хранилища:
// проверка, загрузка объектов, затем под блокировкой датасета одна транзакция метаданных
// и после коммита обновление индекса документов.
type UploadOrchestrator struct {
	datasets    *repository.DatasetRepository
	links       *repository.LinkRepository
	ledgers     *LedgerService
	catalog     *FileCatalog
	storage     s3.Storage
	thumbs      Thumbnailer
	locker      *DatasetLocker
	validator   *BatchValidator
	concurrency int
	now         func() time.Time
}

type OrchestratorOption func(*UploadOrchestrator)

// WithThumbnailer включает миниатюры для изображений
func WithThumbnailer(t Thumbnailer) OrchestratorOption {
	return func(o *UploadOrchestrator) { o.thumbs = t }
}

// WithConcurrency ограничивает число параллельных загрузок объектов
func WithConcurrency(n int) OrchestratorOption {
	return func(o *UploadOrchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *UploadOrchestrator) { o.now = now }
}

func NewUploadOrchestrator(
	datasets *repository.DatasetRepository,
	links *repository.LinkRepository,
	ledgers *LedgerService,
	catalog *FileCatalog,
	storage s3.Storage,
	locker *DatasetLocker,
	validator *BatchValidator,
	opts ...OrchestratorOption,
) *UploadOrchestrator {
	o := &UploadOrchestrator{
		datasets:    datasets,
		links:       links,
		ledgers:     ledgers,
		catalog:     catalog,
		storage:     storage,
		locker:      locker,
		validator:   validator,
		concurrency: 4,
		now:         defaultClock,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// CreateWithFiles сохраняет новый датасет с первым пакетом файлов на версии v1.0.
// Датасет, история, карточки и связи пишутся одной транзакцией.
func (o *UploadOrchestrator) CreateWithFiles(ctx context.Context, ds *domain.Dataset, files []domain.FileUpload) (int, error) {
	prepared, err := o.validator.Validate(files)
	if err != nil {
		return 0, err
	}

	blobs, err := o.uploadBlobs(ctx, ds, prepared)
	if err != nil {
		return 0, err
	}

	unlock, err := o.locker.Lock(ctx, ds.ID)
	if err != nil {
		return 0, o.storeError(ds, "", "dataset lock", err)
	}
	defer unlock()

	tx, err := o.datasets.BeginTx(ctx)
	if err != nil {
		return 0, o.storeError(ds, "", "begin transaction", err)
	}
	defer tx.Rollback()

	taken, err := o.datasets.ExistsActiveNameTx(ctx, tx, ds.ProjectID, ds.Name, nil)
	if err != nil {
		return 0, o.storeError(ds, "", "name check", err)
	}
	if taken {
		return 0, domain.ErrorDuplicateName(ds.ProjectID, ds.Name)
	}

	if err := o.datasets.Create(ctx, tx, ds); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return 0, domain.ErrorDuplicateName(ds.ProjectID, ds.Name)
		}
		return 0, o.storeError(ds, "", "dataset insert", err)
	}

	ledger, err := o.ledgers.Create(ctx, tx, ds.ID, ds.CreatedBy, ds.CreatedAt)
	if err != nil {
		return 0, o.storeError(ds, "", "ledger create", err)
	}
	initial := ledger.Entries[0]

	changes, err := o.linkBatch(ctx, tx, ds, initial, blobs, ds.CreatedBy)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, o.storeError(ds, "", "commit", err)
	}

	// индекс обновляется под блокировкой, в порядке коммитов
	o.ledgers.Publish(ctx, ledger, nil)
	o.catalog.Publish(ctx, changes)

	return len(blobs), nil
}

// AddVersion загружает пакет как одну новую версию датасета.
// Версия увеличивается ровно один раз на пакет; при любой ошибке метаданные не меняются.
func (o *UploadOrchestrator) AddVersion(ctx context.Context, ds *domain.Dataset, files []domain.FileUpload, author string) (*domain.AddVersionResult, error) {
	prepared, err := o.validator.Validate(files)
	if err != nil {
		return nil, err
	}

	blobs, err := o.uploadBlobs(ctx, ds, prepared)
	if err != nil {
		return nil, err
	}

	unlock, err := o.locker.Lock(ctx, ds.ID)
	if err != nil {
		return nil, o.storeError(ds, "", "dataset lock", err)
	}
	defer unlock()

	tx, err := o.datasets.BeginTx(ctx)
	if err != nil {
		return nil, o.storeError(ds, "", "begin transaction", err)
	}
	defer tx.Rollback()

	now := o.now()
	ledger, entry, err := o.ledgers.Bump(ctx, tx, ds.ID, author, now)
	if err != nil {
		return nil, o.storeError(ds, "", "version bump", err)
	}

	changes, err := o.linkBatch(ctx, tx, ds, entry, blobs, author)
	if err != nil {
		return nil, err
	}

	if err := o.datasets.UpdateCurrentVersion(ctx, tx, ds.ID, entry.Label, now); err != nil {
		return nil, o.storeError(ds, "", "current version update", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, o.storeError(ds, "", "commit", err)
	}

	// индекс обновляется под блокировкой, в порядке коммитов
	o.ledgers.Publish(ctx, ledger, &entry)
	o.catalog.Publish(ctx, changes)

	logutils.Component("upload").WithFields(logutils.Fields{
		"dataset_id": ds.ID,
		"version":    entry.Label,
		"files":      len(blobs),
	}).Info("Dataset version committed")

	return &domain.AddVersionResult{
		DatasetID:  ds.ID,
		NewVersion: entry.Label,
		FilesCount: len(blobs),
	}, nil
}

// linkBatch регистрирует каждый файл в каталоге и пишет связь с версией entry
func (o *UploadOrchestrator) linkBatch(ctx context.Context, tx *sqlx.Tx, ds *domain.Dataset, entry domain.VersionEntry, blobs []BlobVersion, author string) ([]*CatalogChange, error) {
	changes := make([]*CatalogChange, 0, len(blobs))
	for _, blob := range blobs {
		change, err := o.catalog.Upsert(ctx, tx, blob, author, entry.CreatedAt)
		if err != nil {
			return nil, o.storeError(ds, blob.Name, "catalog upsert", err)
		}

		link := &domain.DatasetFileLink{
			ID:             uuid.New(),
			FileID:         change.Record.ID,
			DatasetID:      ds.ID,
			DatasetVersion: entry.Label,
			VersionCode:    entry.Code,
			BlobVersionID:  blob.VersionID,
			SizeBytes:      blob.Size,
			Status:         domain.StatusActive,
			CreatedBy:      author,
			CreatedAt:      entry.CreatedAt,
		}
		if err := o.links.Append(ctx, tx, link); err != nil {
			return nil, o.storeError(ds, blob.Name, "link append", err)
		}

		changes = append(changes, change)
	}
	return changes, nil
}

// uploadBlobs загружает объекты параллельно до o.concurrency штук.
// Первая ошибка отменяет остальные загрузки; уже загруженные версии остаются в хранилище.
func (o *UploadOrchestrator) uploadBlobs(ctx context.Context, ds *domain.Dataset, files []preparedFile) ([]BlobVersion, error) {
	blobs := make([]BlobVersion, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			key := domain.BlobKey(ds, f.name)
			versionID, err := o.storage.PutObject(gctx, key, f.Data, f.ContentType)
			if err != nil {
				return o.storeError(ds, f.name, "blob upload", err)
			}

			sum := blake3.Sum256(f.Data)
			blobs[i] = BlobVersion{
				Name:        f.name,
				Key:         key,
				Extension:   f.ext,
				VersionID:   versionID,
				Size:        f.Size(),
				Checksum:    hex.EncodeToString(sum[:]),
				ContentType: f.ContentType,
			}

			if o.thumbs != nil && domain.IsImage(f.ext) {
				blobs[i].ThumbnailKey = o.uploadThumbnail(gctx, ds, f)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if domain.Code(err) == "" {
			err = o.storeError(ds, "", "blob upload", err)
		}
		return nil, err
	}
	return blobs, nil
}

// uploadThumbnail не прерывает загрузку: без миниатюры файл остается валидным
func (o *UploadOrchestrator) uploadThumbnail(ctx context.Context, ds *domain.Dataset, f preparedFile) *string {
	log := logutils.Component("upload").WithFields(logutils.Fields{
		"dataset_id": ds.ID,
		"file":       f.name,
		"step":       "thumbnail",
	})

	thumb, err := o.thumbs.Thumbnail(f.Data)
	if err != nil {
		log.WithError(err).Warn("Failed to build thumbnail")
		return nil
	}

	key := domain.ThumbnailKey(ds, f.name)
	if _, err := o.storage.PutObject(ctx, key, thumb, "image/jpeg"); err != nil {
		log.WithError(err).Warn("Failed to upload thumbnail")
		return nil
	}
	return &key
}

// storeError пишет в лог контекст сбоя и оборачивает ошибку хранилища.
// Ошибки с кодом (валидация, дубликаты, не найдено) возвращаются как есть.
func (o *UploadOrchestrator) storeError(ds *domain.Dataset, file, step string, err error) error {
	if domain.Code(err) != "" {
		return err
	}

	logutils.Component("upload").WithError(err).WithFields(logutils.Fields{
		"dataset_id": ds.ID,
		"file":       file,
		"step":       step,
	}).Error("Store operation failed, rolling back")

	deets := [][2]string{{"datasetID", ds.ID.String()}}
	if file != "" {
		deets = append(deets, [2]string{"file", file})
	}
	return domain.ErrorStoreUnavailable(step, err, deets...)
}
