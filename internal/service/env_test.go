package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"datasethub/internal/config"
	"datasethub/internal/docstore"
	"datasethub/internal/domain"
	"datasethub/internal/repository"
	"datasethub/internal/testutil"
)

type testEnv struct {
	svc      *DatasetService
	blobs    *testutil.BlobStore
	index    *docstore.MemoryIndex
	links    *repository.LinkRepository
	ledgers  *LedgerService
	datasets *repository.DatasetRepository
	locker   *DatasetLocker
}

func testUploadConfig() config.UploadConfig {
	return config.UploadConfig{
		MaxFileSize:       1024,
		MaxBatchSize:      8 * 1024,
		AllowedExtensions: config.DefaultAllowedExtensions,
		Concurrency:       4,
	}
}

func newTestEnv(t *testing.T, opts ...OrchestratorOption) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	blobs := testutil.NewBlobStore()
	index := docstore.NewMemoryIndex()

	datasets := repository.NewDatasetRepository(db)
	links := repository.NewLinkRepository(db)
	ledgers := NewLedgerService(repository.NewLedgerRepository(db), index)
	catalog := NewFileCatalog(repository.NewFileRepository(db), index)
	snapshots := NewSnapshotService(links)
	locker := NewDatasetLocker()
	validator := NewBatchValidator(testUploadConfig())

	uploads := NewUploadOrchestrator(datasets, links, ledgers, catalog, blobs, locker, validator, opts...)
	svc := NewDatasetService(datasets, ledgers, catalog, snapshots, uploads, validator, blobs, 15*time.Minute)

	return &testEnv{
		svc:      svc,
		blobs:    blobs,
		index:    index,
		links:    links,
		ledgers:  ledgers,
		datasets: datasets,
		locker:   locker,
	}
}

const testProject = "project-1"

func csvFile(name, content string) domain.FileUpload {
	return domain.FileUpload{Name: name, ContentType: "text/csv", Data: []byte(content)}
}

func csvFiles(n int) []domain.FileUpload {
	files := make([]domain.FileUpload, n)
	for i := range files {
		files[i] = csvFile(fmt.Sprintf("part-%02d.csv", i), fmt.Sprintf("row,%d", i))
	}
	return files
}

func (e *testEnv) createDataset(t *testing.T, name string, files ...domain.FileUpload) *domain.Dataset {
	t.Helper()
	res, err := e.svc.CreateDataset(context.Background(), domain.DatasetMetadata{
		ProjectID:   testProject,
		Name:        name,
		Description: "test dataset",
	}, files, "alice")
	qt.Assert(t, err, qt.IsNil)
	return res.Dataset
}

// snapshotByName возвращает весь состав версии, ключ - имя файла
func (e *testEnv) snapshotByName(t *testing.T, ds *domain.Dataset, version string) map[string]domain.SnapshotItem {
	t.Helper()
	snap, err := e.svc.ListFilesAtVersion(context.Background(), testProject, ds.ID, version, domain.Page{Number: 1, Size: domain.MaxPageSize})
	qt.Assert(t, err, qt.IsNil)

	out := make(map[string]domain.SnapshotItem, len(snap.Items))
	for _, item := range snap.Items {
		out[item.Name] = item
	}
	qt.Assert(t, out, qt.HasLen, len(snap.Items))
	return out
}
