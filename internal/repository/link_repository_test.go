package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"datasethub/internal/domain"
	"datasethub/internal/testutil"
)

type linkFixture struct {
	db       *sqlx.DB
	links    *LinkRepository
	files    *FileRepository
	datasets *DatasetRepository
	ds       *domain.Dataset
	now      time.Time
}

func newLinkFixture(t *testing.T) *linkFixture {
	t.Helper()
	db := testutil.NewDB(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f := &linkFixture{
		db:       db,
		links:    NewLinkRepository(db),
		files:    NewFileRepository(db),
		datasets: NewDatasetRepository(db),
		ds: &domain.Dataset{
			ID:             uuid.New(),
			ProjectID:      "p",
			Name:           "fixture",
			CreatedBy:      "alice",
			CurrentVersion: "v1.0",
			Status:         domain.StatusActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		now: now,
	}
	f.inTx(t, func(tx *sqlx.Tx) error { return f.datasets.Create(context.Background(), tx, f.ds) })
	return f
}

func (f *linkFixture) inTx(t *testing.T, fn func(tx *sqlx.Tx) error) {
	t.Helper()
	tx, err := f.datasets.BeginTx(context.Background())
	qt.Assert(t, err, qt.IsNil)
	defer tx.Rollback()
	qt.Assert(t, fn(tx), qt.IsNil)
	qt.Assert(t, tx.Commit(), qt.IsNil)
}

func (f *linkFixture) newFile(t *testing.T, name string) uuid.UUID {
	t.Helper()
	rec := &domain.FileRecord{
		ID:               uuid.New(),
		Name:             name,
		Path:             "datasets/x/" + name,
		Extension:        "csv",
		CurrentVersionID: "ver-0",
		Status:           domain.StatusActive,
		CreatedBy:        "alice",
		CreatedAt:        f.now,
		UpdatedAt:        f.now,
	}
	f.inTx(t, func(tx *sqlx.Tx) error { return f.files.Create(context.Background(), tx, rec) })
	return rec.ID
}

func (f *linkFixture) link(t *testing.T, fileID uuid.UUID, code domain.VersionCode) {
	t.Helper()
	f.inTx(t, func(tx *sqlx.Tx) error {
		return f.links.Append(context.Background(), tx, &domain.DatasetFileLink{
			ID:             uuid.New(),
			FileID:         fileID,
			DatasetID:      f.ds.ID,
			DatasetVersion: code.Label(),
			VersionCode:    code,
			BlobVersionID:  fmt.Sprintf("blob-%s-%d", fileID.String()[:8], code),
			SizeBytes:      int64(code),
			Status:         domain.StatusActive,
			CreatedBy:      "alice",
			CreatedAt:      f.now,
		})
	})
}

func TestListAtVersionComparesCodes(t *testing.T) {
	f := newLinkFixture(t)
	ctx := context.Background()

	a := f.newFile(t, "a.csv")
	b := f.newFile(t, "b.csv")
	f.link(t, a, 10)
	f.link(t, b, 10)
	f.link(t, a, 19)
	f.link(t, b, 20)

	// на v1.9 файл b еще в версии v1.0
	items, err := f.links.ListAtVersion(ctx, f.ds.ID, 19, 10, 0)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, items, qt.HasLen, 2)
	qt.Assert(t, items[0].FileID, qt.Equals, a)
	qt.Assert(t, items[0].DatasetVersion, qt.Equals, "v1.9")
	qt.Assert(t, items[1].FileID, qt.Equals, b)
	qt.Assert(t, items[1].DatasetVersion, qt.Equals, "v1.0")

	items, err = f.links.ListAtVersion(ctx, f.ds.ID, 20, 10, 0)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, items[0].FileID, qt.Equals, b)
	qt.Assert(t, items[0].VersionCode, qt.Equals, domain.VersionCode(20))
	qt.Assert(t, items[1].VersionCode, qt.Equals, domain.VersionCode(19))

	n, err := f.links.CountAtVersion(ctx, f.ds.ID, 9)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, n, qt.Equals, int64(0))
}

func TestListAtVersionTieBreaksOnFileID(t *testing.T) {
	f := newLinkFixture(t)
	ctx := context.Background()

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = f.newFile(t, fmt.Sprintf("f%d.csv", i))
		f.link(t, ids[i], 10)
	}

	items, err := f.links.ListAtVersion(ctx, f.ds.ID, 10, 10, 0)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, items, qt.HasLen, 5)
	for i := 1; i < len(items); i++ {
		qt.Assert(t, items[i-1].FileID.String() < items[i].FileID.String(), qt.IsTrue)
	}

	page, err := f.links.ListAtVersion(ctx, f.ds.ID, 10, 2, 2)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, page, qt.DeepEquals, items[2:4])
}

func TestAppendDuplicateLink(t *testing.T) {
	f := newLinkFixture(t)
	a := f.newFile(t, "a.csv")
	f.link(t, a, 10)

	tx, err := f.datasets.BeginTx(context.Background())
	qt.Assert(t, err, qt.IsNil)
	defer tx.Rollback()

	err = f.links.Append(context.Background(), tx, &domain.DatasetFileLink{
		ID:             uuid.New(),
		FileID:         a,
		DatasetID:      f.ds.ID,
		DatasetVersion: "v1.0",
		VersionCode:    10,
		BlobVersionID:  "other",
		Status:         domain.StatusActive,
		CreatedBy:      "alice",
		CreatedAt:      f.now,
	})
	qt.Assert(t, err, qt.Equals, ErrDuplicate)
}
