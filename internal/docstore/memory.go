package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"datasethub/internal/domain"
)

type memoryFile struct {
	doc      fileDoc
	versions []fileVersionDoc
}

type memoryLedger struct {
	doc     ledgerDoc
	entries []ledgerEntryDoc
}

// MemoryIndex - индекс документов в памяти процесса. Используется без Redis и в тестах.
type MemoryIndex struct {
	mu      sync.RWMutex
	files   map[uuid.UUID]*memoryFile
	ledgers map[uuid.UUID]*memoryLedger
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		files:   make(map[uuid.UUID]*memoryFile),
		ledgers: make(map[uuid.UUID]*memoryLedger),
	}
}

func (x *MemoryIndex) PutFile(_ context.Context, file *domain.FileRecord) error {
	versions := make([]fileVersionDoc, 0, len(file.Versions))
	for _, v := range file.Versions {
		versions = append(versions, toFileVersionDoc(v))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.files[file.ID] = &memoryFile{doc: toFileDoc(file), versions: versions}
	return nil
}

func (x *MemoryIndex) AppendFileVersion(_ context.Context, head *domain.FileRecord, v domain.FileVersionEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	f, ok := x.files[head.ID]
	if !ok {
		return ErrMiss
	}
	f.doc = toFileDoc(head)
	f.versions = append(f.versions, toFileVersionDoc(v))
	return nil
}

func (x *MemoryIndex) GetFile(_ context.Context, fileID uuid.UUID) (*domain.FileRecord, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	f, ok := x.files[fileID]
	if !ok {
		return nil, ErrMiss
	}
	return f.doc.record(f.versions), nil
}

func (x *MemoryIndex) PutLedger(_ context.Context, l *domain.VersionLedger) error {
	entries := make([]ledgerEntryDoc, 0, len(l.Entries))
	for _, e := range l.Entries {
		entries = append(entries, toLedgerEntryDoc(e))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.ledgers[l.DatasetID] = &memoryLedger{doc: toLedgerDoc(l), entries: entries}
	return nil
}

func (x *MemoryIndex) AppendLedgerVersion(_ context.Context, head *domain.VersionLedger, e domain.VersionEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	l, ok := x.ledgers[head.DatasetID]
	if !ok {
		return ErrMiss
	}
	l.doc = toLedgerDoc(head)
	l.entries = append(l.entries, toLedgerEntryDoc(e))
	return nil
}

func (x *MemoryIndex) GetLedger(_ context.Context, datasetID uuid.UUID) (*domain.VersionLedger, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	l, ok := x.ledgers[datasetID]
	if !ok {
		return nil, ErrMiss
	}
	return l.doc.ledger(l.entries), nil
}

func (x *MemoryIndex) InvalidateFile(_ context.Context, fileID uuid.UUID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.files, fileID)
	return nil
}

func (x *MemoryIndex) InvalidateLedger(_ context.Context, datasetID uuid.UUID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.ledgers, datasetID)
	return nil
}
