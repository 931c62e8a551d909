package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// DatasetLocker - взаимное исключение писателей одного датасета внутри процесса.
// Блокировка держится от начала транзакции до ее завершения.
type DatasetLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func NewDatasetLocker() *DatasetLocker {
	return &DatasetLocker{locks: make(map[uuid.UUID]*lockEntry)}
}

// Lock ждет блокировку датасета или отмену ctx.
// Возвращенная функция снимает блокировку; повторный вызов ничего не делает.
func (l *DatasetLocker) Lock(ctx context.Context, datasetID uuid.UUID) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[datasetID]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.locks[datasetID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(datasetID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(datasetID, e)
		})
	}, nil
}

func (l *DatasetLocker) release(datasetID uuid.UUID, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, datasetID)
	}
}

// held возвращает число датасетов с активными блокировками или ожидающими
func (l *DatasetLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
