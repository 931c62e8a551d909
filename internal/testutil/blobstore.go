package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"datasethub/internal/service/s3"
)

var ErrInjected = errors.New("injected blob store failure")

type fakeVersion struct {
	id          string
	data        []byte
	contentType string
}

// BlobStore - версионируемое хранилище объектов в памяти
type BlobStore struct {
	mu       sync.Mutex
	objects  map[string][]fakeVersion
	puts     int
	failAt   int
	nextID   int
	PutDelay time.Duration
}

func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string][]fakeVersion)}
}

// FailOnPut заставляет n-й (с 1) вызов PutObject вернуть ошибку
func (b *BlobStore) FailOnPut(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAt = n
}

func (b *BlobStore) PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if b.PutDelay > 0 {
		select {
		case <-time.After(b.PutDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.puts++
	if b.failAt > 0 && b.puts == b.failAt {
		return "", ErrInjected
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.nextID++
	id := fmt.Sprintf("ver-%04d", b.nextID)
	b.objects[key] = append(b.objects[key], fakeVersion{
		id:          id,
		data:        append([]byte(nil), data...),
		contentType: contentType,
	})
	return id, nil
}

func (b *BlobStore) GetObject(_ context.Context, key, versionID string) (s3.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.find(key, versionID)
	if !ok {
		return nil, s3.ErrObjectNotFound
	}
	return s3.NewObject(io.NopCloser(bytes.NewReader(v.data)), int64(len(v.data)), v.contentType, v.id), nil
}

func (b *BlobStore) PresignURL(_ context.Context, key, versionID string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s?versionId=%s&ttl=%d", key, versionID, int(ttl.Seconds())), nil
}

// Versions возвращает число сохраненных версий объекта
func (b *BlobStore) Versions(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects[key])
}

// ObjectCount возвращает общее число версий всех объектов
func (b *BlobStore) ObjectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, v := range b.objects {
		n += len(v)
	}
	return n
}

func (b *BlobStore) find(key, versionID string) (fakeVersion, bool) {
	versions := b.objects[key]
	if len(versions) == 0 {
		return fakeVersion{}, false
	}
	if versionID == "" {
		return versions[len(versions)-1], true
	}
	for _, v := range versions {
		if v.id == versionID {
			return v, true
		}
	}
	return fakeVersion{}, false
}
