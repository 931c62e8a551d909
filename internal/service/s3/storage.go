// storage.go
package s3

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrVersioningDisabled = errors.New("bucket versioning is disabled")
)

// Object - версия объекта, открытая на чтение
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
	VersionID() string
}

type object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
	versionID     string
}

// NewObject оборачивает поток в Object
func NewObject(body io.ReadCloser, length int64, contentType, versionID string) Object {
	return &object{
		ReadCloser:    body,
		contentLength: length,
		contentType:   contentType,
		versionID:     versionID,
	}
}

func (o *object) ContentLength() int64 {
	return o.contentLength
}

func (o *object) ContentType() string {
	return o.contentType
}

func (o *object) VersionID() string {
	return o.versionID
}

// Storage определяет интерфейс версионируемого хранилища объектов.
// Каждая запись создает новую версию и возвращает ее идентификатор.
type Storage interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Пустой versionID означает последнюю версию
	GetObject(ctx context.Context, key, versionID string) (Object, error)
	PresignURL(ctx context.Context, key, versionID string, ttl time.Duration) (string, error)
}
