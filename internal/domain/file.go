package domain

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileIdentity - логическая идентичность файла в каталоге.
// Path - ключ объекта в хранилище, Name - отображаемое имя.
type FileIdentity struct {
	Name string
	Path string
}

// FileRecord - карточка файла с историей версий в хранилище объектов
type FileRecord struct {
	ID               uuid.UUID          `json:"id" db:"id"`
	Name             string             `json:"name" db:"name"`
	Path             string             `json:"path" db:"path"`
	Extension        string             `json:"extension" db:"extension"`
	SizeBytes        int64              `json:"size_bytes" db:"size_bytes"`
	CurrentVersionID string             `json:"current_version_id" db:"current_version_id"`
	ThumbnailPath    *string            `json:"thumbnail_path,omitempty" db:"thumbnail_path"`
	Status           int                `json:"status" db:"status"`
	CreatedBy        string             `json:"created_by" db:"created_by"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`
	Versions         []FileVersionEntry `json:"versions" db:"-"`
}

// FileVersionEntry - одна версия объекта в хранилище
type FileVersionEntry struct {
	FileID        uuid.UUID `json:"-" db:"file_id"`
	BlobVersionID string    `json:"version_id" db:"blob_version_id"`
	SizeBytes     int64     `json:"size_bytes" db:"size_bytes"`
	Checksum      string    `json:"checksum" db:"checksum"`
	CreatedBy     string    `json:"created_by" db:"created_by"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Identity возвращает ключ идентичности записи
func (f *FileRecord) Identity() FileIdentity {
	return FileIdentity{Name: f.Name, Path: f.Path}
}

// FileUpload - входящий файл пакета, полностью в памяти
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

func (u FileUpload) Size() int64 {
	return int64(len(u.Data))
}

// Extension возвращает расширение в нижнем регистре без точки
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "bmp": true, "webp": true,
}

// IsImage - для таких файлов строится миниатюра
func IsImage(ext string) bool {
	return imageExtensions[ext]
}

// SanitizeFilename оставляет только безопасные символы имени файла:
// буквы и цифры ASCII, точку, дефис и подчеркивание. Пробелы заменяются на "_".
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteByte('_')
		}
	}

	return strings.Trim(b.String(), "._")
}

// BlobKey - ключ объекта для файла датасета: datasets/{id}/{file}.
// Ключ зависит только от id, поэтому переименование датасета не меняет идентичность файлов.
func BlobKey(ds *Dataset, filename string) string {
	return path.Join("datasets", ds.ID.String(), filename)
}

// ThumbnailKey - ключ миниатюры рядом с файлом
func ThumbnailKey(ds *Dataset, filename string) string {
	return path.Join("datasets", ds.ID.String(), "thumbnails", filename+".jpg")
}
