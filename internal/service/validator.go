package service

import (
	"fmt"
	"strconv"
	"strings"

	"datasethub/internal/config"
	"datasethub/internal/domain"
)

// preparedFile - файл пакета после проверки, с безопасным именем
type preparedFile struct {
	domain.FileUpload
	name string
	ext  string
}

// BatchValidator проверяет пакет целиком до любого ввода-вывода
type BatchValidator struct {
	maxFileSize  int64
	maxBatchSize int64
	allowed      map[string]bool
}

func NewBatchValidator(cfg config.UploadConfig) *BatchValidator {
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &BatchValidator{
		maxFileSize:  cfg.MaxFileSize,
		maxBatchSize: cfg.MaxBatchSize,
		allowed:      allowed,
	}
}

// Validate возвращает подготовленные файлы в исходном порядке или ошибку валидации
// с номером и именем первого неподходящего файла
func (v *BatchValidator) Validate(files []domain.FileUpload) ([]preparedFile, error) {
	if len(files) == 0 {
		return nil, domain.ErrorValidation("no files in upload batch")
	}

	prepared := make([]preparedFile, 0, len(files))
	seen := make(map[string]int, len(files))
	var total int64

	for i, f := range files {
		idx := strconv.Itoa(i + 1)
		if strings.TrimSpace(f.Name) == "" {
			return nil, domain.ErrorValidation("file name is empty", [2]string{"index", idx})
		}

		name := domain.SanitizeFilename(f.Name)
		if name == "" {
			return nil, domain.ErrorValidation("file name has no usable characters",
				[2]string{"index", idx}, [2]string{"file", f.Name})
		}

		ext := domain.Extension(name)
		if !v.allowed[ext] {
			return nil, domain.ErrorValidation(fmt.Sprintf("file type %q is not allowed", ext),
				[2]string{"index", idx}, [2]string{"file", f.Name})
		}

		if f.Size() > v.maxFileSize {
			return nil, domain.ErrorValidation(
				fmt.Sprintf("file is larger than %d bytes", v.maxFileSize),
				[2]string{"index", idx}, [2]string{"file", f.Name})
		}

		if prev, ok := seen[name]; ok {
			return nil, domain.ErrorValidation(
				fmt.Sprintf("file name %q repeats file #%d", name, prev),
				[2]string{"index", idx}, [2]string{"file", f.Name})
		}
		seen[name] = i + 1

		total += f.Size()
		if total > v.maxBatchSize {
			return nil, domain.ErrorValidation(
				fmt.Sprintf("upload batch is larger than %d bytes", v.maxBatchSize),
				[2]string{"index", idx})
		}

		prepared = append(prepared, preparedFile{FileUpload: f, name: name, ext: ext})
	}

	return prepared, nil
}

// ValidateMetadata проверяет поля нового датасета
func (v *BatchValidator) ValidateMetadata(meta domain.DatasetMetadata) error {
	if strings.TrimSpace(meta.ProjectID) == "" {
		return domain.ErrorValidation("project id is required")
	}
	if strings.TrimSpace(meta.Name) == "" {
		return domain.ErrorValidation("dataset name is required")
	}
	if len(meta.Name) > 255 {
		return domain.ErrorValidation("dataset name is longer than 255 bytes")
	}
	return nil
}
