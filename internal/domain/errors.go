package domain

import (
	"errors"

	"github.com/serum-errors/go-serum"
)

const (
	CodeValidation       = "datasethub-error-validation"
	CodeStoreUnavailable = "datasethub-error-store-unavailable"
	CodeDuplicateVersion = "datasethub-error-duplicate-version"
	CodeDuplicateLedger  = "datasethub-error-duplicate-ledger"
	CodeDuplicateName    = "datasethub-error-duplicate-name"
	CodeNotFound         = "datasethub-error-not-found"
	CodeUnauthorized     = "datasethub-error-unauthorized"
)

// ErrorValidation is returned when a request is rejected before any I/O happens.
//
// Errors:
//
//   - datasethub-error-validation --
func ErrorValidation(message string, deets ...[2]string) error {
	opts := make([]serum.WithConstruction, 0, len(deets)+1)
	for _, d := range deets {
		opts = append(opts, serum.WithDetail(d[0], d[1]))
	}
	opts = append(opts, serum.WithMessageLiteral(message))
	return serum.Error(CodeValidation, opts...)
}

// ErrorStoreUnavailable wraps a failure of the blob, relational or document store.
// The caller may retry the whole operation.
//
// Errors:
//
//   - datasethub-error-store-unavailable --
func ErrorStoreUnavailable(step string, cause error, deets ...[2]string) error {
	result := serum.Errorf(CodeStoreUnavailable, "store unavailable during %s: %w", step, cause)
	addDetails(result, append([][2]string{{"step", step}}, deets...))
	return result
}

// ErrorDuplicateVersion is returned when a ledger already holds the label being appended.
//
// Errors:
//
//   - datasethub-error-duplicate-version --
func ErrorDuplicateVersion(datasetID, label string) error {
	return serum.Error(CodeDuplicateVersion,
		serum.WithMessageTemplate("dataset {{datasetID}} already has version {{version}}"),
		serum.WithDetail("datasetID", datasetID),
		serum.WithDetail("version", label),
	)
}

// ErrorDuplicateLedger is returned when a ledger is created twice for one dataset.
//
// Errors:
//
//   - datasethub-error-duplicate-ledger --
func ErrorDuplicateLedger(datasetID string) error {
	return serum.Error(CodeDuplicateLedger,
		serum.WithMessageTemplate("version ledger for dataset {{datasetID}} already exists"),
		serum.WithDetail("datasetID", datasetID),
	)
}

// ErrorDuplicateName is returned when an active dataset with the same name exists in the project.
//
// Errors:
//
//   - datasethub-error-duplicate-name --
func ErrorDuplicateName(projectID, name string) error {
	return serum.Error(CodeDuplicateName,
		serum.WithMessageTemplate("dataset named {{name}} already exists in project {{projectID}}"),
		serum.WithDetail("projectID", projectID),
		serum.WithDetail("name", name),
	)
}

// ErrorNotFound is returned for unknown or inactive datasets and files.
//
// Errors:
//
//   - datasethub-error-not-found --
func ErrorNotFound(kind, id string) error {
	return serum.Error(CodeNotFound,
		serum.WithMessageTemplate("{{kind}} {{id}} not found"),
		serum.WithDetail("kind", kind),
		serum.WithDetail("id", id),
	)
}

// ErrorUnauthorized is returned when the caller cannot be identified.
//
// Errors:
//
//   - datasethub-error-unauthorized --
func ErrorUnauthorized(cause error) error {
	return serum.Errorf(CodeUnauthorized, "unauthorized: %w", cause)
}

// Code возвращает код ошибки с учетом обертывания через %w. Для ошибок без кода - пустая строка.
func Code(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}

func addDetails(err error, details [][2]string) {
	s := err.(*serum.ErrorValue)
	s.Data.Details = append(s.Data.Details, details...)
}
