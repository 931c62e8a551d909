package handler

import (
	"encoding/json"
	"net/http"

	"datasethub/internal/domain"
	"datasethub/internal/logutils"
)

// ErrorResponse - тело ответа с ошибкой
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusFor сопоставляет код ошибки и HTTP статус
func StatusFor(err error) int {
	switch domain.Code(err) {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeDuplicateVersion, domain.CodeDuplicateLedger, domain.CodeDuplicateName:
		return http.StatusConflict
	case domain.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logutils.Component("http").WithError(err).Error("Error encoding response")
	}
}

// WriteError пишет ошибку сервиса как JSON со статусом по ее коду
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	code := domain.Code(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		code = "datasethub-error-internal"
		message = "internal server error"
	}

	entry := logutils.Component("http").WithError(err).WithFields(logutils.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
