package preview

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"datasethub/internal/auth"
	"datasethub/internal/logutils"
	"datasethub/internal/service/s3"
)

// ThumbnailSource - откуда брать сохраненные миниатюры
type ThumbnailSource interface {
	GetThumbnail(ctx context.Context, fileID uuid.UUID) (s3.Object, error)
}

type Handler struct {
	source   ThumbnailSource
	verifier *auth.Verifier
	onError  func(w http.ResponseWriter, r *http.Request, err error)
}

// NewHandler создает хендлер миниатюр. onError пишет ответ об ошибке сервиса.
func NewHandler(source ThumbnailSource, verifier *auth.Verifier, onError func(w http.ResponseWriter, r *http.Request, err error)) *Handler {
	return &Handler{
		source:   source,
		verifier: verifier,
		onError:  onError,
	}
}

func (h *Handler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	if _, err := h.verifier.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	fileID, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		http.Error(w, "Invalid file ID", http.StatusBadRequest)
		return
	}

	obj, err := h.source.GetThumbnail(r.Context(), fileID)
	if err != nil {
		h.onError(w, r, err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	if obj.ContentLength() > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength(), 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400") // кешируем на 24 часа
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj); err != nil {
		logutils.Component("preview").WithError(err).WithField("file_id", fileID).Warn("Failed to stream thumbnail")
	}
}
