package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"datasethub/internal/auth"
	"datasethub/internal/config"
	"datasethub/internal/domain"
	"datasethub/internal/service"
)

// multipartOverhead - запас на заголовки частей и текстовые поля формы
const multipartOverhead = 1 << 20

type DatasetHandler struct {
	datasets  *service.DatasetService
	verifier  *auth.Verifier
	maxBody   int64
	maxMemory int64
}

func NewDatasetHandler(datasets *service.DatasetService, verifier *auth.Verifier, upload config.UploadConfig) *DatasetHandler {
	maxMemory := upload.MaxFileSize
	if maxMemory <= 0 || maxMemory > 32<<20 {
		maxMemory = 32 << 20
	}
	return &DatasetHandler{
		datasets:  datasets,
		verifier:  verifier,
		maxBody:   upload.MaxBatchSize + multipartOverhead,
		maxMemory: maxMemory,
	}
}

// Routes регистрирует маршруты датасетов проекта и карточек файлов
func (h *DatasetHandler) Routes(r chi.Router) {
	r.Route("/projects/{projectID}/datasets", func(r chi.Router) {
		r.Post("/", h.CreateDataset)
		r.Get("/", h.ListDatasets)

		r.Route("/{datasetID}", func(r chi.Router) {
			r.Put("/", h.UpdateDataset)
			r.Post("/versions", h.AddVersion)
			r.Get("/versions", h.GetVersionHistory)
			r.Get("/changes", h.ListChanges)
			r.Get("/files", h.ListFiles)
			r.Get("/files/urls", h.ListFileURLs)
		})
	})
	r.Get("/files/{fileID}", h.GetFile)
}

func (h *DatasetHandler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	files, err := h.readFiles(w, r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	meta := domain.DatasetMetadata{
		ProjectID:   chi.URLParam(r, "projectID"),
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
	}

	res, err := h.datasets.CreateDataset(r.Context(), meta, files, userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *DatasetHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	page, err := parsePage(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	q := r.URL.Query()
	res, err := h.datasets.ListDatasets(r.Context(), domain.DatasetFilter{
		ProjectID: chi.URLParam(r, "projectID"),
		Keyword:   q.Get("keyword"),
		CreatedBy: q.Get("created_by"),
		Page:      page,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DatasetHandler) UpdateDataset(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	datasetID, err := uuidParam(r, "datasetID")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var patch domain.DatasetPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		WriteError(w, r, domain.ErrorValidation("invalid request body: "+err.Error()))
		return
	}

	ds, err := h.datasets.UpdateDataset(r.Context(), chi.URLParam(r, "projectID"), datasetID, patch)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *DatasetHandler) AddVersion(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	datasetID, err := uuidParam(r, "datasetID")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	files, err := h.readFiles(w, r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	res, err := h.datasets.AddVersion(r.Context(), chi.URLParam(r, "projectID"), datasetID, files, userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *DatasetHandler) GetVersionHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	datasetID, err := uuidParam(r, "datasetID")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	res, err := h.datasets.GetVersionHistory(r.Context(), chi.URLParam(r, "projectID"), datasetID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DatasetHandler) ListChanges(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	datasetID, err := uuidParam(r, "datasetID")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	changes, err := h.datasets.ListChanges(r.Context(), chi.URLParam(r, "projectID"), datasetID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (h *DatasetHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	h.listSnapshot(w, r, h.datasets.ListFilesAtVersion)
}

func (h *DatasetHandler) ListFileURLs(w http.ResponseWriter, r *http.Request) {
	h.listSnapshot(w, r, h.datasets.ListFileURLsAtVersion)
}

type snapshotFunc func(ctx context.Context, projectID string, datasetID uuid.UUID, version string, page domain.Page) (*domain.SnapshotPage, error)

// listSnapshot отдает состав датасета на версии из параметра version; без него - на текущей
func (h *DatasetHandler) listSnapshot(w http.ResponseWriter, r *http.Request, list snapshotFunc) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	datasetID, err := uuidParam(r, "datasetID")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	res, err := list(r.Context(), chi.URLParam(r, "projectID"), datasetID, r.URL.Query().Get("version"), page)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DatasetHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	fileID, err := uuidParam(r, "fileID")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	file, err := h.datasets.GetFile(r.Context(), fileID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (h *DatasetHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := h.verifier.VerifyToken(r)
	if err != nil {
		WriteError(w, r, domain.ErrorUnauthorized(err))
		return "", false
	}
	return userID, true
}

// readFiles читает все части "files" формы в память
func (h *DatasetHandler) readFiles(w http.ResponseWriter, r *http.Request) ([]domain.FileUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.ErrorValidation(fmt.Sprintf("request body is larger than %d bytes", tooLarge.Limit))
		}
		return nil, domain.ErrorValidation("invalid multipart form: " + err.Error())
	}

	headers := r.MultipartForm.File["files"]
	files := make([]domain.FileUpload, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, domain.ErrorValidation("failed to read file: "+err.Error(), [2]string{"file", fh.Filename})
		}
		files = append(files, domain.FileUpload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.ErrorValidation(fmt.Sprintf("invalid %s", name), [2]string{name, raw})
	}
	return id, nil
}

func parsePage(r *http.Request) (domain.Page, error) {
	var page domain.Page
	q := r.URL.Query()
	for _, p := range []struct {
		key string
		dst *int
	}{{"page", &page.Number}, {"size", &page.Size}} {
		raw := strings.TrimSpace(q.Get(p.key))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return page, domain.ErrorValidation(fmt.Sprintf("%s must be an integer", p.key), [2]string{p.key, raw})
		}
		*p.dst = n
	}
	return page, nil
}
