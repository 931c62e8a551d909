package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/go-chi/chi/v5"

	"datasethub/internal/auth"
	"datasethub/internal/config"
	"datasethub/internal/docstore"
	"datasethub/internal/domain"
	"datasethub/internal/repository"
	"datasethub/internal/service"
	"datasethub/internal/testutil"
)

var testAuth = &auth.Config{Secret: "test-secret", Issuer: "datasethub-test"}

type testServer struct {
	*httptest.Server
	blobs *testutil.BlobStore
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	limits := config.UploadConfig{
		MaxFileSize:       1024,
		MaxBatchSize:      4096,
		AllowedExtensions: config.DefaultAllowedExtensions,
		Concurrency:       1,
	}

	db := testutil.NewDB(t)
	blobs := testutil.NewBlobStore()
	index := docstore.NewMemoryIndex()

	datasets := repository.NewDatasetRepository(db)
	links := repository.NewLinkRepository(db)
	ledgers := service.NewLedgerService(repository.NewLedgerRepository(db), index)
	catalog := service.NewFileCatalog(repository.NewFileRepository(db), index)
	validator := service.NewBatchValidator(limits)
	uploads := service.NewUploadOrchestrator(datasets, links, ledgers, catalog, blobs,
		service.NewDatasetLocker(), validator, service.WithConcurrency(limits.Concurrency))
	svc := service.NewDatasetService(datasets, ledgers, catalog, service.NewSnapshotService(links),
		uploads, validator, blobs, time.Minute)

	r := chi.NewRouter()
	r.Route("/v1", NewDatasetHandler(svc, auth.NewVerifier(testAuth), limits).Routes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	token, err := auth.IssueToken(testAuth, "alice", time.Hour)
	qt.Assert(t, err, qt.IsNil)

	return &testServer{Server: srv, blobs: blobs, token: token}
}

type upload struct {
	name string
	data string
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	qt.Assert(t, err, qt.IsNil)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := http.DefaultClient.Do(req)
	qt.Assert(t, err, qt.IsNil)
	defer resp.Body.Close()

	if out != nil {
		qt.Assert(t, json.NewDecoder(resp.Body).Decode(out), qt.IsNil)
	}
	return resp.StatusCode
}

func (s *testServer) postFiles(t *testing.T, path string, fields map[string]string, files []upload, out any) int {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		qt.Assert(t, mw.WriteField(k, v), qt.IsNil)
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.name)
		qt.Assert(t, err, qt.IsNil)
		_, err = part.Write([]byte(f.data))
		qt.Assert(t, err, qt.IsNil)
	}
	qt.Assert(t, mw.Close(), qt.IsNil)
	return s.do(t, http.MethodPost, path, &buf, mw.FormDataContentType(), out)
}

func (s *testServer) createDataset(t *testing.T, name string, files ...upload) domain.CreateDatasetResult {
	t.Helper()
	var res domain.CreateDatasetResult
	status := s.postFiles(t, "/v1/projects/p1/datasets", map[string]string{"name": name, "description": "d"}, files, &res)
	qt.Assert(t, status, qt.Equals, http.StatusCreated)
	return res
}

func TestDatasetRoundTrip(t *testing.T) {
	s := newTestServer(t)

	created := s.createDataset(t, "iris", upload{"a.csv", "1"}, upload{"b.csv", "2"})
	qt.Assert(t, created.FilesCount, qt.Equals, 2)
	qt.Assert(t, created.Dataset.CurrentVersion, qt.Equals, "v1.0")
	qt.Assert(t, created.Dataset.CreatedBy, qt.Equals, "alice")
	base := "/v1/projects/p1/datasets/" + created.Dataset.ID.String()

	var added domain.AddVersionResult
	status := s.postFiles(t, base+"/versions", nil, []upload{{"a.csv", "11"}}, &added)
	qt.Assert(t, status, qt.Equals, http.StatusCreated)
	qt.Assert(t, added.NewVersion, qt.Equals, "v1.1")

	var history domain.VersionHistory
	status = s.do(t, http.MethodGet, base+"/versions", nil, "", &history)
	qt.Assert(t, status, qt.Equals, http.StatusOK)
	qt.Assert(t, history.TotalVersions, qt.Equals, 2)
	qt.Assert(t, history.Entries[0].Label, qt.Equals, "v1.1")

	var changes []domain.DatasetFileLink
	status = s.do(t, http.MethodGet, base+"/changes", nil, "", &changes)
	qt.Assert(t, status, qt.Equals, http.StatusOK)
	qt.Assert(t, changes, qt.HasLen, 3)
	qt.Assert(t, changes[0].DatasetVersion, qt.Equals, "v1.0")
	qt.Assert(t, changes[2].DatasetVersion, qt.Equals, "v1.1")
	qt.Assert(t, changes[2].CreatedBy, qt.Equals, "alice")

	var snap domain.SnapshotPage
	status = s.do(t, http.MethodGet, base+"/files?version=v1.0&page=1&size=1", nil, "", &snap)
	qt.Assert(t, status, qt.Equals, http.StatusOK)
	qt.Assert(t, snap.Total, qt.Equals, int64(2))
	qt.Assert(t, snap.Pages, qt.Equals, 2)
	qt.Assert(t, snap.Items, qt.HasLen, 1)

	status = s.do(t, http.MethodGet, base+"/files/urls", nil, "", &snap)
	qt.Assert(t, status, qt.Equals, http.StatusOK)
	qt.Assert(t, snap.Version, qt.Equals, "v1.1")
	qt.Assert(t, snap.Items, qt.HasLen, 2)
	for _, item := range snap.Items {
		qt.Assert(t, strings.HasPrefix(item.URL, "https://blobs.test/"), qt.IsTrue)
	}

	var file domain.FileRecord
	status = s.do(t, http.MethodGet, "/v1/files/"+snap.Items[0].FileID.String(), nil, "", &file)
	qt.Assert(t, status, qt.Equals, http.StatusOK)
	qt.Assert(t, file.ID, qt.Equals, snap.Items[0].FileID)

	var list domain.DatasetPage
	status = s.do(t, http.MethodGet, "/v1/projects/p1/datasets?keyword=ir", nil, "", &list)
	qt.Assert(t, status, qt.Equals, http.StatusOK)
	qt.Assert(t, list.Items, qt.HasLen, 1)
	qt.Assert(t, list.Items[0].FilesCount, qt.Equals, int64(2))

	var updated domain.Dataset
	status = s.do(t, http.MethodPut, base, strings.NewReader(`{"description":"new"}`), "application/json", &updated)
	qt.Assert(t, status, qt.Equals, http.StatusOK)
	qt.Assert(t, updated.Description, qt.Equals, "new")
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	created := s.createDataset(t, "taken", upload{"a.csv", "1"})
	base := "/v1/projects/p1/datasets/" + created.Dataset.ID.String()

	var e ErrorResponse

	status := s.postFiles(t, base+"/versions", nil, []upload{{"a.exe", "1"}}, &e)
	qt.Assert(t, status, qt.Equals, http.StatusBadRequest)
	qt.Assert(t, e.Code, qt.Equals, domain.CodeValidation)

	status = s.postFiles(t, "/v1/projects/p1/datasets", map[string]string{"name": "taken"}, []upload{{"b.csv", "1"}}, &e)
	qt.Assert(t, status, qt.Equals, http.StatusConflict)
	qt.Assert(t, e.Code, qt.Equals, domain.CodeDuplicateName)

	status = s.do(t, http.MethodGet, "/v1/projects/p2/datasets/"+created.Dataset.ID.String()+"/versions", nil, "", &e)
	qt.Assert(t, status, qt.Equals, http.StatusNotFound)

	status = s.do(t, http.MethodGet, "/v1/projects/p1/datasets/not-a-uuid/versions", nil, "", &e)
	qt.Assert(t, status, qt.Equals, http.StatusBadRequest)

	status = s.do(t, http.MethodGet, base+"/files?size=ten", nil, "", &e)
	qt.Assert(t, status, qt.Equals, http.StatusBadRequest)

	status = s.do(t, http.MethodGet, base+"/files?version=1.2.3", nil, "", &e)
	qt.Assert(t, status, qt.Equals, http.StatusBadRequest)

	s.blobs.FailOnPut(2)
	status = s.postFiles(t, base+"/versions", nil, []upload{{"c.csv", "1"}}, &e)
	qt.Assert(t, status, qt.Equals, http.StatusServiceUnavailable)
	qt.Assert(t, e.Code, qt.Equals, domain.CodeStoreUnavailable)

	big := strings.Repeat("x", 4096)
	var files []upload
	for i := 0; i < 3; i++ {
		files = append(files, upload{fmt.Sprintf("f%d.csv", i), big})
	}
	status = s.postFiles(t, base+"/versions", nil, files, &e)
	qt.Assert(t, status, qt.Equals, http.StatusBadRequest)
}

func TestUnauthorized(t *testing.T) {
	s := newTestServer(t)

	for _, token := range []string{"", "garbage"} {
		s.token = token
		var e ErrorResponse
		status := s.do(t, http.MethodGet, "/v1/projects/p1/datasets", nil, "", &e)
		qt.Assert(t, status, qt.Equals, http.StatusUnauthorized)
		qt.Assert(t, e.Code, qt.Equals, domain.CodeUnauthorized)
	}

	other := &auth.Config{Secret: "other-secret", Issuer: testAuth.Issuer}
	token, err := auth.IssueToken(other, "mallory", time.Hour)
	qt.Assert(t, err, qt.IsNil)
	s.token = token
	status := s.do(t, http.MethodGet, "/v1/projects/p1/datasets", nil, "", nil)
	qt.Assert(t, status, qt.Equals, http.StatusUnauthorized)
}

func TestStatusFor(t *testing.T) {
	qt.Assert(t, StatusFor(domain.ErrorDuplicateVersion("d", "v1.1")), qt.Equals, http.StatusConflict)
	qt.Assert(t, StatusFor(domain.ErrorDuplicateLedger("d")), qt.Equals, http.StatusConflict)
	qt.Assert(t, StatusFor(fmt.Errorf("wrapped: %w", domain.ErrorNotFound("file", "x"))), qt.Equals, http.StatusNotFound)
	qt.Assert(t, StatusFor(io.EOF), qt.Equals, http.StatusInternalServerError)

	// истекшее ожидание блокировки датасета
	lockWait := domain.ErrorStoreUnavailable("dataset lock", context.DeadlineExceeded)
	qt.Assert(t, StatusFor(lockWait), qt.Equals, http.StatusServiceUnavailable)
}
