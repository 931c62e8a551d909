package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := newClient(&Config{
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "datasets-test",
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		UsePathStyle:    true,
	})
	qt.Assert(t, err, qt.IsNil)
	return c
}

func TestPutObjectReturnsVersion(t *testing.T) {
	var gotPath, gotBody, gotType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotPath, gotBody, gotType = r.URL.Path, string(body), r.Header.Get("Content-Type")
		w.Header().Set("x-amz-version-id", "3HL4kqtJlcpXroDTDmJ")
		w.WriteHeader(http.StatusOK)
	})

	versionID, err := c.PutObject(context.Background(), "datasets/a.csv", []byte("a,b"), "text/csv")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, versionID, qt.Equals, "3HL4kqtJlcpXroDTDmJ")
	qt.Assert(t, gotPath, qt.Equals, "/datasets-test/datasets/a.csv")
	qt.Assert(t, gotBody, qt.Equals, "a,b")
	qt.Assert(t, gotType, qt.Equals, "text/csv")
}

func TestPutObjectWithoutVersioning(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	})

	_, err := c.PutObject(context.Background(), "datasets/a.csv", []byte("a,b"), "")
	qt.Assert(t, errors.Is(err, ErrVersioningDisabled), qt.IsTrue)
}

func TestPresignURLPinsVersion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("presign must not call the server, got %s %s", r.Method, r.URL)
	})

	url, err := c.PresignURL(context.Background(), "datasets/a.csv", "v-42", 10*time.Minute)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, strings.Contains(url, "/datasets-test/datasets/a.csv"), qt.IsTrue, qt.Commentf("url %s", url))
	qt.Assert(t, strings.Contains(url, "versionId=v-42"), qt.IsTrue, qt.Commentf("url %s", url))
	qt.Assert(t, strings.Contains(url, "X-Amz-Expires=600"), qt.IsTrue, qt.Commentf("url %s", url))
	qt.Assert(t, strings.Contains(url, "X-Amz-Signature="), qt.IsTrue, qt.Commentf("url %s", url))
}

func TestGetObjectNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		qt.Check(t, r.URL.Query().Get("versionId"), qt.Equals, "missing")
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchVersion</Code><Message>gone</Message></Error>`)
	})

	_, err := c.GetObject(context.Background(), "datasets/a.csv", "missing")
	qt.Assert(t, errors.Is(err, ErrObjectNotFound), qt.IsTrue, qt.Commentf("err %v", err))
}
