package walrus

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadNewlyCreated(t *testing.T) {
	t.Parallel()
	var gotMethod, gotPath, gotQuery string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"newlyCreated":{"blobObject":{"blobId":"blob-123"}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL)
	ref, err := c.Upload(context.Background(), []byte("payload"), 3, "0xdead")
	require.NoError(t, err)

	assert.Equal(t, BlobRef("blob-123"), ref)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/v1/blobs", gotPath)
	assert.Equal(t, "epochs=3&send_object_to=0xdead", gotQuery)
	assert.Equal(t, []byte("payload"), gotBody)
}

func TestUploadAlreadyCertified(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotContains(t, r.URL.RawQuery, "send_object_to")
		w.Write([]byte(`{"alreadyCertified":{"blobId":"blob-existing"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL)
	ref, err := c.Upload(context.Background(), []byte("x"), 1, "")
	require.NoError(t, err)
	assert.Equal(t, BlobRef("blob-existing"), ref)
}

func TestUploadStorageErrorCarriesBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInsufficientStorage)
		w.Write([]byte("no space in current epoch"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL)
	_, err := c.Upload(context.Background(), []byte("x"), 1, "")

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInsufficientStorage, se.StatusCode)
	assert.Equal(t, "no space in current epoch", se.Body)
}

func TestUploadTransportError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, srv.URL)
	_, err := c.Upload(context.Background(), []byte("x"), 1, "")

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "upload", te.Op)
}

func TestDownloadBypassesCaches(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/blobs/blob-9", r.URL.Path)
		assert.Equal(t, "no-store", r.Header.Get("Cache-Control"))
		assert.Equal(t, "no-cache", r.Header.Get("Pragma"))
		w.Write([]byte{0x01, 0x02, 0x03})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL)
	data, err := c.Download(context.Background(), "blob-9")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, data)
}

func TestDownloadNotFound(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blob not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL)
	_, err := c.Download(context.Background(), "missing")

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestDownloadEmptyRef(t *testing.T) {
	t.Parallel()
	c := NewClient("", "")
	_, err := c.Download(context.Background(), "")
	assert.Error(t, err)
}
