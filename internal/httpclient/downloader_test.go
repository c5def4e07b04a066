package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestDownloadFileWritesContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("mod archive bytes"))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	client := NewRLClient(rate.NewLimiter(rate.Inf, 0))

	written, err := DownloadFile(context.Background(), server.URL, "/mods/new.zip", client, fs)
	require.NoError(t, err)
	assert.Equal(t, int64(len("mod archive bytes")), written)

	data, err := afero.ReadFile(fs, "/mods/new.zip")
	require.NoError(t, err)
	assert.Equal(t, "mod archive bytes", string(data))
}

func TestDownloadFileRejectsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	client := NewRLClient(rate.NewLimiter(rate.Inf, 0))

	_, err := DownloadFile(context.Background(), server.URL, "/mods/new.zip", client, fs)
	require.Error(t, err)

	var statusErr *DownloadStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	exists, err := afero.Exists(fs, "/mods/new.zip")
	require.NoError(t, err)
	assert.False(t, exists, "no file should be created on a failed download")
}

func TestDownloadFileRespectsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs := afero.NewMemMapFs()
	client := NewRLClient(rate.NewLimiter(rate.Inf, 0))

	_, err := DownloadFile(ctx, server.URL, "/mods/new.zip", client, fs)
	assert.Error(t, err)
}
