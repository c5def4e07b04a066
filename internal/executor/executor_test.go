package executor

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/laerinok/vs-mods-updater/internal/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doerFunc func(req *http.Request) (*http.Response, error)

func (doer doerFunc) Do(req *http.Request) (*http.Response, error) {
	return doer(req)
}

func respondWith(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func serveByURL(responses map[string]*http.Response) doerFunc {
	return func(req *http.Request) (*http.Response, error) {
		response, ok := responses[req.URL.String()]
		if !ok {
			return respondWith(http.StatusNotFound, ""), nil
		}
		return response, nil
	}
}

func zipArchive(t *testing.T, files map[string]string) string {
	t.Helper()

	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	for name, content := range files {
		entry, err := writer.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buffer.String()
}

func zipTask(name string, downloadURL string) Task {
	filename := strings.ToLower(name) + "-1.0.0.zip"
	return Task{
		Mod: models.InstalledMod{
			Name:     name,
			Filename: filename,
			Type:     models.ZIP,
			Path:     "/Mods/" + filename,
		},
		Update: models.UpdateAvailable{
			Name:        name,
			OldVersion:  "1.0.0",
			NewVersion:  "2.0.0",
			Filename:    filename,
			DownloadURL: downloadURL,
		},
	}
}

func newExecutor(fs afero.Fs, client doerFunc) *Executor {
	return &Executor{
		Fs:         fs,
		Client:     client,
		ModsFolder: "/Mods",
		Workers:    4,
	}
}

func TestExecuteReplacesFileArtifact(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/Mods/foo-1.0.0.zip", []byte("old"), 0644))

	client := serveByURL(map[string]*http.Response{
		"https://mods.example/download?dl=foo-2.0.0.zip": respondWith(http.StatusOK, "new bytes"),
	})

	outcomes := newExecutor(fs, client).Execute(context.Background(), []Task{
		zipTask("Foo", "https://mods.example/download?dl=foo-2.0.0.zip"),
	})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "foo-2.0.0.zip", outcomes[0].NewFilename)
	assert.Equal(t, "/Mods/foo-2.0.0.zip", outcomes[0].Path)

	oldExists, _ := afero.Exists(fs, "/Mods/foo-1.0.0.zip")
	assert.False(t, oldExists)

	installed, err := afero.ReadFile(fs, "/Mods/foo-2.0.0.zip")
	require.NoError(t, err)
	assert.Equal(t, "new bytes", string(installed))
}

func TestExecuteFailedDownloadLeavesOldArtifact(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/Mods/foo-1.0.0.zip", []byte("old"), 0644))

	client := serveByURL(map[string]*http.Response{
		"https://mods.example/dl/foo": respondWith(http.StatusInternalServerError, "boom"),
	})

	outcomes := newExecutor(fs, client).Execute(context.Background(), []Task{
		zipTask("Foo", "https://mods.example/dl/foo"),
	})

	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
	assert.False(t, outcomes[0].Critical)

	oldContent, err := afero.ReadFile(fs, "/Mods/foo-1.0.0.zip")
	require.NoError(t, err)
	assert.Equal(t, "old", string(oldContent))
}

func TestExecuteEmptyDownloadIsRejected(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/Mods/foo-1.0.0.zip", []byte("old"), 0644))

	client := serveByURL(map[string]*http.Response{
		"https://mods.example/dl/foo": respondWith(http.StatusOK, ""),
	})

	outcomes := newExecutor(fs, client).Execute(context.Background(), []Task{
		zipTask("Foo", "https://mods.example/dl/foo"),
	})

	require.Len(t, outcomes, 1)
	var emptyErr *EmptyDownloadError
	require.ErrorAs(t, outcomes[0].Err, &emptyErr)

	oldExists, _ := afero.Exists(fs, "/Mods/foo-1.0.0.zip")
	assert.True(t, oldExists)
}

func TestExecuteOneFailureDoesNotBlockOthers(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/Mods/good-1.0.0.zip", []byte("old"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/Mods/bad-1.0.0.zip", []byte("old"), 0644))

	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.String(), "bad") {
			return nil, fmt.Errorf("connection reset")
		}
		return respondWith(http.StatusOK, "new bytes"), nil
	})

	outcomes := newExecutor(fs, client).Execute(context.Background(), []Task{
		zipTask("Bad", "https://mods.example/download?dl=bad-2.0.0.zip"),
		zipTask("Good", "https://mods.example/download?dl=good-2.0.0.zip"),
	})

	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].Err)
	require.NoError(t, outcomes[1].Err)
	assert.Equal(t, "good-2.0.0.zip", outcomes[1].NewFilename)
}

func TestExecuteExtractsDirectoryMod(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/Mods/bigmod/modinfo.json", []byte("old"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/Mods/bigmod/stale.txt", []byte("stale"), 0644))

	archive := zipArchive(t, map[string]string{
		"modinfo.json":   `{"version": "2.0.0"}`,
		"assets/tex.png": "png",
	})
	client := serveByURL(map[string]*http.Response{
		"https://mods.example/dl/bigmod": respondWith(http.StatusOK, archive),
	})

	task := Task{
		Mod: models.InstalledMod{
			Name:     "BigMod",
			Filename: "bigmod",
			Type:     models.DIR,
			Path:     "/Mods/bigmod",
		},
		Update: models.UpdateAvailable{
			Name:        "BigMod",
			NewVersion:  "2.0.0",
			DownloadURL: "https://mods.example/dl/bigmod",
		},
	}

	outcomes := newExecutor(fs, client).Execute(context.Background(), []Task{task})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "/Mods/bigmod", outcomes[0].Path)

	content, err := afero.ReadFile(fs, "/Mods/bigmod/modinfo.json")
	require.NoError(t, err)
	assert.Equal(t, `{"version": "2.0.0"}`, string(content))

	nested, err := afero.ReadFile(fs, "/Mods/bigmod/assets/tex.png")
	require.NoError(t, err)
	assert.Equal(t, "png", string(nested))

	staleExists, _ := afero.Exists(fs, "/Mods/bigmod/stale.txt")
	assert.False(t, staleExists, "old directory contents must not survive the reinstall")
}

func TestExecuteRejectsZipSlipEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/Mods/evil/modinfo.json", []byte("old"), 0644))

	archive := zipArchive(t, map[string]string{
		"../escape.txt": "pwned",
	})
	client := serveByURL(map[string]*http.Response{
		"https://mods.example/dl/evil": respondWith(http.StatusOK, archive),
	})

	task := Task{
		Mod: models.InstalledMod{
			Name: "Evil", Filename: "evil", Type: models.DIR, Path: "/Mods/evil",
		},
		Update: models.UpdateAvailable{Name: "Evil", DownloadURL: "https://mods.example/dl/evil"},
	}

	outcomes := newExecutor(fs, client).Execute(context.Background(), []Task{task})

	require.Len(t, outcomes, 1)
	require.Error(t, outcomes[0].Err)
	assert.True(t, outcomes[0].Critical)

	escaped, _ := afero.Exists(fs, "/Mods/escape.txt")
	assert.False(t, escaped)
}

func TestExecuteDownloadRequestCarriesDeadline(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/Mods/foo-1.0.0.zip", []byte("old"), 0644))

	var deadline time.Time
	var hasDeadline bool
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		deadline, hasDeadline = req.Context().Deadline()
		return respondWith(http.StatusOK, "new bytes"), nil
	})

	exec := newExecutor(fs, client)
	exec.Timeout = 30 * time.Second

	before := time.Now()
	outcomes := exec.Execute(context.Background(), []Task{
		zipTask("Foo", "https://mods.example/download?dl=foo-2.0.0.zip"),
	})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	require.True(t, hasDeadline, "download requests must carry the configured deadline")
	assert.WithinDuration(t, before.Add(30*time.Second), deadline, 5*time.Second)
}

func TestExecuteDownloadDeadlineDefaultsWhenUnset(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/Mods/foo-1.0.0.zip", []byte("old"), 0644))

	var hasDeadline bool
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		_, hasDeadline = req.Context().Deadline()
		return respondWith(http.StatusOK, "new bytes"), nil
	})

	outcomes := newExecutor(fs, client).Execute(context.Background(), []Task{
		zipTask("Foo", "https://mods.example/download?dl=foo-2.0.0.zip"),
	})

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.True(t, hasDeadline, "an unset timeout still falls back to the default deadline")
}

func TestExecuteCleansUpTempFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/Mods/foo-1.0.0.zip", []byte("old"), 0644))

	client := serveByURL(map[string]*http.Response{
		"https://mods.example/dl/foo": respondWith(http.StatusInternalServerError, ""),
	})

	newExecutor(fs, client).Execute(context.Background(), []Task{
		zipTask("Foo", "https://mods.example/dl/foo"),
	})

	entries, err := afero.ReadDir(fs, "/Mods")
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".download", "temp files must not survive the run")
	}
}

func TestFilenameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://mods.example/download?dl=foo-2.0.0.zip&token=abc": "foo-2.0.0.zip",
		"https://mods.example/files/foo-2.0.0.zip":                 "foo-2.0.0.zip",
		"https://mods.example/download?dl=nested/foo.zip":          "foo.zip",
		"https://mods.example/":                                    "",
		"::notaurl::":                                              "",
	}

	for input, expected := range cases {
		assert.Equal(t, expected, FilenameFromURL(input), "url %s", input)
	}
}
