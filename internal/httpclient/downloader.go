package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/laerinok/vs-mods-updater/internal/perf"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
)

// DownloadFile streams url into path on fs. The caller chooses the
// destination; downloading to a temp path and renaming afterwards is the
// caller's job, as is bounding ctx with a deadline.
func DownloadFile(ctx context.Context, url string, path string, client Doer, fs afero.Fs) (written int64, err error) {
	ctx, span := perf.StartSpan(ctx, "net.http.download",
		perf.WithAttributes(attribute.String("url", url)),
	)
	defer span.End()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build download request: %w", err)
	}

	response, err := client.Do(request)
	if err != nil {
		return 0, fmt.Errorf("failed to download file: %w", err)
	}
	defer func() {
		if closeErr := drainAndClose(response.Body); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if response.StatusCode != http.StatusOK {
		return 0, &DownloadStatusError{URL: url, StatusCode: response.StatusCode}
	}

	file, err := fs.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	written, err = io.Copy(file, response.Body)
	if err != nil {
		return written, fmt.Errorf("failed to write file: %w", err)
	}

	span.SetAttributes(attribute.Int64("bytes", written))
	return written, nil
}

type DownloadStatusError struct {
	URL        string
	StatusCode int
}

func (downloadStatus *DownloadStatusError) Error() string {
	return fmt.Sprintf("download of %s failed with status %d", downloadStatus.URL, downloadStatus.StatusCode)
}
