package depth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"
)

// DefaultModelURL points at the small MiDaS monocular depth model.
const DefaultModelURL = "https://github.com/isl-org/MiDaS/releases/download/v2_1/model-small.onnx"

const (
	downloadRetries    = 3
	downloadRetryDelay = 5 * time.Second
	downloadBufSize    = 32 * 1024
	progressInterval   = 100 * time.Millisecond
)

// ByteProgress receives downloaded and total byte counts. Total is -1
// when the server does not announce a content length.
type ByteProgress func(downloaded, total int64)

// EnsureModel returns the local path of the model file, downloading
// it into dir first when missing. Interrupted downloads resume via
// Range requests and live under a .part name until complete.
func EnsureModel(ctx context.Context, dir, url string, progress ByteProgress) (string, error) {
	if url == "" {
		url = DefaultModelURL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("depth: model dir: %w", err)
	}
	dest := filepath.Join(dir, path.Base(url))
	if st, err := os.Stat(dest); err == nil && st.Size() > 0 {
		return dest, nil
	}
	if err := downloadWithRetry(ctx, dest, url, progress); err != nil {
		return "", err
	}
	return dest, nil
}

func downloadWithRetry(ctx context.Context, dest, url string, progress ByteProgress) error {
	var lastErr error
	for attempt := 1; attempt <= downloadRetries; attempt++ {
		lastErr = downloadFile(ctx, dest, url, progress)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt < downloadRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(downloadRetryDelay):
			}
		}
	}
	return fmt.Errorf("depth: download failed after %d attempts: %w", downloadRetries, lastErr)
}

func downloadFile(ctx context.Context, dest, url string, progress ByteProgress) error {
	part := dest + ".part"
	var existing int64
	if st, err := os.Stat(part); err == nil {
		existing = st.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("depth: request: %w", err)
	}
	if existing > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("depth: download: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Fresh body; any partial data is stale.
		existing = 0
	case http.StatusPartialContent:
	default:
		return fmt.Errorf("depth: download: %s", resp.Status)
	}

	total := resp.ContentLength
	if total > 0 {
		total += existing
	} else {
		total = -1
	}

	var out *os.File
	if existing > 0 {
		out, err = os.OpenFile(part, os.O_APPEND|os.O_WRONLY, 0o644)
	} else {
		out, err = os.Create(part)
	}
	if err != nil {
		return fmt.Errorf("depth: open: %w", err)
	}
	defer out.Close()

	done := existing
	buf := make([]byte, downloadBufSize)
	lastReport := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("depth: write: %w", werr)
			}
			done += int64(n)
			if progress != nil && time.Since(lastReport) >= progressInterval {
				progress(done, total)
				lastReport = time.Now()
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("depth: read: %w", rerr)
		}
	}
	if progress != nil {
		progress(done, total)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("depth: flush: %w", err)
	}
	return os.Rename(part, dest)
}
