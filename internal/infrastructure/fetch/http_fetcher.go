package fetch

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/domain"
	"github.com/paheweb/backend/internal/infrastructure/logger"
)

const (
	defaultChunkSize = 64 * 1024
	speedInterval    = time.Second

	// Some providers refuse requests without a referer.
	refererHeader = "https://kwik.cx/"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// HTTPFetcher streams a direct download link to disk, reporting a checkpoint
// roughly once per second. Partial files are removed on failure or
// cancellation so a retry starts clean.
type HTTPFetcher struct {
	client    *http.Client
	logger    *logger.Logger
	chunkSize int
}

func NewHTTPFetcher(log *logger.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		logger:    log,
		chunkSize: defaultChunkSize,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req ports.FetchRequest, checkpoints chan<- ports.FetchCheckpoint) error {
	if req.URL == "" {
		return errors.New("fetch: task has no source url")
	}
	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return errors.Wrap(err, "fetch: create destination dir")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return errors.Wrap(err, "fetch: build request")
	}
	httpReq.Header.Set("Referer", refererHeader)
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "fetch: request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("fetch: unexpected status %s", resp.Status)
	}

	filename := req.Filename
	if name := filenameFromDisposition(resp.Header.Get("Content-Disposition")); name != "" {
		filename = name
	}
	dest := filepath.Join(req.DestDir, domain.SanitizeFilename(filename))

	file, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, "fetch: create file")
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	written, err := f.copyWithCheckpoints(ctx, file, resp.Body, total, checkpoints)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "fetch: close file")
	}
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			f.logger.Warnw("fetch_partial_cleanup_failed", "path", dest, "error", rmErr)
		}
		return err
	}

	f.logger.Infow("fetch_completed", "path", dest, "bytes", written)
	return nil
}

func (f *HTTPFetcher) copyWithCheckpoints(ctx context.Context, dst io.Writer, src io.Reader, total int64, checkpoints chan<- ports.FetchCheckpoint) (int64, error) {
	buf := make([]byte, f.chunkSize)
	var written, lastBytes int64
	lastSample := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, errors.Wrap(err, "fetch: write file")
			}
			written += int64(n)
		}

		if elapsed := time.Since(lastSample); elapsed >= speedInterval {
			speed := float64(written-lastBytes) / elapsed.Seconds()
			lastSample = time.Now()
			lastBytes = written
			if err := sendCheckpoint(ctx, checkpoints, ports.FetchCheckpoint{
				BytesSoFar: written,
				TotalBytes: total,
				Speed:      speed,
			}); err != nil {
				return written, err
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, errors.Wrap(readErr, "fetch: read body")
		}
	}

	if err := sendCheckpoint(ctx, checkpoints, ports.FetchCheckpoint{
		BytesSoFar: written,
		TotalBytes: total,
	}); err != nil {
		return written, err
	}
	return written, nil
}

func sendCheckpoint(ctx context.Context, checkpoints chan<- ports.FetchCheckpoint, cp ports.FetchCheckpoint) error {
	select {
	case checkpoints <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
