package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grafov/m3u8"
	"github.com/pkg/errors"

	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/domain"
	"github.com/paheweb/backend/internal/infrastructure/logger"
)

// HLSFetcher downloads an HLS media playlist segment by segment into a single
// output file. Every finished segment is a checkpoint, so cancellation
// latency is bounded by one segment. Total size is unknown up front and is
// estimated from the bytes of the segments downloaded so far.
type HLSFetcher struct {
	client *http.Client
	logger *logger.Logger
}

func NewHLSFetcher(log *logger.Logger) *HLSFetcher {
	return &HLSFetcher{
		client: &http.Client{Timeout: 60 * time.Second},
		logger: log,
	}
}

// IsPlaylistURL reports whether a source link points at an HLS playlist.
func IsPlaylistURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Path, ".m3u8")
}

func (f *HLSFetcher) Fetch(ctx context.Context, req ports.FetchRequest, checkpoints chan<- ports.FetchCheckpoint) error {
	if req.URL == "" {
		return errors.New("fetch: task has no source url")
	}
	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return errors.Wrap(err, "fetch: create destination dir")
	}

	base, playlist, err := f.loadMediaPlaylist(ctx, req.URL, 0)
	if err != nil {
		return err
	}

	var segments []string
	for _, seg := range playlist.Segments {
		if seg == nil || seg.URI == "" {
			continue
		}
		segments = append(segments, resolveURL(base, seg.URI))
	}
	if len(segments) == 0 {
		return errors.New("fetch: playlist has no segments")
	}

	dest := filepath.Join(req.DestDir, domain.SanitizeFilename(req.Filename))
	file, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, "fetch: create file")
	}

	written, err := f.downloadSegments(ctx, file, segments, checkpoints)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "fetch: close file")
	}
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			f.logger.Warnw("fetch_partial_cleanup_failed", "path", dest, "error", rmErr)
		}
		return err
	}

	f.logger.Infow("fetch_completed", "path", dest, "bytes", written, "segments", len(segments))
	return nil
}

// loadMediaPlaylist fetches and parses a playlist, following a master
// playlist one level down to its first variant.
func (f *HLSFetcher) loadMediaPlaylist(ctx context.Context, rawURL string, depth int) (*url.URL, *m3u8.MediaPlaylist, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch: parse playlist url")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch: build playlist request")
	}
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch: playlist request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, errors.Errorf("fetch: playlist status %s", resp.Status)
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch: decode playlist")
	}

	switch listType {
	case m3u8.MEDIA:
		return base, playlist.(*m3u8.MediaPlaylist), nil
	case m3u8.MASTER:
		if depth > 0 {
			return nil, nil, errors.New("fetch: nested master playlist")
		}
		master := playlist.(*m3u8.MasterPlaylist)
		if len(master.Variants) == 0 {
			return nil, nil, errors.New("fetch: master playlist has no variants")
		}
		return f.loadMediaPlaylist(ctx, resolveURL(base, master.Variants[0].URI), depth+1)
	default:
		return nil, nil, errors.New("fetch: unknown playlist type")
	}
}

func (f *HLSFetcher) downloadSegments(ctx context.Context, dst io.Writer, segments []string, checkpoints chan<- ports.FetchCheckpoint) (int64, error) {
	var written int64
	start := time.Now()

	for i, segURL := range segments {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, err := f.downloadSegment(ctx, dst, segURL)
		written += n
		if err != nil {
			return written, errors.Wrapf(err, "fetch: segment %d/%d", i+1, len(segments))
		}

		// Estimate the total from the average segment size seen so far.
		estimated := written / int64(i+1) * int64(len(segments))
		speed := float64(written) / time.Since(start).Seconds()
		if err := sendCheckpoint(ctx, checkpoints, ports.FetchCheckpoint{
			BytesSoFar: written,
			TotalBytes: estimated,
			Speed:      speed,
		}); err != nil {
			return written, err
		}
	}
	return written, nil
}

func (f *HLSFetcher) downloadSegment(ctx context.Context, dst io.Writer, segURL string) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, segURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, errors.Errorf("unexpected status %s", resp.Status)
	}
	return io.Copy(dst, resp.Body)
}

func resolveURL(base *url.URL, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
