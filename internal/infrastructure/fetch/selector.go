package fetch

import (
	"context"

	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/infrastructure/logger"
)

// Selector routes each request to the fetcher matching its source: playlist
// links go to the HLS fetcher, everything else is a direct file download.
type Selector struct {
	direct ports.Fetcher
	hls    ports.Fetcher
}

func NewSelector(log *logger.Logger) *Selector {
	return &Selector{
		direct: NewHTTPFetcher(log),
		hls:    NewHLSFetcher(log),
	}
}

func (s *Selector) Fetch(ctx context.Context, req ports.FetchRequest, checkpoints chan<- ports.FetchCheckpoint) error {
	if IsPlaylistURL(req.URL) {
		return s.hls.Fetch(ctx, req, checkpoints)
	}
	return s.direct.Fetch(ctx, req, checkpoints)
}
