package fetch

import (
	"context"
	"testing"

	"github.com/paheweb/backend/internal/core/ports"
)

type markingFetcher struct {
	called bool
}

func (f *markingFetcher) Fetch(_ context.Context, _ ports.FetchRequest, _ chan<- ports.FetchCheckpoint) error {
	f.called = true
	return nil
}

func TestSelector_RoutesBySource(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		expectHLS bool
	}{
		{"playlist link", "https://cdn.example.com/stream/media.m3u8", true},
		{"direct link", "https://files.example.com/ep1.mp4", false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			direct := &markingFetcher{}
			hls := &markingFetcher{}
			s := &Selector{direct: direct, hls: hls}

			if err := s.Fetch(context.Background(), ports.FetchRequest{URL: test.url}, nil); err != nil {
				t.Fatalf("Fetch failed: %v", err)
			}
			if hls.called != test.expectHLS || direct.called == test.expectHLS {
				t.Errorf("routed to hls=%v direct=%v, expected hls=%v", hls.called, direct.called, test.expectHLS)
			}
		})
	}
}
