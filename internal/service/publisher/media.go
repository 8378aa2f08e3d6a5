package publisher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxMediaBytes = 32 << 20

// Media is an image fetched from a caller-supplied URL.
type Media struct {
	URL         string
	ContentType string
	Data        []byte
}

// MediaFetcher downloads media so it can be re-uploaded as binary.
type MediaFetcher struct {
	client *http.Client
}

func NewMediaFetcher(client *http.Client) *MediaFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &MediaFetcher{client: client}
}

func (f *MediaFetcher) Fetch(ctx context.Context, url string) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download media: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read media: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, fmt.Errorf("media exceeds %d bytes", maxMediaBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("media is empty")
	}

	return &Media{
		URL:         url,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
