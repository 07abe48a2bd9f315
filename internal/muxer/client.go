// Package muxer provides a thin HTTP admin client for the appliance's local
// RTMP relay / preview muxer, used by the Camera Relay Manager's
// AdminProber for local path health. It is a package of its own rather than
// part of internal/preview, so relay does not import preview.
package muxer

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// AdminClient is a pooled HTTP client against the local muxer's admin API.
type AdminClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewAdminClient returns an AdminClient targeting baseURL (e.g.
// "http://127.0.0.1:9997").
func NewAdminClient(baseURL string) *AdminClient {
	return &AdminClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// PathExists reports whether the muxer currently has an active path named
// pathName, by hitting its status endpoint. A non-2xx response other than
// 404 is returned as an error rather than treated as "does not exist."
func (c *AdminClient) PathExists(ctx context.Context, pathName string) (bool, error) {
	url := fmt.Sprintf("%s/v3/paths/get/%s", c.baseURL, pathName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("muxer: building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("muxer: request canceled: %w", ctx.Err())
		}
		return false, fmt.Errorf("muxer: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("muxer: path status %d", resp.StatusCode)
	default:
		return true, nil
	}
}
