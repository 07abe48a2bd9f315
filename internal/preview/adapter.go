// Package preview implements the Preview Server Adapter (C7): a thin HTTP
// liveness check against the local preview/HLS server, treating both a
// plain 200 and a 401 (preview endpoint reachable but requiring auth the
// CORE does not hold) as "alive," since the adapter's job is only to
// confirm the server process is up, not to authenticate against it.
package preview

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Adapter checks local preview server liveness and holds the fixed
// publish/playback URLs the Stream Router hands the Timeline Executor
// while in PREVIEW mode.
type Adapter struct {
	httpClient  *http.Client
	baseURL     string
	publishURL  string
	playbackURL string
}

// New returns an Adapter targeting baseURL (e.g. "http://127.0.0.1:8888")
// for health checks, publishURL for the executor's preview-mode output
// target, and playbackURL for the browser-facing HLS index.
func New(baseURL, publishURL, playbackURL string) *Adapter {
	return &Adapter{
		baseURL:     baseURL,
		publishURL:  publishURL,
		playbackURL: playbackURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
			Timeout: 5 * time.Second,
		},
	}
}

// PublishURL returns the RTMP URL the Timeline Executor should push to
// while the Stream Router is in PREVIEW mode.
func (a *Adapter) PublishURL() string { return a.publishURL }

// PlaybackURL returns the HLS index URL a browser client plays back during
// PREVIEW mode.
func (a *Adapter) PlaybackURL() string { return a.playbackURL }

// IsAlive reports whether the preview server responds at all, accepting
// either a success or an auth-required response as "alive."
func (a *Adapter) IsAlive(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/", nil)
	if err != nil {
		return false, fmt.Errorf("preview: building request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("preview: request canceled: %w", ctx.Err())
		}
		return false, nil
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusUnauthorized, nil
}
