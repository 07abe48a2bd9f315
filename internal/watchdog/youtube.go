package watchdog

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vistterstream/vistterstream/internal/model"
)

// YouTubeLivenessChecker is the one platform-specific RemoteLivenessChecker
// this package provides: it fetches the channel's public live page and
// treats a 200 response as "is-live" and a redirect to the channel's
// non-live home page as unhealthy, matching the HTTP-fetch liveness signal
// documented for the single platform with concrete API behavior.
type YouTubeLivenessChecker struct {
	client  *http.Client
	baseURL string
}

// NewYouTubeLivenessChecker returns a checker using client, or
// http.DefaultClient if client is nil.
func NewYouTubeLivenessChecker(client *http.Client) *YouTubeLivenessChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &YouTubeLivenessChecker{client: client, baseURL: "https://www.youtube.com"}
}

func (c *YouTubeLivenessChecker) IsLive(ctx context.Context, dest *model.Destination) (bool, error) {
	if dest.ChannelID == "" {
		return true, nil
	}

	liveURL := fmt.Sprintf("%s/channel/%s/live", c.baseURL, dest.ChannelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, liveURL, nil)
	if err != nil {
		return false, err
	}

	// CheckRedirect sees every hop YouTube takes us through; landing on the
	// plain channel page (no "/live" suffix left) means the channel isn't
	// currently broadcasting.
	redirectedToNonLive := false
	client := &http.Client{
		Transport: c.client.Transport,
		Timeout:   c.client.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > 5 {
				return http.ErrUseLastResponse
			}
			if !containsLiveSuffix(req.URL.Path) {
				redirectedToNonLive = true
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if redirectedToNonLive {
		return false, nil
	}
	return resp.StatusCode == http.StatusOK, nil
}

func containsLiveSuffix(path string) bool {
	const suffix = "/live"
	if len(path) < len(suffix) {
		return false
	}
	return path[len(path)-len(suffix):] == suffix
}
