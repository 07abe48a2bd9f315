package relay

import (
	"context"
	"strings"

	"github.com/vistterstream/vistterstream/internal/muxer"
)

// AdminProber is a Prober backed by the local muxer's admin API: it asks
// the muxer whether the relay's path is currently active, which is more
// authoritative than a bare TCP dial since the muxer already knows whether
// media is flowing on that path (see DESIGN.md's internal/muxer entry).
type AdminProber struct {
	admin *muxer.AdminClient
}

// NewAdminProber returns an AdminProber querying admin for path status.
func NewAdminProber(admin *muxer.AdminClient) *AdminProber {
	return &AdminProber{admin: admin}
}

func (p *AdminProber) Probe(ctx context.Context, localURL string) (bool, error) {
	pathName := pathNameFromRTSPURL(localURL)
	return p.admin.PathExists(ctx, pathName)
}

// pathNameFromRTSPURL extracts the path component of a local relay RTSP
// URL (e.g. "rtsp://127.0.0.1:18554/relay/cam-1" -> "relay/cam-1").
func pathNameFromRTSPURL(rtspURL string) string {
	idx := strings.Index(rtspURL, "://")
	if idx == -1 {
		return rtspURL
	}
	rest := rtspURL[idx+3:]
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return ""
	}
	return rest[slash+1:]
}
