package compositor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRejectsOverlayAsPrimary(t *testing.T) {
	_, err := Build(Source{Input: "x", IsOverlay: true}, nil, Profile720p30, []string{"rtmp://dest/1"})
	require.Error(t, err)
}

func TestBuildFansOutToAllDestinations(t *testing.T) {
	inv, err := Build(
		Source{Input: "rtsp://local/relay/cam-1"},
		[]Source{{Input: "logo.png", IsOverlay: true, NativeWidth: 400, NativeHeight: 160, Geometry: Geometry{X: 0.01, Y: 0.01, Width: 0.15}}},
		Profile1080p30,
		[]string{"rtmp://a/1", "rtmp://b/2"},
	)
	require.NoError(t, err)

	joined := strings.Join(inv.Args, " ")
	assert.Contains(t, joined, "rtmp://a/1")
	assert.Contains(t, joined, "rtmp://b/2")
	assert.Contains(t, joined, "anullsrc")
	assert.Contains(t, joined, "[vout]")
}

func TestBuildNoOverlaysStillProducesVout(t *testing.T) {
	inv, err := Build(Source{Input: "rtsp://local/relay/cam-1"}, nil, Profile480p30, []string{"rtmp://a/1"})
	require.NoError(t, err)
	joined := strings.Join(inv.Args, " ")
	assert.Contains(t, joined, "[vout]")
}

func TestResolveGeometryDerivesMissingHeightFromNativeAspect(t *testing.T) {
	rg := resolveGeometry(Geometry{Width: 0.25}, 400, 100, 1920, 1080)
	assert.Equal(t, 480, rg.w) // 0.25 * 1920
	assert.Equal(t, 120, rg.h) // 480 * (100/400)
}

func TestResolveGeometryDefaultsOpacityToOpaque(t *testing.T) {
	rg := resolveGeometry(Geometry{Width: 0.1, Height: 0.1}, 0, 0, 1920, 1080)
	assert.Equal(t, 1.0, rg.opacity)
}

func TestResolveGeometryHonorsExplicitOpacity(t *testing.T) {
	rg := resolveGeometry(Geometry{Width: 0.1, Height: 0.1, Opacity: 0.5}, 0, 0, 1920, 1080)
	assert.Equal(t, 0.5, rg.opacity)
}
