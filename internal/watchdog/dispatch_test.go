package watchdog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vistterstream/vistterstream/internal/model"
)

type fixedChecker struct{ live bool }

func (f fixedChecker) IsLive(ctx context.Context, dest *model.Destination) (bool, error) {
	return f.live, nil
}

func TestPlatformDispatchCheckerRoutesByPlatform(t *testing.T) {
	d := NewPlatformDispatchChecker(map[model.Platform]RemoteLivenessChecker{
		model.PlatformYouTube: fixedChecker{live: false},
	})

	live, err := d.IsLive(context.Background(), &model.Destination{Platform: model.PlatformYouTube})
	require.NoError(t, err)
	assert.False(t, live)

	live, err = d.IsLive(context.Background(), &model.Destination{Platform: model.PlatformFacebook})
	require.NoError(t, err)
	assert.True(t, live)
}
