package watchdog

import (
	"context"

	"github.com/vistterstream/vistterstream/internal/model"
)

// PlatformDispatchChecker routes each destination to the RemoteLivenessChecker
// registered for its Platform, falling back to LocalOnlyChecker for any
// platform without one configured.
type PlatformDispatchChecker struct {
	checkers map[model.Platform]RemoteLivenessChecker
	fallback RemoteLivenessChecker
}

// NewPlatformDispatchChecker returns a dispatcher over checkers, using
// LocalOnlyChecker for any platform not present in the map.
func NewPlatformDispatchChecker(checkers map[model.Platform]RemoteLivenessChecker) *PlatformDispatchChecker {
	return &PlatformDispatchChecker{checkers: checkers, fallback: LocalOnlyChecker{}}
}

func (d *PlatformDispatchChecker) IsLive(ctx context.Context, dest *model.Destination) (bool, error) {
	if checker, ok := d.checkers[dest.Platform]; ok {
		return checker.IsLive(ctx, dest)
	}
	return d.fallback.IsLive(ctx, dest)
}
