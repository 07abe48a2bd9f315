package model

import "time"

// AssetKind distinguishes the media kinds a ShowAssetAction can reference.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// Asset is a static or looping media file available to place on an overlay
// track (a lower-third graphic, a looping promo clip, and so on).
type Asset struct {
	ID        string
	Name      string
	Kind      AssetKind
	Path      string
	CreatedAt time.Time

	// WidthPx/HeightPx are the asset's native pixel dimensions, used to
	// derive the missing axis when a ShowAssetAction specifies only one of
	// Width/Height. Zero means unknown; the compositor then falls back to
	// the specified axis alone (no aspect-ratio correction).
	WidthPx  int
	HeightPx int
}
