package compositor

import (
	"fmt"
	"strings"
)

// Source is one input feed to composite: a video-track source (the camera
// relay URL or an asset file path) or an overlay-track source.
type Source struct {
	// Input is either a local RTSP URL (camera relay) or a filesystem path
	// (asset).
	Input string
	// IsOverlay marks a source as belonging to an overlay track, placed at
	// Geometry on top of the primary video source rather than replacing it.
	IsOverlay bool
	Geometry  Geometry
	// NativeWidth/NativeHeight are the overlay asset's native pixel
	// dimensions, 0 if unknown. Used by resolveGeometry to derive a missing
	// Geometry axis while preserving aspect ratio. Ignored for the primary
	// source.
	NativeWidth, NativeHeight int
	// Loop requests the asset be looped rather than played once; ignored
	// for camera relay inputs, which are already continuous.
	Loop bool
}

// Geometry positions and sizes an overlay within the output frame,
// normalized against the output resolution: X/Y/Width/Height are all in
// [0,1] with (0,0) at the top-left. A zero Width or Height means "derive
// from the other axis, preserving the source's native aspect ratio when
// NativeWidth/NativeHeight are known"; a zero Opacity means fully opaque.
type Geometry struct {
	X, Y, Width, Height float64
	Opacity             float64
}

// resolvedGeometry is a Geometry resolved to concrete output pixels, ready
// to splice into an ffmpeg scale/overlay filter chain.
type resolvedGeometry struct {
	x, y, w, h int
	opacity    float64
}

// resolveGeometry converts a normalized Geometry plus the overlay's native
// dimensions into pixel coordinates against an outW x outH output frame. If
// Width or Height is zero and the native dimensions are known, the missing
// axis is derived from the other, preserving aspect ratio; if the native
// dimensions are unknown, a zero axis collapses to zero rather than
// guessing.
func resolveGeometry(g Geometry, nativeW, nativeH, outW, outH int) resolvedGeometry {
	opacity := g.Opacity
	if opacity <= 0 {
		opacity = 1
	}

	w := int(g.Width * float64(outW))
	h := int(g.Height * float64(outH))
	switch {
	case g.Width == 0 && g.Height > 0 && nativeW > 0 && nativeH > 0:
		w = int(float64(h) * float64(nativeW) / float64(nativeH))
	case g.Height == 0 && g.Width > 0 && nativeW > 0 && nativeH > 0:
		h = int(float64(w) * float64(nativeH) / float64(nativeW))
	}

	return resolvedGeometry{
		x:       int(g.X * float64(outW)),
		y:       int(g.Y * float64(outH)),
		w:       w,
		h:       h,
		opacity: opacity,
	}
}

// Invocation is the built encoder command: the binary name and its argv,
// ready to hand to the Process Supervisor.
type Invocation struct {
	Name string
	Args []string
}

// Build composes a primary video source plus zero or more overlay sources
// into one ffmpeg Invocation targeting the given destinations at profile.
// Exactly one primary (non-overlay) source is required. The output audio
// track is always the synthesized silence input; audio carried by the
// primary source is not mapped. Every output destination therefore
// receives the same stream layout, matching the spec's "silent audio track
// mixing" requirement.
func Build(primary Source, overlays []Source, profile Profile, destinationURLs []string) (Invocation, error) {
	if primary.IsOverlay {
		return Invocation{}, fmt.Errorf("compositor: primary source must not be an overlay")
	}
	w, h, fps, kbps := profile.dims()

	args := []string{"-y", "-i", primary.Input}
	for _, ov := range overlays {
		loopArgs := []string{}
		if ov.Loop {
			loopArgs = []string{"-stream_loop", "-1"}
		}
		args = append(args, loopArgs...)
		args = append(args, "-i", ov.Input)
	}

	// Synthesize silence as the last input so the filter graph always has
	// an audio source to fall back to.
	args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=48000")

	filter := buildFilterGraph(len(overlays), w, h, overlays)
	args = append(args, "-filter_complex", filter)
	args = append(args, "-map", "[vout]", "-map", fmt.Sprintf("%d:a", len(overlays)+1))

	args = append(args,
		"-c:v", "libx264", "-preset", "veryfast",
		"-b:v", fmt.Sprintf("%dk", kbps),
		"-r", fmt.Sprintf("%d", fps),
		"-c:a", "aac", "-b:a", "128k",
		"-f", "tee",
	)

	args = append(args, teeOutputs(destinationURLs))

	return Invocation{Name: "ffmpeg", Args: args}, nil
}

// buildFilterGraph emits a scale+overlay chain: the primary input is scaled
// to the output resolution and labeled [base]; each overlay is scaled to
// its resolved geometry, has its opacity applied via colorchannelmixer, and
// is composited on top in declaration order (lowest layer first — callers
// are responsible for presenting overlays pre-sorted by Track.Layer), with
// the final node labeled [vout].
func buildFilterGraph(numOverlays, outW, outH int, overlays []Source) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[0:v]scale=%d:%d[base]", outW, outH)

	prev := "base"
	for i, ov := range overlays {
		rg := resolveGeometry(ov.Geometry, ov.NativeWidth, ov.NativeHeight, outW, outH)
		scaled := fmt.Sprintf("ov%d", i)
		fmt.Fprintf(&b, ";[%d:v]scale=%d:%d,format=yuva420p,colorchannelmixer=aa=%.3f[%s]", i+1, rg.w, rg.h, rg.opacity, scaled)
		next := fmt.Sprintf("c%d", i)
		if i == numOverlays-1 {
			next = "vout"
		}
		fmt.Fprintf(&b, ";[%s][%s]overlay=%d:%d[%s]", prev, scaled, rg.x, rg.y, next)
		prev = next
	}
	if numOverlays == 0 {
		b.WriteString(";[base]copy[vout]")
	}
	return b.String()
}

// teeOutputs formats destination URLs as an ffmpeg tee muxer target list so
// one encode fans out to every destination without re-encoding per target.
func teeOutputs(destinationURLs []string) string {
	parts := make([]string, len(destinationURLs))
	for i, u := range destinationURLs {
		parts[i] = fmt.Sprintf("[f=flv]%s", u)
	}
	return strings.Join(parts, "|")
}
