package rpysight

// Color is an accumulated RGB triple; each component saturates at 1.0.
type Color struct {
	R, G, B float32
}

// mergeChannelIndex is the index of the always-present merge channel in
// FrameBuffers.channels, one past the last real spectral channel.
const mergeChannelIndex = SupportedSpectralChannels

// FrameBuffers holds one map per spectral channel (1..4) plus the merge
// channel, keyed by a quantized ImageCoor. It is owned exclusively by
// the acquisition/processing thread: no locking is required because no
// other goroutine ever touches it directly (snapshots handed to the
// serializer are deep copies).
type FrameBuffers struct {
	channels         [SupportedSpectralChannels + 1]map[ImageCoor]Color
	incrementColorBy float32
}

// NewFrameBuffers builds an empty FrameBuffers set. incrementColorBy is
// the per-hit color increment from AppConfig.
func NewFrameBuffers(incrementColorBy float32) *FrameBuffers {
	fb := &FrameBuffers{incrementColorBy: incrementColorBy}
	for i := range fb.channels {
		fb.channels[i] = make(map[ImageCoor]Color)
	}
	return fb
}

func saturatingAdd(c Color, delta float32) Color {
	add := func(v float32) float32 {
		v += delta
		if v > 1.0 {
			return 1.0
		}
		return v
	}
	return Color{R: add(c.R), G: add(c.G), B: add(c.B)}
}

// AddToRenderQueue records a hit at point on the given spectral channel.
// The voxel's color accumulates by incrementColorBy per hit, saturating
// at 1.0 per component. The merge channel always receives the same
// update, so the merged view reflects every channel's activity.
func (fb *FrameBuffers) AddToRenderQueue(point ImageCoor, channel SpectralChannel) {
	idx := int(channel)
	if idx < 0 || idx >= SupportedSpectralChannels {
		return
	}
	fb.channels[idx][point] = saturatingAdd(fb.channels[idx][point], fb.incrementColorBy)
	fb.channels[mergeChannelIndex][point] = saturatingAdd(fb.channels[mergeChannelIndex][point], fb.incrementColorBy)
}

// Merge returns the merge channel's map. Callers must not retain it
// across a ClearNonRenderedChannels/DrainMerge call.
func (fb *FrameBuffers) Merge() map[ImageCoor]Color {
	return fb.channels[mergeChannelIndex]
}

// Channel returns the per-voxel map for one of the four spectral
// channels (0-indexed), used by the serializer to emit per-channel rows.
func (fb *FrameBuffers) Channel(i int) map[ImageCoor]Color {
	return fb.channels[i]
}

// DrainMerge clears the merge channel's map and returns the voxels it
// held, for the renderer to walk once per render cadence.
func (fb *FrameBuffers) DrainMerge() map[ImageCoor]Color {
	merge := fb.channels[mergeChannelIndex]
	fb.channels[mergeChannelIndex] = make(map[ImageCoor]Color, len(merge))
	return merge
}

// ClearNonRenderedChannels empties the four per-spectral-channel maps
// after the renderer has drained the merge channel, per spec.md 4.5.
// The merge map itself is reset separately by DrainMerge.
func (fb *FrameBuffers) ClearNonRenderedChannels() {
	for i := 0; i < SupportedSpectralChannels; i++ {
		fb.channels[i] = make(map[ImageCoor]Color)
	}
}

// CloneSnapshot deep-copies fb for handoff to the serializer queue. The
// original FrameBuffers keeps accumulating after the clone is taken.
func (fb *FrameBuffers) CloneSnapshot() *FrameBuffers {
	clone := &FrameBuffers{incrementColorBy: fb.incrementColorBy}
	for i, m := range fb.channels {
		cp := make(map[ImageCoor]Color, len(m))
		for k, v := range m {
			cp[k] = v
		}
		clone.channels[i] = cp
	}
	return clone
}
