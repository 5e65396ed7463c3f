package rpysight

// Renderer is the capability set the GPU point renderer must expose
// (spec.md 6). It is an external collaborator: the pipeline calls
// Render once per cadence and ShouldClose once per outer loop, and
// DisplayPoint once per voxel in the merge channel's map.
type Renderer interface {
	// DisplayPoint draws one voxel. The caller (AppState.renderAndFlush)
	// has already applied the scanner-to-screen flip p' = (-y, -x, z), so
	// implementations draw p as given.
	DisplayPoint(p ImageCoor, color Color)
	// Render flushes the accumulated points to the screen.
	Render()
	// Hide closes or hides the render window.
	Hide()
	// ShouldClose reports whether the user has asked to close the
	// render window; true causes the pipeline to stop accepting new
	// batches and shut down cleanly.
	ShouldClose() bool
}

// NullRenderer is a no-op Renderer used by tests and by headless runs,
// where there is no window to draw into. It records the points it is
// given, and Hide makes ShouldClose report true.
type NullRenderer struct {
	Closed bool
	Points []ImageCoor
}

func (n *NullRenderer) DisplayPoint(p ImageCoor, color Color) {
	n.Points = append(n.Points, p)
}
func (n *NullRenderer) Render()      {}
func (n *NullRenderer) Hide()        { n.Closed = true }
func (n *NullRenderer) ShouldClose() bool {
	return n.Closed
}
