package rpysight

import "testing"

func TestPipelineControlGetStatus(t *testing.T) {
	cfg := s1Config()
	app := NewAppState(cfg, &sliceSource{}, &NullRenderer{})
	pc := NewPipelineControl(app)

	pc.NoteFrameWritten()
	pc.NoteFrameWritten()
	pc.NoteDesync()

	var status PipelineStatus
	if err := pc.GetStatus(nil, &status); err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.FramesWritten != 2 {
		t.Fatalf("FramesWritten = %d, want 2", status.FramesWritten)
	}
	if status.DesyncEvents != 1 {
		t.Fatalf("DesyncEvents = %d, want 1", status.DesyncEvents)
	}
}

func TestPipelineControlRequestStopHidesRenderer(t *testing.T) {
	cfg := s1Config()
	renderer := &NullRenderer{}
	app := NewAppState(cfg, &sliceSource{}, renderer)
	pc := NewPipelineControl(app)

	var ok bool
	if err := pc.RequestStop(nil, &ok); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	if !ok {
		t.Fatal("RequestStop reply = false, want true")
	}
	if !renderer.ShouldClose() {
		t.Fatal("renderer should report ShouldClose() == true after RequestStop")
	}
}
