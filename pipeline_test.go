package rpysight

import (
	"path/filepath"
	"testing"
)

// sliceSource serves a fixed sequence of EventBatch values, then ends.
// It exists purely for pipeline tests.
type sliceSource struct {
	batches []EventBatch
	idx     int
}

func (s *sliceSource) Open() error { return nil }

func (s *sliceSource) NextBatch() (EventBatch, SourceState, error) {
	if s.idx >= len(s.batches) {
		return EventBatch{}, SourceEnd, nil
	}
	b := s.batches[s.idx]
	s.idx++
	return b, SourceSome, nil
}

func (s *sliceSource) Close() error { return nil }

func eb(events ...Event) EventBatch {
	types := make([]EventType, len(events))
	missed := make([]uint16, len(events))
	channels := make([]int32, len(events))
	times := make([]Picosecond, len(events))
	for i, e := range events {
		types[i] = e.Type
		missed[i] = e.MissedEvents
		channels[i] = e.Channel
		times[i] = e.Time
	}
	return NewEventBatch(types, missed, channels, times)
}

// Property 3: across frame boundaries the pipeline neither duplicates
// nor drops events. This test splits a two-frame event stream across
// batch boundaries, including one split in the middle of a batch right
// after a LineNewFrame, to exercise the carry/leftover-event semantics.
func TestPipelineTwoFramesNoDropNoDuplicate(t *testing.T) {
	batch1 := eb(
		Event{Channel: 2, Time: 0},       // Line (sync)
		Event{Channel: 1, Time: 250_000}, // Pmt1 -> frame 1 voxel
	)
	batch2 := eb(
		Event{Channel: 2, Time: 1_000_000},   // Line
		Event{Channel: 1, Time: 1_500_000},   // Pmt1 -> frame 1 voxel
		Event{Channel: 2, Time: 2_000_000},   // Line -> LineNewFrame (ends frame 1)
		Event{Channel: 1, Time: 2_250_000},   // Pmt1, left over in this batch -> frame 2 voxel
	)
	batch3 := eb(
		Event{Channel: 2, Time: 3_000_000}, // Line
		Event{Channel: 2, Time: 4_000_000}, // Line
		Event{Channel: 2, Time: 5_000_000}, // Line -> LineNewFrame (ends frame 2)
	)

	cfg := s1Config()
	cfg.Filename = filepath.Join(t.TempDir(), "frames.arrow")
	source := &sliceSource{batches: []EventBatch{batch1, batch2, batch3}}
	renderer := &NullRenderer{}
	app := NewAppState(cfg, source, renderer)

	if err := app.StartAcqLoopFor(2, 1, 2); err != nil {
		t.Fatalf("StartAcqLoopFor: %v", err)
	}

	if len(renderer.Points) != 3 {
		t.Fatalf("renderer got %d points, want 3: %+v", len(renderer.Points), renderer.Points)
	}

	// Frame 1's two voxels come from one walk of the merge map, whose
	// order is not defined; frame 2's single voxel is rendered after them.
	frame1 := []ImageCoor{{X: 0, Y: 0, Z: 0}, {X: -0.5, Y: 0, Z: 0}}
	got1 := renderer.Points[:2]
	if !(got1[0] == frame1[0] && got1[1] == frame1[1]) && !(got1[0] == frame1[1] && got1[1] == frame1[0]) {
		t.Errorf("frame 1 points = %+v, want %+v in any order", got1, frame1)
	}
	if w := (ImageCoor{X: 0, Y: 0, Z: 0}); renderer.Points[2] != w {
		t.Errorf("point 2 = %+v, want %+v", renderer.Points[2], w)
	}
}

func TestPipelineSourceExhaustionEndsLoopCleanly(t *testing.T) {
	batch1 := eb(Event{Channel: 2, Time: 0})

	cfg := s1Config()
	cfg.Filename = filepath.Join(t.TempDir(), "frames.arrow")
	source := &sliceSource{batches: []EventBatch{batch1}}
	renderer := &NullRenderer{}
	app := NewAppState(cfg, source, renderer)

	if err := app.StartAcqLoopFor(5, 1, 2); err != nil {
		t.Fatalf("StartAcqLoopFor: %v", err)
	}
	if len(renderer.Points) != 0 {
		t.Fatalf("expected no points when the source never completes a frame, got %d", len(renderer.Points))
	}
}

func TestPipelineNoSyncEverReturnsError(t *testing.T) {
	batch1 := eb(Event{Channel: 1, Time: 0}) // Pmt1 only, no Line/Frame ever

	cfg := s1Config()
	cfg.Filename = filepath.Join(t.TempDir(), "frames.arrow")
	source := &sliceSource{batches: []EventBatch{batch1}}
	renderer := &NullRenderer{}
	app := NewAppState(cfg, source, renderer)

	if err := app.StartAcqLoopFor(1, 1, 2); err == nil {
		t.Fatal("expected an error when the source never emits a Line/Frame sync")
	}
}
