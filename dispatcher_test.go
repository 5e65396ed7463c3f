package rpysight

import "testing"

func newS1Dispatcher() (*Dispatcher, Snake, *Framing) {
	cfg := s1Config()
	inputs := cfg.Inputs.Build()
	snake := NewSnake(cfg, 0)
	framing := NewFraming(snake, uint32(cfg.Rows))
	return NewDispatcher(inputs, snake, framing), snake, framing
}

func TestDispatcherS1(t *testing.T) {
	d, _, _ := newS1Dispatcher()

	got := d.Dispatch(Event{Type: ValidTimeTag, Channel: 2, Time: 0})
	if got.Kind != KindNoOp {
		t.Fatalf("Line event = %v, want NoOp", got.Kind)
	}

	got = d.Dispatch(Event{Type: ValidTimeTag, Channel: 1, Time: 250_000})
	want := displayed(ImageCoor{X: 0, Y: 0, Z: 0}, 0)
	if got != want {
		t.Fatalf("Pmt1 event = %+v, want %+v", got, want)
	}
}

// S4: overflow event discarded regardless of snake state.
func TestDispatcherS4OverflowDiscarded(t *testing.T) {
	d, _, _ := newS1Dispatcher()

	got := d.Dispatch(Event{Type: 1, MissedEvents: 5, Channel: 1, Time: 500_000})
	if got.Kind != KindNoOp {
		t.Fatalf("overflow event = %v, want NoOp", got.Kind)
	}
}

// S5: unknown channel.
func TestDispatcherS5UnknownChannel(t *testing.T) {
	d, _, _ := newS1Dispatcher()

	got := d.Dispatch(Event{Type: ValidTimeTag, Channel: 99, Time: 500_000})
	if got.Kind != KindNoOp {
		t.Fatalf("unknown channel event = %v, want NoOp", got.Kind)
	}
}

// S3: a photon beyond the frame window yields PhotonNewFrame.
func TestDispatcherS3PhotonBeyondFrame(t *testing.T) {
	d, _, _ := newS1Dispatcher()

	d.Dispatch(Event{Type: ValidTimeTag, Channel: 2, Time: 0}) // Line, NoOp
	got := d.Dispatch(Event{Type: ValidTimeTag, Channel: 1, Time: 10_000_000})
	if got.Kind != KindPhotonNewFrame {
		t.Fatalf("beyond-window photon = %v, want PhotonNewFrame", got.Kind)
	}
}

// S6: a Frame sync pulse resets framing regardless of partial line state.
func TestDispatcherS6FrameResets(t *testing.T) {
	cfg := s1Config()
	cfg.Inputs.Frame = 3
	inputs := cfg.Inputs.Build()
	snake := NewSnake(cfg, 0)
	framing := NewFraming(snake, uint32(cfg.Rows))
	d := NewDispatcher(inputs, snake, framing)

	d.Dispatch(Event{Type: ValidTimeTag, Channel: 2, Time: 0})
	if framing.LineCount() != 1 {
		t.Fatalf("LineCount() = %d, want 1 before Frame pulse", framing.LineCount())
	}

	got := d.Dispatch(Event{Type: ValidTimeTag, Channel: 3, Time: 500_000})
	if got.Kind != KindFrameNewFrame {
		t.Fatalf("Frame pulse = %v, want FrameNewFrame", got.Kind)
	}
	if framing.LineCount() != 0 {
		t.Fatalf("LineCount() after Frame pulse = %d, want 0", framing.LineCount())
	}
}

func TestDispatcherTagLensAndLaserAreNoOp(t *testing.T) {
	cfg := s1Config()
	cfg.Planes = 2
	cfg.TagPeriod = 100_000
	cfg.Inputs.TagLens = 4
	cfg.Inputs.Laser = 5
	inputs := cfg.Inputs.Build()
	snake := NewSnake(cfg, 0)
	framing := NewFraming(snake, uint32(cfg.Rows))
	d := NewDispatcher(inputs, snake, framing)

	if got := d.Dispatch(Event{Type: ValidTimeTag, Channel: 4, Time: 10}); got.Kind != KindNoOp {
		t.Fatalf("TagLens event = %v, want NoOp", got.Kind)
	}
	if got := d.Dispatch(Event{Type: ValidTimeTag, Channel: 5, Time: 20}); got.Kind != KindNoOp {
		t.Fatalf("Laser event = %v, want NoOp", got.Kind)
	}
}
