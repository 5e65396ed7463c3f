package rpysight

// Framing is the state machine that demarcates frames from line and
// frame sync pulses (spec.md 4.3). It owns no geometry itself; each
// transition that starts a new frame calls into the Snake to advance
// its rolling frame origin.
type Framing struct {
	snake        Snake
	lineCount    uint32
	linesVec     []Picosecond
	rowsPerFrame uint32
}

// NewFraming builds a Framing state machine for a snake and a
// configured number of rows per frame (one Line pulse is expected per
// row).
func NewFraming(snake Snake, rowsPerFrame uint32) *Framing {
	return &Framing{snake: snake, rowsPerFrame: rowsPerFrame}
}

// LineCount returns the number of Line pulses seen since the last frame
// boundary. Exposed for tests and for the control surface's status
// reporting.
func (f *Framing) LineCount() uint32 {
	return f.lineCount
}

// OnLine handles a Line sync pulse. If rowsPerFrame lines have already
// been seen, this pulse starts a new frame: the line history is
// cleared, the snake's frame origin advances to t, and LineNewFrame is
// returned. Otherwise the pulse is recorded and NoOp is returned.
func (f *Framing) OnLine(t Picosecond) ProcessedEvent {
	if f.lineCount == f.rowsPerFrame {
		f.linesVec = f.linesVec[:0]
		f.lineCount = 0
		f.snake.UpdateSnakeForNextFrame(t)
		return lineNewFrame
	}
	f.linesVec = append(f.linesVec, t)
	f.lineCount++
	return noOp
}

// OnFrame handles a Frame sync pulse: it always starts a new frame,
// regardless of how many lines had been seen.
func (f *Framing) OnFrame(t Picosecond) ProcessedEvent {
	f.linesVec = f.linesVec[:0]
	f.lineCount = 0
	f.snake.UpdateSnakeForNextFrame(t)
	return frameNewFrame
}

// Reset clears the line history and counter without touching the
// snake's frame origin. Used by the pipeline's recovery path
// (advanceTillFirstFrameLine), which then seeds the line count with
// SetLineCount and advances the snake's frame origin itself, without
// going through OnLine/OnFrame.
func (f *Framing) Reset() {
	f.linesVec = f.linesVec[:0]
	f.lineCount = 0
}

// SetLineCount forcibly sets the line counter, used by
// advanceTillFirstFrameLine to seed the count to 1 (Line) or 0 (Frame)
// for the very first synchronization.
func (f *Framing) SetLineCount(n uint32) {
	f.lineCount = n
}
