package rpysight

import "fmt"

// Picosecond is a signed count of picoseconds since some hardware-defined
// epoch. All temporal arithmetic in this package is done in integer
// picoseconds; floating point only enters once a Picosecond is converted
// to a normalized image coordinate.
type Picosecond int64

// EventType distinguishes a valid time tag (0) from an overflow or error
// record reported by the tagger.
type EventType uint8

// A valid time tag. Any other EventType value is an overflow/error tag
// and is discarded by the dispatcher.
const ValidTimeTag EventType = 0

// Event is a single record emitted by the time-tagging hardware.
type Event struct {
	Type         EventType
	MissedEvents uint16
	Channel      int32
	Time         Picosecond
}

// IsValid reports whether e is a genuine time tag rather than an
// overflow/error record.
func (e Event) IsValid() bool {
	return e.Type == ValidTimeTag
}

func (e Event) String() string {
	return fmt.Sprintf("Event{type=%d missed=%d chan=%d time=%d}",
		e.Type, e.MissedEvents, e.Channel, e.Time)
}

// EventBatch is a structure-of-arrays view over a batch of events drawn
// from a Source. All four columns have identical length, and Time is
// monotonically nondecreasing within the batch. Iteration via Next is
// zero-copy: it indexes into the existing columns rather than building a
// new Event slice.
type EventBatch struct {
	Type         []EventType
	MissedEvents []uint16
	Channel      []int32
	Time         []Picosecond

	cursor int
}

// NewEventBatch builds an EventBatch from four parallel columns. The
// caller is responsible for ensuring the columns have equal length:
// Next is bounded by the Time column, so any other column shorter than
// Time makes Next panic on out-of-range access.
func NewEventBatch(typ []EventType, missed []uint16, channel []int32, t []Picosecond) EventBatch {
	return EventBatch{Type: typ, MissedEvents: missed, Channel: channel, Time: t}
}

// Len returns the number of events in the batch.
func (b *EventBatch) Len() int {
	return len(b.Time)
}

// Remaining reports how many events have not yet been consumed by Next.
func (b *EventBatch) Remaining() int {
	return len(b.Time) - b.cursor
}

// Event returns the event at the given absolute index without advancing
// the cursor.
func (b *EventBatch) Event(idx int) Event {
	return Event{
		Type:         b.Type[idx],
		MissedEvents: b.MissedEvents[idx],
		Channel:      b.Channel[idx],
		Time:         b.Time[idx],
	}
}

// Next returns the next unread event and advances the cursor. The second
// return value is false once the batch is exhausted. Next never
// re-reads an event already returned: closing over a batch and calling
// Next later resumes exactly where the previous call left off, which is
// what lets the pipeline carry "leftover" events across a frame boundary
// without reprocessing or skipping any of them.
func (b *EventBatch) Next() (Event, bool) {
	if b.cursor >= len(b.Time) {
		return Event{}, false
	}
	e := b.Event(b.cursor)
	b.cursor++
	return e, true
}

// LastTime returns the time of the final event in the batch, used by the
// pipeline's batch-relevance check. ok is false for an empty batch.
func (b *EventBatch) LastTime() (t Picosecond, ok bool) {
	if len(b.Time) == 0 {
		return 0, false
	}
	return b.Time[len(b.Time)-1], true
}

// DataType classifies an input channel by the role it plays in the
// acquisition.
type DataType uint8

const (
	Pmt1 DataType = iota
	Pmt2
	Pmt3
	Pmt4
	Line
	Frame
	TagLens
	Laser
	Invalid
)

func (d DataType) String() string {
	switch d {
	case Pmt1:
		return "Pmt1"
	case Pmt2:
		return "Pmt2"
	case Pmt3:
		return "Pmt3"
	case Pmt4:
		return "Pmt4"
	case Line:
		return "Line"
	case Frame:
		return "Frame"
	case TagLens:
		return "TagLens"
	case Laser:
		return "Laser"
	default:
		return "Invalid"
	}
}

// SpectralChannel identifies which of the supported PMT channels a
// displayed voxel belongs to. Channel 0 is Pmt1, etc.
type SpectralChannel uint8

// SupportedSpectralChannels is the number of distinct PMT channels the
// frame buffer set tracks, not counting the always-present merge channel.
const SupportedSpectralChannels = 4

// Inputs is a total mapping from a (possibly negative) hardware channel
// number to the DataType it represents. Lookups outside the configured
// range, or at a negative ("disabled") channel, resolve to Invalid.
type Inputs struct {
	byChannel map[int32]DataType
}

// NewInputs builds an Inputs table from a channel->DataType mapping.
// Negative channel numbers are accepted (they denote "disabled" in the
// hardware's own numbering) but will always resolve to Invalid, since a
// disabled channel carries no role.
func NewInputs(m map[int32]DataType) Inputs {
	cp := make(map[int32]DataType, len(m))
	for ch, dt := range m {
		if ch < 0 {
			continue
		}
		cp[ch] = dt
	}
	return Inputs{byChannel: cp}
}

// Lookup returns the DataType assigned to channel, or Invalid if channel
// is unassigned or negative.
func (in Inputs) Lookup(channel int32) DataType {
	if channel < 0 {
		return Invalid
	}
	dt, ok := in.byChannel[channel]
	if !ok {
		return Invalid
	}
	return dt
}

// ImageCoor is a normalized image coordinate. As produced by the snake,
// X and Y lie in [0,1] and Z is 0 for any 2D acquisition (planes <= 1);
// the render-time flip in AppState.renderAndFlush hands the renderer
// X and Y in [-1,0].
type ImageCoor struct {
	X, Y, Z float32
}

// ProcessedEventKind tags the variant held by a ProcessedEvent.
type ProcessedEventKind uint8

const (
	// KindDisplayed means the event yielded a voxel to paint.
	KindDisplayed ProcessedEventKind = iota
	// KindNoOp means the event produced no visible effect (out of
	// fill-fraction, stray photon before sync, unknown channel, ...).
	KindNoOp
	// KindFrameNewFrame means a Frame sync pulse started a new frame.
	KindFrameNewFrame
	// KindLineNewFrame means a Line pulse arrived after a full frame's
	// worth of lines and itself started a new frame at its own time.
	KindLineNewFrame
	// KindPhotonNewFrame means a photon's timestamp fell outside the
	// current frame window and recovery is required.
	KindPhotonNewFrame
	// KindError means the event could not be classified or processed.
	KindError
)

// ProcessedEvent is the outcome of dispatching a single Event.
type ProcessedEvent struct {
	Kind    ProcessedEventKind
	Coor    ImageCoor
	Channel SpectralChannel
}

func displayed(p ImageCoor, ch SpectralChannel) ProcessedEvent {
	return ProcessedEvent{Kind: KindDisplayed, Coor: p, Channel: ch}
}

var (
	noOp           = ProcessedEvent{Kind: KindNoOp}
	frameNewFrame  = ProcessedEvent{Kind: KindFrameNewFrame}
	lineNewFrame   = ProcessedEvent{Kind: KindLineNewFrame}
	photonNewFrame = ProcessedEvent{Kind: KindPhotonNewFrame}
	errEvent       = ProcessedEvent{Kind: KindError}
)

// VoxelDelta gives the per-axis normalized step size of a single voxel,
// as exposed by the snake for the benefit of the serializer's header.
type VoxelDelta struct {
	DX, DY, DZ float32
}

// BidirMode selects the scan direction pattern.
type BidirMode uint8

const (
	Unidir BidirMode = iota
	Bidir
)

func (m BidirMode) String() string {
	if m == Bidir {
		return "Bidir"
	}
	return "Unidir"
}
