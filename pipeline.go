package rpysight

import (
	"fmt"
	"log"

	"github.com/davecgh/go-spew/spew"
)

// AppState exclusively owns the Snake, FrameBuffers, Inputs, and the
// source iterator, per spec.md 5. Apart from its renderer, which an
// attached PipelineControl's RPC handlers also call, it is not shared
// across goroutines; the serializer worker it spawns communicates only
// through a bounded channel of FrameBuffers snapshots.
type AppState struct {
	cfg        AppConfig
	inputs     Inputs
	snake      Snake
	framing    *Framing
	dispatcher *Dispatcher
	buffers    *FrameBuffers
	source     Source
	renderer   Renderer

	serializer *serializerWorker
	control    *PipelineControl
}

// SetControl attaches a PipelineControl so the acquisition loop reports
// frame/desync counts to it. Optional: a nil control is never touched.
func (as *AppState) SetControl(pc *PipelineControl) {
	as.control = pc
}

func (as *AppState) noteFrameWritten() {
	if as.control != nil {
		as.control.NoteFrameWritten()
	}
}

func (as *AppState) noteDesync() {
	if as.control != nil {
		as.control.NoteDesync()
	}
}

// NewAppState wires together a fresh Snake/Framing/Dispatcher/
// FrameBuffers from cfg, plus the caller-supplied Source and Renderer.
// The frame origin starts at 0: the very first frame boundary will be
// established by advanceTillFirstFrameLine.
func NewAppState(cfg AppConfig, source Source, renderer Renderer) *AppState {
	inputs := cfg.Inputs.Build()
	snake := NewSnake(cfg, 0)
	framing := NewFraming(snake, uint32(cfg.Rows))
	dispatcher := NewDispatcher(inputs, snake, framing)
	buffers := NewFrameBuffers(cfg.IncrementColorBy)

	return &AppState{
		cfg:        cfg,
		inputs:     inputs,
		snake:      snake,
		framing:    framing,
		dispatcher: dispatcher,
		buffers:    buffers,
		source:     source,
		renderer:   renderer,
	}
}

// nextBatch wraps Source.NextBatch, logging a transient extraction
// failure (spec.md 7: "transient batch-extraction failure => log and
// continue").
func (as *AppState) nextBatch() (EventBatch, SourceState, error) {
	batch, state, err := as.source.NextBatch()
	if err != nil && state == SourceWaiting {
		log.Printf("rpysight: batch extraction failed, retrying: %v", err)
	}
	return batch, state, err
}

// batchIrrelevant reports whether every event in batch necessarily
// precedes the current frame origin -- in which case every photon in it
// would resolve to a stray-photon NoOp if dispatched -- so the whole
// batch, sync events included, is short-circuited (spec.md 4.4's
// "relevance check"). An empty batch is also irrelevant.
func (as *AppState) batchIrrelevant(batch *EventBatch) bool {
	last, ok := batch.LastTime()
	if !ok {
		return true
	}
	return last < as.snake.FrameOrigin()
}

// advanceTillFirstFrameLine scans forward -- first through carry, then
// through fresh batches from the source -- for the first event whose
// DataType is Line or Frame. On finding one, it seeds the framing
// machine's line count (1 for Line, 0 for Frame), clears its line
// history, advances the snake's frame origin to that event's time, and
// returns the remaining unread events as the new carry. On source
// exhaustion it returns ok=false.
func (as *AppState) advanceTillFirstFrameLine(carry *EventBatch) (*EventBatch, bool) {
	batch := carry
	for {
		if batch == nil || batch.Remaining() == 0 {
			nb, state, err := as.nextBatch()
			switch state {
			case SourceEnd:
				return nil, false
			case SourceWaiting:
				_ = err
				continue
			}
			batch = &nb
		}

		for {
			e, ok := batch.Next()
			if !ok {
				break
			}
			if !e.IsValid() {
				log.Printf("rpysight: dropping non-tag event while resyncing: %s", e)
				continue
			}
			switch as.inputs.Lookup(e.Channel) {
			case Line:
				as.framing.Reset()
				as.framing.SetLineCount(1)
				as.snake.UpdateSnakeForNextFrame(e.Time)
				return batch, true
			case Frame:
				as.framing.Reset()
				as.framing.SetLineCount(0)
				as.snake.UpdateSnakeForNextFrame(e.Time)
				return batch, true
			default:
				continue
			}
		}
		batch = nil
	}
}

// populateSingleFrame consumes events -- carry first, then fresh
// batches -- dispatching each and accumulating Displayed outcomes into
// FrameBuffers, until the first FrameNewFrame or LineNewFrame, which it
// reports by returning the remaining events as carry. A PhotonNewFrame
// (desync) is handled by immediately invoking advanceTillFirstFrameLine
// on the remaining events. On source exhaustion it returns ok=false.
func (as *AppState) populateSingleFrame(carry *EventBatch) (*EventBatch, bool) {
	batch := carry
	for {
		if batch == nil || batch.Remaining() == 0 {
			nb, state, err := as.nextBatch()
			switch state {
			case SourceEnd:
				return nil, false
			case SourceWaiting:
				_ = err
				continue
			}
			if as.batchIrrelevant(&nb) {
				continue
			}
			batch = &nb
		}

		for {
			e, ok := batch.Next()
			if !ok {
				break
			}
			pe := as.dispatcher.Dispatch(e)
			switch pe.Kind {
			case KindDisplayed:
				as.buffers.AddToRenderQueue(pe.Coor, pe.Channel)
			case KindFrameNewFrame, KindLineNewFrame:
				return batch, true
			case KindPhotonNewFrame:
				log.Printf("rpysight: photon beyond frame window at event %s, resyncing:\n%s",
					e, spew.Sdump(as.cfg))
				as.noteDesync()
				return as.advanceTillFirstFrameLine(batch)
			}
		}
		batch = nil
	}
}

// renderAndFlush draws the merge channel through the renderer, then
// resets the merge and per-channel maps, per spec.md 4.5's merge
// policy: rendering draws only the merged channel.
func (as *AppState) renderAndFlush() {
	merge := as.buffers.DrainMerge()
	for coor, color := range merge {
		flipped := ImageCoor{X: -coor.Y, Y: -coor.X, Z: coor.Z}
		as.renderer.DisplayPoint(flipped, color)
	}
	as.renderer.Render()
	as.buffers.ClearNonRenderedChannels()
}

// StartInfAcqLoop opens the source, establishes the first frame
// boundary, spawns the serializer worker, and then runs frames forever
// (spec.md 4.4) until the source is exhausted or the renderer's window
// is closed. queueDepth bounds the serializer's snapshot queue.
func (as *AppState) StartInfAcqLoop(queueDepth int) error {
	if err := as.source.Open(); err != nil {
		return fmt.Errorf("rpysight: opening source: %w", err)
	}
	defer as.source.Close()

	carry, ok := as.advanceTillFirstFrameLine(nil)
	if !ok {
		return fmt.Errorf("rpysight: source exhausted before any Line/Frame sync was seen")
	}

	as.serializer = newSerializerWorker(as.cfg.Filename, as.snake.VoxelDeltaIm(), queueDepth)
	go as.serializer.run()

	for frameNumber := 1; ; frameNumber++ {
		carry, ok = as.populateSingleFrame(carry)
		if frameNumber%as.cfg.RollingAvg == 0 {
			as.serializer.Enqueue(as.buffers.CloneSnapshot())
			as.noteFrameWritten()
			as.renderAndFlush()
		}
		if !ok {
			break
		}
		if as.renderer.ShouldClose() {
			as.renderer.Hide()
			break
		}
	}

	as.serializer.Close()
	as.serializer.Wait()
	return nil
}

// StartAcqLoopFor mirrors StartInfAcqLoop but terminates after at most
// steps frames, or earlier if the source is exhausted; it never consults
// the renderer's ShouldClose. It exists for tests (spec.md 4.4).
func (as *AppState) StartAcqLoopFor(steps int, rollingAvg int, queueDepth int) error {
	if rollingAvg <= 0 {
		rollingAvg = 1
	}
	if err := as.source.Open(); err != nil {
		return fmt.Errorf("rpysight: opening source: %w", err)
	}
	defer as.source.Close()

	carry, ok := as.advanceTillFirstFrameLine(nil)
	if !ok {
		return fmt.Errorf("rpysight: source exhausted before any Line/Frame sync was seen")
	}

	as.serializer = newSerializerWorker(as.cfg.Filename, as.snake.VoxelDeltaIm(), queueDepth)
	go as.serializer.run()

	for frameNumber := 1; frameNumber <= steps; frameNumber++ {
		carry, ok = as.populateSingleFrame(carry)
		if frameNumber%rollingAvg == 0 {
			as.serializer.Enqueue(as.buffers.CloneSnapshot())
			as.noteFrameWritten()
			as.renderAndFlush()
		}
		if !ok {
			break
		}
	}

	as.serializer.Close()
	as.serializer.Wait()
	return nil
}

// Buffers exposes the live FrameBuffers for tests.
func (as *AppState) Buffers() *FrameBuffers {
	return as.buffers
}

// Framing exposes the live Framing state machine for tests.
func (as *AppState) Framing() *Framing {
	return as.framing
}
