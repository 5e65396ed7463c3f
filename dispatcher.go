package rpysight

import "log"

// Dispatcher classifies each Event by its channel's configured role and
// routes it to the snake or to the framing state machine (spec.md 4.2).
type Dispatcher struct {
	inputs  Inputs
	snake   Snake
	framing *Framing
}

// NewDispatcher builds a Dispatcher wired to a fixed Inputs table, Snake
// and Framing state machine.
func NewDispatcher(inputs Inputs, snake Snake, framing *Framing) *Dispatcher {
	return &Dispatcher{inputs: inputs, snake: snake, framing: framing}
}

// spectralChannelFor maps a Pmt1..Pmt4 DataType to its zero-based
// SpectralChannel index.
func spectralChannelFor(dt DataType) SpectralChannel {
	switch dt {
	case Pmt1:
		return 0
	case Pmt2:
		return 1
	case Pmt3:
		return 2
	case Pmt4:
		return 3
	default:
		return 0
	}
}

// Dispatch classifies and routes a single Event. Overflow/error events
// (Type != ValidTimeTag) are logged and discarded. Events on an unknown
// channel resolve to Invalid and are silently dropped (NoOp).
func (d *Dispatcher) Dispatch(e Event) ProcessedEvent {
	if !e.IsValid() {
		log.Printf("rpysight: dropping non-tag event (type=%d missed=%d chan=%d time=%d)",
			e.Type, e.MissedEvents, e.Channel, e.Time)
		return noOp
	}

	switch dt := d.inputs.Lookup(e.Channel); dt {
	case Pmt1, Pmt2, Pmt3, Pmt4:
		return d.snake.TimeToCoordLinear(e.Time, spectralChannelFor(dt))
	case Line:
		return d.framing.OnLine(e.Time)
	case Frame:
		return d.framing.OnFrame(e.Time)
	case TagLens:
		return d.snake.NewTaglensPeriod(e.Time)
	case Laser:
		return d.snake.NewLaserEvent(e.Time)
	default:
		return noOp
	}
}
