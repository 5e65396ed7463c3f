package rpysight

import (
	"math"
	"sort"
)

// Snake is the capability set that downstream code (the dispatcher, the
// pipeline) depends on. Two implementations exist -- snake2D and
// snake3D -- selected once at construction time from AppConfig.Planes;
// nothing downstream dispatches on the variant at runtime.
type Snake interface {
	// TimeToCoordLinear maps an absolute Picosecond timestamp on the
	// given spectral channel to a Displayed/NoOp/PhotonNewFrame
	// ProcessedEvent.
	TimeToCoordLinear(t Picosecond, channel SpectralChannel) ProcessedEvent
	// UpdateSnakeForNextFrame resets the rolling frame origin.
	UpdateSnakeForNextFrame(newFrameOrigin Picosecond)
	// NewTaglensPeriod records a new TAG-lens zero crossing.
	NewTaglensPeriod(t Picosecond) ProcessedEvent
	// NewLaserEvent records a laser sync pulse.
	NewLaserEvent(t Picosecond) ProcessedEvent
	// VoxelDeltaIm exposes the per-axis quantization step for the
	// serializer header.
	VoxelDeltaIm() VoxelDelta
	// FrameOrigin returns the current rolling frame origin, used by the
	// pipeline's batch-relevance check (spec.md 4.4).
	FrameOrigin() Picosecond
}

// snakeBin is one row-sample bin in the precomputed bin table. tEnd is
// relative to the frame origin, i.e. it is the absolute offset at which
// this bin's time window ends.
type snakeBin struct {
	tEnd   Picosecond
	x, y   float32
	active bool
}

// bintable holds the precomputed, immutable-in-structure mapping from a
// within-frame time offset to a coordinate, shared by both the 2D and 3D
// snake variants.
type bintable struct {
	bins       []snakeBin
	frameSpan  Picosecond
	frameDead  Picosecond
	voxelDelta VoxelDelta
}

// buildBinTable precomputes the bin table for one frame's span from an
// AppConfig, per spec.md 4.1: rows of columns sample bins sweeping
// [0,1], sinusoidal within the active fraction, bidirectional rows
// alternating sweep direction, one extra inactive bin per row when the
// fill fraction is less than 100.
func buildBinTable(cfg AppConfig) bintable {
	rowPeriod := cfg.ScanPeriod
	if cfg.Bidir == Bidir {
		rowPeriod /= 2
	}
	rowActiveTime := Picosecond(float64(rowPeriod) * cfg.FillFraction / 100.0)

	bins := make([]snakeBin, 0, cfg.Rows*(cfg.Columns+1))
	for row := 0; row < cfg.Rows; row++ {
		tRowStart := Picosecond(row)*rowPeriod + cfg.LineShift
		y := float32(row) / float32(cfg.Rows)
		reversed := cfg.Bidir == Bidir && row%2 == 1

		for k := 0; k < cfg.Columns; k++ {
			frac := float64(k+1) / float64(cfg.Columns)
			tLocal := sinusoidalInverse(frac, rowActiveTime)
			x := float32(k) / float32(cfg.Columns)
			if reversed {
				x = float32(cfg.Columns-1-k) / float32(cfg.Columns)
			}
			bins = append(bins, snakeBin{
				tEnd:   tRowStart + tLocal,
				x:      x,
				y:      y,
				active: true,
			})
		}
		if rowActiveTime < rowPeriod {
			bins = append(bins, snakeBin{
				tEnd:   tRowStart + rowPeriod,
				x:      0,
				y:      y,
				active: false,
			})
		}
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].tEnd < bins[j].tEnd })

	vd := VoxelDelta{
		DX: 1.0 / float32(cfg.Columns),
		DY: 1.0 / float32(cfg.Rows),
	}
	if cfg.Is3D() {
		vd.DZ = 1.0 / float32(cfg.Planes)
	}

	return bintable{
		bins:       bins,
		frameSpan:  cfg.FrameSpan(),
		frameDead:  cfg.FrameDeadTime,
		voxelDelta: vd,
	}
}

// sinusoidalInverse returns the time, within [0, rowActiveTime), at
// which the sinusoidal sweep x(t) = (1-cos(pi*t/rowActiveTime))/2 first
// reaches the given fraction of the field of view.
func sinusoidalInverse(xFrac float64, rowActiveTime Picosecond) Picosecond {
	if xFrac <= 0 {
		return 0
	}
	if xFrac >= 1 {
		return rowActiveTime
	}
	theta := math.Acos(1 - 2*xFrac)
	return Picosecond(float64(rowActiveTime) * theta / math.Pi)
}

// lookup performs the bin-table binary search described in spec.md 4.1:
// the bin whose t_end is the smallest not less than delta. On a tie
// between bins sharing the same t_end, the later (larger-index) one is
// preferred.
func (bt *bintable) lookup(delta Picosecond) (snakeBin, bool) {
	n := len(bt.bins)
	idx := sort.Search(n, func(i int) bool { return bt.bins[i].tEnd >= delta })
	if idx >= n {
		return snakeBin{}, false
	}
	for idx+1 < n && bt.bins[idx+1].tEnd == bt.bins[idx].tEnd {
		idx++
	}
	return bt.bins[idx], true
}

// resolve implements the shared classification logic of
// time_to_coord_linear once the within-frame delta is known: stray
// photon before sync, beyond the frame window, or a bin lookup.
func (bt *bintable) resolve(frameOrigin, t Picosecond) (snakeBin, ProcessedEvent, bool) {
	delta := t - frameOrigin
	if delta < 0 {
		return snakeBin{}, noOp, false
	}
	if delta >= bt.frameSpan+bt.frameDead {
		return snakeBin{}, photonNewFrame, false
	}
	bin, ok := bt.lookup(delta)
	if !ok || !bin.active {
		return snakeBin{}, noOp, false
	}
	return bin, ProcessedEvent{}, true
}

// snake2D implements Snake for any AppConfig with Planes <= 1.
type snake2D struct {
	bt          bintable
	frameOrigin Picosecond
}

// NewSnake builds the Snake implementation appropriate to cfg: snake2D
// for Planes<=1, snake3D (TAG-lens modulated z) otherwise. Downstream
// code depends only on the Snake interface, never on the concrete type.
func NewSnake(cfg AppConfig, initialFrameOrigin Picosecond) Snake {
	bt := buildBinTable(cfg)
	if cfg.Is3D() {
		return &snake3D{
			bt:          bt,
			frameOrigin: initialFrameOrigin,
			tagPeriod:   cfg.TagPeriod,
		}
	}
	return &snake2D{bt: bt, frameOrigin: initialFrameOrigin}
}

func (s *snake2D) TimeToCoordLinear(t Picosecond, channel SpectralChannel) ProcessedEvent {
	bin, special, ok := s.bt.resolve(s.frameOrigin, t)
	if !ok {
		return special
	}
	return displayed(ImageCoor{X: bin.x, Y: bin.y, Z: 0}, channel)
}

func (s *snake2D) UpdateSnakeForNextFrame(newFrameOrigin Picosecond) {
	s.frameOrigin = newFrameOrigin
}

func (s *snake2D) NewTaglensPeriod(t Picosecond) ProcessedEvent {
	return noOp
}

func (s *snake2D) NewLaserEvent(t Picosecond) ProcessedEvent {
	return noOp
}

func (s *snake2D) VoxelDeltaIm() VoxelDelta {
	return s.bt.voxelDelta
}

func (s *snake2D) FrameOrigin() Picosecond {
	return s.frameOrigin
}

// snake3D implements Snake for a volumetric (TAG lens modulated)
// acquisition. Z is computed by linear interpolation of the phase
// within the current TAG-lens period, reset at every new zero crossing
// and at every new frame.
type snake3D struct {
	bt          bintable
	frameOrigin Picosecond
	tagPeriod   Picosecond
	tagZero     Picosecond
	haveTagZero bool
	lastLaser   Picosecond
}

func (s *snake3D) zFor(t Picosecond) float32 {
	if !s.haveTagZero || s.tagPeriod <= 0 {
		return 0
	}
	phase := t - s.tagZero
	if phase < 0 {
		return 0
	}
	phase %= s.tagPeriod
	return float32(float64(phase) / float64(s.tagPeriod))
}

func (s *snake3D) TimeToCoordLinear(t Picosecond, channel SpectralChannel) ProcessedEvent {
	bin, special, ok := s.bt.resolve(s.frameOrigin, t)
	if !ok {
		return special
	}
	return displayed(ImageCoor{X: bin.x, Y: bin.y, Z: s.zFor(t)}, channel)
}

func (s *snake3D) UpdateSnakeForNextFrame(newFrameOrigin Picosecond) {
	s.frameOrigin = newFrameOrigin
	s.haveTagZero = false
}

func (s *snake3D) NewTaglensPeriod(t Picosecond) ProcessedEvent {
	s.tagZero = t
	s.haveTagZero = true
	return noOp
}

func (s *snake3D) NewLaserEvent(t Picosecond) ProcessedEvent {
	s.lastLaser = t
	return noOp
}

func (s *snake3D) VoxelDeltaIm() VoxelDelta {
	return s.bt.voxelDelta
}

func (s *snake3D) FrameOrigin() Picosecond {
	return s.frameOrigin
}
