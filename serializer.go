package rpysight

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/array"
	"github.com/apache/arrow/go/v16/arrow/ipc"
	"github.com/apache/arrow/go/v16/arrow/memory"
	"gonum.org/v1/gonum/mat"
)

// mergeCentroid computes the mean (x,y) position of the merge channel's
// voxels, as a 1x2 row of a mat.Dense -- the same matrix type the
// teacher uses for its projector/basis bookkeeping (data_source.go,
// off package) -- used here only for a low-volume provenance log line
// ahead of each write.
func mergeCentroid(fb *FrameBuffers) (cx, cy float64, n int) {
	merge := fb.Merge()
	n = len(merge)
	if n == 0 {
		return 0, 0, 0
	}
	coords := mat.NewDense(n, 2, nil)
	i := 0
	for p := range merge {
		coords.Set(i, 0, float64(p.X))
		coords.Set(i, 1, float64(p.Y))
		i++
	}
	var sum mat.Dense
	ones := mat.NewDense(1, n, onesSlice(n))
	sum.Mul(ones, coords)
	return sum.At(0, 0) / float64(n), sum.At(0, 1) / float64(n), n
}

func onesSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

// outputSchema builds the Arrow schema for a serialized frame: seven
// columns {x,y,z,r,g,b,channel} plus the current VoxelDelta marshaled
// to JSON in the schema's metadata, per spec.md 6 and the resolved
// Open Question in SPEC_FULL.md (the on-disk schema is left to the
// implementer, provided property 5 -- byte-for-byte round trip --
// holds; Arrow's IPC writer/reader round-trips both data and metadata
// exactly).
func outputSchema(vd VoxelDelta) (*arrow.Schema, error) {
	vdJSON, err := json.Marshal(vd)
	if err != nil {
		return nil, fmt.Errorf("rpysight: marshaling voxel delta: %w", err)
	}
	md := arrow.NewMetadata([]string{"voxel_delta"}, []string{string(vdJSON)})
	fields := []arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Float32},
		{Name: "y", Type: arrow.PrimitiveTypes.Float32},
		{Name: "z", Type: arrow.PrimitiveTypes.Float32},
		{Name: "r", Type: arrow.PrimitiveTypes.Float32},
		{Name: "g", Type: arrow.PrimitiveTypes.Float32},
		{Name: "b", Type: arrow.PrimitiveTypes.Float32},
		{Name: "channel", Type: arrow.PrimitiveTypes.Uint8},
	}
	return arrow.NewSchema(fields, &md), nil
}

// serializerWorker is the single off-thread consumer of completed
// FrameBuffers snapshots, per spec.md 4.6. It owns the output file
// exclusively; the acquisition thread never touches it directly, only
// enqueues snapshots onto queue.
type serializerWorker struct {
	queue      chan *FrameBuffers
	filename   string
	voxelDelta VoxelDelta
	done       chan struct{}
	writeErrs  int
}

// newSerializerWorker builds a serializer that will write snapshots to
// filename, with a bounded queue of the given depth. A full queue
// blocks the producer: delivery is lossless, per spec.md 4.6.
func newSerializerWorker(filename string, voxelDelta VoxelDelta, queueDepth int) *serializerWorker {
	if queueDepth < 1 {
		queueDepth = 1
	}
	return &serializerWorker{
		queue:      make(chan *FrameBuffers, queueDepth),
		filename:   filename,
		voxelDelta: voxelDelta,
		done:       make(chan struct{}),
	}
}

// Enqueue hands a snapshot to the serializer, blocking if the queue is
// full. Call Close (not this) to signal shutdown.
func (w *serializerWorker) Enqueue(fb *FrameBuffers) {
	w.queue <- fb
}

// Close closes the producer side of the queue; the worker drains
// whatever remains and then exits run().
func (w *serializerWorker) Close() {
	close(w.queue)
}

// Wait blocks until run() has exited (the worker has flushed and closed
// its output file).
func (w *serializerWorker) Wait() {
	<-w.done
}

// run drains the queue, writing each snapshot as one Arrow IPC batch,
// flushing after every write. A write failure is logged and the
// snapshot is dropped; repeated failures are surfaced via writeErrs
// once the queue closes (spec.md 7).
func (w *serializerWorker) run() {
	defer close(w.done)

	schema, err := outputSchema(w.voxelDelta)
	if err != nil {
		log.Printf("rpysight: serializer could not build schema: %v", err)
		for range w.queue {
			w.writeErrs++
		}
		return
	}

	f, err := os.Create(w.filename)
	if err != nil {
		log.Printf("rpysight: serializer could not open %s: %v", w.filename, err)
		for range w.queue {
			w.writeErrs++
		}
		return
	}
	defer f.Close()

	writer, err := ipc.NewWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		log.Printf("rpysight: serializer could not open Arrow writer for %s: %v", w.filename, err)
		w.writeErrs++
		return
	}
	defer writer.Close()

	for fb := range w.queue {
		if cx, cy, n := mergeCentroid(fb); n > 0 {
			log.Printf("rpysight: frame centroid (%.4f, %.4f) over %d voxels", cx, cy, n)
		}
		if err := writeFrame(writer, schema, fb); err != nil {
			log.Printf("rpysight: serializer dropped a frame: %v", err)
			w.writeErrs++
			continue
		}
	}
	if w.writeErrs > 0 {
		log.Printf("rpysight: serializer finished with %d dropped frame(s)", w.writeErrs)
	}
}

// writeFrame builds one RecordBatch from a FrameBuffers snapshot -- all
// four spectral channels plus the merge channel, each voxel becoming a
// row -- and writes it to writer, flushing immediately afterward.
func writeFrame(writer *ipc.Writer, schema *arrow.Schema, fb *FrameBuffers) error {
	pool := memory.NewGoAllocator()
	xb := array.NewFloat32Builder(pool)
	yb := array.NewFloat32Builder(pool)
	zb := array.NewFloat32Builder(pool)
	rb := array.NewFloat32Builder(pool)
	gb := array.NewFloat32Builder(pool)
	bb := array.NewFloat32Builder(pool)
	cb := array.NewUint8Builder(pool)
	defer xb.Release()
	defer yb.Release()
	defer zb.Release()
	defer rb.Release()
	defer gb.Release()
	defer bb.Release()
	defer cb.Release()

	appendChannel := func(channel uint8, voxels map[ImageCoor]Color) {
		for coor, color := range voxels {
			xb.Append(coor.X)
			yb.Append(coor.Y)
			zb.Append(coor.Z)
			rb.Append(color.R)
			gb.Append(color.G)
			bb.Append(color.B)
			cb.Append(channel)
		}
	}
	for ch := 0; ch < SupportedSpectralChannels; ch++ {
		appendChannel(uint8(ch+1), fb.Channel(ch))
	}
	appendChannel(0, fb.Merge()) // channel 0 denotes the merge row set

	cols := []arrow.Array{xb.NewArray(), yb.NewArray(), zb.NewArray(), rb.NewArray(), gb.NewArray(), bb.NewArray(), cb.NewArray()}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	rows := int64(cols[0].Len())
	rec := array.NewRecord(schema, cols, rows)
	defer rec.Release()

	if err := writer.Write(rec); err != nil {
		return fmt.Errorf("writing record batch: %w", err)
	}
	return nil
}
