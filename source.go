package rpysight

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/array"
	"github.com/apache/arrow/go/v16/arrow/ipc"
	"github.com/apache/arrow/go/v16/arrow/memory"
	czmq "github.com/zeromq/goczmq"
)

// SourceState is the three-valued status a Source reports for its next
// batch, per spec.md 6: a batch is ready, the source has nothing new
// yet (retry), or the source is permanently done.
type SourceState int

const (
	// SourceSome means NextBatch returned a usable EventBatch.
	SourceSome SourceState = iota
	// SourceWaiting means no batch is ready yet; the caller should
	// retry. The "waiting" state is retried indefinitely -- there is no
	// per-operation deadline (spec.md 5).
	SourceWaiting
	// SourceEnd means the source is exhausted and the loop should
	// terminate cleanly.
	SourceEnd
)

// Source is the abstraction supplying a lazy, finite-or-infinite
// sequence of EventBatch values (spec.md 6). Implementations: a
// file-backed Arrow IPC stream and a TCP/ZeroMQ network stream.
type Source interface {
	// Open prepares the source for reading. A failure to open is fatal.
	Open() error
	// NextBatch returns the next batch, or indicates Waiting/End.
	// A transient extraction failure is reported via err with state
	// SourceWaiting, and should be logged and retried by the caller.
	NextBatch() (EventBatch, SourceState, error)
	// Close releases any resources the source holds.
	Close() error
}

// inputSchema is the four-column Arrow schema spec.md 6 mandates for
// the wire format shared by both Source implementations:
// type: u8, missed_events: u16, channel: i32, time: i64.
var inputSchema = arrow.NewSchema([]arrow.Field{
	{Name: "type", Type: arrow.PrimitiveTypes.Uint8},
	{Name: "missed_events", Type: arrow.PrimitiveTypes.Uint16},
	{Name: "channel", Type: arrow.PrimitiveTypes.Int32},
	{Name: "time", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// recordToEventBatch converts an Arrow RecordBatch with inputSchema's
// layout into an EventBatch. The column values are copied out of the
// record, so the batch stays valid after the record is released.
func recordToEventBatch(rec arrow.Record) (EventBatch, error) {
	if rec.NumCols() != 4 {
		return EventBatch{}, fmt.Errorf("rpysight: expected 4 columns, got %d", rec.NumCols())
	}
	typeCol, ok := rec.Column(0).(*array.Uint8)
	if !ok {
		return EventBatch{}, errors.New("rpysight: column 0 (type) is not uint8")
	}
	missedCol, ok := rec.Column(1).(*array.Uint16)
	if !ok {
		return EventBatch{}, errors.New("rpysight: column 1 (missed_events) is not uint16")
	}
	chanCol, ok := rec.Column(2).(*array.Int32)
	if !ok {
		return EventBatch{}, errors.New("rpysight: column 2 (channel) is not int32")
	}
	timeCol, ok := rec.Column(3).(*array.Int64)
	if !ok {
		return EventBatch{}, errors.New("rpysight: column 3 (time) is not int64")
	}

	n := int(rec.NumRows())
	types := make([]EventType, n)
	missed := make([]uint16, n)
	channels := make([]int32, n)
	times := make([]Picosecond, n)
	for i := 0; i < n; i++ {
		types[i] = EventType(typeCol.Value(i))
		missed[i] = missedCol.Value(i)
		channels[i] = chanCol.Value(i)
		times[i] = Picosecond(timeCol.Value(i))
	}
	return NewEventBatch(types, missed, channels, times), nil
}

// FileSource reads EventBatch values from a local Arrow IPC stream
// file, mirroring spec.md 6's "file-backed stream (tabular IPC over a
// local file)".
type FileSource struct {
	path   string
	file   *os.File
	reader *ipc.Reader
}

// NewFileSource builds a FileSource reading from the file at path. The
// file is opened lazily, in Open, so constructing a FileSource never
// fails.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (fs *FileSource) Open() error {
	f, err := os.Open(fs.path)
	if err != nil {
		return fmt.Errorf("rpysight: opening event stream %s: %w", fs.path, err)
	}
	reader, err := ipc.NewReader(f, ipc.WithSchema(inputSchema), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		f.Close()
		return fmt.Errorf("rpysight: opening Arrow IPC stream %s: %w", fs.path, err)
	}
	fs.file = f
	fs.reader = reader
	return nil
}

func (fs *FileSource) NextBatch() (EventBatch, SourceState, error) {
	if !fs.reader.Next() {
		if err := fs.reader.Err(); err != nil && !errors.Is(err, io.EOF) {
			return EventBatch{}, SourceWaiting, err
		}
		return EventBatch{}, SourceEnd, nil
	}
	rec := fs.reader.Record()
	batch, err := recordToEventBatch(rec)
	if err != nil {
		return EventBatch{}, SourceWaiting, err
	}
	return batch, SourceSome, nil
}

func (fs *FileSource) Close() error {
	if fs.reader != nil {
		fs.reader.Release()
	}
	if fs.file != nil {
		return fs.file.Close()
	}
	return nil
}

// NetworkSource reads EventBatch values from a TCP endpoint, per
// spec.md 6's "network stream (TCP endpoint)". Each message received
// over the subscriber socket is a self-contained Arrow IPC stream
// encoding of one RecordBatch with inputSchema's layout -- the same
// wire shape the acquisition bridge uses to publish (dastard's own
// publish_data.go pairs a czmq PubChanneler with exactly this kind of
// consumer).
type NetworkSource struct {
	address string
	sub     *czmq.Channeler
	timeout time.Duration
}

// NewNetworkSource builds a NetworkSource that subscribes to address
// (e.g. "tcp://127.0.0.1:5555"). Waiting polls are bounded by timeout
// between checks, though the caller retries Waiting indefinitely.
func NewNetworkSource(address string, timeout time.Duration) *NetworkSource {
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	return &NetworkSource{address: address, timeout: timeout}
}

func (ns *NetworkSource) Open() error {
	ns.sub = czmq.NewSubChanneler(ns.address, "")
	if ns.sub == nil {
		return fmt.Errorf("rpysight: could not subscribe to %s", ns.address)
	}
	return nil
}

func (ns *NetworkSource) NextBatch() (EventBatch, SourceState, error) {
	select {
	case frames, ok := <-ns.sub.RecvChan:
		if !ok {
			return EventBatch{}, SourceEnd, nil
		}
		if len(frames) == 0 {
			return EventBatch{}, SourceWaiting, errors.New("rpysight: empty network frame")
		}
		reader, err := ipc.NewReader(bytes.NewReader(frames[0]), ipc.WithSchema(inputSchema), ipc.WithAllocator(memory.NewGoAllocator()))
		if err != nil {
			return EventBatch{}, SourceWaiting, err
		}
		defer reader.Release()
		if !reader.Next() {
			return EventBatch{}, SourceWaiting, reader.Err()
		}
		batch, err := recordToEventBatch(reader.Record())
		if err != nil {
			return EventBatch{}, SourceWaiting, err
		}
		return batch, SourceSome, nil
	case <-time.After(ns.timeout):
		return EventBatch{}, SourceWaiting, nil
	}
}

func (ns *NetworkSource) Close() error {
	if ns.sub != nil {
		ns.sub.Destroy()
	}
	return nil
}

// dialTCP reports whether a plain TCP connection to address can be
// opened within timeout; the connection is closed straight away.
func dialTCP(address string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}
