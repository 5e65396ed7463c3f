package rpysight

import (
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PipelineStatus is the status PipelineControl reports to clients,
// adapted from the teacher's ServerStatus: here it describes the
// acquisition loop's progress rather than a detector's trigger state.
type PipelineStatus struct {
	Running         bool
	FramesWritten   int
	DesyncEvents    int
	QueueDepth      int
	QueueCapacity   int
	MeanFrameMillis float64
	FrameMillisStd  float64
}

// frameTimingWindow keeps the most recent inter-frame intervals so
// PipelineStatus can report a rolling mean/stddev frame time, the way
// the teacher's Heartbeat reports a rolling data rate.
type frameTimingWindow struct {
	mu       sync.Mutex
	last     time.Time
	millis   []float64
	capacity int
}

func newFrameTimingWindow(capacity int) *frameTimingWindow {
	if capacity <= 0 {
		capacity = 32
	}
	return &frameTimingWindow{capacity: capacity}
}

func (w *frameTimingWindow) recordFrame() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if !w.last.IsZero() {
		w.millis = append(w.millis, float64(now.Sub(w.last).Microseconds())/1000.0)
		if len(w.millis) > w.capacity {
			w.millis = w.millis[len(w.millis)-w.capacity:]
		}
	}
	w.last = now
}

// meanAndStd reports the rolling mean and sample (unbiased) standard deviation
// of recent inter-frame intervals, via gonum/stat -- the same package
// the teacher's off subpackage uses for distributional bookkeeping.
func (w *frameTimingWindow) meanAndStd() (mean, std float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.millis) < 2 {
		return 0, 0
	}
	mean, std = stat.MeanStdDev(w.millis, nil)
	return mean, std
}

// Heartbeat is the shape of a periodic progress report, adapted from
// the teacher's Heartbeat (there: data rate in MB; here: frames
// completed). Nothing in this package sends a Heartbeat to clients;
// runHeartbeat only logs the counts.
type Heartbeat struct {
	Running bool
	Frames  int
}

// PipelineControl is the JSON-RPC control surface for one AppState,
// adapted from the teacher's SourceControl (rpc_server.go). Where the
// teacher's SourceControl owned hardware source variants and trigger
// state, PipelineControl owns a single running AppState and reports
// frame, desync and frame-timing status instead. The QueueDepth and
// QueueCapacity fields of PipelineStatus are not filled in and stay 0.
type PipelineControl struct {
	app *AppState

	status     atomic.Value
	framesDone int32
	desyncs    int32
	timing     *frameTimingWindow
}

// NewPipelineControl builds a PipelineControl wrapping app. app's
// acquisition loop must be started separately (by StartInfAcqLoop,
// typically in its own goroutine); PipelineControl only reports on it
// and can ask the renderer to stop accepting new frames.
func NewPipelineControl(app *AppState) *PipelineControl {
	pc := &PipelineControl{app: app, timing: newFrameTimingWindow(32)}
	pc.SetStatus(PipelineStatus{})
	return pc
}

// Status loads the current PipelineStatus atomically.
func (pc *PipelineControl) Status() PipelineStatus {
	v := pc.status.Load()
	if v == nil {
		return PipelineStatus{}
	}
	return v.(PipelineStatus)
}

// SetStatus stores a new PipelineStatus atomically.
func (pc *PipelineControl) SetStatus(s PipelineStatus) {
	pc.status.Store(s)
}

// NoteFrameWritten increments the frames-written counter and records a
// sample for the rolling frame-timing stats; the acquisition loop calls
// this once per serializer.Enqueue.
func (pc *PipelineControl) NoteFrameWritten() {
	atomic.AddInt32(&pc.framesDone, 1)
	pc.timing.recordFrame()
}

// NoteDesync increments the desync counter; the acquisition loop calls
// this once per PhotonNewFrame resync (spec.md 4.4).
func (pc *PipelineControl) NoteDesync() {
	atomic.AddInt32(&pc.desyncs, 1)
}

// GetStatus is the RPC-callable query for the current PipelineStatus.
func (pc *PipelineControl) GetStatus(dummy *string, reply *PipelineStatus) error {
	s := pc.Status()
	s.FramesWritten = int(atomic.LoadInt32(&pc.framesDone))
	s.DesyncEvents = int(atomic.LoadInt32(&pc.desyncs))
	s.MeanFrameMillis, s.FrameMillisStd = pc.timing.meanAndStd()
	if pc.app.renderer != nil {
		s.Running = !pc.app.renderer.ShouldClose()
	}
	*reply = s
	return nil
}

// RequestStop is the RPC-callable request to stop accepting new frames;
// it calls the renderer's Hide, after which both NullRenderer and
// GLRenderer report ShouldClose()==true, which the
// acquisition loop's outer loop checks once per frame.
func (pc *PipelineControl) RequestStop(dummy *string, reply *bool) error {
	if pc.app.renderer != nil {
		pc.app.renderer.Hide()
	}
	*reply = true
	return nil
}

// runHeartbeat logs a periodic status line, mirroring the teacher's
// broadcastHeartbeat ticker in RunRPCServer, but without a client-update
// channel: this control surface is polled, not pushed to.
func (pc *PipelineControl) runHeartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		s := pc.Status()
		log.Printf("rpysight: heartbeat: frames=%d desyncs=%d",
			atomic.LoadInt32(&pc.framesDone), atomic.LoadInt32(&pc.desyncs))
		_ = s
	}
}

// RunControlServer sets up and runs a permanent JSON-RPC server exposing
// pc, mirroring the teacher's RunRPCServer. If block, it blocks until
// Ctrl-C and then asks the pipeline to stop.
func RunControlServer(pc *PipelineControl, port int, block bool) error {
	go pc.runHeartbeat(2 * time.Second)

	server := rpc.NewServer()
	if err := server.Register(pc); err != nil {
		return fmt.Errorf("rpysight: registering control server: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("rpysight: control server listen: %w", err)
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				log.Printf("rpysight: control server accept error: %v", err)
				return
			}
			log.Printf("rpysight: control server: new connection")
			go func() {
				codec := jsonrpc.NewServerCodec(conn)
				for {
					if err := server.ServeRequest(codec); err != nil {
						log.Printf("rpysight: control server connection closed: %v", err)
						break
					}
				}
			}()
		}
	}()

	if block {
		interruptCatcher := make(chan os.Signal, 1)
		signal.Notify(interruptCatcher, os.Interrupt)
		<-interruptCatcher
		var dummy bool
		pc.RequestStop(nil, &dummy)
		return listener.Close()
	}
	return nil
}
