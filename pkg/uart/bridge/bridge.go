package bridge

import (
	"errors"
	"time"

	"github.com/golang/glog"
	"github.com/robotalks/aicupg/pkg/framework"
	"github.com/robotalks/aicupg/pkg/uart/comm"
)

var (
	// ErrNoBaudControl indicates the link can't change baud rate.
	ErrNoBaudControl = errors.New("link has no baud rate control")
	// ErrInvalidBaudrate indicates a non-positive baud rate.
	ErrInvalidBaudrate = errors.New("invalid baud rate")
)

// Bridge adapts the command/data transfers of the upgrade engine onto
// a framed uart session. It's polled from a single goroutine.
type Bridge struct {
	conf         comm.Config
	scratchSize  int
	scratchAlign int
	handler      Handler

	link        comm.ByteLink
	session     *comm.Session
	scratch     *AlignedBuffer
	pendingBaud int
	ctl         framework.LoopControl
	now         time.Time
}

// Snapshot is the diagnostic view of a Bridge.
type Snapshot struct {
	Ready           bool
	Conn            comm.ConnState
	Stage           comm.Stage
	Timeline        []comm.Stage
	Pending         int
	Baudrate        int
	PendingBaudrate int
	LastRecv        time.Time
	LastSend        time.Time
	Stats           comm.Stats
}

// New creates a Bridge over the link. Init must be called before use.
func New(link comm.ByteLink, opts ...Option) *Bridge {
	b := &Bridge{
		conf:         comm.DefaultConfig(),
		scratchSize:  DefaultScratchSize,
		scratchAlign: DefaultScratchAlign,
		handler:      nopHandler{},
		link:         link,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetHandler replaces the completion handler.
func (b *Bridge) SetHandler(h Handler) {
	if h == nil {
		h = nopHandler{}
	}
	b.handler = h
}

// Init allocates the scratch buffer and starts the session. It's a no-op
// if already initialized. On failure the bridge stays uninitialized.
func (b *Bridge) Init() error {
	if b.session != nil {
		return nil
	}
	scratch, err := NewAlignedBuffer(b.scratchSize, b.scratchAlign)
	if err != nil {
		glog.Errorf("bridge init: %v", err)
		return err
	}
	b.scratch = scratch
	b.session = comm.NewSession(b.link, b.conf)
	glog.V(2).Infof("bridge initialized, scratch %d aligned %d", scratch.Len(), scratch.Align())
	return nil
}

// Deinit stops the session. Queued transfers are reported as failed.
func (b *Bridge) Deinit() {
	if b.session == nil {
		return
	}
	b.session.Close()
	b.reportFailures()
	b.session, b.scratch, b.pendingBaud = nil, nil, 0
}

// Ready indicates Init succeeded.
func (b *Bridge) Ready() bool {
	return b.session != nil
}

// Session returns the protocol session, nil if not initialized.
func (b *Bridge) Session() *comm.Session {
	return b.session
}

// Scratch returns the scratch buffer, nil if not initialized.
func (b *Bridge) Scratch() []byte {
	if b.scratch == nil {
		return nil
	}
	return b.scratch.Bytes()
}

// StartRead queues sending length bytes of buf to the host.
func (b *Bridge) StartRead(buf []byte, length int) (int, error) {
	return b.start(comm.DirRead, buf, length)
}

// StartWrite queues receiving length bytes from the host into buf.
func (b *Bridge) StartWrite(buf []byte, length int) (int, error) {
	return b.start(comm.DirWrite, buf, length)
}

// Send is StartRead named from the device side.
func (b *Bridge) Send(buf []byte, length int) (int, error) {
	return b.StartRead(buf, length)
}

// Recv is StartWrite named from the device side.
func (b *Bridge) Recv(buf []byte, length int) (int, error) {
	return b.StartWrite(buf, length)
}

func (b *Bridge) start(dir comm.Direction, buf []byte, length int) (int, error) {
	if b.session == nil {
		return 0, comm.ErrNotReady
	}
	task, err := comm.NewTask(dir, buf, length)
	if err != nil {
		return 0, err
	}
	if err := b.session.Enqueue(task); err != nil {
		return 0, err
	}
	glog.V(4).Infof("%s %d bytes queued", dir, length)
	return length, nil
}

// RequestBaudrate schedules a baud rate change applied once the session
// is idle.
func (b *Bridge) RequestBaudrate(rate int) error {
	if rate <= 0 {
		return ErrInvalidBaudrate
	}
	if _, ok := b.link.(comm.BaudLink); !ok {
		return ErrNoBaudControl
	}
	b.pendingBaud = rate
	return nil
}

// Reset returns the session to detecting, failing all transfers.
func (b *Bridge) Reset() {
	if b.session == nil {
		return
	}
	b.session.Reset()
	b.reportFailures()
}

// Poll runs the session once and reports finished transfers. Only link
// errors are returned.
func (b *Bridge) Poll(now time.Time) error {
	if b.session == nil {
		return comm.ErrNotReady
	}
	b.now = now
	err := b.session.Step(now)
	b.reportFailures()
	switch b.session.Stage() {
	case comm.StageDataSendDone:
		if t := b.retire(); t != nil {
			b.handler.DataSent(t.Transferred)
		}
	case comm.StageDataRecvDone:
		if t := b.retire(); t != nil {
			b.handler.DataReceived(t.Transferred)
		}
	}
	if b.session.Stage().IsIdle() && b.session.Active() == nil {
		b.applyBaudrate()
		if b.session.Stage() == comm.StageWaitAck && b.session.Pending() == 0 {
			b.session.SetStage(comm.StageCmdRecv)
		}
	}
	return err
}

// Control implements framework.Controller.
func (b *Bridge) Control(cc framework.ControlContext) error {
	b.ctl = cc
	if err := b.Poll(cc.Time()); err != nil && err != comm.ErrNotReady {
		return err
	}
	return nil
}

// AddToLoop implements framework.LoopAdder. A link which is a
// framework.Runnable is run by the loop.
func (b *Bridge) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvProtocol, b)
	if runner, ok := b.link.(framework.Runnable); ok {
		l.AddRunnable(runner)
	}
}

// Snapshot returns the diagnostic view.
func (b *Bridge) Snapshot() Snapshot {
	snapshot := Snapshot{PendingBaudrate: b.pendingBaud}
	if bl, ok := b.link.(comm.BaudLink); ok {
		snapshot.Baudrate = bl.Baudrate()
	}
	if s := b.session; s != nil {
		snapshot.Ready = true
		snapshot.Conn = s.Conn()
		snapshot.Stage = s.Stage()
		snapshot.Timeline = s.Status().Snapshot()
		snapshot.Pending = s.Pending()
		snapshot.LastRecv = s.LastRecv()
		snapshot.LastSend = s.LastSend()
		snapshot.Stats = s.Stats()
	}
	return snapshot
}

// retire clears the done stage before the callback so it fires once.
func (b *Bridge) retire() *comm.Task {
	t := b.session.Retire()
	b.session.SetStage(comm.StageWaitAck)
	if t != nil {
		b.post(t)
	}
	return t
}

func (b *Bridge) reportFailures() {
	for _, t := range b.session.TakeFailed() {
		b.post(t)
		b.handler.TransferFailed(t.Dir, t.Transferred, t.Err)
	}
}

func (b *Bridge) applyBaudrate() {
	if b.pendingBaud == 0 {
		return
	}
	rate := b.pendingBaud
	b.pendingBaud = 0
	err := b.link.(comm.BaudLink).SetBaudrate(rate)
	if err != nil {
		glog.Errorf("baudrate change to %d discarded: %v", rate, err)
	} else {
		glog.Infof("baudrate changed to %d", rate)
	}
	if b.ctl != nil {
		b.ctl.PostMessage(&BaudEvent{Time: b.now, Baudrate: rate, Err: err})
	}
}

func (b *Bridge) post(t *comm.Task) {
	if b.ctl == nil {
		return
	}
	b.ctl.PostMessage(&TransferEvent{
		Time:        b.now,
		Dir:         t.Dir,
		Length:      t.Length,
		Transferred: t.Transferred,
		Err:         t.Err,
	})
}
