package comm

import (
	"time"

	"github.com/golang/glog"
)

const inBufSize = 256

// Session is one end (the device) of a link. It owns the protocol state,
// the status FIFO and the task queue. It's not safe for concurrent use,
// all methods are expected to be called from the same polling goroutine.
type Session struct {
	Config Config

	link   ByteLink
	conn   ConnState
	stage  Stage
	status StatusFIFO
	tasks  TaskQueue
	failed []*Task
	stats  Stats
	closed bool

	lastRecv     time.Time
	lastSend     time.Time
	recvSeq      BlockSeq
	sendSeq      BlockSeq
	firstConnect bool

	in     [inBufSize]byte
	inPos  int
	inLen  int
	parser frameParser
	naks   int

	ctrlBuf  [8]byte
	ctrl     []byte
	afterAck Stage

	frameBuf [LongFrameSize]byte
	frame    []byte
	txOff    int
	txBusy   bool
	awaitAck bool
	retries  int
}

// NewSession creates a Session in detecting state.
func NewSession(link ByteLink, conf Config) *Session {
	s := &Session{
		Config:       conf,
		link:         link,
		conn:         ConnDetecting,
		stage:        StageCmdRecv,
		recvSeq:      FirstBlockSeq,
		sendSeq:      FirstBlockSeq,
		firstConnect: true,
	}
	s.ctrl = s.ctrlBuf[:0]
	return s
}

// Link returns the underlying ByteLink.
func (s *Session) Link() ByteLink {
	return s.link
}

// Conn returns the connection state.
func (s *Session) Conn() ConnState {
	return s.conn
}

// Stage returns the current protocol stage.
func (s *Session) Stage() Stage {
	return s.stage
}

// SetStage moves to another stage. Only a done stage can be cleared to
// WAIT_ACK, and an idle stage moved to CMD_RECV; other changes belong to
// the session itself and are ignored.
func (s *Session) SetStage(stage Stage) {
	switch {
	case s.stage.IsDone() && stage == StageWaitAck:
	case s.stage.IsIdle() && stage == StageCmdRecv:
	default:
		return
	}
	s.setStage(stage)
}

// Status returns the status FIFO.
func (s *Session) Status() *StatusFIFO {
	return &s.status
}

// Stats returns the counters.
func (s *Session) Stats() Stats {
	return s.stats
}

// RecvSeq returns the next expected block number.
func (s *Session) RecvSeq() BlockSeq {
	return s.recvSeq
}

// SendSeq returns the block number of the next frame to send.
func (s *Session) SendSeq() BlockSeq {
	return s.sendSeq
}

// LastRecv returns the time of the last good frame received.
func (s *Session) LastRecv() time.Time {
	return s.lastRecv
}

// LastSend returns the time of the last transmission.
func (s *Session) LastSend() time.Time {
	return s.lastSend
}

// FirstConnect indicates no handshake has completed yet.
func (s *Session) FirstConnect() bool {
	return s.firstConnect
}

// Pending returns the number of queued tasks, including the active one.
func (s *Session) Pending() int {
	return s.tasks.Len()
}

// Tasks calls fn on queued tasks in order.
func (s *Session) Tasks(fn func(*Task)) {
	s.tasks.Each(fn)
}

// Enqueue appends a task. It's serviced after all tasks queued before.
func (s *Session) Enqueue(t *Task) error {
	if s.closed {
		return ErrNotReady
	}
	t.Status, t.Err, t.Transferred = TaskPending, nil, 0
	s.tasks.Push(t)
	return nil
}

// Active returns the task being serviced, or nil.
func (s *Session) Active() *Task {
	if t := s.tasks.Front(); t != nil && t.Status == TaskActive {
		return t
	}
	return nil
}

// Retire removes the head task if it completed.
func (s *Session) Retire() *Task {
	if t := s.tasks.Front(); t != nil && t.Status == TaskComplete {
		return s.tasks.Pop()
	}
	return nil
}

// TakeFailed returns the aborted tasks not yet reported.
func (s *Session) TakeFailed() []*Task {
	failed := s.failed
	s.failed = nil
	return failed
}

// Reset re-initializes the session back to detecting. All queued tasks
// fail with ErrClosed.
func (s *Session) Reset() {
	s.dropAll(ErrClosed)
	s.conn = ConnDetecting
	s.recvSeq, s.sendSeq = FirstBlockSeq, FirstBlockSeq
	s.inPos, s.inLen = 0, 0
	if s.Config.FullHandshake || s.firstConnect {
		s.lastSend = time.Time{}
	}
	s.setStage(StageCmdRecv)
}

// Close fails all queued tasks and stops the session.
func (s *Session) Close() {
	s.dropAll(ErrClosed)
	s.closed = true
}

// Step runs the state machine once: it writes pending output, consumes
// whatever input is available and checks timers. It never blocks. Only
// errors from the link are returned.
func (s *Session) Step(now time.Time) error {
	if s.closed {
		return ErrNotReady
	}
	if err := s.flush(now); err != nil {
		return err
	}
	if s.conn == ConnDetecting {
		if err := s.detect(now); err != nil || s.conn == ConnDetecting {
			return err
		}
	}
	s.activate(now)
	for {
		if s.inPos >= s.inLen {
			n, err := s.link.Read(s.in[:])
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
			s.inPos, s.inLen = 0, n
		}
		if !s.consume(s.in[s.inPos], now) {
			break
		}
		s.inPos++
		if err := s.flush(now); err != nil {
			return err
		}
	}
	s.checkTimers(now)
	return s.flush(now)
}

func (s *Session) setStage(stage Stage) {
	if s.stage != stage {
		glog.V(4).Infof("stage %s -> %s", s.stage, stage)
		s.stage = stage
		s.status.Write(stage)
	}
}

func (s *Session) detect(now time.Time) error {
	for s.conn == ConnDetecting {
		if s.inPos >= s.inLen {
			n, err := s.link.Read(s.in[:])
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
			s.inPos, s.inLen = 0, n
		}
		b := s.in[s.inPos]
		s.inPos++
		if b == SigC {
			s.connect(now)
		}
	}
	if s.conn == ConnDetecting && len(s.ctrl) == 0 {
		if s.lastSend.IsZero() || now.Sub(s.lastSend) >= s.Config.HandshakeInterval {
			s.ctrl = append(s.ctrl, SigA)
			return s.flush(now)
		}
	}
	return nil
}

func (s *Session) connect(now time.Time) {
	glog.Infof("link connected (first=%v)", s.firstConnect)
	s.conn, s.firstConnect = ConnConnected, false
	s.recvSeq, s.sendSeq = FirstBlockSeq, FirstBlockSeq
	s.lastRecv = now
	s.ctrl = s.ctrlBuf[:0]
}

func (s *Session) activate(now time.Time) {
	t := s.tasks.Front()
	if t == nil || t.Status != TaskPending || !s.stage.IsIdle() {
		return
	}
	t.Status = TaskActive
	t.FrameSize, t.FrameDone = 0, 0
	s.retries, s.naks = 0, 0
	if t.Dir == DirRead {
		s.setStage(StageDataSend)
		if t.Length == 0 {
			t.Status = TaskComplete
			s.setStage(StageDataSendDone)
			return
		}
		s.stageFrame(t)
		return
	}
	s.setStage(StageDataRecv)
	if t.Length == 0 {
		t.Status = TaskComplete
		s.setStage(StageDataRecvDone)
	}
}

// consume processes one input byte. It returns false if the byte must
// stay buffered until a task is able to take it.
func (s *Session) consume(b byte, now time.Time) bool {
	t := s.Active()
	switch {
	case t == nil:
		if !s.parser.busy() && PayloadSize(b) > 0 {
			return false
		}
		if s.parser.busy() {
			s.consumeStray(b, now)
		} else if b == CAN {
			glog.V(2).Info("CAN ignored while idle")
		}
	case t.Dir == DirWrite:
		s.consumeFrame(t, b, now)
	default:
		s.consumeControl(t, b, now)
	}
	return true
}

// consumeStray parses a frame received while sending, which can only be
// a retransmission of the last frame received if the peer missed our ACK.
func (s *Session) consumeStray(b byte, now time.Time) {
	if s.parser.parse(b, now) == parseGood && s.parser.seq == s.recvSeq.Prev() {
		s.stats.Duplicates++
		s.ctrl = append(s.ctrl, ACK)
	}
}

func (s *Session) consumeFrame(t *Task, b byte, now time.Time) {
	if !s.parser.busy() {
		switch {
		case s.parser.begin(b, now):
			t.FrameSize, t.FrameDone = minInt(s.parser.size, t.Remaining()), 0
		case b == CAN:
			s.abort(t, ErrCanceled, false)
		}
		return
	}
	switch s.parser.parse(b, now) {
	case parseMore:
		t.FrameDone = minInt(s.parser.recvLen, t.FrameSize)
	case parseBad:
		glog.Warningf("bad frame block %d, NAK", s.parser.seq)
		s.nak(t)
	case parseGood:
		s.acceptFrame(t, now)
	}
}

func (s *Session) acceptFrame(t *Task, now time.Time) {
	seq := s.parser.seq
	switch seq {
	case s.recvSeq:
		n := copy(t.Buf[t.Transferred:t.Length], s.parser.data())
		t.Transferred += n
		t.FrameSize, t.FrameDone = n, n
		s.recvSeq = s.recvSeq.Next()
		s.lastRecv, s.naks = now, 0
		s.stats.FramesReceived++
		glog.V(4).Infof("frame %d accepted, %d/%d", seq, t.Transferred, t.Length)
		next := StageDataRecvBuf
		if t.Remaining() == 0 {
			t.Status = TaskComplete
			next = StageDataRecvDone
		}
		s.ack(next)
	case s.recvSeq.Prev():
		s.lastRecv = now
		s.stats.Duplicates++
		glog.V(2).Infof("duplicated frame %d, ACK again", seq)
		s.ack(s.stage)
	default:
		err := &BlockError{Expected: s.recvSeq, Got: seq}
		if s.Config.Strict {
			s.abort(t, err, true)
			return
		}
		glog.Warningf("%v, NAK", err)
		s.nak(t)
	}
}

func (s *Session) ack(next Stage) {
	s.ctrl = append(s.ctrl, ACK)
	if s.stage != StageSendAck {
		s.afterAck = next
		s.setStage(StageSendAck)
	}
}

func (s *Session) nak(t *Task) {
	t.FrameDone = 0
	if s.naks++; s.naks > s.Config.MaxRetries {
		s.abort(t, ErrRetryExceeded, true)
		return
	}
	s.stats.NAKsSent++
	s.ctrl = append(s.ctrl, NAK)
}

func (s *Session) consumeControl(t *Task, b byte, now time.Time) {
	if s.parser.busy() {
		s.consumeStray(b, now)
		return
	}
	switch b {
	case ACK:
		if s.awaitAck {
			s.frameAcked(t)
		}
	case NAK:
		if s.awaitAck {
			s.stats.NAKsReceived++
			s.retransmit(t, "NAK")
		}
	case CAN:
		s.abort(t, ErrCanceled, false)
	default:
		s.parser.begin(b, now)
	}
}

func (s *Session) stageFrame(t *Task) {
	n := t.Remaining()
	f := Frame{Seq: s.sendSeq, Long: FrameHeaderFor(n) == STX}
	if size := f.Size() - FrameOverhead; n > size {
		n = size
	}
	f.Data = t.Buf[t.Transferred : t.Transferred+n]
	t.FrameSize, t.FrameDone = n, 0
	s.frame = f.EncodeTo(s.frameBuf[:])
	s.txOff, s.txBusy, s.awaitAck = 0, true, false
	s.setStage(StageDataSendBuf)
}

func (s *Session) frameAcked(t *Task) {
	t.Transferred += t.FrameSize
	t.FrameDone = t.FrameSize
	glog.V(4).Infof("frame %d acked, %d/%d", s.sendSeq, t.Transferred, t.Length)
	s.sendSeq = s.sendSeq.Next()
	s.retries, s.awaitAck = 0, false
	s.stats.FramesSent++
	if t.Remaining() == 0 {
		t.Status = TaskComplete
		s.setStage(StageDataSendDone)
		return
	}
	s.stageFrame(t)
}

func (s *Session) retransmit(t *Task, reason string) {
	if s.retries++; s.retries > s.Config.MaxRetries {
		s.abort(t, ErrRetryExceeded, true)
		return
	}
	glog.Warningf("retransmit frame %d (%s), retry %d", s.sendSeq, reason, s.retries)
	s.stats.Retransmits++
	t.FrameDone = 0
	s.txOff, s.txBusy, s.awaitAck = 0, true, false
}

func (s *Session) abort(t *Task, err error, notifyPeer bool) {
	glog.Errorf("%s transfer aborted at %d/%d: %v", t.Dir, t.Transferred, t.Length, err)
	if s.tasks.Front() == t {
		s.tasks.Pop()
	}
	t.Status, t.Err = TaskError, err
	s.failed = append(s.failed, t)
	s.stats.Aborts++
	s.parser.reset()
	s.txBusy, s.awaitAck, s.retries, s.naks = false, false, 0, 0
	s.ctrl = s.ctrlBuf[:0]
	if notifyPeer {
		s.ctrl = append(s.ctrl, CAN)
	}
	s.setStage(StageCmdRecv)
}

func (s *Session) dropAll(err error) {
	for _, t := range s.tasks.Clear() {
		t.Status, t.Err = TaskError, err
		s.failed = append(s.failed, t)
	}
	s.parser.reset()
	s.txBusy, s.awaitAck, s.retries, s.naks = false, false, 0, 0
	s.ctrl = s.ctrlBuf[:0]
}

func (s *Session) checkTimers(now time.Time) {
	t := s.Active()
	if s.parser.stalled(now, s.Config.RecvTimeout) {
		s.parser.reset()
		if t != nil && t.Dir == DirWrite {
			glog.Warning("frame receive timeout, NAK")
			s.nak(t)
		}
		return
	}
	if t != nil && t.Dir == DirRead && s.awaitAck && now.Sub(s.lastSend) >= s.Config.AckTimeout {
		s.retransmit(t, "timeout")
	}
}

// flush writes pending output as much as the link accepts. A frame being
// written is never interleaved with control bytes.
func (s *Session) flush(now time.Time) error {
	for {
		var p []byte
		isFrame := false
		switch {
		case s.txBusy && s.txOff > 0:
			p, isFrame = s.frame[s.txOff:], true
		case len(s.ctrl) > 0:
			p = s.ctrl
		case s.txBusy:
			p, isFrame = s.frame, true
		default:
			if s.stage == StageSendAck {
				s.setStage(s.afterAck)
			}
			return nil
		}
		n, err := s.link.Write(p)
		if err != nil {
			return err
		}
		if n <= 0 {
			return nil
		}
		s.lastSend = now
		if !isFrame {
			if s.ctrl = s.ctrl[n:]; len(s.ctrl) == 0 {
				s.ctrl = s.ctrlBuf[:0]
			}
			continue
		}
		s.txOff += n
		if t := s.Active(); t != nil && len(s.frame) > 0 {
			t.FrameDone = t.FrameSize * s.txOff / len(s.frame)
		}
		if s.txOff >= len(s.frame) {
			s.txBusy, s.awaitAck = false, true
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
