// Package engine runs upgrade commands wrapped in CBW/CSW over a
// transport providing asynchronous send and receive.
package engine

import (
	"github.com/golang/glog"

	"github.com/robotalks/aicupg/pkg/uart/comm"
	"github.com/robotalks/aicupg/pkg/upg/bot"
)

// Transport moves bytes to and from the host. Send and Recv only queue
// the transfer, completion is reported through the Handler methods of
// the Engine.
type Transport interface {
	Send(buf []byte, length int) (int, error)
	Recv(buf []byte, length int) (int, error)
	// Scratch is the buffer staging data phases.
	Scratch() []byte
}

// Request is one command being executed.
type Request struct {
	CBW *bot.CBW
	// Data holds the bytes received for a data-out command, or the
	// buffer to fill for a data-in command.
	Data []byte
	// N is the number of bytes produced by a data-in command.
	N int
	// AfterStatus is called once the CSW reached the host.
	AfterStatus func()
}

// Target executes commands.
type Target interface {
	Execute(req *Request) error
}

// TargetFunc is the func form of Target.
type TargetFunc func(req *Request) error

// Execute implements Target.
func (f TargetFunc) Execute(req *Request) error {
	return f(req)
}

// State is the command cycle state.
type State int

// States.
const (
	StateStopped State = iota
	StateWaitCBW
	StateDataOut
	StateDataIn
	StateSendCSW
)

var stateNames = [...]string{
	StateStopped: "STOPPED",
	StateWaitCBW: "WAIT_CBW",
	StateDataOut: "DATA_OUT",
	StateDataIn:  "DATA_IN",
	StateSendCSW: "SEND_CSW",
}

// String implements Stringer.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Stats counts command cycles.
type Stats struct {
	Commands    int
	Failed      int
	InvalidCBWs int
	Aborted     int
}

// Engine receives a CBW, runs the data phase and replies a CSW.
// It implements bridge.Handler.
type Engine struct {
	transport Transport
	target    Target

	state   State
	cbwBuf  [bot.CBWSize]byte
	cswBuf  [bot.CSWSize]byte
	cbw     bot.CBW
	req     Request
	execErr error
	csw     bot.CSW
	stats   Stats
}

// New creates an Engine.
func New(transport Transport, target Target) *Engine {
	return &Engine{transport: transport, target: target}
}

// State returns the current state.
func (e *Engine) State() State {
	return e.state
}

// Stats returns the counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Start waits for the first CBW.
func (e *Engine) Start() error {
	return e.waitCBW()
}

// DataReceived implements bridge.Handler.
func (e *Engine) DataReceived(n int) {
	switch e.state {
	case StateWaitCBW:
		e.commandReceived(n)
	case StateDataOut:
		e.req.Data = e.req.Data[:n]
		e.finish(e.execute(), uint32(len(e.req.Data)))
	default:
		glog.Warningf("unexpected receive of %d bytes in %s", n, e.state)
	}
}

// DataSent implements bridge.Handler.
func (e *Engine) DataSent(n int) {
	switch e.state {
	case StateDataIn:
		e.finish(e.execErr, uint32(e.req.N))
	case StateSendCSW:
		if fn := e.req.AfterStatus; fn != nil {
			fn()
		}
		e.restart()
	default:
		glog.Warningf("unexpected send of %d bytes in %s", n, e.state)
	}
}

// TransferFailed implements bridge.Handler.
func (e *Engine) TransferFailed(dir comm.Direction, n int, err error) {
	if e.state == StateStopped {
		return
	}
	glog.Errorf("%s failed in %s after %d bytes: %v", dir, e.state, n, err)
	e.stats.Aborted++
	e.restart()
}

func (e *Engine) restart() {
	if err := e.waitCBW(); err != nil {
		glog.Errorf("engine stopped: %v", err)
	}
}

func (e *Engine) waitCBW() error {
	e.req, e.execErr = Request{}, nil
	if _, err := e.transport.Recv(e.cbwBuf[:], bot.CBWSize); err != nil {
		e.state = StateStopped
		return err
	}
	e.state = StateWaitCBW
	return nil
}

func (e *Engine) commandReceived(n int) {
	if err := e.cbw.UnmarshalBinary(e.cbwBuf[:n]); err != nil {
		glog.Warningf("invalid CBW: %v", err)
		e.stats.InvalidCBWs++
		e.restart()
		return
	}
	e.stats.Commands++
	e.req = Request{CBW: &e.cbw}
	length := int(e.cbw.DataTransferLength)
	scratch := e.transport.Scratch()
	glog.V(2).Infof("CBW tag %d cmd %02x len %d in=%v", e.cbw.Tag, e.cbw.Command(), length, e.cbw.IsDataIn())
	switch {
	case length > len(scratch):
		e.status(bot.StatusPhaseError, e.cbw.DataTransferLength)
	case length == 0:
		e.finish(e.execute(), 0)
	case e.cbw.IsDataIn():
		// the data phase always carries the full length, the residue
		// tells the host how much is meaningful.
		data := scratch[:length]
		e.req.Data = data
		if e.execErr = e.execute(); e.execErr != nil || e.req.N > length {
			e.req.N = 0
		}
		fill(data[e.req.N:], 0)
		e.state = StateDataIn
		if _, err := e.transport.Send(data, length); err != nil {
			glog.Errorf("data in: %v", err)
			e.state = StateStopped
		}
	default:
		e.req.Data = scratch[:length]
		e.state = StateDataOut
		if _, err := e.transport.Recv(scratch, length); err != nil {
			glog.Errorf("data out: %v", err)
			e.state = StateStopped
		}
	}
}

func (e *Engine) execute() error {
	err := e.target.Execute(&e.req)
	if err != nil {
		glog.Warningf("command %02x failed: %v", e.cbw.Command(), err)
	}
	return err
}

// finish sends the CSW after the data phase moved transferred bytes.
func (e *Engine) finish(err error, transferred uint32) {
	status := bot.StatusPassed
	if err != nil {
		status = bot.StatusFailed
		e.req.AfterStatus = nil
	}
	e.status(status, e.cbw.DataTransferLength-transferred)
}

func (e *Engine) status(status byte, residue uint32) {
	if status != bot.StatusPassed {
		e.stats.Failed++
	}
	e.csw = *bot.NewCSW(&e.cbw, residue, status)
	n := e.csw.MarshalTo(e.cswBuf[:])
	e.state = StateSendCSW
	if _, err := e.transport.Send(e.cswBuf[:], n); err != nil {
		glog.Errorf("send CSW: %v", err)
		e.state = StateStopped
	}
}
