package bridge

import (
	"time"

	"github.com/robotalks/aicupg/pkg/uart/comm"
)

// Handler receives transfer completions. Methods are called from Poll.
type Handler interface {
	// DataSent reports a completed StartRead, n bytes sent to the host.
	DataSent(n int)
	// DataReceived reports a completed StartWrite, n bytes received.
	DataReceived(n int)
	// TransferFailed reports an aborted transfer and the bytes
	// transferred before the failure.
	TransferFailed(dir comm.Direction, n int, err error)
}

// HandlerFuncs is a Handler built from optional funcs.
type HandlerFuncs struct {
	OnSent     func(n int)
	OnReceived func(n int)
	OnFailed   func(dir comm.Direction, n int, err error)
}

// DataSent implements Handler.
func (h *HandlerFuncs) DataSent(n int) {
	if h.OnSent != nil {
		h.OnSent(n)
	}
}

// DataReceived implements Handler.
func (h *HandlerFuncs) DataReceived(n int) {
	if h.OnReceived != nil {
		h.OnReceived(n)
	}
}

// TransferFailed implements Handler.
func (h *HandlerFuncs) TransferFailed(dir comm.Direction, n int, err error) {
	if h.OnFailed != nil {
		h.OnFailed(dir, n, err)
	}
}

type nopHandler struct{}

func (nopHandler) DataSent(int)                              {}
func (nopHandler) DataReceived(int)                          {}
func (nopHandler) TransferFailed(comm.Direction, int, error) {}

// TransferEvent is posted to the loop when a transfer finishes.
type TransferEvent struct {
	Time        time.Time
	Dir         comm.Direction
	Length      int
	Transferred int
	Err         error
}

// MessageKind implements framework.Message.
func (e *TransferEvent) MessageKind() string {
	return "transfer"
}

// BaudEvent is posted to the loop when a baud rate change is applied
// or discarded.
type BaudEvent struct {
	Time     time.Time
	Baudrate int
	Err      error
}

// MessageKind implements framework.Message.
func (e *BaudEvent) MessageKind() string {
	return "baudrate"
}
