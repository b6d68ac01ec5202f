package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady indicates the session is not ready for transfers.
	ErrNotReady = errors.New("not ready")
	// ErrCanceled indicates the peer sent CAN.
	ErrCanceled = errors.New("canceled by peer")
	// ErrRetryExceeded indicates a frame failed more than MaxRetries times.
	ErrRetryExceeded = errors.New("retry limit exceeded")
	// ErrClosed indicates the transfer was dropped by reset or teardown.
	ErrClosed = errors.New("session closed")
	// ErrInvalidLength indicates the requested length doesn't fit the buffer.
	ErrInvalidLength = errors.New("invalid transfer length")
)

// BlockError is reported when a frame carries a block number which is
// neither the expected one nor a retransmission of the previous one.
type BlockError struct {
	Expected BlockSeq
	Got      BlockSeq
}

// Error implements error.
func (e *BlockError) Error() string {
	return fmt.Sprintf("unexpected block %d, expect %d", e.Got, e.Expected)
}
