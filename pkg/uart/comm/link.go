package comm

import "time"

// ByteLink is the raw duplex byte channel used by a Session.
type ByteLink interface {
	// Read copies received bytes into p. It must not block and
	// returns 0 if nothing is available.
	Read(p []byte) (int, error)
	// Write queues p for transmitting and returns the number of bytes
	// accepted, which can be less than len(p).
	Write(p []byte) (int, error)
}

// BaudLink is a ByteLink whose baud rate can be changed.
type BaudLink interface {
	ByteLink
	Baudrate() int
	// SetBaudrate flushes pending input and switches to the new rate.
	SetBaudrate(rate int) error
}

// Config defines the tunables of a Session.
type Config struct {
	// AckTimeout is how long a sent frame waits for ACK before retransmitting.
	AckTimeout time.Duration
	// RecvTimeout is the longest gap allowed between bytes of one frame.
	RecvTimeout time.Duration
	// HandshakeInterval is the period of SIG_A while detecting.
	HandshakeInterval time.Duration
	// MaxRetries is the number of retransmissions (sending) or NAKs
	// (receiving) tolerated for one frame before aborting the task.
	MaxRetries int
	// Strict aborts the task on an unexpected block number, otherwise NAK.
	Strict bool
	// FullHandshake restarts the SIG_A cadence on every Reset, not only
	// before the first connection.
	FullHandshake bool
}

// Default values of Config.
const (
	DefaultAckTimeout        = time.Second
	DefaultRecvTimeout       = time.Second
	DefaultHandshakeInterval = 1000 * time.Millisecond
	DefaultMaxRetries        = 10
)

// DefaultConfig returns the default Config.
func DefaultConfig() Config {
	return Config{
		AckTimeout:        DefaultAckTimeout,
		RecvTimeout:       DefaultRecvTimeout,
		HandshakeInterval: DefaultHandshakeInterval,
		MaxRetries:        DefaultMaxRetries,
		Strict:            true,
		FullHandshake:     true,
	}
}

// Stats counts protocol events of a Session.
type Stats struct {
	FramesSent     int
	FramesReceived int
	Duplicates     int
	NAKsSent       int
	NAKsReceived   int
	Retransmits    int
	Aborts         int
}
