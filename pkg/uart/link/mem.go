package link

import "github.com/pkg/errors"

// Mem is one end of an in-memory link pair. Writes go straight into
// the peer's Ring.
type Mem struct {
	// WriteLimit caps the bytes accepted by one Write, 0 for no limit.
	WriteLimit int
	// FailBaudrate makes SetBaudrate fail if set.
	FailBaudrate error

	ring *Ring
	peer *Mem
	baud int
}

// Pipe creates two connected in-memory links at the baud rate.
func Pipe(baudrate int) (*Mem, *Mem) {
	a := &Mem{ring: NewRing(DefaultRingSize * 4), baud: baudrate}
	b := &Mem{ring: NewRing(DefaultRingSize * 4), baud: baudrate, peer: a}
	a.peer = b
	return a, b
}

// Ring returns the receive buffer.
func (m *Mem) Ring() *Ring {
	return m.ring
}

// Read implements comm.ByteLink.
func (m *Mem) Read(p []byte) (int, error) {
	return m.ring.Read(p)
}

// Write implements comm.ByteLink. Bytes are dropped if the peer runs
// at a different baud rate, as a real UART would garble them.
func (m *Mem) Write(p []byte) (int, error) {
	if m.WriteLimit > 0 && len(p) > m.WriteLimit {
		p = p[:m.WriteLimit]
	}
	if m.peer.baud == m.baud {
		m.peer.ring.Put(p)
	}
	return len(p), nil
}

// Baudrate implements comm.BaudLink.
func (m *Mem) Baudrate() int {
	return m.baud
}

// SetBaudrate implements comm.BaudLink.
func (m *Mem) SetBaudrate(rate int) error {
	if m.FailBaudrate != nil {
		return errors.Wrapf(m.FailBaudrate, "set baudrate %d", rate)
	}
	m.baud = rate
	m.ring.Reset()
	return nil
}
