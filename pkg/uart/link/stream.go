package link

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/robotalks/aicupg/pkg/framework"
)

// Stream adapts a blocking io.ReadWriteCloser into a polled byte link.
// Run must be running for bytes to be received.
type Stream struct {
	name string
	rw   io.ReadWriteCloser
	ring *Ring

	closeOnce sync.Once
	closeErr  error
}

// NewStream creates a Stream.
func NewStream(name string, rw io.ReadWriteCloser, ringSize int) *Stream {
	return &Stream{name: name, rw: rw, ring: NewRing(ringSize)}
}

// DialTCP connects to a raw TCP serial server (e.g. ser2net).
func DialTCP(addr string) (*Stream, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return NewStream("tcp:"+addr, conn, DefaultRingSize), nil
}

// ListenTCP waits for a single peer on addr, the listener is closed
// once the peer is accepted.
func ListenTCP(addr string) (*Stream, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}
	defer ln.Close()
	conn, err := ln.Accept()
	if err != nil {
		return nil, errors.Wrapf(err, "accept %s", addr)
	}
	return NewStream("tcp:"+conn.RemoteAddr().String(), conn, DefaultRingSize), nil
}

// Name implements framework.Named.
func (s *Stream) Name() string {
	return s.name
}

// Ring returns the receive buffer.
func (s *Stream) Ring() *Ring {
	return s.ring
}

// Read implements comm.ByteLink.
func (s *Stream) Read(p []byte) (int, error) {
	return s.ring.Read(p)
}

// Write implements comm.ByteLink.
func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.rw.Write(p)
	return n, errors.Wrapf(err, "%s write", s.name)
}

// Close closes the underlying stream. Only the first call reaches it.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.rw.Close()
	})
	return s.closeErr
}

// Run implements framework.Runnable. It wakes up the loop when bytes
// arrive if started by a framework.Loop.
func (s *Stream) Run(ctx context.Context) error {
	if ctl := framework.LoopCtlFrom(ctx); ctl != nil {
		s.ring.Notify = ctl.TriggerNext
	}
	return framework.RunWithContextCloser(ctx, s, func() error {
		buf := make([]byte, 512)
		for {
			n, err := s.rw.Read(buf)
			if n > 0 {
				s.ring.Put(buf[:n])
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "%s read", s.name)
			}
		}
	})
}
