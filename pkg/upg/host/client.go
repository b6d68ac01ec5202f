// Package host implements the host side of the uart upgrade protocol:
// it connects to a device, wraps commands in CBWs and moves the data
// phases in frames.
package host

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/aicupg/pkg/uart/comm"
	"github.com/robotalks/aicupg/pkg/upg/bot"
)

// Defaults of a Client.
const (
	DefaultTimeout    = 2 * time.Second
	DefaultMaxRetries = 10
)

// ErrTimeout indicates the device didn't respond in time.
var ErrTimeout = errors.New("timeout")

// StatusError is reported when the device fails a command.
type StatusError struct {
	Command byte
	CSW     bot.CSW
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("command %02x failed: status %d residue %d", e.Command, e.CSW.Status, e.CSW.DataResidue)
}

// VerifyError is reported when read back data differs.
type VerifyError struct {
	Address  uint32
	Expected byte
	Got      byte
}

// Error implements error.
func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify failed at %#x: %02x, expect %02x", e.Address, e.Got, e.Expected)
}

// Client talks to a device over a byte link. It's not safe for
// concurrent use.
type Client struct {
	// Idle is called when no input is available, defaults to sleeping
	// a millisecond.
	Idle func()
	// Timeout bounds every wait for the device.
	Timeout time.Duration
	// MaxRetries is the retry ceiling per frame.
	MaxRetries int

	link    comm.ByteLink
	sendSeq comm.BlockSeq
	recvSeq comm.BlockSeq
	tag     uint32

	in    [256]byte
	inPos int
	inLen int
}

// NewClient creates a Client.
func NewClient(link comm.ByteLink) *Client {
	return &Client{
		Idle:       func() { time.Sleep(time.Millisecond) },
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		link:       link,
	}
}

// Connect waits for the device handshake and replies.
func (c *Client) Connect() error {
	deadline := time.Now().Add(c.Timeout)
	for {
		b, err := c.readByte(deadline)
		if err != nil {
			return err
		}
		if b == comm.SigA {
			break
		}
	}
	if err := c.write([]byte{comm.SigC}); err != nil {
		return err
	}
	c.sendSeq, c.recvSeq = comm.FirstBlockSeq, comm.FirstBlockSeq
	glog.V(2).Info("device connected")
	return nil
}

// Do runs one command. dataOut is sent to the device, or dataIn is
// filled from it, at most one can be used. It returns the bytes received
// into dataIn.
func (c *Client) Do(cb []byte, dataOut, dataIn []byte) (int, error) {
	c.tag++
	length, in := len(dataOut), false
	if dataIn != nil {
		length, in = len(dataIn), true
	}
	cbw := bot.NewCBW(c.tag, uint32(length), in, cb...)
	var buf [bot.CBWSize]byte
	if err := c.send(buf[:cbw.MarshalTo(buf[:])]); err != nil {
		return 0, err
	}
	var csw bot.CSW
	var cswBuf [bot.CSWSize]byte
	if in {
		if err := c.recv(dataIn); err != nil {
			return 0, err
		}
	} else if err := c.send(dataOut); err != nil {
		return 0, err
	}
	if err := c.recv(cswBuf[:]); err != nil {
		return 0, err
	}
	if err := csw.UnmarshalBinary(cswBuf[:]); err != nil {
		return 0, err
	}
	if csw.Tag != c.tag {
		return 0, fmt.Errorf("CSW tag %d, expect %d", csw.Tag, c.tag)
	}
	if err := c.check(cb[0], &csw); err != nil {
		return 0, err
	}
	return length - int(csw.DataResidue), nil
}

func (c *Client) check(cmd byte, csw *bot.CSW) error {
	if csw.Status != bot.StatusPassed {
		return &StatusError{Command: cmd, CSW: *csw}
	}
	return nil
}

// send transfers data in frames, each waiting for ACK.
func (c *Client) send(data []byte) error {
	for off := 0; off < len(data); {
		f := comm.Frame{Seq: c.sendSeq, Long: comm.FrameHeaderFor(len(data)-off) == comm.STX}
		size := f.Size() - comm.FrameOverhead
		if size > len(data)-off {
			size = len(data) - off
		}
		f.Data = data[off : off+size]
		if err := c.sendFrame(f.Bytes()); err != nil {
			return err
		}
		c.sendSeq = c.sendSeq.Next()
		off += size
	}
	return nil
}

func (c *Client) sendFrame(frame []byte) error {
	for retry := 0; ; retry++ {
		if retry > c.MaxRetries {
			c.write([]byte{comm.CAN})
			return comm.ErrRetryExceeded
		}
		if err := c.write(frame); err != nil {
			return err
		}
		deadline := time.Now().Add(c.Timeout)
	wait:
		for {
			b, err := c.readByte(deadline)
			if err == ErrTimeout {
				break
			}
			if err != nil {
				return err
			}
			switch b {
			case comm.ACK:
				return nil
			case comm.NAK:
				break wait
			case comm.CAN:
				return comm.ErrCanceled
			}
		}
		glog.Warningf("resend frame %d", frame[1])
	}
}

// recv receives frames until buf is full.
func (c *Client) recv(buf []byte) error {
	received, naks := 0, 0
	var payload [comm.LongPayloadSize]byte
	for received < len(buf) {
		deadline := time.Now().Add(c.Timeout)
		b, err := c.readByte(deadline)
		if err != nil {
			return err
		}
		size := comm.PayloadSize(b)
		if size == 0 {
			if b == comm.CAN {
				return comm.ErrCanceled
			}
			continue
		}
		var hdr [2]byte
		var crc [2]byte
		if err := c.readFull(hdr[:], deadline); err != nil {
			return err
		}
		if err := c.readFull(payload[:size], deadline); err != nil {
			return err
		}
		if err := c.readFull(crc[:], deadline); err != nil {
			return err
		}
		seq := comm.BlockSeq(hdr[0])
		if !seq.Matches(hdr[1]) || uint16(crc[0])|uint16(crc[1])<<8 != comm.CRC16(payload[:size]) {
			if naks++; naks > c.MaxRetries {
				c.write([]byte{comm.CAN})
				return comm.ErrRetryExceeded
			}
			if err := c.write([]byte{comm.NAK}); err != nil {
				return err
			}
			continue
		}
		switch seq {
		case c.recvSeq:
			received += copy(buf[received:], payload[:size])
			c.recvSeq = c.recvSeq.Next()
			naks = 0
		case c.recvSeq.Prev():
		default:
			c.write([]byte{comm.CAN})
			return &comm.BlockError{Expected: c.recvSeq, Got: seq}
		}
		if err := c.write([]byte{comm.ACK}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) write(p []byte) error {
	for len(p) > 0 {
		n, err := c.link.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			c.Idle()
		}
		p = p[n:]
	}
	return nil
}

func (c *Client) readByte(deadline time.Time) (byte, error) {
	for c.inPos >= c.inLen {
		n, err := c.link.Read(c.in[:])
		if err != nil {
			return 0, err
		}
		if n > 0 {
			c.inPos, c.inLen = 0, n
			break
		}
		if time.Now().After(deadline) {
			return 0, ErrTimeout
		}
		c.Idle()
	}
	b := c.in[c.inPos]
	c.inPos++
	return b, nil
}

func (c *Client) readFull(p []byte, deadline time.Time) error {
	for i := range p {
		b, err := c.readByte(deadline)
		if err != nil {
			return err
		}
		p[i] = b
	}
	return nil
}
