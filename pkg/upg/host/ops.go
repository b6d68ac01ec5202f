package host

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/golang/glog"
	"github.com/marcinbor85/gohex"

	"github.com/robotalks/aicupg/pkg/uart/comm"
	"github.com/robotalks/aicupg/pkg/upg/engine"
)

// MaxChunk is the largest data phase issued, it fits the device scratch
// buffer.
const MaxChunk = 32 * 1024

// BaudSettleTime is waited before switching the local baud rate so the
// device can apply its own change first.
const BaudSettleTime = 50 * time.Millisecond

func addrParams(cmd byte, addr uint32, extra ...uint32) []byte {
	cb := make([]byte, 5+4*len(extra))
	cb[0] = cmd
	binary.LittleEndian.PutUint32(cb[1:], addr)
	for n, v := range extra {
		binary.LittleEndian.PutUint32(cb[5+4*n:], v)
	}
	return cb
}

// Info queries the device.
func (c *Client) Info() (*engine.Info, error) {
	buf := make([]byte, engine.InfoSize)
	if _, err := c.Do([]byte{engine.CmdInfo}, nil, buf); err != nil {
		return nil, err
	}
	var info engine.Info
	if err := info.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return &info, nil
}

// WriteMem writes data at the address.
func (c *Client) WriteMem(addr uint32, data []byte) error {
	for len(data) > 0 {
		n := len(data)
		if n > MaxChunk {
			n = MaxChunk
		}
		if _, err := c.Do(addrParams(engine.CmdWrite, addr), data[:n], nil); err != nil {
			return err
		}
		addr += uint32(n)
		data = data[n:]
	}
	return nil
}

// ReadMem reads size bytes from the address.
func (c *Client) ReadMem(addr uint32, size int) ([]byte, error) {
	data := make([]byte, size)
	for off := 0; off < size; {
		n := size - off
		if n > MaxChunk {
			n = MaxChunk
		}
		if _, err := c.Do(addrParams(engine.CmdRead, addr+uint32(off)), nil, data[off:off+n]); err != nil {
			return nil, err
		}
		off += n
	}
	return data, nil
}

// Erase erases a memory range.
func (c *Client) Erase(addr uint32, size int) error {
	_, err := c.Do(addrParams(engine.CmdErase, addr, uint32(size)), nil, nil)
	return err
}

// SetBaudrate switches the device and, if supported, the local link.
func (c *Client) SetBaudrate(rate int) error {
	if _, err := c.Do(addrParams(engine.CmdSetBaud, uint32(rate)), nil, nil); err != nil {
		return err
	}
	bl, ok := c.link.(comm.BaudLink)
	if !ok {
		return nil
	}
	for deadline := time.Now().Add(BaudSettleTime); time.Now().Before(deadline); {
		c.Idle()
	}
	return bl.SetBaudrate(rate)
}

// FlashHex writes all segments of an Intel HEX image and optionally
// reads them back for verification. It returns the bytes written.
func (c *Client) FlashHex(r io.Reader, verify bool) (int, error) {
	image := gohex.NewMemory()
	if err := image.ParseIntelHex(r); err != nil {
		return 0, err
	}
	total := 0
	for _, seg := range image.GetDataSegments() {
		glog.Infof("flash %d bytes at %#x", len(seg.Data), seg.Address)
		if err := c.WriteMem(seg.Address, seg.Data); err != nil {
			return total, err
		}
		total += len(seg.Data)
		if !verify {
			continue
		}
		data, err := c.ReadMem(seg.Address, len(seg.Data))
		if err != nil {
			return total, err
		}
		for i := range data {
			if data[i] != seg.Data[i] {
				return total, &VerifyError{Address: seg.Address + uint32(i), Expected: seg.Data[i], Got: data[i]}
			}
		}
	}
	return total, nil
}
