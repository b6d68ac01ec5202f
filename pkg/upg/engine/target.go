package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/marcinbor85/gohex"
)

// Commands understood by MemoryTarget, carried in CB[0]. Multi-byte
// parameters are little-endian.
const (
	CmdInfo    byte = 0x01 // data in: Info block
	CmdWrite   byte = 0x02 // data out: address(4)
	CmdRead    byte = 0x03 // data in: address(4)
	CmdSetBaud byte = 0x04 // no data: baudrate(4)
	CmdErase   byte = 0x05 // no data: address(4) size(4)
)

// InfoSize is the encoded size of Info.
const InfoSize = 32

// InfoMagic starts the Info block.
const InfoMagic = "AICU"

// ErasedByte is the content of erased memory.
const ErasedByte byte = 0xff

var (
	// ErrUnknownCommand indicates an unsupported operation code.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrBadParams indicates missing command parameters.
	ErrBadParams = errors.New("bad command parameters")
	// ErrDirection indicates the data phase direction doesn't fit the command.
	ErrDirection = errors.New("wrong data direction")
)

// RangeError reports an access outside of the memory.
type RangeError struct {
	Address uint32
	Size    int
	Limit   int
}

// Error implements error.
func (e *RangeError) Error() string {
	return fmt.Sprintf("range %#x+%d exceeds %#x", e.Address, e.Size, e.Limit)
}

// Info describes the target.
type Info struct {
	Version uint32
	MemSize uint32
	Name    string
}

// MarshalTo encodes Info into buf which must hold InfoSize bytes.
func (i *Info) MarshalTo(buf []byte) int {
	if len(buf) < InfoSize {
		return 0
	}
	copy(buf[0:4], InfoMagic)
	binary.LittleEndian.PutUint32(buf[4:8], i.Version)
	binary.LittleEndian.PutUint32(buf[8:12], i.MemSize)
	name := buf[12:InfoSize]
	for n := copy(name, i.Name); n < len(name); n++ {
		name[n] = 0
	}
	return InfoSize
}

// UnmarshalBinary decodes Info.
func (i *Info) UnmarshalBinary(data []byte) error {
	if len(data) < InfoSize || string(data[0:4]) != InfoMagic {
		return ErrBadParams
	}
	i.Version = binary.LittleEndian.Uint32(data[4:8])
	i.MemSize = binary.LittleEndian.Uint32(data[8:12])
	name := data[12:InfoSize]
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	i.Name = string(name[:n])
	return nil
}

// Baudrater applies baud rate changes.
type Baudrater interface {
	RequestBaudrate(rate int) error
}

// MemoryTarget emulates a flash device backed by memory.
type MemoryTarget struct {
	Name string

	mem  []byte
	baud Baudrater
}

// NewMemoryTarget creates an erased memory of size bytes. baud can be
// nil if baud rate changes are not supported.
func NewMemoryTarget(name string, size int, baud Baudrater) *MemoryTarget {
	m := &MemoryTarget{Name: name, mem: make([]byte, size), baud: baud}
	fill(m.mem, ErasedByte)
	return m
}

// Memory returns the memory content.
func (m *MemoryTarget) Memory() []byte {
	return m.mem
}

// Execute implements Target.
func (m *MemoryTarget) Execute(req *Request) error {
	cbw := req.CBW
	params := cbw.Params()
	switch cbw.Command() {
	case CmdInfo:
		if !cbw.IsDataIn() {
			return ErrDirection
		}
		var buf [InfoSize]byte
		info := Info{Version: 1, MemSize: uint32(len(m.mem)), Name: m.Name}
		info.MarshalTo(buf[:])
		req.N = copy(req.Data, buf[:])
	case CmdWrite:
		if len(req.Data) > 0 && cbw.IsDataIn() {
			return ErrDirection
		}
		region, err := m.region(params, len(req.Data))
		if err != nil {
			return err
		}
		copy(region, req.Data)
		glog.V(2).Infof("wrote %d bytes at %#x", len(req.Data), le32(params))
	case CmdRead:
		if !cbw.IsDataIn() {
			return ErrDirection
		}
		region, err := m.region(params, len(req.Data))
		if err != nil {
			return err
		}
		req.N = copy(req.Data, region)
	case CmdSetBaud:
		if len(params) < 4 {
			return ErrBadParams
		}
		rate := int(le32(params))
		if m.baud == nil || rate <= 0 {
			return ErrBadParams
		}
		req.AfterStatus = func() {
			if err := m.baud.RequestBaudrate(rate); err != nil {
				glog.Errorf("baudrate %d: %v", rate, err)
			}
		}
	case CmdErase:
		if len(params) < 8 {
			return ErrBadParams
		}
		region, err := m.region(params, int(binary.LittleEndian.Uint32(params[4:8])))
		if err != nil {
			return err
		}
		fill(region, ErasedByte)
	default:
		return ErrUnknownCommand
	}
	return nil
}

// LoadHex loads an Intel HEX image into memory.
func (m *MemoryTarget) LoadHex(r io.Reader) error {
	image := gohex.NewMemory()
	if err := image.ParseIntelHex(r); err != nil {
		return err
	}
	for _, seg := range image.GetDataSegments() {
		if int(seg.Address)+len(seg.Data) > len(m.mem) {
			return &RangeError{Address: seg.Address, Size: len(seg.Data), Limit: len(m.mem)}
		}
		copy(m.mem[seg.Address:], seg.Data)
	}
	return nil
}

// DumpHex writes a memory range as Intel HEX.
func (m *MemoryTarget) DumpHex(w io.Writer, address uint32, size int) error {
	if int(address)+size > len(m.mem) {
		return &RangeError{Address: address, Size: size, Limit: len(m.mem)}
	}
	image := gohex.NewMemory()
	if err := image.AddBinary(address, m.mem[address:int(address)+size]); err != nil {
		return err
	}
	ew := &errWriter{w: w}
	image.DumpIntelHex(ew, 16)
	return ew.err
}

// errWriter keeps the first write error, later writes are dropped.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (m *MemoryTarget) region(params []byte, size int) ([]byte, error) {
	if len(params) < 4 {
		return nil, ErrBadParams
	}
	addr := le32(params)
	if size < 0 || uint64(addr)+uint64(size) > uint64(len(m.mem)) {
		return nil, &RangeError{Address: addr, Size: size, Limit: len(m.mem)}
	}
	return m.mem[addr : int(addr)+size], nil
}

func le32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
