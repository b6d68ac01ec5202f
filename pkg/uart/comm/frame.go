package comm

import "encoding/binary"

// Control bytes.
const (
	SOH  byte = 0x01 // short frame header
	STX  byte = 0x02 // long frame header
	ACK  byte = 0x06
	NAK  byte = 0x15
	CAN  byte = 0x18
	SigA byte = 0x41 // sent by the device while detecting
	SigC byte = 0x43 // sent by the host once ready
)

// Frame sizes.
const (
	ShortPayloadSize = 176
	LongPayloadSize  = 1024
	FrameOverhead    = 5 // header, block, complement and crc16
	ShortFrameSize   = ShortPayloadSize + FrameOverhead
	LongFrameSize    = LongPayloadSize + FrameOverhead
)

// PadByte fills the unused tail of the last frame of a transfer.
const PadByte byte = 0x1a

// PayloadSize returns the payload size indicated by a frame header byte,
// or 0 if b is not a frame header.
func PayloadSize(b byte) int {
	switch b {
	case SOH:
		return ShortPayloadSize
	case STX:
		return LongPayloadSize
	}
	return 0
}

// FrameHeaderFor chooses the frame header for the remaining byte count.
func FrameHeaderFor(remaining int) byte {
	if remaining >= LongPayloadSize {
		return STX
	}
	return SOH
}

// Frame is a single data frame.
type Frame struct {
	Seq  BlockSeq
	Long bool
	// Data is the payload. It's padded with PadByte when encoded if shorter
	// than the payload size, and truncated if longer.
	Data []byte
}

// Size returns the encoded size of the frame.
func (f Frame) Size() int {
	if f.Long {
		return LongFrameSize
	}
	return ShortFrameSize
}

// Header returns the header byte.
func (f Frame) Header() byte {
	if f.Long {
		return STX
	}
	return SOH
}

// EncodeTo encodes the frame into b which must be at least Size() bytes,
// and returns the encoded slice.
func (f Frame) EncodeTo(b []byte) []byte {
	size := f.Size()
	b = b[:size]
	b[0], b[1], b[2] = f.Header(), byte(f.Seq), f.Seq.Complement()
	payload := b[3 : size-2]
	n := copy(payload, f.Data)
	for i := n; i < len(payload); i++ {
		payload[i] = PadByte
	}
	binary.LittleEndian.PutUint16(b[size-2:], CRC16(payload))
	return b
}

// Bytes returns encoded bytes for sending.
func (f Frame) Bytes() []byte {
	return f.EncodeTo(make([]byte, f.Size()))
}
