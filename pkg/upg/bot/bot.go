// Package bot defines the command and status wrappers exchanged with the
// upgrade host. The layouts follow the USB Mass Storage Bulk-Only
// Transport and are bit exact: all multi-byte fields are little-endian.
package bot

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wrapper sizes and signatures.
const (
	CBWSize      = 31
	CSWSize      = 13
	CBWSignature = 0x43425355 // "USBC"
	CSWSignature = 0x53425355 // "USBS"
	MaxCBLength  = 16
)

// CBWFlagDataIn marks a device-to-host data phase.
const CBWFlagDataIn = 0x80

// CSW status values.
const (
	StatusPassed     byte = 0
	StatusFailed     byte = 1
	StatusPhaseError byte = 2
)

var (
	// ErrShortWrapper indicates fewer bytes than the wrapper size.
	ErrShortWrapper = errors.New("wrapper too short")
	// ErrCBLength indicates an invalid command block length.
	ErrCBLength = errors.New("invalid command block length")
)

// SignatureError is reported when a wrapper carries a wrong signature.
type SignatureError struct {
	Expected uint32
	Got      uint32
}

// Error implements error.
func (e *SignatureError) Error() string {
	return fmt.Sprintf("bad signature %08x, expect %08x", e.Got, e.Expected)
}

// CBW is the command block wrapper.
type CBW struct {
	Tag                uint32
	DataTransferLength uint32
	Flags              byte
	LUN                byte
	CBLength           byte
	CB                 [MaxCBLength]byte
}

// NewCBW creates a CBW carrying the command block.
func NewCBW(tag uint32, length uint32, dataIn bool, cb ...byte) *CBW {
	c := &CBW{Tag: tag, DataTransferLength: length, CBLength: byte(len(cb))}
	if dataIn {
		c.Flags = CBWFlagDataIn
	}
	copy(c.CB[:], cb)
	return c
}

// IsDataIn indicates a device-to-host data phase.
func (c *CBW) IsDataIn() bool {
	return c.Flags&CBWFlagDataIn != 0
}

// Command returns the operation code, the first command block byte.
func (c *CBW) Command() byte {
	return c.CB[0]
}

// Params returns the command block after the operation code.
func (c *CBW) Params() []byte {
	if c.CBLength < 1 {
		return nil
	}
	return c.CB[1:c.CBLength]
}

// UnmarshalBinary decodes a CBW.
func (c *CBW) UnmarshalBinary(data []byte) error {
	if len(data) < CBWSize {
		return ErrShortWrapper
	}
	if sig := binary.LittleEndian.Uint32(data[0:4]); sig != CBWSignature {
		return &SignatureError{Expected: CBWSignature, Got: sig}
	}
	c.Tag = binary.LittleEndian.Uint32(data[4:8])
	c.DataTransferLength = binary.LittleEndian.Uint32(data[8:12])
	c.Flags = data[12]
	c.LUN = data[13] & 0x0f
	c.CBLength = data[14] & 0x1f
	if c.CBLength < 1 || c.CBLength > MaxCBLength {
		return ErrCBLength
	}
	copy(c.CB[:], data[15:CBWSize])
	return nil
}

// MarshalTo encodes the CBW into buf and returns CBWSize, or 0 if buf
// is too short.
func (c *CBW) MarshalTo(buf []byte) int {
	if len(buf) < CBWSize {
		return 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], CBWSignature)
	binary.LittleEndian.PutUint32(buf[4:8], c.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], c.DataTransferLength)
	buf[12] = c.Flags
	buf[13] = c.LUN & 0x0f
	buf[14] = c.CBLength & 0x1f
	copy(buf[15:CBWSize], c.CB[:])
	return CBWSize
}

// MarshalBinary encodes the CBW.
func (c *CBW) MarshalBinary() ([]byte, error) {
	buf := make([]byte, CBWSize)
	c.MarshalTo(buf)
	return buf, nil
}

// CSW is the command status wrapper.
type CSW struct {
	Tag         uint32
	DataResidue uint32
	Status      byte
}

// NewCSW creates the CSW answering the CBW.
func NewCSW(cbw *CBW, residue uint32, status byte) *CSW {
	return &CSW{Tag: cbw.Tag, DataResidue: residue, Status: status}
}

// UnmarshalBinary decodes a CSW.
func (c *CSW) UnmarshalBinary(data []byte) error {
	if len(data) < CSWSize {
		return ErrShortWrapper
	}
	if sig := binary.LittleEndian.Uint32(data[0:4]); sig != CSWSignature {
		return &SignatureError{Expected: CSWSignature, Got: sig}
	}
	c.Tag = binary.LittleEndian.Uint32(data[4:8])
	c.DataResidue = binary.LittleEndian.Uint32(data[8:12])
	c.Status = data[12]
	return nil
}

// MarshalTo encodes the CSW into buf and returns CSWSize, or 0 if buf
// is too short.
func (c *CSW) MarshalTo(buf []byte) int {
	if len(buf) < CSWSize {
		return 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], CSWSignature)
	binary.LittleEndian.PutUint32(buf[4:8], c.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], c.DataResidue)
	buf[12] = c.Status
	return CSWSize
}

// MarshalBinary encodes the CSW.
func (c *CSW) MarshalBinary() ([]byte, error) {
	buf := make([]byte, CSWSize)
	c.MarshalTo(buf)
	return buf, nil
}
