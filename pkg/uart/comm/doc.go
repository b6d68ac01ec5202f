// Package comm provides the framed UART upgrade protocol.
package comm

// The protocol runs between a host flashing tool and the device bootloader
// over a plain byte link (e.g. UART). It is XMODEM alike:
//
//   short frame: SOH | blk | ~blk | payload(176)  | crc16 (LSB first)
//   long frame:  STX | blk | ~blk | payload(1024) | crc16 (LSB first)
//   control:     ACK | NAK | CAN
//
// Before any frame is exchanged, the device sends SIG_A once per handshake
// interval until the host answers with SIG_C.
//
// Everything is driven by Session.Step from a single polling goroutine.
// Nothing blocks: waiting for ACK or handshake is done by comparing the
// time passed to Step with the last send/receive time.
