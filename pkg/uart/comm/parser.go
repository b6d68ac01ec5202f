package comm

import "time"

type parseState int

const (
	parseHeader     parseState = iota // waiting for SOH/STX
	parseBlock                        // waiting for block number
	parseComplement                   // waiting for block number complement
	parsePayload                      // receiving payload
	parseCRCLow                       // waiting for crc low byte
	parseCRCHigh                      // waiting for crc high byte
)

type parseResult int

const (
	parseMore parseResult = iota
	parseGood
	parseBad
)

// frameParser consumes a frame byte by byte once a header byte is seen.
type frameParser struct {
	state     parseState
	size      int
	seq       BlockSeq
	badHeader bool
	recvLen   int
	crc       uint16
	lastByte  time.Time
	payload   [LongPayloadSize]byte
}

func (p *frameParser) busy() bool {
	return p.state != parseHeader
}

func (p *frameParser) reset() {
	p.state = parseHeader
}

// begin starts a frame if b is a frame header.
func (p *frameParser) begin(b byte, now time.Time) bool {
	if p.size = PayloadSize(b); p.size == 0 {
		return false
	}
	p.state, p.badHeader, p.recvLen, p.lastByte = parseBlock, false, 0, now
	return true
}

func (p *frameParser) parse(b byte, now time.Time) parseResult {
	p.lastByte = now
	switch p.state {
	case parseBlock:
		p.seq, p.state = BlockSeq(b), parseComplement
	case parseComplement:
		// a corrupted header still spans a whole frame on the wire,
		// consume it before complaining.
		p.badHeader = !p.seq.Matches(b)
		p.state = parsePayload
	case parsePayload:
		p.payload[p.recvLen] = b
		if p.recvLen++; p.recvLen >= p.size {
			p.state = parseCRCLow
		}
	case parseCRCLow:
		p.crc, p.state = uint16(b), parseCRCHigh
	case parseCRCHigh:
		p.crc |= uint16(b) << 8
		p.state = parseHeader
		if p.badHeader || p.crc != CRC16(p.payload[:p.size]) {
			return parseBad
		}
		return parseGood
	}
	return parseMore
}

func (p *frameParser) data() []byte {
	return p.payload[:p.size]
}

func (p *frameParser) stalled(now time.Time, timeout time.Duration) bool {
	return p.busy() && now.Sub(p.lastByte) >= timeout
}
