package link

import (
	"github.com/albenik/go-serial/v2"
	"github.com/albenik/go-serial/v2/enumerator"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// serialReadTimeout bounds a blocking read so the reader notices cancel.
const serialReadTimeout = 100 // ms

// Serial is a byte link over a UART, 8N1.
type Serial struct {
	*Stream
	port *serial.Port
	baud int
}

// OpenSerial opens the serial port.
func OpenSerial(name string, baudrate int) (*Serial, error) {
	port, err := serial.Open(name,
		serial.WithBaudrate(baudrate),
		serial.WithDataBits(8),
		serial.WithParity(serial.NoParity),
		serial.WithStopBits(serial.OneStopBit),
		serial.WithReadTimeout(serialReadTimeout),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return &Serial{
		Stream: NewStream(name, port, DefaultRingSize),
		port:   port,
		baud:   baudrate,
	}, nil
}

// Baudrate implements comm.BaudLink.
func (s *Serial) Baudrate() int {
	return s.baud
}

// SetBaudrate implements comm.BaudLink.
func (s *Serial) SetBaudrate(rate int) error {
	if err := s.port.Reconfigure(serial.WithBaudrate(rate)); err != nil {
		return errors.Wrapf(err, "%s set baudrate %d", s.name, rate)
	}
	if err := s.port.ResetInputBuffer(); err != nil {
		return errors.Wrapf(err, "%s reset input", s.name)
	}
	s.ring.Reset()
	glog.Infof("%s baudrate %d -> %d", s.name, s.baud, rate)
	s.baud = rate
	return nil
}

// PortInfo describes a serial port found on the system.
type PortInfo struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// ListPorts enumerates the serial ports.
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list ports")
	}
	infos := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, PortInfo{
			Name:    p.Name,
			USB:     p.IsUSB,
			VID:     p.VID,
			PID:     p.PID,
			Serial:  p.SerialNumber,
			Product: p.Product,
		})
	}
	return infos, nil
}
