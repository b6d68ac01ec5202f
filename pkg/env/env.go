// Package env provides common command line and environment settings of
// the aicupg tools.
package env

import (
	"flag"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/denisbrodbeck/machineid"
	"github.com/pkg/errors"

	"github.com/robotalks/aicupg/pkg/framework"
	"github.com/robotalks/aicupg/pkg/monitor/mqtt"
	"github.com/robotalks/aicupg/pkg/uart/comm"
	"github.com/robotalks/aicupg/pkg/uart/link"
)

// DefaultBaudrate is the initial baud rate of the upgrade link.
const DefaultBaudrate = 115200

// Config provides common options of the tools.
type Config struct {
	// Port is the serial port used when LinkURL is empty.
	Port     string
	Baudrate int
	// LinkURL selects a non-serial link, e.g.
	// tcp://host:port, tcp-listen://:7000, ws://host/path,
	// serial:///dev/ttyUSB0.
	LinkURL string
	// MQTTURL enables event reporting, e.g.
	// mqtt://host:port/topic-prefix/
	MQTTURL  string
	DeviceID string
}

// Link is a byte link with its reader.
type Link interface {
	comm.ByteLink
	framework.Runnable
	Close() error
}

var defaultConfig = Config{
	Port:     "/dev/ttyUSB0",
	Baudrate: DefaultBaudrate,
}

func init() {
	if val := os.Getenv("AICUPG_PORT"); val != "" {
		defaultConfig.Port = val
	}
	if val := os.Getenv("AICUPG_BAUD"); val != "" {
		if rate, err := strconv.Atoi(val); err == nil && rate > 0 {
			defaultConfig.Baudrate = rate
		}
	}
	if val := os.Getenv("AICUPG_LINK_URL"); val != "" {
		defaultConfig.LinkURL = val
	}
	if val := os.Getenv("AICUPG_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	defaultConfig.DeviceID = os.Getenv("AICUPG_DEVICE_ID")
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Serial port.")
	flag.IntVar(&defaultConfig.Baudrate, "baud", defaultConfig.Baudrate, "Initial baud rate.")
	flag.StringVar(&defaultConfig.LinkURL, "link", defaultConfig.LinkURL, "Link URL, overrides -port.")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL for events.")
	flag.StringVar(&defaultConfig.DeviceID, "id", defaultConfig.DeviceID, "Device ID, machine ID by default.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// MachineID retrieves the ID of this machine, protected by the app name.
func MachineID() (string, error) {
	return machineid.ProtectedID("aicupg")
}

// ID returns DeviceID or falls back to the machine ID.
func (c *Config) ID() string {
	if c.DeviceID != "" {
		return c.DeviceID
	}
	if id, err := MachineID(); err == nil && len(id) >= 12 {
		return id[:12]
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}

// OpenLink opens the link selected by LinkURL or Port. tcp-listen
// blocks until a peer connects.
func (c *Config) OpenLink() (Link, error) {
	if c.LinkURL == "" {
		return openSerial(c.Port, c.Baudrate)
	}
	u, err := url.Parse(c.LinkURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid link URL")
	}
	var stream *link.Stream
	switch u.Scheme {
	case "serial":
		port := u.Path
		if port == "" {
			port = u.Opaque
		}
		return openSerial(port, c.Baudrate)
	case "tcp":
		stream, err = link.DialTCP(u.Host)
	case "tcp-listen":
		stream, err = link.ListenTCP(u.Host)
	case "ws", "wss":
		origin := "http://" + u.Host + "/"
		if u.Scheme == "wss" {
			origin = "https://" + u.Host + "/"
		}
		ws, err := link.DialWebSocket(c.LinkURL, origin)
		if err != nil {
			return nil, err
		}
		return ws, nil
	default:
		return nil, errors.Errorf("unknown link URL scheme: %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func openSerial(port string, baudrate int) (Link, error) {
	s, err := link.OpenSerial(port, baudrate)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// MustOpenLink opens the link and fails on error.
func (c *Config) MustOpenLink() Link {
	l, err := c.OpenLink()
	if err != nil {
		log.Fatalln(err)
	}
	return l
}

// NewQueue creates an MQTT queue if MQTTURL is set. The client id is
// derived from the device id unless the URL specifies one.
func (c *Config) NewQueue(role string) (*mqtt.Queue, error) {
	if c.MQTTURL == "" {
		return nil, nil
	}
	opts, prefix, err := mqtt.ClientOptionsFromURL(c.MQTTURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid MQTT URL")
	}
	if opts.ClientID == "" {
		opts.SetClientID(strings.Join([]string{"aicupg", role, c.ID()}, "-"))
	}
	return mqtt.NewQueue(opts, prefix), nil
}

// MustNewQueue creates the MQTT queue and connects it, failing on
// error. It returns nil if MQTT is not configured.
func (c *Config) MustNewQueue(role string) *mqtt.Queue {
	q, err := c.NewQueue(role)
	if err != nil {
		log.Fatalln(err)
	}
	if q == nil {
		return nil
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	return q
}
