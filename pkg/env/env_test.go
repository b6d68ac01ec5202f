package env

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigID(t *testing.T) {
	conf := NewConfig()
	conf.DeviceID = "dev1"
	require.Equal(t, "dev1", conf.ID())
	conf.DeviceID = ""
	require.NotEmpty(t, conf.ID())
}

func TestOpenLinkTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
		close(accepted)
	}()

	conf := &Config{LinkURL: "tcp://" + ln.Addr().String()}
	l, err := conf.OpenLink()
	require.NoError(t, err)
	defer l.Close()
	conn := <-accepted
	require.NotNil(t, conn)
	defer conn.Close()

	n, err := l.Write([]byte{0x43})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, byte(0x43), buf[0])
}

func TestOpenLinkErrors(t *testing.T) {
	_, err := (&Config{LinkURL: "ftp://host"}).OpenLink()
	require.Error(t, err)
	_, err = (&Config{LinkURL: "tcp://127.0.0.1:1"}).OpenLink()
	require.Error(t, err)
}

func TestNewQueue(t *testing.T) {
	q, err := (&Config{}).NewQueue("sim")
	require.NoError(t, err)
	require.Nil(t, q)

	q, err = (&Config{MQTTURL: "mqtt://localhost:1883/lab/", DeviceID: "dev1"}).NewQueue("sim")
	require.NoError(t, err)
	require.NotNil(t, q)
	require.Equal(t, "lab/", q.TopicPrefix)
	require.False(t, q.Client.IsConnected())
}
