package link

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

var errTest = errors.New("test")

func readAll(t *testing.T, r *Ring, n int) []byte {
	var out []byte
	p := make([]byte, n)
	deadline := time.Now().Add(5 * time.Second)
	for len(out) < n {
		require.True(t, time.Now().Before(deadline), "timeout reading, got %d bytes", len(out))
		cnt, err := r.Read(p[:n-len(out)])
		require.NoError(t, err)
		if cnt == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		out = append(out, p[:cnt]...)
	}
	return out
}

func TestStream(t *testing.T) {
	local, remote := net.Pipe()
	s := NewStream("pipe", local, 64)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	go remote.Write([]byte("from remote"))
	require.Equal(t, "from remote", string(readAll(t, s.Ring(), 11)))

	go func() {
		n, err := s.Write([]byte("to remote"))
		require.NoError(t, err)
		require.Equal(t, 9, n)
	}()
	buf := make([]byte, 9)
	_, err := io.ReadFull(remote, buf)
	require.NoError(t, err)
	require.Equal(t, "to remote", string(buf))

	cancel()
	require.Equal(t, context.Canceled, <-done)
}

type countingCloser struct {
	io.ReadWriteCloser
	closes int
}

func (c *countingCloser) Close() error {
	c.closes++
	return c.ReadWriteCloser.Close()
}

func TestStreamCloseOnce(t *testing.T) {
	local, _ := net.Pipe()
	rw := &countingCloser{ReadWriteCloser: local}
	s := NewStream("pipe", rw, 64)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	require.Equal(t, context.Canceled, <-done)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 1, rw.closes)
}

func TestStreamEOF(t *testing.T) {
	local, remote := net.Pipe()
	s := NewStream("pipe", local, 64)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	remote.Close()
	err := <-done
	if err != nil {
		require.True(t, strings.Contains(err.Error(), "pipe read"))
	}
}

func TestWebSocket(t *testing.T) {
	server := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		for {
			var msg []byte
			if err := websocket.Message.Receive(conn, &msg); err != nil {
				return
			}
			if err := websocket.Message.Send(conn, msg); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ws, err := DialWebSocket("ws"+strings.TrimPrefix(server.URL, "http"), server.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Run(ctx) }()

	n, err := ws.Write([]byte{0x01, 0x02, 0xfe})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	_, err = ws.Write([]byte{0x43})
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0xfe, 0x43}, readAll(t, ws.Ring(), 4))

	cancel()
	require.Equal(t, context.Canceled, <-done)
}
