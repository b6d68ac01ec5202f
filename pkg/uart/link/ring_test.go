package link

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing(t *testing.T) {
	r := NewRing(8)
	notified := 0
	r.Notify = func() { notified++ }
	require.Equal(t, 5, r.Put([]byte{1, 2, 3, 4, 5}))
	require.Equal(t, 1, notified)

	p := make([]byte, 3)
	n, err := r.Read(p)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, p[:n])

	// wraps around the end of the buffer
	require.Equal(t, 6, r.Put([]byte{6, 7, 8, 9, 10, 11}))
	require.Equal(t, 8, r.Len())
	require.Equal(t, 0, r.Put([]byte{12, 13}))
	require.Equal(t, 2, r.Overruns())
	require.Equal(t, 2, notified)

	p = make([]byte, 16)
	n, err = r.Read(p)
	require.NoError(t, err)
	require.Equal(t, []byte{4, 5, 6, 7, 8, 9, 10, 11}, p[:n])

	n, err = r.Read(p)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRingReset(t *testing.T) {
	r := NewRing(0)
	r.Put([]byte("abc"))
	r.Reset()
	require.Equal(t, 0, r.Len())
	r.Put([]byte("d"))
	p := make([]byte, 4)
	n, _ := r.Read(p)
	require.Equal(t, "d", string(p[:n]))
}

func TestMemPipe(t *testing.T) {
	a, b := Pipe(115200)
	n, err := a.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	a.WriteLimit = 2
	n, err = a.Write([]byte("world"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	p := make([]byte, 16)
	n, _ = b.Read(p)
	require.Equal(t, "hellowo", string(p[:n]))

	require.NoError(t, b.SetBaudrate(921600))
	require.Equal(t, 921600, b.Baudrate())
	a.Write([]byte("x"))
	n, _ = b.Read(p)
	require.Equal(t, 0, n)

	b.FailBaudrate = errTest
	require.Error(t, b.SetBaudrate(9600))
	require.Equal(t, 921600, b.Baudrate())
}
