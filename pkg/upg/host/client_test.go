package host

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/aicupg/pkg/uart/bridge"
	"github.com/robotalks/aicupg/pkg/uart/comm"
	"github.com/robotalks/aicupg/pkg/uart/link"
	"github.com/robotalks/aicupg/pkg/upg/bot"
	"github.com/robotalks/aicupg/pkg/upg/engine"
)

type device struct {
	link   *link.Mem
	bridge *bridge.Bridge
	target *engine.MemoryTarget
	engine *engine.Engine
}

// newDeviceClient runs an emulated device in the Idle hook of a client.
func newDeviceClient(t *testing.T, memSize int) (*device, *Client) {
	devLink, hostLink := link.Pipe(115200)
	b := bridge.New(devLink)
	require.NoError(t, b.Init())
	target := engine.NewMemoryTarget("sim", memSize, b)
	eng := engine.New(b, target)
	b.SetHandler(eng)
	require.NoError(t, eng.Start())

	c := NewClient(hostLink)
	c.Idle = func() {
		require.NoError(t, b.Poll(time.Now()))
	}
	require.NoError(t, c.Connect())
	return &device{link: devLink, bridge: b, target: target, engine: eng}, c
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 31 >> 3)
	}
	return b
}

func TestClientInfo(t *testing.T) {
	dev, c := newDeviceClient(t, 4096)
	info, err := c.Info()
	require.NoError(t, err)
	require.Equal(t, &engine.Info{Version: 1, MemSize: 4096, Name: "sim"}, info)
	require.Equal(t, engine.Stats{Commands: 1}, dev.engine.Stats())
}

func TestClientWriteRead(t *testing.T) {
	dev, c := newDeviceClient(t, 256*1024)
	data := pattern(100 * 1024)
	require.NoError(t, c.WriteMem(0x1000, data))
	require.Equal(t, data, dev.target.Memory()[0x1000:0x1000+len(data)])

	read, err := c.ReadMem(0x1000, len(data))
	require.NoError(t, err)
	require.Equal(t, data, read)

	require.NoError(t, c.Erase(0x1000, 16))
	read, err = c.ReadMem(0x1000, 20)
	require.NoError(t, err)
	require.Equal(t, append(bytes.Repeat([]byte{0xff}, 16), data[16:20]...), read)

	snapshot := dev.bridge.Snapshot()
	require.Equal(t, 0, snapshot.Stats.Aborts)
	require.Equal(t, 0, snapshot.Stats.Retransmits)
}

func TestClientFailures(t *testing.T) {
	dev, c := newDeviceClient(t, 1024)
	err := c.WriteMem(1000, make([]byte, 100))
	require.IsType(t, &StatusError{}, err)
	require.Equal(t, bot.StatusFailed, err.(*StatusError).CSW.Status)

	_, err = c.ReadMem(2000, 10)
	require.IsType(t, &StatusError{}, err)
	require.Equal(t, uint32(10), err.(*StatusError).CSW.DataResidue)

	_, err = c.Do([]byte{0x7f}, nil, nil)
	require.IsType(t, &StatusError{}, err)

	info, err := c.Info()
	require.NoError(t, err)
	require.Equal(t, uint32(1024), info.MemSize)
	require.Equal(t, 3, dev.engine.Stats().Failed)
}

func TestClientSetBaudrate(t *testing.T) {
	dev, c := newDeviceClient(t, 1024)
	require.NoError(t, c.SetBaudrate(1500000))
	require.Equal(t, 1500000, dev.link.Baudrate())
	require.Equal(t, 1500000, c.link.(comm.BaudLink).Baudrate())

	require.NoError(t, c.WriteMem(0, []byte("after baud change")))
	require.Equal(t, "after baud change", string(dev.target.Memory()[:17]))
}

func TestClientFlashHex(t *testing.T) {
	image := engine.NewMemoryTarget("image", 8192, nil)
	copy(image.Memory()[0x100:], pattern(3000))
	var hex bytes.Buffer
	require.NoError(t, image.DumpHex(&hex, 0x100, 3000))

	dev, c := newDeviceClient(t, 8192)
	n, err := c.FlashHex(&hex, true)
	require.NoError(t, err)
	require.Equal(t, 3000, n)
	require.Equal(t, image.Memory(), dev.target.Memory())
}

func TestClientCanceled(t *testing.T) {
	dev, c := newDeviceClient(t, 1024)
	c.Idle = func() {
		dev.bridge.Reset()
		c.Idle = func() {}
	}
	c.Timeout = 100 * time.Millisecond
	c.MaxRetries = 1
	_, err := c.Info()
	require.Error(t, err)
}
