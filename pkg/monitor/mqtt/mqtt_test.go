package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/aicupg/pkg/framework"
	"github.com/robotalks/aicupg/pkg/uart/bridge"
	"github.com/robotalks/aicupg/pkg/uart/comm"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		topic, filter string
		match         bool
	}{
		{"aicupg/dev/events", "aicupg/dev/events", true},
		{"aicupg/dev/events", "aicupg/+/events", true},
		{"aicupg/dev/status", "aicupg/+/events", false},
		{"aicupg/dev/events", "aicupg/#", true},
		{"aicupg", "aicupg/#", true},
		{"aicupg/dev", "aicupg/dev/events", false},
		{"aicupg/dev/events/x", "aicupg/+/events", false},
		{"other/dev/events", "#", true},
	}
	for _, c := range cases {
		require.Equal(t, c.match, MatchTopic(c.topic, c.filter), "%s ~ %s", c.topic, c.filter)
	}
}

func TestClientOptionsFromURL(t *testing.T) {
	opts, prefix, err := ClientOptionsFromURL("mqtt://u:p@broker:1883/lab/?client-id=dev1")
	require.NoError(t, err)
	require.Equal(t, "lab/", prefix)
	require.Len(t, opts.Servers, 1)
	require.Equal(t, "tcp", opts.Servers[0].Scheme)
	require.Equal(t, "broker:1883", opts.Servers[0].Host)
	require.Equal(t, "u", opts.Username)
	require.Equal(t, "p", opts.Password)
	require.Equal(t, "dev1", opts.ClientID)
}

func TestEventEncoding(t *testing.T) {
	now := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	ev, ok := EventOf(&bridge.TransferEvent{
		Time:        now,
		Dir:         comm.DirWrite,
		Length:      2048,
		Transferred: 1024,
		Err:         comm.ErrRetryExceeded,
	})
	require.True(t, ok)
	payload, err := EncodeEvent(ev)
	require.NoError(t, err)

	decoded, err := DecodeEvent(payload)
	require.NoError(t, err)
	require.Equal(t, KindTransfer, EventKind(decoded))
	f := decoded.GetFields()
	require.Equal(t, "write", f["dir"].GetStringValue())
	require.Equal(t, float64(2048), f["length"].GetNumberValue())
	require.Equal(t, float64(1024), f["transferred"].GetNumberValue())
	require.False(t, f["ok"].GetBoolValue())
	require.Equal(t, comm.ErrRetryExceeded.Error(), f["error"].GetStringValue())
	require.Equal(t, "2020-01-02T03:04:05Z", f["time"].GetStringValue())

	ev, ok = EventOf(&bridge.BaudEvent{Time: now, Baudrate: 1500000})
	require.True(t, ok)
	require.Equal(t, KindBaudrate, EventKind(ev))
	require.True(t, ev.Fields["ok"].GetBoolValue())
	require.Nil(t, ev.Fields["error"])

	_, ok = EventOf(nil)
	require.False(t, ok)
}

func TestStatusEvent(t *testing.T) {
	now := time.Unix(100, 0)
	ev := StatusEvent(now, bridge.Snapshot{Baudrate: 115200})
	require.False(t, ev.Fields["ready"].GetBoolValue())
	require.Nil(t, ev.Fields["stage"])

	ev = StatusEvent(now, bridge.Snapshot{
		Ready:    true,
		Conn:     comm.ConnConnected,
		Stage:    comm.StageDataRecv,
		Timeline: []comm.Stage{comm.StageCmdRecv, comm.StageDataRecv},
		Stats:    comm.Stats{FramesReceived: 3},
	})
	require.Equal(t, "CONNECTED", ev.Fields["conn"].GetStringValue())
	require.Equal(t, "DATA_RECV", ev.Fields["stage"].GetStringValue())
	timeline := ev.Fields["timeline"].GetListValue().GetValues()
	require.Len(t, timeline, 2)
	require.Equal(t, "CMD_RECV", timeline[0].GetStringValue())
	stats := ev.Fields["stats"].GetStructValue().GetFields()
	require.Equal(t, float64(3), stats["frames_received"].GetNumberValue())
}

type published struct {
	topic   string
	payload []byte
	retain  bool
}

type fakePublisher struct {
	msgs []published
}

func (p *fakePublisher) PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token {
	p.msgs = append(p.msgs, published{topic, payload, retain})
	return &paho.DummyToken{}
}

type fixedSource bridge.Snapshot

func (s fixedSource) Snapshot() bridge.Snapshot {
	return bridge.Snapshot(s)
}

func TestReporter(t *testing.T) {
	pub := &fakePublisher{}
	r := NewReporter(pub, "dev1", fixedSource{Baudrate: 115200})
	loop := framework.NewLoop()
	loop.Add(r)

	t0 := time.Unix(1000, 0)
	ctx := context.Background()
	loop.PostMessage(&bridge.TransferEvent{Time: t0, Dir: comm.DirRead, Length: 13, Transferred: 13})
	loop.PostMessage(&bridge.BaudEvent{Time: t0, Baudrate: 9600, Err: errors.New("busy")})
	require.NoError(t, loop.RunIteration(ctx, t0))
	require.Len(t, pub.msgs, 3)
	require.Equal(t, "aicupg/dev1/events", pub.msgs[0].topic)
	require.False(t, pub.msgs[0].retain)
	ev, err := DecodeEvent(pub.msgs[1].payload)
	require.NoError(t, err)
	require.Equal(t, KindBaudrate, EventKind(ev))
	require.Equal(t, "busy", ev.Fields["error"].GetStringValue())
	require.Equal(t, "aicupg/dev1/status", pub.msgs[2].topic)
	require.True(t, pub.msgs[2].retain)

	require.NoError(t, loop.RunIteration(ctx, t0.Add(100*time.Millisecond)))
	require.Len(t, pub.msgs, 3)
	require.NoError(t, loop.RunIteration(ctx, t0.Add(time.Second)))
	require.Len(t, pub.msgs, 4)
	require.Equal(t, 4, r.Published())
}
