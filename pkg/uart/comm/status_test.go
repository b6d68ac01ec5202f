package comm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusFIFO(t *testing.T) {
	var f StatusFIFO
	p := make([]Stage, StatusFIFOSize)
	require.Equal(t, 0, f.Read(p))

	f.Write(StageDataRecv)
	f.Write(StageSendAck)
	require.Equal(t, 2, f.Len())
	require.Equal(t, []Stage{StageDataRecv, StageSendAck}, f.Snapshot())
	require.Equal(t, 1, f.Read(p[:1]))
	require.Equal(t, StageDataRecv, p[0])
	require.Equal(t, []Stage{StageSendAck}, f.Snapshot())
}

func TestStatusFIFOOverwrite(t *testing.T) {
	var f StatusFIFO
	for i := 0; i < StatusFIFOSize+3; i++ {
		f.Write(Stage(i))
	}
	require.Equal(t, StatusFIFOSize, f.Len())
	expected := make([]Stage, StatusFIFOSize)
	for i := range expected {
		expected[i] = Stage(i + 3)
	}
	require.Equal(t, expected, f.Snapshot())

	p := make([]Stage, 16)
	require.Equal(t, StatusFIFOSize, f.Read(p))
	require.Equal(t, expected, p[:StatusFIFOSize])
	require.Equal(t, 0, f.Len())
	require.Empty(t, f.Snapshot())
}
