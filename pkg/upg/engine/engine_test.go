package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/aicupg/pkg/uart/comm"
	"github.com/robotalks/aicupg/pkg/upg/bot"
)

type transfer struct {
	send bool
	buf  []byte
	n    int
}

type fakeTransport struct {
	transfers []transfer
	scratch   []byte
	err       error
}

func (f *fakeTransport) Send(buf []byte, n int) (int, error) {
	f.transfers = append(f.transfers, transfer{true, buf, n})
	return n, f.err
}

func (f *fakeTransport) Recv(buf []byte, n int) (int, error) {
	f.transfers = append(f.transfers, transfer{false, buf, n})
	return n, f.err
}

func (f *fakeTransport) Scratch() []byte {
	return f.scratch
}

func (f *fakeTransport) last(t *testing.T) transfer {
	require.NotEmpty(t, f.transfers)
	return f.transfers[len(f.transfers)-1]
}

type engineEnv struct {
	t  *testing.T
	tr *fakeTransport
	e  *Engine
}

func newEngineEnv(t *testing.T, target Target) *engineEnv {
	tr := &fakeTransport{scratch: make([]byte, 1024)}
	env := &engineEnv{t: t, tr: tr, e: New(tr, target)}
	require.NoError(t, env.e.Start())
	require.Equal(t, StateWaitCBW, env.e.State())
	return env
}

// command delivers a CBW into the pending receive.
func (env *engineEnv) command(cbw *bot.CBW) {
	tr := env.tr.last(env.t)
	require.False(env.t, tr.send)
	require.Equal(env.t, bot.CBWSize, tr.n)
	cbw.MarshalTo(tr.buf)
	env.e.DataReceived(bot.CBWSize)
}

// status completes the pending CSW send and decodes it.
func (env *engineEnv) status() *bot.CSW {
	tr := env.tr.last(env.t)
	require.True(env.t, tr.send)
	require.Equal(env.t, StateSendCSW, env.e.State())
	var csw bot.CSW
	require.NoError(env.t, csw.UnmarshalBinary(tr.buf[:tr.n]))
	env.e.DataSent(tr.n)
	require.Equal(env.t, StateWaitCBW, env.e.State())
	return &csw
}

func TestEngineDataOut(t *testing.T) {
	var got []byte
	env := newEngineEnv(t, TargetFunc(func(req *Request) error {
		got = append([]byte(nil), req.Data...)
		return nil
	}))
	env.command(bot.NewCBW(5, 100, false, CmdWrite, 0, 0, 0, 0))
	require.Equal(t, StateDataOut, env.e.State())
	tr := env.tr.last(t)
	require.False(t, tr.send)
	require.Equal(t, 100, tr.n)
	copy(tr.buf, []byte("payload"))
	env.e.DataReceived(100)
	require.Equal(t, "payload", string(got[:7]))
	require.Len(t, got, 100)
	require.Equal(t, &bot.CSW{Tag: 5, Status: bot.StatusPassed}, env.status())
	require.Equal(t, Stats{Commands: 1}, env.e.Stats())
}

func TestEngineDataIn(t *testing.T) {
	env := newEngineEnv(t, TargetFunc(func(req *Request) error {
		req.N = copy(req.Data, "hello")
		return nil
	}))
	env.command(bot.NewCBW(9, 16, true, CmdInfo))
	require.Equal(t, StateDataIn, env.e.State())
	tr := env.tr.last(t)
	require.True(t, tr.send)
	require.Equal(t, 16, tr.n)
	require.Equal(t, append([]byte("hello"), make([]byte, 11)...), tr.buf[:16])
	env.e.DataSent(16)
	require.Equal(t, &bot.CSW{Tag: 9, DataResidue: 11, Status: bot.StatusPassed}, env.status())
}

func TestEngineFailures(t *testing.T) {
	failure := errors.New("failure")
	env := newEngineEnv(t, TargetFunc(func(req *Request) error {
		req.N = 3
		req.AfterStatus = func() { t.Fatal("must not be called") }
		return failure
	}))

	env.command(bot.NewCBW(1, 0, false, CmdErase))
	require.Equal(t, &bot.CSW{Tag: 1, Status: bot.StatusFailed}, env.status())

	env.command(bot.NewCBW(2, 8, true, CmdRead))
	tr := env.tr.last(t)
	require.Equal(t, make([]byte, 8), tr.buf[:tr.n])
	env.e.DataSent(8)
	require.Equal(t, &bot.CSW{Tag: 2, DataResidue: 8, Status: bot.StatusFailed}, env.status())

	env.command(bot.NewCBW(3, 4096, false, CmdWrite))
	require.Equal(t, &bot.CSW{Tag: 3, DataResidue: 4096, Status: bot.StatusPhaseError}, env.status())
	require.Equal(t, Stats{Commands: 3, Failed: 3}, env.e.Stats())
}

func TestEngineInvalidCBW(t *testing.T) {
	env := newEngineEnv(t, TargetFunc(func(*Request) error { return nil }))
	tr := env.tr.last(t)
	copy(tr.buf, "not a command block wrapper....")
	env.e.DataReceived(bot.CBWSize)
	require.Equal(t, StateWaitCBW, env.e.State())
	require.Len(t, env.tr.transfers, 2)
	require.Equal(t, 1, env.e.Stats().InvalidCBWs)
}

func TestEngineAfterStatus(t *testing.T) {
	called := 0
	env := newEngineEnv(t, TargetFunc(func(req *Request) error {
		req.AfterStatus = func() { called++ }
		return nil
	}))
	env.command(bot.NewCBW(1, 0, false, CmdSetBaud))
	require.Equal(t, 0, called)
	env.status()
	require.Equal(t, 1, called)
}

func TestEngineTransferFailed(t *testing.T) {
	env := newEngineEnv(t, TargetFunc(func(*Request) error { return nil }))
	env.command(bot.NewCBW(1, 100, false, CmdWrite))
	env.e.TransferFailed(comm.DirWrite, 50, comm.ErrCanceled)
	require.Equal(t, StateWaitCBW, env.e.State())
	require.Equal(t, bot.CBWSize, env.tr.last(t).n)
	require.Equal(t, 1, env.e.Stats().Aborted)

	env.tr.err = comm.ErrNotReady
	env.e.TransferFailed(comm.DirWrite, 0, comm.ErrClosed)
	require.Equal(t, StateStopped, env.e.State())
	env.e.TransferFailed(comm.DirWrite, 0, comm.ErrClosed)
	require.Equal(t, 2, env.e.Stats().Aborted)
}
