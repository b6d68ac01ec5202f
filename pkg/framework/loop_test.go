package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testMessage string

func (m testMessage) MessageKind() string { return string(m) }

func TestLoopIterationOrder(t *testing.T) {
	loop := NewLoop()
	var order []int
	record := func(v int) Controller {
		return ControlFunc(func(cc ControlContext) error {
			order = append(order, v)
			return nil
		})
	}
	loop.AddController(PrLvReport, record(3))
	loop.AddController(PrLvLink, record(1))
	loop.AddController(PrLvProtocol, record(2))
	loop.PreRunAt(PrLvProtocol, record(20))

	now := time.Unix(100, 0)
	require.NoError(t, loop.RunIteration(context.Background(), now))
	require.Equal(t, []int{1, 20, 2, 3}, order)

	order = nil
	require.NoError(t, loop.RunIteration(context.Background(), now))
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestLoopMessages(t *testing.T) {
	loop := NewLoop()
	var got [][]Message
	var tick time.Time
	loop.AddController(PrLvEngine, ControlFunc(func(cc ControlContext) error {
		got = append(got, cc.Messages())
		tick = cc.Time()
		if len(got) == 1 {
			cc.PostMessage(testMessage("from-controller"))
		}
		return nil
	}))
	loop.PostMessage(testMessage("before"))
	now := time.Unix(200, 0)
	require.NoError(t, loop.RunIteration(context.Background(), now))
	require.NoError(t, loop.RunIteration(context.Background(), now.Add(time.Second)))
	require.NoError(t, loop.RunIteration(context.Background(), now.Add(2*time.Second)))
	require.Equal(t, [][]Message{
		{testMessage("before")},
		{testMessage("from-controller")},
		nil,
	}, got)
	require.Equal(t, now.Add(2*time.Second), tick)
}

func TestLoopErrors(t *testing.T) {
	loop := NewLoop()
	err1, err2 := errors.New("e1"), errors.New("e2")
	loop.AddController(PrLvTop, ControlFunc(func(ControlContext) error { return err1 }))
	loop.AddController(PrLvIdle, ControlFunc(func(ControlContext) error { return err2 }))
	err := loop.RunIteration(context.Background(), time.Now())
	require.Error(t, err)
	require.Equal(t, []error{err1, err2}, err.(*AggregatedError).Errors)
}

func TestLoopRun(t *testing.T) {
	loop := NewLoop()
	loop.Interval = time.Millisecond
	iterated := make(chan struct{}, 1)
	loop.AddController(PrLvTop, ControlFunc(func(ControlContext) error {
		select {
		case iterated <- struct{}{}:
		default:
		}
		return nil
	}))
	started := make(chan LoopControl, 1)
	loop.AddRunnable(RunFunc(func(ctx context.Context) error {
		started <- LoopCtlFrom(ctx)
		<-ctx.Done()
		return ctx.Err()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	require.Equal(t, LoopControl(loop), <-started)
	<-iterated
	cancel()
	require.Equal(t, context.Canceled, <-done)
}

func TestLoopRunnerFailure(t *testing.T) {
	loop := NewLoop()
	failure := errors.New("link lost")
	loop.AddRunnable(RunFunc(func(ctx context.Context) error { return failure }))
	err := loop.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, []error{failure}, err.(*AggregatedError).Errors)
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Aggregate())
	errs.Add(nil, errors.New("a"))
	require.Equal(t, "a", errs.Aggregate().Error())
	errs.Add(errors.New("b"))
	require.Equal(t, "Multiple errors:\na\nb", errs.Error())
}
