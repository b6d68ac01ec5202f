package framework

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the default tick of a Loop.
const DefaultInterval = 10 * time.Millisecond

// Loop polls controllers from a single goroutine. An iteration runs
// on every tick, or immediately after TriggerNext.
type Loop struct {
	Interval time.Duration

	levels  [PriorityLevels]levelControllers
	runners []Runnable

	lock     sync.Mutex
	messages []Message

	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type levelControllers struct {
	lock        sync.Mutex
	hooks       []Controller
	controllers []Controller
}

type iteration struct {
	*Loop
	ctx      context.Context
	time     time.Time
	level    int
	messages []Message
}

type loopCtxKeyType struct{}

var loopCtxKey loopCtxKeyType

// LoopCtlFrom gets LoopControl from the context passed to runners.
func LoopCtlFrom(ctx context.Context) LoopControl {
	ctl, _ := ctx.Value(loopCtxKey).(LoopControl)
	return ctl
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{
		Interval: DefaultInterval,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at the priority level.
// Controllers also implementing Runnable are started by Run.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	lv := &l.levels[priorityLevel]
	lv.lock.Lock()
	lv.controllers = append(lv.controllers, ctls...)
	lv.lock.Unlock()
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds background runners started by Run.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runner := NewRunnerWith(context.WithValue(ctx, loopCtxKey, LoopControl(l)))
	runner.Go(l.runners...)
	errCh := make(chan error, 1)
	go func() {
		err := runner.Wait()
		if err != nil {
			cancel()
		}
		errCh <- err
	}()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := <-errCh; err != nil {
				return err
			}
			return ctx.Err()
		case now := <-ticker.C:
			l.RunIteration(ctx, now)
		case <-l.wakeUpCh:
			l.RunIteration(ctx, time.Now())
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail(ctx context.Context) {
	if err := l.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

// RunIteration polls all controllers once at the specified time.
// Errors from controllers are logged and returned aggregated.
func (l *Loop) RunIteration(ctx context.Context, now time.Time) error {
	iter := &iteration{Loop: l, time: now}
	l.lock.Lock()
	iter.messages, l.messages = l.messages, nil
	l.lock.Unlock()
	iter.ctx = context.WithValue(ctx, loopCtxKey, LoopControl(l))
	var errs AggregatedError
	for i := range l.levels {
		iter.level = i
		errs.Add(l.levels[i].run(iter)...)
	}
	return errs.Aggregate()
}

// PreRunAt implements LoopControl.
func (l *Loop) PreRunAt(priorityLevel int, hooks ...Controller) {
	lv := &l.levels[priorityLevel]
	lv.lock.Lock()
	lv.hooks = append(lv.hooks, hooks...)
	lv.lock.Unlock()
	l.TriggerNext()
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.messages = append(l.messages, msg)
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

func (t *iteration) Context() context.Context {
	return t.ctx
}

func (t *iteration) Time() time.Time {
	return t.time
}

func (t *iteration) PriorityLevel() int {
	return t.level
}

func (t *iteration) Messages() []Message {
	return t.messages
}

func (lv *levelControllers) run(iter *iteration) (errs []error) {
	lv.lock.Lock()
	hooks := lv.hooks
	lv.hooks = nil
	ctls := lv.controllers
	lv.lock.Unlock()
	for _, lst := range [][]Controller{hooks, ctls} {
		for _, ctl := range lst {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error: %v", err)
				errs = append(errs, err)
			}
		}
	}
	return
}
