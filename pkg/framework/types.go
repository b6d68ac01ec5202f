package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Message is posted to the loop and delivered to all controllers
// in the next iteration.
type Message interface {
	// MessageKind names the message for logging and routing.
	MessageKind() string
}

// Controller is polled once per loop iteration. It must not block.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc defines the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(cc ControlContext) error {
	return f(cc)
}

// TimeSource provides the tick time for polling logic.
type TimeSource interface {
	Time() time.Time
}

// ControlContext provides the context of current iteration.
type ControlContext interface {
	TimeSource
	// Context retrieves context.Context.
	Context() context.Context
	// PriorityLevel gets the current priority level.
	PriorityLevel() int
	// Messages returns messages posted before this iteration started.
	Messages() []Message

	LoopControl
}

// LoopControl exposes access to the polling loop. It's safe to be used
// from other goroutines.
type LoopControl interface {
	// PreRunAt injects one-shot controller hooks run before the
	// controllers of the specified priority level.
	PreRunAt(priorityLevel int, controllers ...Controller)
	// PostMessage enqueues a message for the next iteration.
	PostMessage(Message)
	// TriggerNext schedules the next iteration immediately.
	TriggerNext()
}

// PriorityLevels is the total levels of priorities.
const PriorityLevels int = 8

// Predefined priority levels. Lower levels run first in an iteration.
const (
	PrLvTop      int = 0
	PrLvLink     int = 1
	PrLvProtocol int = 3
	PrLvEngine   int = 5
	PrLvReport   int = 6
	PrLvIdle     int = PriorityLevels - 1
)
