package container

import (
	"context"
	"time"
)

// EventType names a lifecycle transition.
type EventType string

const (
	EventCreated EventType = "created"
	EventReady   EventType = "ready"
	EventFailed  EventType = "failed"
	EventStopped EventType = "stopped"
	EventKilled  EventType = "killed"
	EventRemoved EventType = "removed"
)

// Event is delivered to an Observer after each lifecycle transition.
type Event struct {
	Type        EventType
	ContainerID string
	// Name is the runtime-assigned container name, known once ready.
	Name  string
	Image string
	Ports map[string]uint16
	Err   error
	Time  time.Time
}

// Observer is notified synchronously from the goroutine driving the
// container. Implementations must not block for long.
type Observer interface {
	OnEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans an event out to several observers in order.
type Observers []Observer

func (o Observers) OnEvent(ctx context.Context, ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.OnEvent(ctx, ev)
		}
	}
}
