package fractal

import "fmt"

// Status is the state of a renderer.
type Status int

const (
	Idle Status = iota
	Working
	Stopped
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Working:
		return "working"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Snapshot is the progress of a render pass at one moment.
type Snapshot struct {
	Status          Status
	TilesTotal      int
	TilesDone       int
	TilesDispatched int
	InFlight        int
	Statistics      Statistics
}

// Observer receives render notifications. A renderer calls its observer from
// a single goroutine, so implementations need no locking of their own, but
// they must return quickly: tiles are not dispatched while a call is running.
type Observer interface {
	Started(Snapshot)
	Progress(Snapshot)
	Finished(Snapshot)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnStarted  func(Snapshot)
	OnProgress func(Snapshot)
	OnFinished func(Snapshot)
}

func (o ObserverFuncs) Started(s Snapshot) {
	if o.OnStarted != nil {
		o.OnStarted(s)
	}
}

func (o ObserverFuncs) Progress(s Snapshot) {
	if o.OnProgress != nil {
		o.OnProgress(s)
	}
}

func (o ObserverFuncs) Finished(s Snapshot) {
	if o.OnFinished != nil {
		o.OnFinished(s)
	}
}
