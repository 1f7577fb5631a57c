package service

import (
	"context"
	"errors"
)

// Phase is the lifecycle phase of a supervised service.
type Phase int32

const (
	PhaseStopped Phase = iota
	PhaseStarting
	PhaseRunning
	PhasePaused
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseStopped:
		return "stopped"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	case PhaseStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned for lifecycle calls made from the
// wrong phase, e.g. Pause on a stopped service.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Service is a supervised unit of background work. Stop and Pause
// return only once the loop has observably quiesced (or the context
// expired), which is the cancellation contract every mode transition
// depends on.
type Service interface {
	Name() string
	Start() error
	Pause(ctx context.Context) error
	Resume() error
	Stop(ctx context.Context) error
	Phase() Phase
}
