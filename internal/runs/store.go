// Package runs manages agent runs started over HTTP: it launches the loop,
// records every event, and streams events to subscribers.
package runs

import (
	"context"
	"errors"

	v1 "github.com/compeek/compeek/pkg/api/v1"
)

var (
	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunFinished is returned when stopping a run that already ended.
	ErrRunFinished = errors.New("run already finished")
)

// ListFilter narrows ListRuns.
type ListFilter struct {
	Status v1.RunStatus
	Query  string // case-insensitive match on the goal
	Limit  int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	}
	return f.Limit
}

// Store persists run summaries and their ordered events.
type Store interface {
	CreateRun(ctx context.Context, run *v1.Run) error
	UpdateRun(ctx context.Context, run *v1.Run) error
	GetRun(ctx context.Context, id string) (*v1.Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter ListFilter) ([]*v1.Run, error)
	AppendEvent(ctx context.Context, ev *v1.Event) error
	// ListEvents returns the events of a run with Seq > afterSeq, in order.
	ListEvents(ctx context.Context, runID string, afterSeq int) ([]*v1.Event, error)
	Close() error
}
