package store

import (
	"context"
	"errors"
)

// ErrFixtureNotFound is returned when no fixture has the requested ID.
var ErrFixtureNotFound = errors.New("fixture not found")

// FixtureStatus is the last lifecycle event recorded for a fixture.
type FixtureStatus string

const (
	StatusCreated FixtureStatus = "created"
	StatusReady   FixtureStatus = "ready"
	StatusFailed  FixtureStatus = "failed"
	StatusStopped FixtureStatus = "stopped"
	StatusKilled  FixtureStatus = "killed"
	StatusRemoved FixtureStatus = "removed"
)

// Fixture is one ledger row: a container started by throwaway.
type Fixture struct {
	// ID is the runtime container ID.
	ID string `json:"id" yaml:"id"`
	// Name is the fixture name from the fixtures file, or the container name.
	Name    string            `json:"name" yaml:"name"`
	Image   string            `json:"image" yaml:"image"`
	Session string            `json:"session" yaml:"session"`
	Status  FixtureStatus     `json:"status" yaml:"status"`
	Ports   map[string]uint16 `json:"ports,omitempty" yaml:"ports,omitempty"`
	Error   string            `json:"error,omitempty" yaml:"error,omitempty"`
	// CreatedAt and UpdatedAt are Unix seconds.
	CreatedAt int64 `json:"created_at" yaml:"created_at"`
	UpdatedAt int64 `json:"updated_at" yaml:"updated_at"`
}

// FixtureFilter narrows List. Zero fields match everything.
type FixtureFilter struct {
	Session string
	Status  FixtureStatus
	Limit   int
	Offset  int
}

func (f FixtureFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// FixtureStore persists the fixture ledger.
type FixtureStore interface {
	// Record inserts the fixture or replaces the row with the same ID.
	Record(ctx context.Context, f *Fixture) error
	Get(ctx context.Context, id string) (*Fixture, error)
	// List returns a page of fixtures, newest first, and the total match count.
	List(ctx context.Context, filter FixtureFilter) ([]Fixture, int, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
