package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jguan/throwaway/pkg/container"
	"github.com/jguan/throwaway/pkg/infra/logger"
)

// Recorder is a container.Observer that keeps the fixture ledger up to date.
// Store failures are logged and never interrupt the container lifecycle.
type Recorder struct {
	store   FixtureStore
	session string
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecorder returns a Recorder writing rows tagged with session.
func NewRecorder(s FixtureStore, session string, l *slog.Logger) *Recorder {
	if l == nil {
		l = logger.Default()
	}
	return &Recorder{store: s, session: session, logger: l, now: time.Now}
}

// OnEvent implements container.Observer.
func (r *Recorder) OnEvent(ctx context.Context, ev container.Event) {
	// The ledger must still be written when the lifecycle was cancelled.
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx, r.logger)
	ts := ev.Time
	if ts.IsZero() {
		ts = r.now()
	}

	f, err := r.store.Get(ctx, ev.ContainerID)
	switch {
	case errors.Is(err, ErrFixtureNotFound):
		f = &Fixture{ID: ev.ContainerID, Session: r.session, CreatedAt: ts.Unix()}
	case err != nil:
		log.Warn("fixture ledger read failed", "id", ev.ContainerID, "error", err)
		return
	}

	if name := logger.GetFixture(ctx); name != "" {
		f.Name = name
	} else if f.Name == "" {
		f.Name = ev.Name
	}
	if ev.Image != "" {
		f.Image = ev.Image
	}
	f.Status = FixtureStatus(ev.Type)
	switch ev.Type {
	case container.EventReady:
		f.Ports = ev.Ports
	case container.EventStopped, container.EventKilled, container.EventRemoved:
		f.Ports = nil
	}
	f.Error = ""
	if ev.Err != nil {
		f.Error = ev.Err.Error()
	}
	f.UpdatedAt = ts.Unix()

	if err := r.store.Record(ctx, f); err != nil {
		log.Warn("fixture ledger write failed", "id", ev.ContainerID, "error", err)
	}
}

var _ container.Observer = (*Recorder)(nil)
