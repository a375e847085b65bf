package vault

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Events are notifications for the surrounding UI. They are called
// synchronously, after the operation finished and outside any session
// lock, so a handler may call back into the Session.
type Events struct {
	OnLogin        func()
	OnLogout       func()
	OnSaveComplete func(Collection)
}

func (e Events) login() {
	if e.OnLogin != nil {
		e.OnLogin()
	}
}

func (e Events) logout() {
	if e.OnLogout != nil {
		e.OnLogout()
	}
}

func (e Events) saveComplete(c Collection) {
	if e.OnSaveComplete != nil {
		e.OnSaveComplete(c)
	}
}

// Flusher is a feature module holding edits that are not yet staged. Flush
// should Stage them on the session and return.
type Flusher interface {
	Flush(ctx context.Context) error
}

type FlusherFunc func(ctx context.Context) error

func (f FlusherFunc) Flush(ctx context.Context) error { return f(ctx) }

// RegisterFlusher subscribes f to FlushAll. The returned func unsubscribes.
func (s *Session) RegisterFlusher(f Flusher) func() {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	id := s.flusherID
	s.flusherID++
	s.flushers[id] = f
	return func() {
		s.fmu.Lock()
		defer s.fmu.Unlock()
		delete(s.flushers, id)
	}
}

// FlushAll asks every registered Flusher to stage its edits and waits for
// them at most the session's flush timeout. Every failure is logged; the
// first one is returned. A flusher still running at the deadline is
// abandoned.
func (s *Session) FlushAll(ctx context.Context) error {
	s.fmu.Lock()
	flushers := make([]Flusher, 0, len(s.flushers))
	for _, f := range s.flushers {
		flushers = append(flushers, f)
	}
	s.fmu.Unlock()
	if len(flushers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.flushTimeout)
	defer cancel()

	var g errgroup.Group
	for _, f := range flushers {
		g.Go(func() error {
			if err := f.Flush(ctx); err != nil {
				s.log.Warn().Err(err).Msg("flusher failed")
				return fmt.Errorf("flush: %w", err)
			}
			return nil
		})
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("flush: %w", ctx.Err())
	}
	if err != nil {
		s.log.Warn().Err(err).Int("flushers", len(flushers)).Msg("flush incomplete")
		return err
	}
	s.log.Debug().Int("flushers", len(flushers)).Msg("flushed")
	return nil
}
