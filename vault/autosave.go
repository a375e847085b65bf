package vault

import (
	"context"
	"errors"
	"time"
)

const finalSaveTimeout = 5 * time.Second

// RunAutosave saves staged updates every interval until ctx is done, then
// makes one last attempt. It shares the write path with explicit saves, so
// the two never overlap. A failed tick is logged and retried on the next.
func (s *Session) RunAutosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSaveTimeout)
			s.autosave(fctx, "final")
			cancel()
			return
		case <-t.C:
			s.autosave(ctx, "tick")
		}
	}
}

func (s *Session) autosave(ctx context.Context, reason string) {
	err := s.Save(ctx)
	switch {
	case err == nil, errors.Is(err, ErrLocked):
	case errors.Is(err, context.Canceled) && reason == "tick":
	default:
		s.log.Warn().Err(err).Str("reason", reason).Msg("autosave failed")
	}
}
