package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/buddy/internal/session"
	"github.com/briangreenhill/buddy/internal/storage"
)

// SweepHandler erases expired visitor sessions from the shared store so
// abandoned logins do not linger until the visitor comes back.
type SweepHandler struct {
	Store storage.ListStore
	// Also names per-visitor keys erased together with a dead session.
	Also  []string
	Now   func() time.Time
	Log   zerolog.Logger
}

// ProcessTask runs one sweep. A malformed payload is not retried.
func (h SweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p SessionSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			h.Log.Error().Err(err).Msg("bad sweep payload")
			return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	var st storage.ListStore = h.Store
	if p.Prefix != "" {
		st = storage.Namespace(h.Store, p.Prefix)
	}

	start := time.Now()
	n, err := session.Sweep(ctx, st, now(), h.Also...)
	ev := h.Log.Info()
	if err != nil {
		ev = h.Log.Warn().Err(err)
	}
	ev.Str("prefix", p.Prefix).Int("erased", n).Dur("duration", time.Since(start)).Msg("session sweep")
	return err
}
