package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/buddy/internal/session"
	"github.com/briangreenhill/buddy/internal/storage"
)

func TestNewSessionSweepTask(t *testing.T) {
	task, err := NewSessionSweepTask(SessionSweepPayload{Prefix: "visitor"})
	require.NoError(t, err)
	assert.Equal(t, TaskSessionSweep, task.Type())
	assert.JSONEq(t, `{"prefix":"visitor"}`, string(task.Payload()))
}

func TestSweepHandler(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := storage.NewRedis(rdb, "buddy:")
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	put := func(k, v string) { require.NoError(t, st.Put(ctx, k, []byte(v))) }
	put("visitor/old/"+session.UserKey, `{"name":"Old","email":"old@example.com"}`)
	put("visitor/old/"+session.ExpiryKey, string(session.FormatExpiry(now.Add(-time.Second))))
	put("visitor/old/buddy_remote_cookies", `[]`)
	put("visitor/new/"+session.UserKey, `{"name":"New","email":"new@example.com"}`)
	put("visitor/new/"+session.ExpiryKey, string(session.FormatExpiry(now.Add(time.Hour))))
	put("other/"+session.UserKey, `{"name":"Elsewhere","email":"e@example.com"}`)

	h := SweepHandler{
		Store: st,
		Also:  []string{"buddy_remote_cookies"},
		Now:   func() time.Time { return now },
		Log:   zerolog.Nop(),
	}
	task, err := NewSessionSweepTask(SessionSweepPayload{Prefix: "visitor"})
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(ctx, task))

	keys, err := st.Keys(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"visitor/new/" + session.UserKey,
		"visitor/new/" + session.ExpiryKey,
		"other/" + session.UserKey,
	}, keys)
}

func TestSweepHandlerBadPayload(t *testing.T) {
	h := SweepHandler{Store: storage.NewMemory(), Log: zerolog.Nop()}
	err := h.ProcessTask(context.Background(), asynq.NewTask(TaskSessionSweep, []byte("{")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
