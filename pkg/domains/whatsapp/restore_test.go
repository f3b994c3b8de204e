package whatsapp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wacrm/pkg/entities"
	"go.uber.org/zap"
)

func TestRestoreAllSessions(t *testing.T) {
	h := newHarness(t, testOptions())
	ctx := context.Background()

	for _, s := range []entities.WhatsAppSession{
		session("a", "a", "ws-1", entities.SessionStatusConnected),
		session("b", "b", "ws-2", entities.SessionStatusConnected),
		session("c", "c", "ws-1", entities.SessionStatusDisconnected),
		session("d", "d", "ws-1", entities.SessionStatusError),
	} {
		_, err := h.repo.UpsertSession(ctx, s)
		require.NoError(t, err)
	}

	r, err := NewRestorer(h.manager, h.repo, 2, zap.NewNop())
	require.NoError(t, err)
	defer r.Release()

	queued, err := r.RestoreAllSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)
	require.NoError(t, r.Wait(context.Background()))

	assert.Equal(t, 2, h.dialer.count())
	ids := h.registry.ids()
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
	assert.Equal(t, entities.SessionStatusConnecting, record(t, h, "a").Status)
	assert.Equal(t, entities.SessionStatusDisconnected, record(t, h, "c").Status)
}

func TestRestoreContinuesPastFailures(t *testing.T) {
	h := newHarness(t, testOptions())
	ctx := context.Background()
	h.creds.loadErr = errBoom

	for _, id := range []string{"a", "b", "c"} {
		_, err := h.repo.UpsertSession(ctx, session(id, id, "ws-1", entities.SessionStatusConnected))
		require.NoError(t, err)
	}

	r, err := NewRestorer(h.manager, h.repo, 1, zap.NewNop())
	require.NoError(t, err)
	defer r.Release()

	queued, err := r.RestoreAllSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, queued)
	require.NoError(t, r.Wait(context.Background()))

	assert.Equal(t, 0, h.registry.Len())
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, entities.SessionStatusError, record(t, h, id).Status)
	}
}
