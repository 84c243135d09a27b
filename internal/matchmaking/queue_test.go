package matchmaking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duskforge/lobby/internal/registry"
)

type fakePairer struct {
	inLobby map[string]bool
	pairs   [][2]string
	pairErr error
}

func (f *fakePairer) HasLobby(deviceID string) bool {
	return f.inLobby[deviceID]
}

func (f *fakePairer) Pair(_ context.Context, a, b string) (registry.Snapshot, error) {
	if f.pairErr != nil {
		return registry.Snapshot{}, f.pairErr
	}
	f.pairs = append(f.pairs, [2]string{a, b})
	return registry.Snapshot{ID: "lobby-" + a + "-" + b, Code: "ABCD"}, nil
}

func TestFindMatchEnqueuesFirstWaiter(t *testing.T) {
	q := New(&fakePairer{inLobby: map[string]bool{}}, nil, 30)

	res, err := q.FindMatch(context.Background(), "devA")
	require.NoError(t, err)
	require.True(t, res.InQueue)
	require.Equal(t, 1, res.Position)
	require.Equal(t, 30, res.ETASeconds)
}

func TestFindMatchPairsSecondCallerWithHead(t *testing.T) {
	reg := &fakePairer{inLobby: map[string]bool{}}
	q := New(reg, nil, 30)
	ctx := context.Background()

	_, err := q.FindMatch(ctx, "devA")
	require.NoError(t, err)

	res, err := q.FindMatch(ctx, "devB")
	require.NoError(t, err)
	require.False(t, res.InQueue)
	require.Equal(t, "lobby-devA-devB", res.Lobby.ID)

	// Seat 1 is always the earlier queuer.
	require.Equal(t, [][2]string{{"devA", "devB"}}, reg.pairs)
	require.False(t, q.QueueStatus("devA").InQueue)
	require.False(t, q.QueueStatus("devB").InQueue)
}

func TestFindMatchIsIdempotentWhileQueued(t *testing.T) {
	q := New(&fakePairer{inLobby: map[string]bool{}}, nil, 30)
	ctx := context.Background()

	first, err := q.FindMatch(ctx, "devA")
	require.NoError(t, err)
	again, err := q.FindMatch(ctx, "devA")
	require.NoError(t, err)
	require.Equal(t, first, again)
}

func TestFindMatchRejectsDeviceAlreadyInLobby(t *testing.T) {
	q := New(&fakePairer{inLobby: map[string]bool{"devA": true}}, nil, 30)

	_, err := q.FindMatch(context.Background(), "devA")
	require.Error(t, err)
	require.False(t, q.QueueStatus("devA").InQueue)
}

func TestFindMatchDropsStaleHeadOnPairFailure(t *testing.T) {
	reg := &fakePairer{inLobby: map[string]bool{}}
	q := New(reg, nil, 30)
	ctx := context.Background()

	_, err := q.FindMatch(ctx, "devA")
	require.NoError(t, err)

	reg.pairErr = errors.New("device already has a lobby")
	_, err = q.FindMatch(ctx, "devB")
	require.Error(t, err)

	// The stale head was consumed; the queue is empty again.
	require.False(t, q.QueueStatus("devA").InQueue)
	require.False(t, q.QueueStatus("devB").InQueue)
}

func TestLeaveQueueIsIdempotent(t *testing.T) {
	q := New(&fakePairer{inLobby: map[string]bool{}}, nil, 30)
	ctx := context.Background()

	_, err := q.FindMatch(ctx, "devA")
	require.NoError(t, err)

	q.LeaveQueue("devA")
	q.LeaveQueue("devA")
	require.False(t, q.QueueStatus("devA").InQueue)
}

func TestQueueStatusReportsOneBasedPositions(t *testing.T) {
	q := New(&fakePairer{inLobby: map[string]bool{}}, nil, 45)
	ctx := context.Background()

	_, err := q.FindMatch(ctx, "devA")
	require.NoError(t, err)
	q.mu.Lock()
	q.waiters = append(q.waiters, waiter{deviceID: "devB"})
	q.mu.Unlock()

	st := q.QueueStatus("devB")
	require.True(t, st.InQueue)
	require.Equal(t, 2, st.Position)
	require.Equal(t, 45, st.ETASeconds)
}
