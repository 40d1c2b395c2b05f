package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/bus"
)

type memoryPorts struct {
	entries    []Entry
	checkpoint Checkpoint
	applied    []RemoteChange
	applyErr   error
	loadErr    error
}

func (m *memoryPorts) EntriesSince(ctx context.Context, seq int64, limit int) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.Seq > seq && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryPorts) Load(ctx context.Context) (Checkpoint, error) {
	if m.loadErr != nil {
		return Checkpoint{}, m.loadErr
	}
	return m.checkpoint, nil
}

func (m *memoryPorts) Save(ctx context.Context, cp Checkpoint) error {
	m.checkpoint = cp
	return nil
}

func (m *memoryPorts) ApplyRemote(ctx context.Context, changes []RemoteChange) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	m.applied = append(m.applied, changes...)
	return nil
}

type stubRemote struct {
	pushed   [][]Entry
	pushErr  error
	pulled   []RemoteChange
	cursor   int64
	pullErr  error
	lastSeen int64
}

func (s *stubRemote) Push(ctx context.Context, entries []Entry) error {
	if s.pushErr != nil {
		return s.pushErr
	}
	s.pushed = append(s.pushed, entries)
	return nil
}

func (s *stubRemote) Pull(ctx context.Context, cursor int64) ([]RemoteChange, int64, error) {
	s.lastSeen = cursor
	if s.pullErr != nil {
		return nil, 0, s.pullErr
	}
	return s.pulled, s.cursor, nil
}

func entry(seq int64, kinds ...string) Entry {
	return Entry{Seq: seq, EntryID: "e", Kinds: kinds, CommittedAt: time.Now()}
}

func newReconciler(ports *memoryPorts, remote *stubRemote) *Reconciler {
	return NewReconciler(ports, ports, ports, remote, nil, Config{StaleAfter: time.Minute}, nil)
}

func TestReconcileOnceAdvancesCheckpoint(t *testing.T) {
	ports := &memoryPorts{entries: []Entry{entry(1, "product"), entry(2, "invoice")}}
	remote := &stubRemote{
		pulled: []RemoteChange{{Kind: bus.KindProduct, Payload: []byte(`{"id":9}`)}},
		cursor: 42,
	}
	rec := newReconciler(ports, remote)

	require.NoError(t, rec.ReconcileOnce(context.Background()))

	require.Len(t, remote.pushed, 1)
	require.Len(t, remote.pushed[0], 2)
	require.EqualValues(t, 2, ports.checkpoint.LocalSeq)
	require.EqualValues(t, 42, ports.checkpoint.RemoteCursor)
	require.Len(t, ports.applied, 1)

	status := rec.Status()
	require.False(t, status.Stale)
	require.Empty(t, status.LastErr)
}

func TestReconcileOnceSkipsAlreadyPushedEntries(t *testing.T) {
	ports := &memoryPorts{
		entries:    []Entry{entry(1, "product"), entry(2, "invoice"), entry(3, "movement")},
		checkpoint: Checkpoint{LocalSeq: 2, RemoteCursor: 10},
	}
	remote := &stubRemote{cursor: 10}
	rec := newReconciler(ports, remote)

	require.NoError(t, rec.ReconcileOnce(context.Background()))

	require.Len(t, remote.pushed, 1)
	require.Len(t, remote.pushed[0], 1)
	require.EqualValues(t, 3, remote.pushed[0][0].Seq)
	require.EqualValues(t, 10, remote.lastSeen)
}

func TestPushFailureLeavesCheckpointUntouched(t *testing.T) {
	ports := &memoryPorts{entries: []Entry{entry(1, "product")}}
	remote := &stubRemote{pushErr: errors.New("link down")}
	rec := newReconciler(ports, remote)

	err := rec.ReconcileOnce(context.Background())
	require.Error(t, err)

	require.EqualValues(t, 0, ports.checkpoint.LocalSeq)
	require.Empty(t, ports.applied)

	status := rec.Status()
	require.True(t, status.Stale)
	require.Contains(t, status.LastErr, "link down")
}

func TestPullFailureAfterPushStillSafe(t *testing.T) {
	ports := &memoryPorts{entries: []Entry{entry(1, "product")}}
	remote := &stubRemote{pullErr: errors.New("timeout")}
	rec := newReconciler(ports, remote)

	require.Error(t, rec.ReconcileOnce(context.Background()))
	// Entries are re-pushed next cycle; the peer deduplicates on entry id.
	require.EqualValues(t, 0, ports.checkpoint.LocalSeq)
}

func TestRunSwallowsFailures(t *testing.T) {
	ports := &memoryPorts{loadErr: errors.New("db down")}
	rec := NewReconciler(ports, ports, ports, &stubRemote{}, nil, Config{Interval: time.Millisecond, StaleAfter: time.Minute}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rec.Run(ctx)

	require.Contains(t, rec.Status().LastErr, "db down")
}

func TestStatusStaleBeforeFirstCycle(t *testing.T) {
	rec := newReconciler(&memoryPorts{}, &stubRemote{})
	require.True(t, rec.Status().Stale)
}

func TestStatusGoesStaleAfterThreshold(t *testing.T) {
	ports := &memoryPorts{}
	rec := newReconciler(ports, &stubRemote{})
	require.NoError(t, rec.ReconcileOnce(context.Background()))
	require.False(t, rec.Status().Stale)

	rec.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	require.True(t, rec.Status().Stale)
}

func TestHeldLockSkipsCycle(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locker := redislock.New(client)

	held, err := locker.Obtain(context.Background(), lockKey, time.Minute, nil)
	require.NoError(t, err)
	defer held.Release(context.Background())

	ports := &memoryPorts{entries: []Entry{entry(1, "product")}}
	remote := &stubRemote{}
	rec := NewReconciler(ports, ports, ports, remote, locker, Config{StaleAfter: time.Minute}, nil)

	require.NoError(t, rec.ReconcileOnce(context.Background()))
	require.Empty(t, remote.pushed)
	require.EqualValues(t, 0, ports.checkpoint.LocalSeq)
}
