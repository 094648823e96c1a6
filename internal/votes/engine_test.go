package votes_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes/testutil"
)

type fixture struct {
	store *testutil.MemoryStore
	cache *testutil.MemoryCache
	hooks *testutil.HooksRecorder
	clock *clockwork.FakeClock
	eng   *votes.Engine
}

func newFixture(t *testing.T, maxAttempts int) *fixture {
	t.Helper()
	f := &fixture{
		store: testutil.NewMemoryStore(),
		cache: testutil.NewMemoryCache(),
		hooks: &testutil.HooksRecorder{},
		clock: clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.eng = votes.NewEngine(votes.Deps{
		Runner: f.store,
		Cache:  f.cache,
		Hooks:  f.hooks,
		Clock:  f.clock,
	}, votes.Config{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
	return f
}

func (f *fixture) assertConsistent(t *testing.T, itemID uuid.UUID, baseline int64) {
	t.Helper()
	var sum int64
	for _, rec := range f.store.Records(itemID) {
		sum += rec.Direction.Weight()
	}
	assert.Equal(t, baseline+sum, f.store.Score(itemID), "score must equal baseline plus ledger sum")
}

func TestToggle_Scenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 0)
	alice, bob := uuid.New(), uuid.New()

	res, err := f.eng.Toggle(ctx, item, alice, models.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Score)
	assert.Equal(t, models.VoteState{Upvoted: true}, res.State)
	assert.True(t, res.Changed)

	res, err = f.eng.Toggle(ctx, item, bob, models.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Score)
	assert.Equal(t, models.VoteState{Downvoted: true}, res.State)

	res, err = f.eng.Toggle(ctx, item, alice, models.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), res.Score)
	assert.Equal(t, models.VoteState{Downvoted: true}, res.State)

	recs := f.store.Records(item)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, models.DirectionDown, rec.Direction)
	}

	res, err = f.eng.Clear(ctx, item, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), res.Score)
	assert.Equal(t, models.VoteState{}, res.State)
	assert.True(t, res.Changed)

	require.Len(t, f.store.Records(item), 1)
	f.assertConsistent(t, item, 0)
}

func TestToggle_SameDirectionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindComment, 3)
	user := uuid.New()

	first, err := f.eng.Toggle(ctx, item, user, models.DirectionUp)
	require.NoError(t, err)
	second, err := f.eng.Toggle(ctx, item, user, models.DirectionUp)
	require.NoError(t, err)

	assert.Equal(t, int64(4), first.Score)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.State, second.State)
	assert.False(t, second.Changed)
	assert.Len(t, f.store.Records(item), 1)
	f.assertConsistent(t, item, 3)
}

func TestToggle_FlipMovesScoreByTwo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 10)
	user := uuid.New()

	up, err := f.eng.Toggle(ctx, item, user, models.DirectionUp)
	require.NoError(t, err)
	down, err := f.eng.Toggle(ctx, item, user, models.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, up.Score-2, down.Score)

	up, err = f.eng.Toggle(ctx, item, user, models.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, down.Score+2, up.Score)

	recs := f.store.Records(item)
	require.Len(t, recs, 1)
	assert.Equal(t, models.DirectionUp, recs[0].Direction)
	assert.Equal(t, f.clock.Now().UTC(), recs[0].CreatedAt)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 7)
	user := uuid.New()

	res, err := f.eng.Clear(ctx, item, user)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Score)
	assert.False(t, res.Changed)

	_, err = f.eng.Toggle(ctx, item, user, models.DirectionUp)
	require.NoError(t, err)
	res, err = f.eng.Clear(ctx, item, user)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Score)
	assert.Equal(t, models.VoteState{}, res.State)

	_, err = f.eng.Toggle(ctx, item, user, models.DirectionDown)
	require.NoError(t, err)
	res, err = f.eng.Clear(ctx, item, user)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Score)
	assert.Empty(t, f.store.Records(item))
}

func TestToggle_Preconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 0)

	_, err := f.eng.Toggle(ctx, item, uuid.Nil, models.DirectionUp)
	assert.ErrorIs(t, err, votes.ErrUnauthorized)

	_, err = f.eng.Clear(ctx, item, uuid.Nil)
	assert.ErrorIs(t, err, votes.ErrUnauthorized)

	_, err = f.eng.Toggle(ctx, item, uuid.New(), models.Direction("sideways"))
	assert.ErrorIs(t, err, votes.ErrMalformedInput)
	assert.ErrorIs(t, err, models.ErrInvalidDirection)

	assert.Equal(t, 0, f.store.TxCalls(), "rejected input must not open a transaction")

	_, err = f.eng.Toggle(ctx, uuid.New(), uuid.New(), models.DirectionUp)
	assert.ErrorIs(t, err, votes.ErrItemNotFound)

	_, err = f.eng.Clear(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, votes.ErrItemNotFound)
}

func TestToggle_RetriesConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 0)
	user := uuid.New()

	f.store.InjectTxFaults(votes.ErrConflict, fmt.Errorf("%w: serialization failure", votes.ErrConflict))

	res, err := f.eng.Toggle(ctx, item, user, models.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Score)
	assert.Equal(t, 3, f.store.TxCalls())
	assert.Len(t, f.hooks.Conflicts, 2)
	assert.Len(t, f.hooks.Retries, 2)
	require.Len(t, f.hooks.Operations, 1)
	assert.Equal(t, "success", f.hooks.Operations[0].Status)
}

func TestToggle_SurfacesConflictAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	item := f.store.AddItem(models.KindPost, 0)
	user := uuid.New()

	f.store.InjectTxFaults(votes.ErrConflict, votes.ErrConflict, votes.ErrConflict, votes.ErrConflict)

	_, err := f.eng.Toggle(ctx, item, user, models.DirectionUp)
	assert.ErrorIs(t, err, votes.ErrConflict)
	assert.Equal(t, 3, f.store.TxCalls())
	assert.Equal(t, int64(0), f.store.Score(item))
	assert.Empty(t, f.store.Records(item))
	require.Len(t, f.hooks.Operations, 1)
	assert.Equal(t, "conflict", f.hooks.Operations[0].Status)
}

func TestToggle_DoesNotRetryOtherErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 0)

	f.store.InjectTxFaults(fmt.Errorf("%w: connection refused", votes.ErrStoreUnavailable))

	_, err := f.eng.Toggle(ctx, item, uuid.New(), models.DirectionUp)
	assert.ErrorIs(t, err, votes.ErrStoreUnavailable)
	assert.Equal(t, 1, f.store.TxCalls())
	assert.Empty(t, f.hooks.Retries)
}

func TestToggle_FailedFlipLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 0)
	user := uuid.New()

	_, err := f.eng.Toggle(ctx, item, user, models.DirectionUp)
	require.NoError(t, err)

	f.store.InjectInsertFaults(errors.New("disk full"))
	_, err = f.eng.Toggle(ctx, item, user, models.DirectionDown)
	require.Error(t, err)

	recs := f.store.Records(item)
	require.Len(t, recs, 1)
	assert.Equal(t, models.DirectionUp, recs[0].Direction)
	assert.Equal(t, int64(1), f.store.Score(item))
}

func TestToggle_RetriesUniqueViolationOnInsert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 0)
	user := uuid.New()

	f.store.InjectInsertFaults(fmt.Errorf("%w: duplicate key", votes.ErrConflict))

	res, err := f.eng.Toggle(ctx, item, user, models.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), res.Score)
	assert.Equal(t, 2, f.store.TxCalls())
	f.assertConsistent(t, item, 0)
}

func TestToggle_CanceledContext(t *testing.T) {
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.eng.Toggle(ctx, item, uuid.New(), models.DirectionUp)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), f.store.Score(item))
}

func TestToggle_ConcurrentDistinctUsersConverge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 0)

	const voters = 50
	var wg sync.WaitGroup
	errs := make(chan error, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.eng.Toggle(ctx, item, uuid.New(), models.DirectionUp)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(voters), f.store.Score(item))
	assert.Len(t, f.store.Records(item), voters)
}

func TestToggle_ConcurrentMixedOperationsStayConsistent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindComment, 5)

	users := make([]uuid.UUID, 10)
	for i := range users {
		users[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 40; i++ {
				user := users[rng.Intn(len(users))]
				var err error
				switch rng.Intn(3) {
				case 0:
					_, err = f.eng.Toggle(ctx, item, user, models.DirectionUp)
				case 1:
					_, err = f.eng.Toggle(ctx, item, user, models.DirectionDown)
				default:
					_, err = f.eng.Clear(ctx, item, user)
				}
				assert.NoError(t, err)
			}
		}(int64(w))
	}
	wg.Wait()

	seen := make(map[uuid.UUID]bool)
	for _, rec := range f.store.Records(item) {
		assert.False(t, seen[rec.UserID], "at most one record per user")
		seen[rec.UserID] = true
	}
	f.assertConsistent(t, item, 5)
}

func TestToggle_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 0)
	user := uuid.New()

	require.NoError(t, f.cache.Store(ctx, user, 0, map[uuid.UUID]models.VoteState{item: {}}))

	_, err := f.eng.Toggle(ctx, item, user, models.DirectionUp)
	require.NoError(t, err)
	assert.False(t, f.cache.Has(user, item))
	assert.Equal(t, 1, f.cache.Invalidations)

	_, err = f.eng.Toggle(ctx, item, user, models.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.Invalidations, "no-op must not touch the cache")

	_, err = f.eng.Clear(ctx, item, user)
	require.NoError(t, err)
	assert.Equal(t, 2, f.cache.Invalidations)
}

func TestToggle_CacheFailureDoesNotFailVote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 0)
	f.cache.Err = errors.New("redis down")

	res, err := f.eng.Toggle(ctx, item, uuid.New(), models.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Score)
}

func TestAuditAndReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	item := f.store.AddItem(models.KindPost, 2)

	for i := 0; i < 3; i++ {
		_, err := f.eng.Toggle(ctx, item, uuid.New(), models.DirectionUp)
		require.NoError(t, err)
	}
	_, err := f.eng.Toggle(ctx, item, uuid.New(), models.DirectionDown)
	require.NoError(t, err)

	audit, err := f.eng.Audit(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(4), audit.Score)
	assert.Equal(t, int64(2), audit.LedgerSum)
	assert.Equal(t, int64(0), audit.Drift)

	f.store.ForceScore(item, 11)

	audit, err = f.eng.Audit(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(7), audit.Drift)

	fixed, err := f.eng.Reconcile(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(7), fixed.Drift)
	assert.Equal(t, int64(4), f.store.Score(item))

	audit, err = f.eng.Audit(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(0), audit.Drift)

	_, err = f.eng.Audit(ctx, uuid.New())
	assert.ErrorIs(t, err, votes.ErrItemNotFound)
}

// tracingRunner records the store calls made inside each transaction.
type tracingRunner struct {
	votes.TxRunner
	calls []string
}

func (r *tracingRunner) InTx(ctx context.Context, fn func(tx votes.Tx) error) error {
	return r.TxRunner.InTx(ctx, func(tx votes.Tx) error {
		return fn(tracingTx{Tx: tx, r: r})
	})
}

type tracingTx struct {
	votes.Tx
	r *tracingRunner
}

func (t tracingTx) Ledger() votes.Ledger   { return tracingLedger{Ledger: t.Tx.Ledger(), r: t.r} }
func (t tracingTx) Counter() votes.Counter { return tracingCounter{Counter: t.Tx.Counter(), r: t.r} }

type tracingLedger struct {
	votes.Ledger
	r *tracingRunner
}

func (l tracingLedger) Sum(ctx context.Context, itemID uuid.UUID) (int64, error) {
	l.r.calls = append(l.r.calls, "sum")
	return l.Ledger.Sum(ctx, itemID)
}

type tracingCounter struct {
	votes.Counter
	r *tracingRunner
}

func (c tracingCounter) Get(ctx context.Context, itemID uuid.UUID) (*models.VotableItem, error) {
	c.r.calls = append(c.r.calls, "get")
	return c.Counter.Get(ctx, itemID)
}

func (c tracingCounter) GetForUpdate(ctx context.Context, itemID uuid.UUID) (*models.VotableItem, error) {
	c.r.calls = append(c.r.calls, "get_for_update")
	return c.Counter.GetForUpdate(ctx, itemID)
}

func (c tracingCounter) SetScore(ctx context.Context, itemID uuid.UUID, score int64) error {
	c.r.calls = append(c.r.calls, "set_score")
	return c.Counter.SetScore(ctx, itemID, score)
}

func TestReconcile_LocksItemBeforeReadingLedger(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore()
	runner := &tracingRunner{TxRunner: store}
	eng := votes.NewEngine(votes.Deps{Runner: runner}, votes.Config{MaxAttempts: 1})

	item := store.AddItem(models.KindPost, 0)
	_, err := eng.Toggle(ctx, item, uuid.New(), models.DirectionUp)
	require.NoError(t, err)
	store.ForceScore(item, 7)

	runner.calls = nil
	_, err = eng.Audit(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, []string{"get", "sum"}, runner.calls, "a read-only audit takes no lock")

	runner.calls = nil
	audit, err := eng.Reconcile(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(6), audit.Drift)
	// Without the lock a toggle committing between sum and set_score would be overwritten.
	assert.Equal(t, []string{"get_for_update", "sum", "set_score"}, runner.calls)
	assert.Equal(t, int64(1), store.Score(item))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "success", votes.KindOf(nil))
	assert.Equal(t, "conflict", votes.KindOf(fmt.Errorf("wrapped: %w", votes.ErrConflict)))
	assert.Equal(t, "malformed_input", votes.KindOf(votes.Malformed("bad")))
	assert.Equal(t, "not_found", votes.KindOf(votes.ErrItemNotFound))
	assert.Equal(t, "unauthorized", votes.KindOf(votes.ErrUnauthorized))
	assert.Equal(t, "store_unavailable", votes.KindOf(votes.ErrStoreUnavailable))
	assert.Equal(t, "item_exists", votes.KindOf(votes.ErrItemExists))
	assert.Equal(t, "canceled", votes.KindOf(context.Canceled))
	assert.Equal(t, "internal", votes.KindOf(errors.New("boom")))
}
