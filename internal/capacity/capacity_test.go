package capacity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photostore/internal/jobs"
	"photostore/internal/lock"
	"photostore/internal/models"
	"photostore/internal/store/memstore"
)

var testLock = lock.Options{Block: time.Second, Lease: time.Minute}

func createAccount(t *testing.T, ledger *memstore.AccountStore, n byte, quota int64, kinds ...string) *models.StorageAccount {
	t.Helper()
	if len(kinds) == 0 {
		kinds = []string{models.KindPhoto}
	}
	var id uuid.UUID
	id[15] = n
	a, err := ledger.Create(context.Background(), &models.StorageAccount{
		ID:         id,
		Login:      "account-" + string(rune('0'+n)),
		QuotaBytes: quota,
		Kinds:      kinds,
	})
	require.NoError(t, err)
	return a
}

func remaining(t *testing.T, ledger *memstore.AccountStore, id uuid.UUID) int64 {
	t.Helper()
	a, err := ledger.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a.RemainingBytes
}

func TestReserve_FirstFitInIDOrder(t *testing.T) {
	ctx := context.Background()
	ledger := memstore.New().Accounts()
	first := createAccount(t, ledger, 1, 100)
	second := createAccount(t, ledger, 2, 50)
	sel := NewSelector(ledger, lock.NewLocalLocker(), testLock)

	id, err := sel.Reserve(ctx, 60, models.KindPhoto)
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)
	assert.Equal(t, int64(40), remaining(t, ledger, first.ID))

	_, err = sel.Reserve(ctx, 60, models.KindPhoto)
	assert.ErrorIs(t, err, ErrNoCapacity)

	id, err = sel.Reserve(ctx, 45, models.KindPhoto)
	require.NoError(t, err)
	assert.Equal(t, second.ID, id)
	assert.Equal(t, int64(5), remaining(t, ledger, second.ID))

	// A size that fits exactly leaves zero behind.
	id, err = sel.Reserve(ctx, 40, models.KindPhoto)
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)
	assert.Equal(t, int64(0), remaining(t, ledger, first.ID))
}

func TestReserve_RespectsKind(t *testing.T) {
	ctx := context.Background()
	ledger := memstore.New().Accounts()
	photos := createAccount(t, ledger, 1, 100, models.KindPhoto)
	tracks := createAccount(t, ledger, 2, 100, models.KindOther)
	sel := NewSelector(ledger, lock.NewLocalLocker(), testLock)

	id, err := sel.Reserve(ctx, 10, models.KindOther)
	require.NoError(t, err)
	assert.Equal(t, tracks.ID, id)
	assert.Equal(t, int64(100), remaining(t, ledger, photos.ID))
}

func TestReserve_NoAccounts(t *testing.T) {
	sel := NewSelector(memstore.New().Accounts(), lock.NewLocalLocker(), testLock)
	_, err := sel.Reserve(context.Background(), 1, models.KindPhoto)
	assert.ErrorIs(t, err, ErrNoCapacity)
}

func TestReserve_NegativeSize(t *testing.T) {
	sel := NewSelector(memstore.New().Accounts(), lock.NewLocalLocker(), testLock)
	_, err := sel.Reserve(context.Background(), -1, models.KindPhoto)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoCapacity))
}

func TestReserve_ConcurrentNeverOverbooks(t *testing.T) {
	ctx := context.Background()
	ledger := memstore.New().Accounts()
	a := createAccount(t, ledger, 1, 55)
	sel := NewSelector(ledger, lock.NewLocalLocker(), testLock)

	var wg sync.WaitGroup
	var ok, full atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sel.Reserve(ctx, 10, models.KindPhoto)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrNoCapacity):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, int32(5), full.Load())
	assert.Equal(t, int64(5), remaining(t, ledger, a.ID))
}

func TestReserve_LockTimeout(t *testing.T) {
	ctx := context.Background()
	ledger := memstore.New().Accounts()
	a := createAccount(t, ledger, 1, 100)
	locker := lock.NewLocalLocker()
	sel := NewSelector(ledger, locker, lock.Options{Block: 20 * time.Millisecond, Lease: time.Minute})

	held, err := locker.Acquire(ctx, lock.AccountKey(a.ID), testLock)
	require.NoError(t, err)
	defer held.Release(ctx)

	_, err = sel.Reserve(ctx, 10, models.KindPhoto)
	assert.ErrorIs(t, err, lock.ErrTimeout)
	assert.Equal(t, int64(100), remaining(t, ledger, a.ID))
}

func TestReserve_ExhaustsFirstAccount(t *testing.T) {
	ctx := context.Background()
	ledger := memstore.New().Accounts()
	first := createAccount(t, ledger, 1, 100)
	second := createAccount(t, ledger, 2, 50)
	sel := NewSelector(ledger, lock.NewLocalLocker(), testLock)

	id, err := sel.Reserve(ctx, 80, models.KindPhoto)
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)
	assert.Equal(t, int64(20), remaining(t, ledger, first.ID))
	assert.Equal(t, int64(50), remaining(t, ledger, second.ID))

	_, err = sel.Reserve(ctx, 80, models.KindPhoto)
	assert.ErrorIs(t, err, ErrNoCapacity)
	assert.Equal(t, int64(20), remaining(t, ledger, first.ID))
	assert.Equal(t, int64(50), remaining(t, ledger, second.ID))
}

func TestCredit(t *testing.T) {
	ctx := context.Background()
	ledger := memstore.New().Accounts()
	a := createAccount(t, ledger, 1, 100)
	sel := NewSelector(ledger, lock.NewLocalLocker(), testLock)

	_, err := sel.Reserve(ctx, 70, models.KindPhoto)
	require.NoError(t, err)
	require.NoError(t, sel.Credit(ctx, a.ID, 70))
	assert.Equal(t, int64(100), remaining(t, ledger, a.ID))
}

type fakeProvider struct {
	mu        sync.Mutex
	remaining map[uuid.UUID]int64
	err       error
	calls     int
}

func (p *fakeProvider) RemainingCapacity(_ context.Context, account *models.StorageAccount) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	return p.remaining[account.ID], nil
}

func TestRefresh_OverwritesCachedFigure(t *testing.T) {
	ctx := context.Background()
	ledger := memstore.New().Accounts()
	a := createAccount(t, ledger, 1, 100)
	locker := lock.NewLocalLocker()
	sel := NewSelector(ledger, locker, testLock)

	_, err := sel.Reserve(ctx, 80, models.KindPhoto)
	require.NoError(t, err)
	require.Equal(t, int64(20), remaining(t, ledger, a.ID))

	provider := &fakeProvider{remaining: map[uuid.UUID]int64{a.ID: 40}}
	r := NewRefresher(ledger, provider, locker, testLock)
	require.NoError(t, r.Refresh(ctx, a.ID))

	assert.Equal(t, int64(40), remaining(t, ledger, a.ID))
	refreshed, err := ledger.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, refreshed.RefreshedAt)
}

func TestRefresh_ProviderErrorKeepsFigure(t *testing.T) {
	ctx := context.Background()
	ledger := memstore.New().Accounts()
	a := createAccount(t, ledger, 1, 100)

	provider := &fakeProvider{err: errors.New("provider down")}
	r := NewRefresher(ledger, provider, lock.NewLocalLocker(), testLock)

	require.Error(t, r.Refresh(ctx, a.ID))
	assert.Equal(t, int64(100), remaining(t, ledger, a.ID))
}

func TestRefresh_MissingAccount(t *testing.T) {
	provider := &fakeProvider{}
	r := NewRefresher(memstore.New().Accounts(), provider, lock.NewLocalLocker(), testLock)

	require.NoError(t, r.Refresh(context.Background(), uuid.New()))
	assert.Zero(t, provider.calls)
}

type collectingQueue struct {
	jobs []jobs.Job
}

func (q *collectingQueue) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func TestScheduler_EnqueueAll(t *testing.T) {
	ctx := context.Background()
	ledger := memstore.New().Accounts()
	a := createAccount(t, ledger, 1, 100)
	b := createAccount(t, ledger, 2, 100)

	provider := &fakeProvider{remaining: map[uuid.UUID]int64{a.ID: 7, b.ID: 9}}
	queue := &collectingQueue{}
	s := NewScheduler(ledger, NewRefresher(ledger, provider, lock.NewLocalLocker(), testLock), queue, time.Hour)

	require.NoError(t, s.EnqueueAll(ctx))
	require.Len(t, queue.jobs, 2)

	for _, job := range queue.jobs {
		require.NoError(t, job.Run(ctx))
	}
	assert.Equal(t, int64(7), remaining(t, ledger, a.ID))
	assert.Equal(t, int64(9), remaining(t, ledger, b.ID))
}

func TestScheduler_StartStop(t *testing.T) {
	ledger := memstore.New().Accounts()
	createAccount(t, ledger, 1, 100)
	provider := &fakeProvider{remaining: map[uuid.UUID]int64{}}

	q := jobs.NewQueue(jobs.Options{})
	q.Start(context.Background())
	defer q.Stop(context.Background())

	s := NewScheduler(ledger, NewRefresher(ledger, provider, lock.NewLocalLocker(), testLock), q, 10*time.Millisecond)
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return provider.calls > 0
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
}
