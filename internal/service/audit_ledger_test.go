package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/lock"
	"modelmine/pkg/store/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result() map[string]interface{} {
	return map[string]interface{}{"accuracy": 94.7, "loss": 0.052, "epochs": 10}
}

func TestAuditLedger_GenesisAndLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	genesis, err := f.ledger.Append(ctx, "job-1", result(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), genesis.Height)
	assert.Nil(t, genesis.PrevHash)

	next, err := f.ledger.Append(ctx, "job-2", result(), time.Now())
	require.NoError(t, err)
	require.NotNil(t, next.PrevHash)
	assert.Equal(t, genesis.Hash, *next.PrevHash)
	assert.Greater(t, next.Nonce, genesis.Nonce)

	height, err := f.ledger.Height(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), height)
}

func TestAuditLedger_ConcurrentAppendsStayChained(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Same completion millisecond for every job
			_, err := f.ledger.Append(ctx, fmt.Sprintf("job-%d", i), result(), now)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	report, err := f.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid, report.Reason)
	assert.Equal(t, int64(20), report.Blocks)
}

func TestAuditLedger_CrossReplicaAppendsWithRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	repos := memory.NewRepositories()
	ctx := context.Background()

	replica := func() *AuditLedger {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return NewAuditLedger(repos.Ledger, lock.NewRedisDistributedLock(client, "ledger:append-lock"))
	}
	a, b := replica(), replica()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := a.Append(ctx, fmt.Sprintf("a-%d", i), result(), time.Now())
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := b.Append(ctx, fmt.Sprintf("b-%d", i), result(), time.Now())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	report, err := a.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid, report.Reason)
	assert.Equal(t, int64(20), report.Blocks)
	assert.False(t, mr.Exists("ledger:append-lock"))
}

func TestAuditLedger_ForkRejectedAsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Append(ctx, "job-1", result(), time.Now())
	require.NoError(t, err)

	// A block built on the empty chain after genesis exists
	err = f.repos.Ledger.Append(ctx, &model.LedgerBlock{ID: "fork", Height: 0, Hash: "x"})
	assert.ErrorIs(t, err, model.ErrLedgerWriteConflict)
}

func TestAuditLedger_VerifyDetectsTampering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.ledger.Append(ctx, fmt.Sprintf("job-%d", i), result(), time.Now())
		require.NoError(t, err)
	}

	f.repos.Ledger.(*memory.LedgerRepository).Tamper(1, "forged")

	report, err := f.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.NotNil(t, report.BrokenHeight)
	assert.Equal(t, int64(1), *report.BrokenHeight)
}

func TestAuditLedger_GetRecentAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var last *model.LedgerBlock
	for i := 0; i < 5; i++ {
		b, err := f.ledger.Append(ctx, fmt.Sprintf("job-%d", i), result(), time.Now())
		require.NoError(t, err)
		last = b
	}

	recent, err := f.ledger.GetRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, last.ID, recent[0].ID)
	assert.Equal(t, int64(2), recent[2].Height)

	all, err := f.ledger.GetRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	got, err := f.ledger.Get(ctx, last.ID)
	require.NoError(t, err)
	assert.Equal(t, last.Hash, got.Hash)

	_, err = f.ledger.Get(ctx, "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAuditLedger_EmptyChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)

	recent, err := f.ledger.GetRecent(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
