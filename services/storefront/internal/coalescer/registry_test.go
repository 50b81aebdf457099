package coalescer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

func noopExecutorFactory(string) Executor {
	return func(context.Context, domain.Mutation) (*domain.MutationResult, error) {
		return &domain.MutationResult{Cart: domain.NewEmptyCart()}, nil
	}
}

func TestRegistry_GetCreatesOnce(t *testing.T) {
	created := 0
	r := NewRegistry(10, time.Minute, func(id string) Executor {
		created++
		return noopExecutorFactory(id)
	}, discardLogger())

	a := r.Get("sess-a")
	again := r.Get("sess-a")
	b := r.Get("sess-b")

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, "sess-a", a.ID())
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_EvictsLeastRecentlyUsed(t *testing.T) {
	r := NewRegistry(2, time.Minute, noopExecutorFactory, discardLogger())

	r.Get("sess-a")
	r.Get("sess-b")
	r.Get("sess-a")
	r.Get("sess-c")

	_, ok := r.Peek("sess-b")
	assert.False(t, ok)
	_, ok = r.Peek("sess-a")
	assert.True(t, ok)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_ExpiresIdleSessions(t *testing.T) {
	r := NewRegistry(10, 20*time.Millisecond, noopExecutorFactory, discardLogger())

	first := r.Get("sess-a")

	require.Eventually(t, func() bool {
		_, ok := r.Peek("sess-a")
		return !ok
	}, time.Second, 5*time.Millisecond)

	assert.NotSame(t, first, r.Get("sess-a"))
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry(10, time.Minute, noopExecutorFactory, discardLogger())
	r.Get("sess-a")

	r.Remove("sess-a")

	_, ok := r.Peek("sess-a")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_WaitDrainsSessions(t *testing.T) {
	r := NewRegistry(10, time.Minute, noopExecutorFactory, discardLogger())
	s := r.Get("sess-a")

	ticket, err := s.Submit(context.Background(), domain.Mutation{Kind: domain.KindDiscountUpdate, DiscountCodes: []string{"SAVE10"}})
	require.NoError(t, err)

	r.Wait()

	select {
	case <-ticket.Done():
	default:
		t.Fatal("ticket should be resolved after Wait")
	}
}

func TestRegistry_EvictedSessionKeepsInFlightMutations(t *testing.T) {
	remote := newFakeRemote()
	r := NewRegistry(1, time.Minute, func(string) Executor { return remote.exec }, discardLogger())
	ctx := context.Background()

	a := r.Get("sess-a")
	t1, err := a.Submit(ctx, setQuantity("L1", 3))
	require.NoError(t, err)
	c1 := remote.next(t)

	r.Get("sess-b")
	_, held := r.cache.Peek("sess-a")
	require.False(t, held, "sess-a should have been pushed out")
	assert.Equal(t, 1, r.Draining())

	again := r.Get("sess-a")
	require.Same(t, a, again)
	assert.Len(t, again.Pending(), 1, "the in-flight mutation stays projected")
	assert.Equal(t, 0, r.Draining())

	t2, err := again.Submit(ctx, setQuantity("L1", 4))
	require.NoError(t, err)
	c2 := remote.next(t)
	assert.ErrorIs(t, c1.ctx.Err(), context.Canceled, "the older request under the same key is cancelled")

	c1.reply <- reply{err: context.Canceled}
	c2.reply <- reply{res: &domain.MutationResult{Cart: cartWithLine("L1", 4)}}

	assert.Equal(t, StatusSuperseded, waitOutcome(t, t1).Status)
	out := waitOutcome(t, t2)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, 4, out.Cart.Lines[0].Quantity)
}

func TestRegistry_WaitCoversEvictedSessions(t *testing.T) {
	remote := newFakeRemote()
	r := NewRegistry(1, time.Minute, func(string) Executor { return remote.exec }, discardLogger())

	a := r.Get("sess-a")
	ticket, err := a.Submit(context.Background(), setQuantity("L1", 3))
	require.NoError(t, err)
	c := remote.next(t)
	r.Get("sess-b")

	waited := make(chan struct{})
	go func() {
		r.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while an evicted session still had a request in flight")
	case <-time.After(20 * time.Millisecond):
	}

	c.reply <- reply{res: &domain.MutationResult{Cart: cartWithLine("L1", 3)}}

	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the request finished")
	}
	assert.Equal(t, StatusApplied, waitOutcome(t, ticket).Status)
	assert.Equal(t, 0, r.Draining())
	_, ok := r.Peek("sess-a")
	assert.False(t, ok)
}

func TestRegistry_IdleEvictionWithoutRequestsIsNotParked(t *testing.T) {
	r := NewRegistry(1, time.Minute, noopExecutorFactory, discardLogger())

	first := r.Get("sess-a")
	r.Get("sess-b")

	assert.Equal(t, 0, r.Draining())
	assert.NotSame(t, first, r.Get("sess-a"))
}
