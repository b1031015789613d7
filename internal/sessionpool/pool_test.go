package sessionpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/xmrescrow/internal/models"
	"github.com/yourusername/xmrescrow/internal/walletrpc"
)

func fakeOpener() (WalletOpener, *int32Counter) {
	counter := &int32Counter{}
	opener := func(ctx context.Context, escrowID string, role models.Role, rpcURL string) (*walletrpc.Client, error) {
		counter.inc()
		client, _ := walletrpc.NewClient("http://127.0.0.1:18082", 1)
		return client, nil
	}
	return opener, counter
}

type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *int32Counter) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func endpoints() map[models.Role]string {
	return map[models.Role]string{
		models.RoleBuyer:   "http://127.0.0.1:18082",
		models.RoleVendor:  "http://127.0.0.1:18083",
		models.RoleArbiter: "http://127.0.0.1:18084",
	}
}

func TestGetOrCreateSessionOpensOnceThenReuses(t *testing.T) {
	opener, counter := fakeOpener()
	var closed int32Counter
	closer := func(ctx context.Context, client *walletrpc.Client) error { closed.inc(); return nil }
	pool := New(10, time.Hour, opener, closer)

	require.NoError(t, pool.GetOrCreateSession(context.Background(), "e1", endpoints()))
	require.NoError(t, pool.GetOrCreateSession(context.Background(), "e1", endpoints()))

	assert.Equal(t, 3, counter.value())
	assert.Equal(t, 1, pool.ActiveCount())
}

func TestGetWalletReturnsClientForRole(t *testing.T) {
	opener, _ := fakeOpener()
	closer := func(ctx context.Context, client *walletrpc.Client) error { return nil }
	pool := New(10, time.Hour, opener, closer)
	require.NoError(t, pool.GetOrCreateSession(context.Background(), "e1", endpoints()))

	client, err := pool.GetWallet("e1", models.RoleBuyer)
	require.NoError(t, err)
	assert.NotNil(t, client)
	pool.Release("e1")
}

func TestGetWalletMissingSessionFails(t *testing.T) {
	opener, _ := fakeOpener()
	closer := func(ctx context.Context, client *walletrpc.Client) error { return nil }
	pool := New(10, time.Hour, opener, closer)

	_, err := pool.GetWallet("nonexistent", models.RoleBuyer)
	assert.Error(t, err)
}

func TestEvictsLRUWhenAtCapacity(t *testing.T) {
	opener, _ := fakeOpener()
	var closed int32Counter
	closer := func(ctx context.Context, client *walletrpc.Client) error { closed.inc(); return nil }
	pool := New(1, time.Hour, opener, closer)

	require.NoError(t, pool.GetOrCreateSession(context.Background(), "e1", endpoints()))
	require.NoError(t, pool.GetOrCreateSession(context.Background(), "e2", endpoints()))

	assert.Equal(t, 1, pool.ActiveCount())
	_, err := pool.GetWallet("e1", models.RoleBuyer)
	assert.Error(t, err, "e1 should have been evicted to admit e2")

	deadline := time.Now().Add(time.Second)
	for closed.value() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 3, closed.value())
}

func TestCloseSessionClosesAllThreeWallets(t *testing.T) {
	opener, _ := fakeOpener()
	var closed int32Counter
	closer := func(ctx context.Context, client *walletrpc.Client) error { closed.inc(); return nil }
	pool := New(10, time.Hour, opener, closer)
	require.NoError(t, pool.GetOrCreateSession(context.Background(), "e1", endpoints()))

	require.NoError(t, pool.CloseSession("e1"))
	assert.Equal(t, 3, closed.value())
	assert.Equal(t, 0, pool.ActiveCount())
}

func TestSweepClosesOnlyIdleSessionsWithNoRefs(t *testing.T) {
	opener, _ := fakeOpener()
	var closed int32Counter
	closer := func(ctx context.Context, client *walletrpc.Client) error { closed.inc(); return nil }
	pool := New(10, 10*time.Millisecond, opener, closer)
	require.NoError(t, pool.GetOrCreateSession(context.Background(), "e1", endpoints()))

	time.Sleep(20 * time.Millisecond)
	pool.Sweep()

	assert.Equal(t, 0, pool.ActiveCount())
	assert.Equal(t, 3, closed.value())
}

func TestSweepSkipsSessionWithOutstandingReference(t *testing.T) {
	opener, _ := fakeOpener()
	var closed int32Counter
	closer := func(ctx context.Context, client *walletrpc.Client) error { closed.inc(); return nil }
	pool := New(10, 10*time.Millisecond, opener, closer)
	require.NoError(t, pool.GetOrCreateSession(context.Background(), "e1", endpoints()))
	_, err := pool.GetWallet("e1", models.RoleBuyer)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	pool.Sweep()

	assert.Equal(t, 1, pool.ActiveCount())
}
