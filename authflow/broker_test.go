package authflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/kay-gateway/authflow"
	"github.com/jrsteele09/kay-gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	mu     sync.Mutex
	now    time.Time
	repo   *authflow.InMemoryRepo
	broker *authflow.Broker
}

func (f *testFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *testFixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	config.ResetFile()

	f := &testFixture{
		now:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		repo: authflow.NewInMemoryRepo(),
	}
	f.broker = authflow.NewBroker(f.repo, config.OAuth{}, authflow.WithNowFunc(f.clock))
	return f
}

func TestCreateAndResolve(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	state, err := f.broker.Create(ctx, "kaysession_1_a", "jira")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(state), 43, "32 bytes of entropy")

	binding, err := f.broker.Resolve(ctx, state)
	require.NoError(t, err)
	require.NotNil(t, binding)
	assert.True(t, binding.Bound())
	assert.Equal(t, "kaysession_1_a", binding.DeviceSessionID)
	assert.Equal(t, "jira", binding.ServiceName)

	ok, err := f.broker.Validate(ctx, state)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.broker.Remove(ctx, state))

	binding, err = f.broker.Resolve(ctx, state)
	require.NoError(t, err)
	assert.Nil(t, binding)
	ok, err = f.broker.Validate(ctx, state)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.broker.Remove(ctx, state), "remove is idempotent")
}

func TestStatesAreUnique(t *testing.T) {
	f := setupTestFixture(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s, err := f.broker.Create(context.Background(), "", "")
		require.NoError(t, err)
		require.False(t, seen[s])
		seen[s] = true
	}
}

func TestExpiredStateIsDeletedOnRead(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	state, err := f.broker.Create(ctx, "dev", "confluence")
	require.NoError(t, err)

	f.advance(10*time.Minute - time.Second)
	ok, err := f.broker.Validate(ctx, state)
	require.NoError(t, err)
	assert.True(t, ok)

	f.advance(time.Second)
	ok, err = f.broker.Validate(ctx, state)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, f.repo.Len())
}

func TestUnknownState(t *testing.T) {
	f := setupTestFixture(t)
	binding, err := f.broker.Resolve(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, binding)

	binding, err = f.broker.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, binding)
}

func TestUnboundState(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	state, err := f.broker.Create(ctx, "", "")
	require.NoError(t, err)

	binding, err := f.broker.Resolve(ctx, state)
	require.NoError(t, err)
	require.NotNil(t, binding)
	assert.False(t, binding.Bound())

	f.advance(11 * time.Minute)
	binding, err = f.broker.Resolve(ctx, state)
	require.NoError(t, err)
	assert.Nil(t, binding)
}

func TestSweep(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.broker.Create(ctx, "a", "jira")
	require.NoError(t, err)
	f.advance(6 * time.Minute)
	fresh, err := f.broker.Create(ctx, "b", "jira")
	require.NoError(t, err)

	f.advance(5 * time.Minute)
	n, err := f.broker.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, f.repo.Len())

	ok, err := f.broker.Validate(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunSweepsInBackground(t *testing.T) {
	config.ResetFile()
	t.Setenv("OAUTH_STATE_SWEEP_INTERVAL", "5ms")
	t.Setenv("OAUTH_STATE_TTL", "1ms")

	repo := authflow.NewInMemoryRepo()
	broker := authflow.NewBroker(repo, config.OAuth{})

	_, err := broker.Create(context.Background(), "dev", "jira")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		broker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return repo.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
