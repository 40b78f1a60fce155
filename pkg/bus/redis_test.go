package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridha-boughediri/mys3/pkg/model"
)

type verbLog struct {
	mu    sync.Mutex
	verbs []string
}

func (v *verbLog) handler(_ context.Context, evt *model.CompletionEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.verbs = append(v.verbs, evt.Verb())
}

func (v *verbLog) snapshot() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.verbs...)
}

// newClient opens a separate connection pool, as a separate process would.
func newClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type instance struct {
	bus    *LocalBus
	bridge *RedisBridge
	seen   *verbLog
}

func newInstance(t *testing.T, ctx context.Context, mr *miniredis.Miniredis) *instance {
	t.Helper()
	local := NewLocalBus(nil)
	br := NewRedisBridge(newClient(t, mr), local, "mys3:events", nil)
	_, err := br.Forward()
	require.NoError(t, err)

	seen := &verbLog{}
	_, err = local.Subscribe(EventRequestFinished, seen.handler)
	require.NoError(t, err)

	startBridge(t, ctx, br)
	return &instance{bus: local, bridge: br, seen: seen}
}

func startBridge(t *testing.T, ctx context.Context, br *RedisBridge) {
	t.Helper()
	go func() { _ = br.Run(ctx) }()
	// Run confirms the subscription before relaying; poll until Redis sees it.
	require.Eventually(t, func() bool {
		n, err := br.client.PubSubNumSub(ctx, br.channel).Result()
		return err == nil && n[br.channel] > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisBridge_RelaysBetweenInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	a := newInstance(t, ctx, mr)
	b := newInstance(t, ctx, mr)

	require.NoError(t, a.bus.Publish(ctx, EventRequestFinished, postEvent()))

	require.Eventually(t, func() bool {
		return len(b.seen.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// give any echo a chance to arrive before asserting it did not
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"POST"}, a.seen.snapshot())
	assert.Equal(t, []string{"POST"}, b.seen.snapshot())
}

func TestRedisBridge_BareDetailHandledOncePerInstance(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	a := newInstance(t, ctx, mr)
	b := newInstance(t, ctx, mr)
	external := newClient(t, mr)

	require.NoError(t, external.Publish(ctx, "mys3:events", `{"requestConfig":{"verb":"POST"}}`).Err())

	require.Eventually(t, func() bool {
		return len(a.seen.snapshot()) == 1 && len(b.seen.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"POST"}, a.seen.snapshot())
	assert.Equal(t, []string{"POST"}, b.seen.snapshot())
}

func TestRedisBridge_RelayedEventCarriesOrigin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	local := NewLocalBus(nil)
	br := NewRedisBridge(newClient(t, mr), local, "mys3:events", nil)

	origins := make(chan string, 1)
	_, err := local.Subscribe(EventRequestFinished, func(_ context.Context, evt *model.CompletionEvent) {
		origins <- evt.Origin
	})
	require.NoError(t, err)
	startBridge(t, ctx, br)

	require.NoError(t, newClient(t, mr).Publish(ctx, "mys3:events", `{"requestConfig":{"verb":"DELETE"}}`).Err())

	select {
	case origin := <-origins:
		assert.Equal(t, OriginRemote, origin)
	case <-time.After(2 * time.Second):
		t.Fatal("relayed event never reached the local bus")
	}
}

func TestRedisBridge_DropsMalformedPayload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	client := newClient(t, mr)
	local := NewLocalBus(nil)
	br := NewRedisBridge(newClient(t, mr), local, "mys3:events", nil)

	seen := &verbLog{}
	_, _ = local.Subscribe(EventRequestFinished, seen.handler)
	startBridge(t, ctx, br)

	require.NoError(t, client.Publish(ctx, "mys3:events", "{broken").Err())
	require.NoError(t, client.Publish(ctx, "mys3:events", `{"requestConfig":{"verb":"DELETE"}}`).Err())

	require.Eventually(t, func() bool {
		return len(seen.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"DELETE"}, seen.snapshot())
}
