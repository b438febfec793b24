package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/chronicle-engine/internal/services/events"
	"github.com/jwebster45206/chronicle-engine/internal/services/queue"
	"github.com/jwebster45206/chronicle-engine/pkg/response"
	"github.com/jwebster45206/chronicle-engine/pkg/storage"
)

type workerFixture struct {
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	queue  *queue.RequestQueue
	store  *storage.MockStorage
	worker *Worker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	client := queue.NewClientFromRedis(rdb, testLogger())
	rq := queue.NewRequestQueue(client)
	store := storage.NewMockStorage()
	gen := bySchema(map[response.SchemaKind]string{
		response.SchemaOpening: openingJSON,
		response.SchemaCore:    turnJSON,
	})
	w := New(rq, newTestProcessor(store, gen), rdb, testLogger(), "worker-test")
	t.Cleanup(w.Stop)
	return &workerFixture{mr: mr, rdb: rdb, queue: rq, store: store, worker: w}
}

func (f *workerFixture) subscribe(t *testing.T, id uuid.UUID) <-chan *redis.Message {
	t.Helper()
	pubsub := f.rdb.Subscribe(context.Background(), events.Channel(id))
	t.Cleanup(func() { _ = pubsub.Close() })
	_, err := pubsub.Receive(context.Background())
	require.NoError(t, err)
	return pubsub.Channel()
}

// waitFor reads events until one of type want arrives.
func waitFor(t *testing.T, ch <-chan *redis.Message, want events.EventType) events.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-ch:
			var ev events.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestWorker_ProcessesStartRequest(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	id := uuid.New()
	ch := f.subscribe(t, id)

	req := seedRequest(id)
	require.NoError(t, f.queue.EnqueueRequest(ctx, req))

	require.NoError(t, f.worker.processNextRequest())

	ev := waitFor(t, ch, events.EventTypeRequestCompleted)
	assert.Equal(t, req.RequestID, ev.RequestID)
	assert.EqualValues(t, 1, ev.Data["turn"])

	gs, err := f.store.LoadGameState(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, gs)

	pending, err := f.queue.Depth(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	assert.False(t, f.mr.Exists(lockKey(id)), "lock should be released")
}

func TestWorker_PublishesFailure(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	id := uuid.New()
	ch := f.subscribe(t, id)

	req := actionRequest(id, "Greet Linh")
	require.NoError(t, f.queue.EnqueueRequest(ctx, req))
	require.NoError(t, f.worker.processNextRequest())

	ev := waitFor(t, ch, events.EventTypeRequestFailed)
	assert.Equal(t, req.RequestID, ev.RequestID)
	assert.Contains(t, ev.Data["error"], "game state not found")

	pending, _ := f.queue.Depth(ctx, id)
	assert.Equal(t, 0, pending)
}

func TestWorker_RequeuesWhenLocked(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.mr.Set(lockKey(id), "other-worker"))
	require.NoError(t, f.queue.EnqueueRequest(ctx, seedRequest(id)))

	require.NoError(t, f.worker.processNextRequest())

	depth, err := f.queue.RequestQueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth, "request should be back on the queue")
	pending, _ := f.queue.Depth(ctx, id)
	assert.Equal(t, 1, pending)

	owner, err := f.mr.Get(lockKey(id))
	require.NoError(t, err)
	assert.Equal(t, "other-worker", owner, "foreign lock must not be released")

	gs, _ := f.store.LoadGameState(ctx, id)
	assert.Nil(t, gs)
}

func TestWorker_EmptyQueueTimesOut(t *testing.T) {
	f := newWorkerFixture(t)
	f.worker.Stop()
	assert.NoError(t, f.worker.processNextRequest())
}

func TestWorker_GeneratesID(t *testing.T) {
	f := newWorkerFixture(t)
	w := New(f.queue, f.worker.processor, f.rdb, testLogger(), "")
	assert.Contains(t, w.ID(), "worker-")
}
