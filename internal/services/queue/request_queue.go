package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/chronicle-engine/pkg/queue"
)

const requestsKey = "requests"

// RequestQueue is the global work queue shared by the API and the workers.
// Each session also keeps the ids of its queued and in-flight requests, which
// stands in for the engine's busy flag across processes.
type RequestQueue struct {
	client *Client
}

func NewRequestQueue(client *Client) *RequestQueue {
	return &RequestQueue{
		client: client,
	}
}

func pendingKey(gameStateID uuid.UUID) string {
	return fmt.Sprintf("game-requests:%s", gameStateID.String())
}

// EnqueueRequest adds a request to the global queue and marks it pending for
// its session.
func (q *RequestQueue) EnqueueRequest(ctx context.Context, req *queue.Request) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	pipe := q.client.rdb.TxPipeline()
	pipe.RPush(ctx, requestsKey, data)
	pipe.RPush(ctx, pendingKey(req.GameStateID), req.RequestID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}
	q.client.logger.Debug("Enqueued request",
		"request_id", req.RequestID,
		"type", req.Type,
		"game_state_id", req.GameStateID.String())
	return nil
}

// Requeue puts a request back at the end of the global queue without
// touching its pending marker.
func (q *RequestQueue) Requeue(ctx context.Context, req *queue.Request) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}
	if err := q.client.rdb.RPush(ctx, requestsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to re-queue request: %w", err)
	}
	return nil
}

// DequeueRequest removes and returns the next request from the global queue
// Returns nil if queue is empty
func (q *RequestQueue) DequeueRequest(ctx context.Context) (*queue.Request, error) {
	result, err := q.client.rdb.LPop(ctx, requestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Queue is empty
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	req, err := queue.FromJSON([]byte(result))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}

	return req, nil
}

// BlockingDequeueRequest waits up to timeout for a request. A nil request
// with a nil error means the wait timed out or ctx ended.
func (q *RequestQueue) BlockingDequeueRequest(ctx context.Context, timeout time.Duration) (*queue.Request, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, requestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	req, err := queue.FromJSON([]byte(result[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}

	return req, nil
}

// Complete clears the pending marker of a finished request.
func (q *RequestQueue) Complete(ctx context.Context, req *queue.Request) error {
	if err := q.client.rdb.LRem(ctx, pendingKey(req.GameStateID), 1, req.RequestID).Err(); err != nil {
		return fmt.Errorf("failed to complete request: %w", err)
	}
	return nil
}

// Pending returns the ids of queued or in-flight requests for a session.
func (q *RequestQueue) Pending(ctx context.Context, gameStateID uuid.UUID) ([]string, error) {
	ids, err := q.client.rdb.LRange(ctx, pendingKey(gameStateID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read pending requests: %w", err)
	}
	return ids, nil
}

// Depth returns the number of pending requests for a session
func (q *RequestQueue) Depth(ctx context.Context, gameStateID uuid.UUID) (int, error) {
	count, err := q.client.rdb.LLen(ctx, pendingKey(gameStateID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}

// Clear drops a session's pending markers, used when the session is deleted.
func (q *RequestQueue) Clear(ctx context.Context, gameStateID uuid.UUID) error {
	if err := q.client.rdb.Del(ctx, pendingKey(gameStateID)).Err(); err != nil {
		return fmt.Errorf("failed to clear pending requests: %w", err)
	}
	return nil
}

// RequestQueueDepth returns the number of requests in the global queue
func (q *RequestQueue) RequestQueueDepth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, requestsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get request queue depth: %w", err)
	}
	return int(count), nil
}
