package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/chronicle-engine/internal/engine"
	"github.com/jwebster45206/chronicle-engine/internal/services/events"
	"github.com/jwebster45206/chronicle-engine/internal/services/queue"
	queuePkg "github.com/jwebster45206/chronicle-engine/pkg/queue"
)

const (
	workerTimeout = 5 * time.Second
	lockTTL       = 2 * time.Minute
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Worker processes requests from the shared queue. Each session is handled
// by at most one worker at a time.
type Worker struct {
	id          string
	queue       *queue.RequestQueue
	processor   *Processor
	broadcaster *events.Broadcaster
	redisClient *redis.Client
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a new worker instance
func New(queueClient *queue.RequestQueue, processor *Processor, redisClient *redis.Client, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:          workerID,
		queue:       queueClient,
		processor:   processor,
		broadcaster: events.NewBroadcaster(redisClient, log),
		redisClient: redisClient,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the worker's lock owner id.
func (w *Worker) ID() string {
	return w.id
}

// Start begins processing requests from the queue
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.processNextRequest(); err != nil {
				w.log.Error("Error processing request", "error", err, "worker_id", w.id)
				// Continue processing even on error
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// processNextRequest pulls the next request from the queue and processes it
func (w *Worker) processNextRequest() error {
	req, err := w.queue.BlockingDequeueRequest(w.ctx, workerTimeout)
	if err != nil {
		return fmt.Errorf("failed to dequeue request: %w", err)
	}
	if req == nil {
		// Timeout or shutdown
		return nil
	}

	w.log.Info("Received request from queue",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"type", req.Type,
		"game_state_id", req.GameStateID.String(),
	)

	locked, err := w.acquireGameLock(req.GameStateID)
	if err != nil {
		if rqErr := w.queue.Requeue(w.ctx, req); rqErr != nil {
			w.log.Error("Failed to re-queue request", "error", rqErr, "request_id", req.RequestID)
		}
		return fmt.Errorf("failed to acquire game lock: %w", err)
	}
	if !locked {
		// Another worker is processing this gamestate
		w.log.Info("Game already locked, re-queueing request",
			"worker_id", w.id,
			"request_id", req.RequestID,
			"game_state_id", req.GameStateID.String(),
		)
		if err := w.queue.Requeue(w.ctx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		return nil
	}

	defer w.releaseGameLock(req.GameStateID)
	w.processRequest(req)
	return nil
}

// acquireGameLock attempts to acquire a lock for a game
// Returns true if lock was acquired, false if already locked
func (w *Worker) acquireGameLock(gameStateID uuid.UUID) (bool, error) {
	return w.redisClient.SetNX(w.ctx, lockKey(gameStateID), w.id, lockTTL).Result()
}

// releaseGameLock releases the lock for a game if this worker still owns it
func (w *Worker) releaseGameLock(gameStateID uuid.UUID) {
	// Use a fresh context so locks are released during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, w.redisClient, []string{lockKey(gameStateID)}, w.id).Err(); err != nil {
		w.log.Error("Failed to release game lock", "error", err, "game_state_id", gameStateID.String())
	}
}

func lockKey(gameStateID uuid.UUID) string {
	return fmt.Sprintf("game-lock:%s", gameStateID.String())
}

// processRequest runs one request and broadcasts its outcome. The pending
// marker is always cleared so the session accepts new requests.
func (w *Worker) processRequest(req *queuePkg.Request) {
	start := time.Now()
	ctx := w.ctx
	defer func() {
		if err := w.queue.Complete(context.Background(), req); err != nil {
			w.log.Error("Failed to clear pending request", "error", err, "request_id", req.RequestID)
		}
	}()

	if err := w.broadcaster.PublishRequestProcessing(ctx, req.GameStateID, req.RequestID, string(req.Type), req.Action); err != nil {
		w.log.Error("Failed to publish processing event", "error", err)
	}

	observer := func(id uuid.UUID, phase engine.Phase) {
		if err := w.broadcaster.PublishPhase(ctx, req.GameStateID, req.RequestID, phase); err != nil {
			w.log.Debug("Failed to publish phase event", "error", err)
		}
	}

	gs, err := w.processor.Process(ctx, req, observer)
	if err != nil {
		w.log.Error("Request failed",
			"worker_id", w.id,
			"request_id", req.RequestID,
			"type", req.Type,
			"game_state_id", req.GameStateID.String(),
			"error", err,
		)
		if pubErr := w.broadcaster.PublishRequestFailed(ctx, req.GameStateID, req.RequestID, err); pubErr != nil {
			w.log.Error("Failed to publish failure event", "error", pubErr)
		}
		return
	}

	w.log.Info("Request processed successfully",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"type", req.Type,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if err := w.broadcaster.PublishRequestCompleted(ctx, req.GameStateID, req.RequestID, gs); err != nil {
		w.log.Error("Failed to publish completion event", "error", err)
	}
}
