// Package queue implements the task runtime of spec §4.2: named queues
// with independent concurrency, JSON task envelopes, exponential backoff
// with jitter, a dead-letter sink, and delayed/absolute scheduling via a
// Redis sorted set feeding back into the queue's list transport — the
// same Redis-as-broker shape the example pack's tg-digest-bot collector
// uses for its job queue, generalized from a single list to list+zset.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/kv"
)

// Names of the minimum queue set required by spec §4.2.
const (
	QueueDefault       = "default"
	QueueAI            = "ai"
	QueueAudio         = "audio"
	QueueMedia         = "media"
	QueueRecovery      = "recovery"
	QueueNotifications = "notifications"
	QueueScheduler     = "scheduler"
)

// DefaultConcurrency mirrors spec §4.2's defaults (10/4/4/4/2/2/2).
var DefaultConcurrency = map[string]int{
	QueueDefault:       10,
	QueueAI:            4,
	QueueAudio:         4,
	QueueMedia:         4,
	QueueRecovery:      2,
	QueueNotifications: 2,
	QueueScheduler:     2,
}

// DefaultDeadline mirrors spec §5's per-queue task deadlines.
var DefaultDeadline = map[string]time.Duration{
	QueueAI:    180 * time.Second,
	QueueMedia: 300 * time.Second,
}

const defaultTaskDeadline = 120 * time.Second

// Task is one unit of work, JSON-serialized onto the queue transport.
type Task struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Queue          string          `json:"queue"`
	Args           json.RawMessage `json:"args"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	MaxRetries     int             `json:"max_retries"`
	Attempt        int             `json:"attempt"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
}

// Handler processes one task's Args. Returning an apperr-classified error
// drives the runtime's retry/dead-letter decision.
type Handler func(ctx context.Context, args json.RawMessage) error

// Client enqueues tasks, immediately or with a delay/absolute time.
type Client struct {
	store *kv.Store
}

// NewClient builds a Client over store.
func NewClient(store *kv.Store) *Client {
	return &Client{store: store}
}

func queueListKey(queueName string) string { return "q:" + queueName }
func queueZSetKey(queueName string) string { return "sched:" + queueName }

// Enqueue pushes task onto queueName for immediate pickup. If task carries
// an IdempotencyKey, a second Enqueue with the same key within 5 minutes
// is a no-op (spec §8 invariant 1, generalized from update-id dedup to
// any idempotency key).
func (c *Client) Enqueue(ctx context.Context, queueName, name string, args any, opts ...TaskOption) error {
	task, err := newTask(queueName, name, args, opts...)
	if err != nil {
		return err
	}
	if task.IdempotencyKey != "" {
		dedupKey := "task:seen:" + task.IdempotencyKey
		ok, err := c.store.SetNX(ctx, dedupKey, "1", 5*time.Minute)
		if err != nil {
			return fmt.Errorf("queue: dedup check: %w", err)
		}
		if !ok {
			return nil
		}
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}
	return c.store.LPush(ctx, queueListKey(queueName), string(payload))
}

// Schedule enqueues task to run after delay elapses.
func (c *Client) Schedule(ctx context.Context, queueName, name string, args any, delay time.Duration, opts ...TaskOption) error {
	return c.At(ctx, queueName, name, args, time.Now().Add(delay), opts...)
}

// At enqueues task to run at the given absolute wall-clock time.
func (c *Client) At(ctx context.Context, queueName, name string, args any, when time.Time, opts ...TaskOption) error {
	task, err := newTask(queueName, name, args, opts...)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}
	return c.store.ZAdd(ctx, queueZSetKey(queueName), float64(when.Unix()), string(payload))
}

// TaskOption customizes a Task at construction time.
type TaskOption func(*Task)

// WithIdempotencyKey sets the task's dedup key.
func WithIdempotencyKey(key string) TaskOption {
	return func(t *Task) { t.IdempotencyKey = key }
}

// WithMaxRetries overrides the default max-retries (3).
func WithMaxRetries(n int) TaskOption {
	return func(t *Task) { t.MaxRetries = n }
}

func newTask(queueName, name string, args any, opts ...TaskOption) (Task, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Task{}, fmt.Errorf("queue: marshal args: %w", err)
	}
	task := Task{
		ID:         uuid.NewString(),
		Name:       name,
		Queue:      queueName,
		Args:       raw,
		MaxRetries: 3,
		EnqueuedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&task)
	}
	return task, nil
}

// Runtime runs a worker pool per queue, consuming tasks with late acks,
// retry with exponential backoff + jitter, and a dead-letter sink.
type Runtime struct {
	store       *kv.Store
	log         *slog.Logger
	handlers    map[string]Handler
	concurrency map[string]int
}

// NewRuntime builds a Runtime backed by store, logging via log.
func NewRuntime(store *kv.Store, log *slog.Logger) *Runtime {
	return &Runtime{
		store:       store,
		log:         log,
		handlers:    make(map[string]Handler),
		concurrency: cloneConcurrency(),
	}
}

func cloneConcurrency() map[string]int {
	out := make(map[string]int, len(DefaultConcurrency))
	for k, v := range DefaultConcurrency {
		out[k] = v
	}
	return out
}

// SetConcurrency overrides the pool size for queueName.
func (r *Runtime) SetConcurrency(queueName string, n int) {
	r.concurrency[queueName] = n
}

// Register binds a task name to its handler.
func (r *Runtime) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Run starts the scheduler-drain loop and worker pool for every queue in
// queueNames (a queue whose configured concurrency is not positive gets
// one worker), blocking until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context, queueNames []string) {
	for _, q := range queueNames {
		n := r.concurrency[q]
		if n <= 0 {
			n = 1
		}
		go r.drainScheduled(ctx, q)
		for i := 0; i < n; i++ {
			go r.worker(ctx, q)
		}
	}
	<-ctx.Done()
}

// drainScheduled periodically moves due items from the queue's sorted set
// into its list, implementing .schedule(delay)/.at(wall-clock).
func (r *Runtime) drainScheduled(ctx context.Context, queueName string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := r.store.ZRangeByScoreDue(ctx, queueZSetKey(queueName), float64(time.Now().Unix()), 100)
			if err != nil {
				r.log.Error("queue: drain scheduled failed", "queue", queueName, "err", err)
				continue
			}
			for _, payload := range due {
				if err := r.store.LPush(ctx, queueListKey(queueName), payload); err != nil {
					r.log.Error("queue: requeue due task failed", "queue", queueName, "err", err)
					continue
				}
				_ = r.store.ZRem(ctx, queueZSetKey(queueName), payload)
			}
		}
	}
}

func (r *Runtime) worker(ctx context.Context, queueName string) {
	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := r.store.BRPop(ctx, queueListKey(queueName), 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Error("queue: pop failed", "queue", queueName, "err", err)
			time.Sleep(time.Second)
			continue
		}
		if payload == "" {
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			r.log.Error("queue: malformed task payload", "queue", queueName, "err", err)
			continue
		}
		r.process(ctx, task)
	}
}

func (r *Runtime) process(ctx context.Context, task Task) {
	handler, ok := r.handlers[task.Name]
	if !ok {
		r.log.Error("queue: no handler registered", "task", task.Name, "queue", task.Queue)
		r.deadLetter(ctx, task, fmt.Errorf("no handler for task %q", task.Name))
		return
	}

	deadline := DefaultDeadline[task.Queue]
	if deadline == 0 {
		deadline = defaultTaskDeadline
	}
	taskCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	err := handler(taskCtx, task.Args)
	if err == nil {
		return
	}

	switch {
	case apperr.Handled(err), apperr.Silent(err):
		return // already-handled conflict, or a consistency/credits exit: not a failure
	case apperr.Fatal(err):
		r.deadLetter(ctx, task, err)
		return
	case apperr.Retriable(err) || task.Attempt < task.MaxRetries:
		r.retry(ctx, task, err)
		return
	default:
		r.deadLetter(ctx, task, err)
	}
}

func (r *Runtime) retry(ctx context.Context, task Task, cause error) {
	if task.Attempt >= task.MaxRetries {
		r.deadLetter(ctx, task, cause)
		return
	}
	task.Attempt++
	backoff := backoffWithJitter(task.Attempt)
	r.log.Warn("queue: retrying task", "task", task.Name, "queue", task.Queue, "attempt", task.Attempt, "backoff", backoff, "err", cause)

	payload, err := json.Marshal(task)
	if err != nil {
		r.log.Error("queue: remarshal retry task failed", "err", err)
		return
	}
	if err := r.store.ZAdd(ctx, queueZSetKey(task.Queue), float64(time.Now().Add(backoff).Unix()), string(payload)); err != nil {
		r.log.Error("queue: schedule retry failed", "err", err)
	}
}

// backoffWithJitter is exponential base 2 seconds, capped at 5 minutes,
// with ±20% jitter, per spec §4.2.
func backoffWithJitter(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	maxBackoff := 5 * time.Minute
	if base > maxBackoff {
		base = maxBackoff
	}
	jitter := float64(base) * (0.8 + 0.4*rand.Float64())
	return time.Duration(jitter)
}

func (r *Runtime) deadLetter(ctx context.Context, task Task, cause error) {
	r.log.Error("queue: task moved to dead-letter", "task", task.Name, "queue", task.Queue, "attempt", task.Attempt, "err", cause)
	payload, err := json.Marshal(task)
	if err != nil {
		return
	}
	_ = r.store.LPush(ctx, queueListKey("dead-letter"), string(payload))
}
