// Package worker provides an asynchronous worker pool for persisting
// conversations with the provided storage.Driver and publishing turn events
// with the provided eventstream.Publisher.
//
// Jobs run off the streaming path: Enqueue never waits on storage or the
// broker.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/reel/pkg/eventstream"
	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/logger"
	"github.com/papercomputeco/reel/pkg/storage"
)

var (
	// A single worker keeps saves and deletes of one conversation in order.
	defaultNumWorkers   uint = 1
	defaultJobQueueSize uint = 256
)

// Op is the storage operation a Job performs.
type Op int

const (
	// OpSave upserts Job.Conversation.
	OpSave Op = iota

	// OpDelete removes Job.ConversationID.
	OpDelete

	// OpClear removes every conversation.
	OpClear
)

func (o Op) String() string {
	switch o {
	case OpSave:
		return "save"
	case OpDelete:
		return "delete"
	case OpClear:
		return "clear"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Op Op

	// Conversation is a snapshot owned by the job. Set for OpSave.
	Conversation *llm.Conversation

	// ConversationID is set for OpDelete.
	ConversationID string

	// Turn is set on an OpSave that follows a completed exchange. Once the
	// conversation is stored a TurnCompletedEvent is published for it.
	Turn *Turn
}

// Turn describes a completed exchange.
type Turn struct {
	User        llm.Message
	Assistant   llm.Message
	Source      eventstream.EventSource
	StartedAt   time.Time
	CompletedAt time.Time
	Reasoning   bool
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting conversations.
	Driver storage.Driver

	// Publisher optionally receives an event per persisted turn.
	Publisher eventstream.Publisher

	// MaxMessages caps how many of a conversation's most recent messages are
	// persisted. Zero keeps everything.
	MaxMessages int

	// NumWorkers is the number of background workers in the pool (defaults to 1).
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, fmt.Errorf("worker pool requires a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"op", job.Op.String(),
			"conversation", jobConversationID(job),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"op", job.Op.String(),
			"conversation", jobConversationID(job),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after nothing else can Enqueue.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("storage worker stopped", "worker_id", id)
}

// processJob runs one storage operation and, for completed turns, publishes
// the turn event after the conversation is stored.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	switch job.Op {
	case OpSave:
		if job.Conversation == nil {
			p.logger.Error("save job without conversation")
			return
		}

		trimmed := storage.TrimMessages(job.Conversation, p.config.MaxMessages)
		if err := p.config.Driver.SaveConversation(ctx, trimmed); err != nil {
			p.logger.Error("conversation storage failed",
				"conversation", job.Conversation.ID,
				"error", err,
			)
			return
		}

		p.logger.Debug("conversation stored",
			"conversation", job.Conversation.ID,
			"messages", len(trimmed.Messages),
		)

		if job.Turn != nil {
			p.publishTurn(ctx, job.Conversation, job.Turn)
		}

	case OpDelete:
		if err := p.config.Driver.DeleteConversation(ctx, job.ConversationID); err != nil {
			p.logger.Error("conversation delete failed",
				"conversation", job.ConversationID,
				"error", err,
			)
			return
		}
		p.logger.Debug("conversation deleted", "conversation", job.ConversationID)

	case OpClear:
		if err := p.config.Driver.Clear(ctx); err != nil {
			p.logger.Error("clearing conversations failed", "error", err)
			return
		}
		p.logger.Debug("conversations cleared")

	default:
		p.logger.Error("unknown job op", "op", job.Op.String())
	}
}

// publishTurn emits a TurnCompletedEvent. Failures are logged, not retried.
func (p *Pool) publishTurn(ctx context.Context, conv *llm.Conversation, turn *Turn) {
	if p.config.Publisher == nil {
		return
	}

	attachments := len(turn.User.Attachments)
	event := eventstream.NewTurnCompletedEvent(
		turn.Source,
		eventstream.TurnRequestMeta{
			StartedAt:   turn.StartedAt,
			CompletedAt: turn.CompletedAt,
			DurationMs:  turn.CompletedAt.Sub(turn.StartedAt).Milliseconds(),
			Reasoning:   turn.Reasoning,
			Attachments: attachments,
		},
		eventstream.ConversationMeta{
			ID:           conv.ID,
			Title:        conv.Title,
			MessageCount: len(conv.Messages),
		},
		eventstream.Turn{
			User:      turn.User,
			Assistant: turn.Assistant,
		},
	)

	if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("publishing turn event failed",
			"conversation", conv.ID,
			"event_id", event.EventID,
			"error", err,
		)
		return
	}

	p.logger.Debug("turn event published",
		"conversation", conv.ID,
		"event_id", event.EventID,
	)
}

func jobConversationID(job Job) string {
	if job.Conversation != nil {
		return job.Conversation.ID
	}
	return job.ConversationID
}
