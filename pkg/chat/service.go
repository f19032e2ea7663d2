// Package chat wires reel's runtime together: the storage driver, the
// persistence worker pool, the event publisher, the conversation store and
// the stream client. Service.Send runs one turn end to end, and both the
// CLI and the server drive conversations through it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/papercomputeco/reel/pkg/config"
	"github.com/papercomputeco/reel/pkg/conversation"
	"github.com/papercomputeco/reel/pkg/eventstream"
	"github.com/papercomputeco/reel/pkg/eventstream/kafka"
	"github.com/papercomputeco/reel/pkg/eventstream/nop"
	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/logger"
	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/storage/inmemory"
	"github.com/papercomputeco/reel/pkg/storage/jsonfile"
	"github.com/papercomputeco/reel/pkg/storage/postgres"
	"github.com/papercomputeco/reel/pkg/storage/sqlite"
	"github.com/papercomputeco/reel/pkg/stream"
	"github.com/papercomputeco/reel/pkg/worker"
)

// ErrBusy is returned by Send while another session is streaming into the
// same conversation.
var ErrBusy = errors.New("a response is already streaming for this conversation")

// Options configures Open.
type Options struct {
	Config *config.Config

	// DotDir is the resolved .reel directory, used for default file paths.
	DotDir string

	// APIKey is the resolved key sent as a bearer token. It may be empty.
	APIKey string

	// Surface names the caller in published events, e.g. "cli" or "server".
	Surface string

	Logger *slog.Logger

	// Transcript, when set, receives every raw response byte.
	Transcript io.Writer

	// Driver overrides the driver selected by Config.Storage.
	Driver storage.Driver

	// Publisher overrides the publisher selected by Config.Events.
	Publisher eventstream.Publisher
}

// Service owns the long-lived runtime of one reel process.
type Service struct {
	store     *conversation.Store
	driver    storage.Driver
	pool      *worker.Pool
	publisher eventstream.Publisher
	logger    *slog.Logger
	surface   string

	transcript io.Writer

	mu       sync.RWMutex
	cfg      *config.Config
	apiKey   string
	client   *stream.Client
	inflight map[string]context.CancelFunc
}

// Open builds a Service and loads stored conversations.
func Open(ctx context.Context, opts Options) (*Service, error) {
	if opts.Config == nil {
		opts.Config = config.NewDefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	driver := opts.Driver
	if driver == nil {
		var err error
		driver, err = OpenDriver(ctx, opts.Config.Storage, opts.DotDir)
		if err != nil {
			return nil, err
		}
	}

	publisher := opts.Publisher
	if publisher == nil {
		var err error
		publisher, err = OpenPublisher(opts.Config.Events)
		if err != nil {
			_ = driver.Close()
			return nil, err
		}
	}

	pool, err := worker.NewPool(&worker.Config{
		Driver:      driver,
		Publisher:   publisher,
		MaxMessages: opts.Config.Storage.MaxMessages,
		Logger:      opts.Logger,
	})
	if err != nil {
		_ = publisher.Close()
		_ = driver.Close()
		return nil, fmt.Errorf("starting worker pool: %w", err)
	}

	s := &Service{
		driver:     driver,
		pool:       pool,
		publisher:  publisher,
		logger:     opts.Logger,
		surface:    opts.Surface,
		transcript: opts.Transcript,
		apiKey:     opts.APIKey,
		inflight:   make(map[string]context.CancelFunc),
	}

	if err := s.SetConfig(opts.Config); err != nil {
		s.Close()
		return nil, err
	}

	s.store = conversation.New(
		conversation.WithPersister(pool),
		conversation.WithLogger(opts.Logger),
	)
	s.store.Bootstrap(ctx, driver)

	return s, nil
}

// OpenDriver opens the storage driver named by cfg.Driver.
func OpenDriver(ctx context.Context, cfg config.StorageConfig, dotDir string) (storage.Driver, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return inmemory.NewDriver(), nil

	case config.StorageJSONFile, "":
		path := cfg.Path
		if path == "" {
			if dotDir == "" {
				return nil, errors.New("jsonfile storage needs storage.path or a .reel directory")
			}
			path = filepath.Join(dotDir, jsonfile.FileName)
		}
		return jsonfile.NewDriver(path)

	case config.StorageSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("sqlite storage needs storage.sqlite_path")
		}
		return sqlite.NewSQLiteDriver(ctx, cfg.SQLitePath)

	case config.StoragePostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres storage needs storage.postgres_dsn")
		}
		return postgres.NewDriver(ctx, cfg.PostgresDSN)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenPublisher opens the event publisher named by cfg.Provider.
func OpenPublisher(cfg config.EventsConfig) (eventstream.Publisher, error) {
	switch cfg.Provider {
	case config.EventsNone, "":
		return nop.NewPublisher(), nil
	case config.EventsKafka:
		p, err := kafka.NewPublisher(kafka.Config{Brokers: cfg.Brokers, Topic: cfg.Topic})
		if err != nil {
			return nil, fmt.Errorf("opening kafka publisher: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown events provider %q", cfg.Provider)
	}
}

// Store returns the conversation store.
func (s *Service) Store() *conversation.Store {
	return s.store
}

// Config returns a copy of the active configuration.
func (s *Service) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return *s.cfg
}

// SetConfig applies new client settings to every later session. Sessions
// already streaming keep the settings they started with. Storage and event
// settings only take effect on the next Open.
func (s *Service) SetConfig(cfg *config.Config) error {
	hc, err := stream.NewHTTPClient(cfg.Client.ProxyURL, cfg.Client.TimeoutDuration())
	if err != nil {
		return fmt.Errorf("building http client: %w", err)
	}

	opts := []stream.Option{
		stream.WithHTTPClient(hc),
		stream.WithLogger(s.logger),
	}
	if s.transcript != nil {
		opts = append(opts, stream.WithTranscript(s.transcript))
	}

	cp := *cfg
	s.mu.Lock()
	s.cfg = &cp
	s.client = stream.NewClient(opts...)
	s.mu.Unlock()

	s.logger.Debug("client settings applied", "url", cp.Client.APIURL, "model", cp.Client.Model)
	return nil
}

// SendRequest is one user turn.
type SendRequest struct {
	ConversationID string
	Prompt         string
	Attachments    []llm.Attachment

	// Reasoning overrides client.reasoning when set.
	Reasoning *bool

	// Model overrides client.model when non-empty.
	Model string
}

// Send streams one turn into a conversation and commits the outcome to the
// store: the user message always, the assistant message only on completion.
// cb observes the session as it runs. The returned error is ErrBusy or a
// missing conversation; session failures are reported through cb and the
// Result.
func (s *Service) Send(ctx context.Context, req SendRequest, cb stream.Callbacks) (*stream.Result, error) {
	ctx, release, err := s.reserve(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.send(ctx, req, cb)
}

// reserve claims the in-flight slot for a conversation. The returned
// context is cancelled by Cancel; release frees the slot.
func (s *Service) reserve(ctx context.Context, conversationID string) (context.Context, func(), error) {
	ctx, cancel := context.WithCancelCause(ctx)
	if !s.begin(conversationID, func() { cancel(stream.ErrCancelled) }) {
		cancel(nil)
		return nil, nil, ErrBusy
	}

	return ctx, func() {
		s.end(conversationID)
		cancel(nil)
	}, nil
}

// send runs a session for a conversation whose slot the caller holds.
func (s *Service) send(ctx context.Context, req SendRequest, cb stream.Callbacks) (*stream.Result, error) {
	history, err := s.store.History(req.ConversationID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	cfg := *s.cfg
	apiKey := s.apiKey
	client := s.client
	s.mu.RUnlock()

	reasoning := cfg.Client.Reasoning
	if req.Reasoning != nil {
		reasoning = *req.Reasoning
	}
	model := cfg.Client.Model
	if req.Model != "" {
		model = req.Model
	}

	streamCfg := stream.Config{
		APIURL:      cfg.Client.APIURL,
		APIKey:      apiKey,
		Model:       model,
		Temperature: cfg.Client.Temperature,
		MaxTokens:   cfg.Client.MaxTokens,
		Headers:     cfg.Client.Headers,
	}

	started := time.Now()
	result := client.Stream(ctx, streamCfg, stream.Request{
		Prompt:      req.Prompt,
		Attachments: req.Attachments,
		History:     history,
		Reasoning:   reasoning,
	}, cb)

	turn := worker.Turn{
		User:        result.UserMessage,
		StartedAt:   started,
		CompletedAt: time.Now(),
		Reasoning:   reasoning,
		Source: eventstream.EventSource{
			Surface: s.surface,
			Model:   model,
			APIURL:  cfg.Client.APIURL,
		},
	}
	completed := result.Message != nil
	if completed {
		turn.Assistant = *result.Message
	}

	if err := s.store.CommitTurn(req.ConversationID, turn, completed); err != nil {
		// The conversation was deleted while streaming.
		s.logger.Warn("turn not recorded", "conversation", req.ConversationID, "error", err)
	}

	s.logger.Debug("turn finished",
		"conversation", req.ConversationID,
		"state", result.State.String(),
		"duration", time.Since(started),
	)

	return result, nil
}

// Retry removes the last exchange of a conversation and sends its user
// message again.
func (s *Service) Retry(ctx context.Context, conversationID string, reasoning *bool, cb stream.Callbacks) (*stream.Result, error) {
	ctx, release, err := s.reserve(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	msg, err := s.store.PrepareRetry(conversationID)
	if err != nil {
		return nil, err
	}

	return s.send(ctx, SendRequest{
		ConversationID: conversationID,
		Prompt:         msg.Content,
		Attachments:    msg.Attachments,
		Reasoning:      reasoning,
	}, cb)
}

// Cancel aborts the session streaming into a conversation. It reports
// whether one was running.
func (s *Service) Cancel(conversationID string) bool {
	s.mu.Lock()
	cancel, ok := s.inflight[conversationID]
	s.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Busy reports whether a session is streaming into a conversation.
func (s *Service) Busy(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.inflight[conversationID]
	return ok
}

func (s *Service) begin(id string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = cancel
	return true
}

func (s *Service) end(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, id)
}

// Close cancels running sessions, drains pending storage jobs and closes
// the publisher and driver.
func (s *Service) Close() error {
	s.mu.Lock()
	for _, cancel := range s.inflight {
		cancel()
	}
	s.mu.Unlock()

	s.pool.Close()

	return errors.Join(s.publisher.Close(), s.driver.Close())
}
