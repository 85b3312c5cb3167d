package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/observability"
	"trade-analytics-lab/internal/storage"
)

// DefaultWorkers is the default number of reconciliation shards.
const DefaultWorkers = 8

// ErrServiceStopped is returned by Submit after Stop.
var ErrServiceStopped = errors.New("reconcile service stopped")

// Outcome describes what one submitted execution did.
type Outcome struct {
	Execution *domain.Execution
	Duplicate bool               // already ingested, ignored
	Changed   []*domain.Position // positions written, closed first on a flip
}

// Closed returns the positions this execution closed.
func (o *Outcome) Closed() []*domain.Position {
	var out []*domain.Position
	for _, p := range o.Changed {
		if p.IsClosed() {
			out = append(out, p)
		}
	}
	return out
}

// Service serializes reconciliation per key by hashing each key onto one of
// a fixed set of worker goroutines. Different keys proceed in parallel.
type Service struct {
	positions  storage.PositionStore
	executions storage.ExecutionStore
	ledger     storage.Ledger
	log        zerolog.Logger

	shards []*shard
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

type shard struct {
	in    chan *request
	books map[domain.PositionKey]*Book
}

type request struct {
	ctx   context.Context
	exec  *domain.Execution
	reply chan response
}

type response struct {
	outcome *Outcome
	err     error
}

// Option configures Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	workers   int
	queueSize int
	log       zerolog.Logger
}

// WithWorkers sets the number of shards.
func WithWorkers(n int) Option {
	return func(c *serviceConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize sets the per-shard queue length.
func WithQueueSize(n int) Option {
	return func(c *serviceConfig) {
		if n >= 0 {
			c.queueSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *serviceConfig) {
		c.log = l
	}
}

// NewService creates a Service and starts its workers. Call Stop to release them.
// positions and executions are read to seed books and detect redeliveries;
// every write goes through ledger.
func NewService(positions storage.PositionStore, executions storage.ExecutionStore, ledger storage.Ledger, opts ...Option) *Service {
	cfg := serviceConfig{
		workers:   DefaultWorkers,
		queueSize: 256,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Service{
		positions:  positions,
		executions: executions,
		ledger:     ledger,
		log:        cfg.log.With().Str("component", "reconcile").Logger(),
		shards:     make([]*shard, cfg.workers),
	}
	for i := range s.shards {
		sh := &shard{
			in:    make(chan *request, cfg.queueSize),
			books: make(map[domain.PositionKey]*Book),
		}
		s.shards[i] = sh
		s.wg.Add(1)
		go s.run(sh)
	}
	return s
}

// Submit routes e to the worker owning its key and waits for the result.
// Invalid executions return *domain.InvalidExecutionError; the position
// they targeted is unchanged.
func (s *Service) Submit(ctx context.Context, e *domain.Execution) (*Outcome, error) {
	if e == nil {
		return nil, domain.NewInvalidExecutionError(nil, "nil execution")
	}

	req := &request{ctx: ctx, exec: e, reply: make(chan response, 1)}

	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return nil, ErrServiceStopped
	}
	sh := s.shardFor(e.Key())
	select {
	case sh.in <- req:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp.outcome, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop drains the queues and stops all workers.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, sh := range s.shards {
		close(sh.in)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) shardFor(key domain.PositionKey) *shard {
	h := xxhash.Sum64String(key.String())
	return s.shards[h%uint64(len(s.shards))]
}

func (s *Service) run(sh *shard) {
	defer s.wg.Done()
	for req := range sh.in {
		if err := req.ctx.Err(); err != nil {
			req.reply <- response{err: err}
			continue
		}
		outcome, err := s.process(req.ctx, sh, req.exec)
		req.reply <- response{outcome: outcome, err: err}
	}
}

// process runs on the shard's goroutine; only it touches sh.books.
func (s *Service) process(ctx context.Context, sh *shard, e *domain.Execution) (*Outcome, error) {
	log := s.log.With().
		Str("execution_id", e.ExecutionID).
		Str("key", e.Key().String()).
		Logger()

	if err := e.Validate(); err != nil {
		observability.RecordExecution("rejected")
		log.Warn().Err(err).Msg("execution rejected")
		return nil, err
	}

	if _, err := s.executions.GetByID(ctx, e.ExecutionID); err == nil {
		observability.RecordExecution("duplicate")
		log.Debug().Msg("duplicate execution ignored")
		return &Outcome{Execution: e, Duplicate: true}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		observability.RecordExecution("error")
		return nil, fmt.Errorf("check execution: %w", err)
	}

	book, err := s.bookFor(ctx, sh, e.Key())
	if err != nil {
		observability.RecordExecution("error")
		return nil, err
	}

	changed, next, err := book.Preview(e)
	if err != nil {
		observability.RecordExecution("rejected")
		log.Warn().Err(err).Time("last_seen", book.LastSeen()).Msg("execution rejected")
		return nil, err
	}

	if err := s.ledger.Apply(ctx, []*domain.Execution{e}, changed); err != nil {
		// The stored state may have moved under the cached book; reload it
		// on the next execution for this key.
		delete(sh.books, e.Key())
		if errors.Is(err, storage.ErrDuplicateKey) {
			observability.RecordExecution("duplicate")
			log.Debug().Msg("duplicate execution ignored")
			return &Outcome{Execution: e, Duplicate: true}, nil
		}
		observability.RecordExecution("error")
		return nil, fmt.Errorf("apply execution: %w", err)
	}
	book.Commit(e, next)

	observability.RecordExecution("applied")
	for _, p := range changed {
		if p.IsClosed() {
			observability.RecordPositionClosed(p.Outcome().String())
			log.Info().
				Str("position_id", p.PositionID).
				Str("realized_pnl", domain.RoundMoney(p.RealizedPnL).String()).
				Msg("position closed")
		}
	}

	return &Outcome{Execution: e, Changed: changed}, nil
}

func (s *Service) bookFor(ctx context.Context, sh *shard, key domain.PositionKey) (*Book, error) {
	if b, ok := sh.books[key]; ok {
		return b, nil
	}

	open, err := s.positions.GetOpen(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load open position %s: %w", key, err)
	}
	b := NewBook(key, open)
	sh.books[key] = b
	return b, nil
}
