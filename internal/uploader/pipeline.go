package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/adaletdata/uploader/internal/metrics"
)

// Config controls Pipeline behavior.
type Config struct {
	// FailureThreshold is the number of permanent per-record write failures
	// tolerated before the run aborts.
	FailureThreshold int
	// SummaryTopic, when set together with a publisher, receives the final
	// run summary after completion.
	SummaryTopic string
}

// Pipeline drives one fetch-and-persist run: it pulls records from the
// source one at a time, deduplicates them, and writes them through the
// storage backend until the limit is reached or the source is exhausted.
type Pipeline struct {
	source    Source
	store     Store
	dedup     *Deduplicator
	retry     RetryPolicy
	publisher Publisher
	clock     Clock
	ids       IDGenerator
	cfg       Config
	logger    *zap.Logger
	state     RunState
}

// New constructs a Pipeline. The publisher may be nil when no summary topic
// is configured.
func New(
	source Source,
	store Store,
	retry RetryPolicy,
	publisher Publisher,
	clock Clock,
	ids IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source:    source,
		store:     store,
		dedup:     NewDeduplicator(store, logger),
		retry:     retry,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
		state:     StateIdle,
	}
}

// State returns the current lifecycle state of the run.
func (p *Pipeline) State() RunState {
	return p.state
}

// Run executes one fetch-and-persist run for the query. The storage backend
// is closed on every exit path, including early aborts, and the returned
// Result carries the counts gathered up to that point.
func (p *Pipeline) Run(ctx context.Context, query Query) (Result, error) {
	res := Result{
		Term:      query.Term,
		State:     StateIdle,
		StartedAt: p.clock.Now(),
	}
	if id, err := p.ids.NewID(); err == nil {
		res.RunID = id
	} else {
		p.logger.Warn("failed to generate run id", zap.Error(err))
	}
	defer p.store.Close()

	if query.Limit <= 0 {
		p.finish(&res, StateAborted)
		return res, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidQuery, query.Limit)
	}

	log := p.logger.With(zap.String("run_id", res.RunID), zap.String("term", query.Term))
	log.Info("starting run", zap.Int("limit", query.Limit))

	// Duplicates do not count against the limit, so the source may be asked
	// for more than limit items before the bound is satisfied.
	for res.Persisted < query.Limit {
		if err := ctx.Err(); err != nil {
			p.finish(&res, StateAborted)
			return res, fmt.Errorf("run canceled: %w", err)
		}

		p.state = StateFetching
		rec, err := p.source.Next(ctx)
		if errors.Is(err, ErrSourceExhausted) {
			break
		}
		if err != nil {
			p.finish(&res, StateAborted)
			return res, fmt.Errorf("fetch record: %w", err)
		}
		res.Fetched++
		metrics.ObserveFetched()

		if p.dedup.Seen(ctx, rec.Identity) {
			res.SkippedDuplicate++
			metrics.ObserveDuplicate()
			log.Debug("skipping duplicate", zap.String("identity", rec.Identity))
			continue
		}

		p.state = StatePersisting
		if err := p.putWithRetry(ctx, rec); err != nil {
			switch {
			case errors.Is(err, ErrConstraintViolation):
				// The backend already holds this identity; treat as duplicate.
				res.SkippedDuplicate++
				metrics.ObserveDuplicate()
				p.dedup.Mark(rec.Identity)
			case errors.Is(err, ErrPermanentWrite):
				res.Failed++
				metrics.ObserveRecordFailure()
				log.Warn("record write failed permanently",
					zap.String("identity", rec.Identity),
					zap.Error(err),
				)
				if res.Failed > p.cfg.FailureThreshold {
					p.finish(&res, StateAborted)
					return res, fmt.Errorf("failure threshold of %d exceeded: %w", p.cfg.FailureThreshold, err)
				}
			default:
				// The record was fetched but never persisted; count it as
				// failed so the accounting stays consistent on abort.
				res.Failed++
				metrics.ObserveRecordFailure()
				p.finish(&res, StateAborted)
				return res, err
			}
			continue
		}

		p.dedup.Mark(rec.Identity)
		res.Persisted++
		metrics.ObservePersisted()
		log.Debug("record persisted", zap.String("identity", rec.Identity))
	}

	p.finish(&res, StateCompleted)
	log.Info("run completed",
		zap.Int("fetched", res.Fetched),
		zap.Int("persisted", res.Persisted),
		zap.Int("skipped_duplicate", res.SkippedDuplicate),
		zap.Int("failed", res.Failed),
	)
	p.publishSummary(ctx, res)
	return res, nil
}

// putWithRetry writes one record, retrying transient connection failures
// with backoff. Any other error is returned to the caller unchanged.
func (p *Pipeline) putWithRetry(ctx context.Context, rec Record) error {
	for attempt := 0; ; attempt++ {
		err := p.store.Put(ctx, rec)
		if err == nil {
			return nil
		}
		if !p.retry.ShouldRetry(err, attempt) {
			return err
		}
		metrics.ObserveRetry()
		backoff := p.retry.Backoff(attempt)
		p.logger.Warn("transient write failure, backing off",
			zap.String("identity", rec.Identity),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry interrupted: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}
}

func (p *Pipeline) finish(res *Result, state RunState) {
	p.state = state
	res.State = state
	res.FinishedAt = p.clock.Now()
	metrics.ObserveRun(string(state))
}

// publishSummary pushes the final counts to the configured topic. The event
// is advisory: a publish failure is logged, not surfaced as a run failure.
func (p *Pipeline) publishSummary(ctx context.Context, res Result) {
	if p.publisher == nil || p.cfg.SummaryTopic == "" {
		return
	}
	id, err := p.publisher.Publish(ctx, p.cfg.SummaryTopic, res)
	if err != nil {
		p.logger.Warn("failed to publish run summary", zap.Error(err))
		return
	}
	p.logger.Info("run summary published",
		zap.String("topic", p.cfg.SummaryTopic),
		zap.String("message_id", id),
	)
}
