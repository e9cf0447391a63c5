package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/etsangsplk/metadata-agent/internal/logging"
	"github.com/etsangsplk/metadata-agent/internal/store"
)

// QueryFunc produces the current batch of resource/metadata pairs for one
// poll. Implementations must be side-effect-free from the updater's
// perspective and should honor ctx so a stop during a slow query returns
// promptly. A hanging query stalls only its own updater's goroutine.
type QueryFunc func(ctx context.Context) ([]ResourceMetadata, error)

// PollingConfig configures a polling updater.
type PollingConfig struct {
	// Name of the update source, used in logs.
	Name string

	// Store receives committed results.
	Store *store.Store

	// Period between polls. Must be positive.
	Period time.Duration

	// Query is invoked once per period.
	Query QueryFunc

	// Validate, if non-nil, is the source-specific configuration check run
	// in addition to the poller's own checks.
	Validate func() error

	// Logger for structured logging.
	Logger *slog.Logger
}

// NewPolling builds an updater that runs a dedicated background goroutine,
// periodically invoking cfg.Query and committing results.
//
// The wait between polls is cancellable: Stop returns promptly regardless of
// the configured period. A query error is logged and the loop continues to
// the next period; the poll goroutine never exits on query failure.
func NewPolling(cfg PollingConfig) *Updater {
	p := &poller{
		period:   cfg.Period,
		query:    cfg.Query,
		validate: cfg.Validate,
		logger:   logging.Default(cfg.Logger).With("component", "poller", "updater", cfg.Name),
	}
	return New(cfg.Name, cfg.Store, p, cfg.Logger)
}

// poller implements Hooks with a single background polling goroutine.
type poller struct {
	period   time.Duration
	query    QueryFunc
	validate func() error
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (p *poller) ValidateConfig() error {
	if p.period <= 0 {
		return fmt.Errorf("polling period must be positive, got %v", p.period)
	}
	if p.query == nil {
		return errors.New("query function is required")
	}
	if p.validate != nil {
		return p.validate()
	}
	return nil
}

func (p *poller) Start(commit CommitFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Go(func() {
		p.poll(ctx, commit)
	})
}

func (p *poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// poll is the background loop: query, commit each entry, then a cancellable
// wait for the period. The first poll happens immediately on start.
func (p *poller) poll(ctx context.Context, commit CommitFunc) {
	timer := time.NewTimer(p.period)
	defer timer.Stop()

	for {
		batch, err := p.query(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			p.logger.Warn("metadata query failed, will retry next period", "error", err)
		default:
			p.logger.Debug("metadata query returned", "entries", len(batch))
			for i := range batch {
				commit(&batch[i])
			}
		}

		timer.Reset(p.period)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}
