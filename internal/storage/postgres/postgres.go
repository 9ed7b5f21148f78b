// Package postgres stores finished match results in PostgreSQL using pgx v5.
//
// A Pool is opened only when database.enabled is set. Its MatchRepository
// receives results from the match history writer and serves the recent
// matches listing. The Pool also runs as a lifecycle service that pings the
// database periodically and closes the connections on stop.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
)

// DefaultHealthInterval is the period of the background database ping.
const DefaultHealthInterval = 30 * time.Second

// Pool is the match history database handle.
type Pool struct {
	pool     *pgxpool.Pool
	logger   *zap.Logger
	interval time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// Open connects to the match history database and verifies it with a ping.
//
// Precondition: cfg must pass config validation with Enabled set; logger must be non-nil.
// Postcondition: Returns a connected Pool or a non-nil error; no connection is
// left open on failure.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging match history database %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}
	return &Pool{
		pool:     pool,
		logger:   logger,
		interval: DefaultHealthInterval,
		stop:     make(chan struct{}),
	}, nil
}

// Matches returns the repository of finished match results.
func (p *Pool) Matches() *MatchRepository {
	return NewMatchRepository(p.pool)
}

// Health pings the database, giving up after timeout.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// SetHealthInterval changes the background ping period. It must be called
// before Start.
func (p *Pool) SetHealthInterval(d time.Duration) {
	p.interval = d
}

// Start pings the database every health interval until Stop. A failed ping
// is logged and does not end the service.
func (p *Pool) Start() error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return nil
		case <-ticker.C:
			if err := p.Health(context.Background(), 5*time.Second); err != nil {
				p.logger.Warn("match history database unreachable", zap.Error(err))
			}
		}
	}
}

// Stop ends the health loop and closes every connection. It is idempotent.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.pool.Close()
	})
}

// Close releases every connection without waiting for Start to return.
func (p *Pool) Close() {
	p.Stop()
}

// DB returns the underlying pgxpool.Pool.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
