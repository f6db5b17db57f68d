package menu

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Provider supplies the current menu snapshot.
type Provider interface {
	Menu(ctx context.Context) (*Menu, error)
}

// Source fetches a fresh menu from an external system.
type Source interface {
	Fetch(ctx context.Context) (*Menu, error)
	Name() string
}

// StaticProvider always serves the same snapshot.
type StaticProvider struct {
	menu *Menu
}

// NewStaticProvider wraps a fixed menu. A nil menu means the built-in one.
func NewStaticProvider(m *Menu) *StaticProvider {
	if m == nil {
		m = Static()
	}
	return &StaticProvider{menu: m}
}

// Menu returns the fixed snapshot.
func (p *StaticProvider) Menu(ctx context.Context) (*Menu, error) {
	return p.menu, nil
}

// CachedProvider serves a Source through a freshness window. A stale
// snapshot is served while one background refresh runs; with no snapshot
// at all the caller waits for the fetch and gets the fallback on failure.
type CachedProvider struct {
	source       Source
	fallback     *Menu
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	current     *Menu
	fetchedAt   time.Time
	lastFailure time.Time
}

// failureBackoff is how long callers get the fallback without waiting
// after a failed fetch when no snapshot has been loaded yet.
const failureBackoff = 30 * time.Second

// NewCachedProvider creates a caching provider in front of source.
func NewCachedProvider(source Source, ttl, fetchTimeout time.Duration, fallback *Menu, logger *zap.Logger) *CachedProvider {
	if fallback == nil {
		fallback = Static()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{
		source:       source,
		fallback:     fallback,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Menu returns the cached snapshot, refreshing it when it has expired.
func (p *CachedProvider) Menu(ctx context.Context) (*Menu, error) {
	p.mu.RLock()
	current, fetchedAt, lastFailure := p.current, p.fetchedAt, p.lastFailure
	p.mu.RUnlock()

	if current != nil {
		if p.now().Sub(fetchedAt) >= p.ttl && p.now().Sub(lastFailure) >= failureBackoff {
			// Stale: serve it and refresh in the background.
			p.group.DoChan("menu", func() (interface{}, error) {
				return p.refresh(context.Background())
			})
		}
		return current, nil
	}
	if !lastFailure.IsZero() && p.now().Sub(lastFailure) < failureBackoff {
		return p.fallback, nil
	}

	ch := p.group.DoChan("menu", func() (interface{}, error) {
		return p.refresh(context.Background())
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return p.fallback, nil
		}
		return res.Val.(*Menu), nil
	case <-ctx.Done():
		return p.fallback, nil
	}
}

// Warm performs the initial fetch. Errors are logged and the fallback stays in use.
func (p *CachedProvider) Warm(ctx context.Context) {
	if _, err := p.refresh(ctx); err != nil {
		p.logger.Warn("Menu warm-up failed, serving fallback menu", zap.Error(err))
	}
}

func (p *CachedProvider) refresh(ctx context.Context) (*Menu, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	start := p.now()
	m, err := p.source.Fetch(fetchCtx)
	if err != nil {
		p.logger.Warn("Menu refresh failed",
			zap.String("source", p.source.Name()),
			zap.Error(err),
		)
		p.mu.Lock()
		p.lastFailure = p.now()
		p.mu.Unlock()
		return nil, err
	}

	p.mu.Lock()
	p.current = m
	p.fetchedAt = p.now()
	p.mu.Unlock()

	p.logger.Info("Menu refreshed",
		zap.String("source", p.source.Name()),
		zap.Int("items", len(m.Items)),
		zap.Duration("took", p.now().Sub(start)),
	)
	return m, nil
}
