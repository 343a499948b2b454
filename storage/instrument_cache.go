package storage

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/core/engine"
)

const (
	instrumentCacheSize = 1024
	instrumentCacheTTL  = time.Minute
)

type cachedInstrument struct {
	instrument *engine.Instrument
	fetchedAt  time.Time
}

// CachedInstruments fronts the instrument catalog with an LRU of
// bounded staleness. It is strictly advisory: the engine reads the
// catalog through its transaction for every admission decision, and
// catalog writes pass straight through, dropping the stale entry.
type CachedInstruments struct {
	inner  engine.InstrumentStore
	cache  *lru.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedInstruments(inner engine.InstrumentStore, logger *zap.Logger) *CachedInstruments {
	cache, err := lru.New(instrumentCacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &CachedInstruments{
		inner:  inner,
		cache:  cache,
		ttl:    instrumentCacheTTL,
		logger: logger,
	}
}

func (c *CachedInstruments) ActiveByTicker(ctx context.Context, ticker string) (bool, error) {
	if ticker == engine.CashTicker {
		return true, nil
	}
	in, err := c.Get(ctx, ticker)
	if errors.Is(err, engine.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return in.Active, nil
}

func (c *CachedInstruments) Get(ctx context.Context, ticker string) (*engine.Instrument, error) {
	if v, ok := c.cache.Get(ticker); ok {
		entry := v.(*cachedInstrument)
		if time.Since(entry.fetchedAt) < c.ttl {
			if entry.instrument == nil {
				return nil, engine.ErrNotFound
			}
			return entry.instrument, nil
		}
		c.cache.Remove(ticker)
	}

	in, err := c.inner.Get(ctx, ticker)
	if errors.Is(err, engine.ErrNotFound) {
		// Negative entries keep unknown-ticker floods off the database.
		c.cache.Add(ticker, &cachedInstrument{fetchedAt: time.Now()})
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	c.cache.Add(ticker, &cachedInstrument{instrument: in, fetchedAt: time.Now()})
	return in, nil
}

func (c *CachedInstruments) List(ctx context.Context) ([]engine.Instrument, error) {
	return c.inner.List(ctx)
}

func (c *CachedInstruments) Insert(ctx context.Context, in *engine.Instrument) error {
	if err := c.inner.Insert(ctx, in); err != nil {
		return err
	}
	c.cache.Remove(in.Ticker)
	return nil
}

func (c *CachedInstruments) Delist(ctx context.Context, ticker string) error {
	if err := c.inner.Delist(ctx, ticker); err != nil {
		return err
	}
	c.cache.Remove(ticker)
	return nil
}
