package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/buggu-git/taiwan-tools/internal/logging"
	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/buggu-git/taiwan-tools/internal/types"
	"github.com/redis/go-redis/v9"
)

// snapshotReader is the slice of HoldingRepository the cache fronts.
type snapshotReader interface {
	GetSnapshot(ctx context.Context, etfSymbol string, tradeDate time.Time) ([]models.Holding, error)
}

// etfLister is the slice of ETFRepository the cache fronts.
type etfLister interface {
	List(ctx context.Context) ([]*models.ETF, error)
}

// SnapshotCache is a read-through Redis cache over snapshot and registry
// reads. Snapshots are immutable once ingested (barring force re-ingestion),
// which makes them ideal cache material. Cache failures degrade to the
// database and are logged, never surfaced: the cache is an optimization, not
// a source of truth.
type SnapshotCache struct {
	redis    *RedisCache
	holdings snapshotReader
	etfs     etfLister
	ttl      time.Duration
	logger   *logging.Logger
}

// NewSnapshotCache creates a new snapshot cache. A nil RedisCache disables
// caching entirely; reads pass straight through.
func NewSnapshotCache(redisCache *RedisCache, holdings snapshotReader, etfs etfLister, ttl time.Duration, logger *logging.Logger) *SnapshotCache {
	return &SnapshotCache{
		redis:    redisCache,
		holdings: holdings,
		etfs:     etfs,
		ttl:      ttl,
		logger:   logger,
	}
}

func snapshotKey(etfSymbol string, tradeDate time.Time) string {
	return fmt.Sprintf("snapshot:%s:%s", etfSymbol, tradeDate.Format(types.DateFormat))
}

const etfListKey = "etfs:all"

// GetSnapshot returns the cached snapshot when present, falling back to the
// repository and populating the cache on a miss.
func (c *SnapshotCache) GetSnapshot(ctx context.Context, etfSymbol string, tradeDate time.Time) ([]models.Holding, error) {
	if c.redis == nil {
		return c.holdings.GetSnapshot(ctx, etfSymbol, tradeDate)
	}

	key := snapshotKey(etfSymbol, tradeDate)
	if cached, err := c.redis.Get(ctx, key); err == nil {
		var holdings []models.Holding
		if err := json.Unmarshal([]byte(cached), &holdings); err == nil {
			return holdings, nil
		}
		// Corrupt entry: drop it and fall through to the database.
		_ = c.redis.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WithError(err).WithField("key", key).Warn("snapshot cache read failed")
	}

	holdings, err := c.holdings.GetSnapshot(ctx, etfSymbol, tradeDate)
	if err != nil {
		return nil, err
	}

	// Empty snapshots are not cached: "no snapshot yet" may become a snapshot
	// at any moment.
	if len(holdings) > 0 {
		if data, err := json.Marshal(holdings); err == nil {
			if err := c.redis.Set(ctx, key, data, c.ttl); err != nil {
				c.logger.WithError(err).WithField("key", key).Warn("snapshot cache write failed")
			}
		}
	}

	return holdings, nil
}

// ListETFs returns the cached registry listing when present.
func (c *SnapshotCache) ListETFs(ctx context.Context) ([]*models.ETF, error) {
	if c.redis == nil {
		return c.etfs.List(ctx)
	}

	if cached, err := c.redis.Get(ctx, etfListKey); err == nil {
		var etfs []*models.ETF
		if err := json.Unmarshal([]byte(cached), &etfs); err == nil {
			return etfs, nil
		}
		_ = c.redis.Del(ctx, etfListKey)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WithError(err).Warn("etf list cache read failed")
	}

	etfs, err := c.etfs.List(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(etfs); err == nil {
		if err := c.redis.Set(ctx, etfListKey, data, c.ttl); err != nil {
			c.logger.WithError(err).Warn("etf list cache write failed")
		}
	}

	return etfs, nil
}

// InvalidateSnapshot drops the cached snapshot for (etf, trade date); called
// after a force re-ingestion rewrites the rows.
func (c *SnapshotCache) InvalidateSnapshot(ctx context.Context, etfSymbol string, tradeDate time.Time) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, snapshotKey(etfSymbol, tradeDate)); err != nil {
		c.logger.WithError(err).Warn("snapshot cache invalidation failed")
	}
}

// InvalidateETFList drops the cached registry listing; called after
// registration, metadata refresh or deletion.
func (c *SnapshotCache) InvalidateETFList(ctx context.Context) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, etfListKey); err != nil {
		c.logger.WithError(err).Warn("etf list cache invalidation failed")
	}
}
