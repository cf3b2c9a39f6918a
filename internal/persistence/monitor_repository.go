package persistence

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/patrickmn/go-cache"
)

type MonitorStorage interface {
	GetMonitor(ctx context.Context, id int64) (*model.MonitorWithFilters, error)
}

// MonitorRepository reads a user's saved searches. Monitors change rarely
// compared to how often they run, so lookups sit behind a short local TTL
// cache.
type MonitorRepository struct {
	db         *sql.DB
	localCache *cache.Cache
}

func NewMonitorRepository(db *sql.DB, ttl time.Duration) *MonitorRepository {
	return &MonitorRepository{
		db:         db,
		localCache: cache.New(ttl, 2*ttl),
	}
}

func (mr *MonitorRepository) GetMonitor(ctx context.Context, id int64) (*model.MonitorWithFilters, error) {
	key := strconv.FormatInt(id, 10)
	if m, ok := mr.localCache.Get(key); ok {
		return m.(*model.MonitorWithFilters), nil
	}

	var m model.MonitorWithFilters
	var country, stateRegion, city sql.NullString
	var priceMin, priceMax sql.NullFloat64
	err := mr.db.QueryRowContext(ctx, `SELECT id, user_id, site, search_url,
			price_min, price_max, country, state_region, city
		FROM marketplace.monitors
		WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&m.ID, &m.UserID, &m.Site, &m.SearchURL, &priceMin, &priceMax,
			&country, &stateRegion, &city)
	if err != nil {
		return nil, err
	}
	if priceMin.Valid {
		m.PriceMin = &priceMin.Float64
	}
	if priceMax.Valid {
		m.PriceMax = &priceMax.Float64
	}
	m.Country = country.String
	m.StateRegion = stateRegion.String
	m.City = city.String

	mr.localCache.Set(key, &m, cache.DefaultExpiration)

	return &m, nil
}
