package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/adlens/marketplace-crawler/config"
	"github.com/adlens/marketplace-crawler/internal"
	"github.com/adlens/marketplace-crawler/internal/model"
	"github.com/bradfitz/gomemcache/memcache"
)

// CachedClient keeps a short-lived "already seen" set of external ids per
// monitor so the same ad is not produced twice in quick succession.
// Durable deduplication by externalId happens downstream.
type CachedClient interface {
	FilterNewAds(monitorID int64, ads []model.ScrapedAd) []model.ScrapedAd
	MarkSeen(monitorID int64, ads []model.ScrapedAd)
	Close()
}

type MemcachedClient struct {
	client *memcache.Client
	cfg    *config.CacheConfig
}

func NewMemcachedClient(cacheConfig *config.CacheConfig) *MemcachedClient {
	slog.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	err := ss.SetServers(cacheConfig.Servers...)
	if err != nil {
		slog.Error("failed to set memcached servers.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c := &MemcachedClient{
		client: memcache.NewFromSelector(ss),
		cfg:    cacheConfig,
	}
	slog.Info("pinging the memcached.")
	err = c.client.Ping()
	if err != nil {
		slog.Error("connection to the memcached is failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to memcached!")

	return c
}

// FilterNewAds drops ads whose external id was seen for this monitor
// within the TTL window. Cache errors fail open: better a duplicate
// notification than a missed one.
func (mc *MemcachedClient) FilterNewAds(monitorID int64, ads []model.ScrapedAd) []model.ScrapedAd {
	fresh := make([]model.ScrapedAd, 0, len(ads))
	for _, ad := range ads {
		_, err := mc.client.Get(seenKey(monitorID, ad.ExternalID))
		if err == nil {
			slog.Debug("ad already seen, dropped.", slog.String("external_id", ad.ExternalID))
			continue
		}
		if !errors.Is(err, memcache.ErrCacheMiss) {
			slog.Warn("failed to check seen-ad cache.", slog.String("err", err.Error()))
		}
		fresh = append(fresh, ad)
	}

	return fresh
}

func (mc *MemcachedClient) MarkSeen(monitorID int64, ads []model.ScrapedAd) {
	ttl := int32(mc.cfg.TtlForSeenAds.Seconds())
	for _, ad := range ads {
		item := &memcache.Item{
			Key:        seenKey(monitorID, ad.ExternalID),
			Value:      []byte("1"),
			Expiration: ttl,
		}
		if err := mc.client.Set(item); err != nil {
			slog.Warn("failed to mark ad as seen.", slog.String("external_id", ad.ExternalID),
				slog.String("err", err.Error()))
		}
	}
}

func (mc *MemcachedClient) Close() {
	slog.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		slog.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

func seenKey(monitorID int64, externalID string) string {
	return internal.HashKey(fmt.Sprintf("%d:%s-seen-ad", monitorID, externalID))
}
