package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/taxfolio/ledger/src/logger"
)

// Keys embed the account and symbol so writes can drop every report they touch.
// Account-wide reports use symbol 0. Reports that classify holding periods also carry the
// as-of date, so they expire when the day rolls over.
const (
	ckRealized   = "acc:%d:sym:%d:realized:%d"
	ckUnrealized = "acc:%d:sym:%d:unrealized:%s"
	ckTaxLots    = "acc:%d:sym:%d:taxlots:%s"
	ckSummary    = "acc:%d:sym:0:summary:%d"
	ckPrice      = "price:%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
	DefaultPriceExpiration = 5 * time.Minute
)

// ReportCache memoises computed reports until a ledger write invalidates them.
type ReportCache struct {
	c   *cache.Cache
	ttl time.Duration
}

// NewReportCache creates a cache whose entries live for ttl.
func NewReportCache(ttl, cleanup time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = DefaultCacheExpiration
	}
	if cleanup <= 0 {
		cleanup = CacheCleanupInterval
	}
	return &ReportCache{c: cache.New(ttl, cleanup), ttl: ttl}
}

func (r *ReportCache) get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	return r.c.Get(key)
}

func (r *ReportCache) set(key string, value any) {
	if r == nil {
		return
	}
	r.c.Set(key, value, r.ttl)
}

func (r *ReportCache) deleteMatching(match func(key string) bool) int {
	if r == nil {
		return 0
	}
	deleted := 0
	for key := range r.c.Items() {
		if match(key) {
			r.c.Delete(key)
			deleted++
		}
	}
	return deleted
}

// InvalidateAccount drops every report of one account.
func (r *ReportCache) InvalidateAccount(accountID int64) {
	prefix := fmt.Sprintf("acc:%d:", accountID)
	n := r.deleteMatching(func(key string) bool { return strings.HasPrefix(key, prefix) })
	logger.L.Debug("Report cache invalidated for account", "accountID", accountID, "entries", n)
}

// InvalidateSymbol drops the reports of one symbol in every account, plus account-wide reports.
func (r *ReportCache) InvalidateSymbol(symbolID int64) {
	tag := fmt.Sprintf(":sym:%d:", symbolID)
	n := r.deleteMatching(func(key string) bool {
		return strings.Contains(key, tag) || strings.Contains(key, ":sym:0:")
	})
	logger.L.Debug("Report cache invalidated for symbol", "symbolID", symbolID, "entries", n)
}

// Flush drops everything.
func (r *ReportCache) Flush() {
	if r != nil {
		r.c.Flush()
	}
}
