package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-crm/meridian/internal/crm/quotations"
)

const summaryKeyPrefix = "reconcile:summary:"

// SummaryCache keeps the balance summary per quotation in Redis for a short
// TTL. Every method is nil-safe and swallows Redis failures: a broken cache
// degrades to live recomputation, it never breaks the read path.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewSummaryCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl, logger: logger}
}

func summaryKey(quotationID int64) string {
	return fmt.Sprintf("%s%d", summaryKeyPrefix, quotationID)
}

// Get reports the cached summary and whether it was present.
func (c *SummaryCache) Get(ctx context.Context, quotationID int64) (quotations.SummaryResponse, bool) {
	if c == nil || c.client == nil {
		return quotations.SummaryResponse{}, false
	}
	payload, err := c.client.Get(ctx, summaryKey(quotationID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("summary cache read failed", slog.Int64("quotation_id", quotationID), slog.Any("error", err))
		}
		return quotations.SummaryResponse{}, false
	}
	var resp quotations.SummaryResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		c.logger.Warn("summary cache entry corrupt, dropping", slog.Int64("quotation_id", quotationID), slog.Any("error", err))
		_ = c.client.Del(ctx, summaryKey(quotationID)).Err()
		return quotations.SummaryResponse{}, false
	}
	return resp, true
}

// Set stores a freshly computed summary.
func (c *SummaryCache) Set(ctx context.Context, resp quotations.SummaryResponse) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, summaryKey(resp.QuotationID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("summary cache write failed", slog.Int64("quotation_id", resp.QuotationID), slog.Any("error", err))
	}
}

// Invalidate drops the cached summary for a quotation. Called after any
// write that can change its balance: quotation edits, PI approvals,
// payment creation and approval.
func (c *SummaryCache) Invalidate(ctx context.Context, quotationID int64) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, summaryKey(quotationID)).Err(); err != nil {
		c.logger.Warn("summary cache invalidation failed", slog.Int64("quotation_id", quotationID), slog.Any("error", err))
	}
}
