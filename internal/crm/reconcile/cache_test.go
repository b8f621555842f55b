package reconcile

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
	"github.com/meridian-crm/meridian/internal/crm/payments"
	"github.com/meridian-crm/meridian/internal/crm/quotations"
)

func newTestCache(t *testing.T) (*SummaryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSummaryCache(client, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func TestSummaryCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, 1)
	require.False(t, ok)

	cache.Set(ctx, quotations.SummaryResponse{
		QuotationID: 1,
		Total:       d("10000"),
		Paid:        d("3000"),
		Remaining:   d("7000"),
		Credit:      d("0"),
	})

	got, ok := cache.Get(ctx, 1)
	require.True(t, ok)
	require.True(t, got.Total.Equal(d("10000")))
	require.True(t, got.Remaining.Equal(d("7000")))
}

func TestSummaryCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, quotations.SummaryResponse{QuotationID: 1, Total: d("10000")})
	cache.Invalidate(ctx, 1)

	_, ok := cache.Get(ctx, 1)
	require.False(t, ok)
}

func TestSummaryCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, quotations.SummaryResponse{QuotationID: 1, Total: d("10000")})
	mr.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, 1)
	require.False(t, ok)
}

func TestSummaryCacheCorruptEntryDropped(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(summaryKey(1), "{not json"))

	_, ok := cache.Get(ctx, 1)
	require.False(t, ok)
	require.False(t, mr.Exists(summaryKey(1)))
}

func TestSummaryServedFromCacheThenRefreshed(t *testing.T) {
	cache, _ := newTestCache(t)
	qs := &quotationStub{byID: map[int64]*quotations.Quotation{1: testQuotation(1, 7, "10000")}}
	pays := &paymentStub{byQuotation: map[int64][]payments.Payment{
		1: {approvedPayment(1, 1, "3000", 0)},
	}}
	f := newFacade(qs, &piStub{}, pays, cache)
	ctx := context.Background()

	first, err := f.Summary(ctx, 1)
	require.NoError(t, err)
	require.True(t, first.Remaining.Equal(d("7000")))

	// A new payment lands but the cache has not been invalidated yet: the
	// stale figure is served until the write path calls Invalidate.
	pays.byQuotation[1] = append(pays.byQuotation[1], payments.Payment{
		ID: 2, QuotationID: 1, InstallmentAmount: d("7000"),
		ApprovalStatus: docstate.PaymentApproved, PaymentDate: payDate,
	})
	stale, err := f.Summary(ctx, 1)
	require.NoError(t, err)
	require.True(t, stale.Remaining.Equal(d("7000")))

	cache.Invalidate(ctx, 1)
	fresh, err := f.Summary(ctx, 1)
	require.NoError(t, err)
	require.True(t, fresh.Remaining.IsZero())
}

func TestSummaryDegradesWhenRedisDown(t *testing.T) {
	cache, mr := newTestCache(t)
	qs := &quotationStub{byID: map[int64]*quotations.Quotation{1: testQuotation(1, 7, "10000")}}
	f := newFacade(qs, &piStub{}, &paymentStub{}, cache)

	mr.Close()

	summary, err := f.Summary(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, summary.Total.Equal(d("10000")))
}
