package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/astergate/aster/types"
	"github.com/betbot/astergate/internal/domain"
	"github.com/betbot/astergate/pkg/cache"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestGetBalance_CacheTTL(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	f := &fakeExchange{balances: []types.Balance{{Asset: "USDT", Balance: dec("100")}}}
	svc := NewAccountService(f, 5*time.Second, cache.WithClock(clk.now))
	ctx := context.Background()

	_, err := svc.GetBalance(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.balanceN)

	clk.advance(4900 * time.Millisecond)
	b, err := svc.GetBalance(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.balanceN, "within ttl must be served from cache")
	assert.Equal(t, "USDT", b[0].Asset)

	clk.advance(200 * time.Millisecond)
	_, err = svc.GetBalance(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.balanceN, "expired entry must be refetched")
}

func TestGetBalance_BypassAndClear(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	f := &fakeExchange{}
	svc := NewAccountService(f, 0, cache.WithClock(clk.now))
	ctx := context.Background()

	_, _ = svc.GetBalance(ctx, true)
	_, _ = svc.GetBalance(ctx, false)
	assert.Equal(t, 2, f.balanceN)

	_, _ = svc.GetBalance(ctx, true)
	assert.Equal(t, 2, f.balanceN)

	svc.ClearCache()
	_, _ = svc.GetBalance(ctx, true)
	assert.Equal(t, 3, f.balanceN)
}

func TestGetAccountInfo(t *testing.T) {
	info, err := NewAccountService(&fakeExchange{}, 0).GetAccountInfo(context.Background())
	require.NoError(t, err)
	assert.True(t, info.CanTrade)
}

func TestGetPositions_SkipsFlat(t *testing.T) {
	f := &fakeExchange{riskQueue: [][]types.PositionRisk{{
		risk("BTCUSDT", "0"),
		risk("ETHUSDT", "-1.5"),
		risk("SOLUSDT", "0"),
	}}}
	got, err := NewPositionService(f).GetPositions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ETHUSDT", got[0].Symbol)
	assert.Equal(t, types.MarginTypeCrossed, got[0].MarginType)
}

func TestGetPosition(t *testing.T) {
	f := (&fakeExchange{}).withPositions("BTCUSDT", "0", "2")
	svc := NewPositionService(f)

	p, err := svc.GetPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = svc.GetPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.IsLong())

	_, err = svc.GetPosition(context.Background(), "btc")
	assert.True(t, domain.IsKind(err, domain.KindInvalidParameter))
}

func TestUpdateLeverage(t *testing.T) {
	f := &fakeExchange{}
	svc := NewPositionService(f)
	for _, lev := range []int{0, -1, 126} {
		_, err := svc.UpdateLeverage(context.Background(), "BTCUSDT", lev)
		assert.True(t, domain.IsKind(err, domain.KindInvalidLeverage), "lev=%d", lev)
	}
	assert.Empty(t, f.leverage)

	for _, lev := range []int{1, 125} {
		res, err := svc.UpdateLeverage(context.Background(), "BTCUSDT", lev)
		require.NoError(t, err)
		assert.EqualValues(t, lev, res.Leverage)
	}
	assert.Equal(t, []int{1, 125}, f.leverage)
}

func TestUpdateMarginType(t *testing.T) {
	f := &fakeExchange{}
	svc := NewPositionService(f)

	_, err := svc.UpdateMarginType(context.Background(), "BTCUSDT", "cross")
	assert.True(t, domain.IsKind(err, domain.KindInvalidMarginType))

	_, err = svc.UpdateMarginType(context.Background(), "BTCUSDT", "isolated")
	require.NoError(t, err)
	_, err = svc.UpdateMarginType(context.Background(), "BTCUSDT", "CROSSED")
	require.NoError(t, err)
	assert.Equal(t, []types.MarginType{types.MarginTypeIsolated, types.MarginTypeCrossed}, f.margin)
}

func TestGetOrders(t *testing.T) {
	f := &fakeExchange{}
	svc := NewOrderService(f)
	ctx := context.Background()

	_, err := svc.GetOrders(ctx, OrderQuery{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	require.Len(t, f.allOrdersQ, 1)
	assert.Equal(t, DefaultOrderLimit, f.allOrdersQ[0].Limit)

	for _, limit := range []int{-1, MaxOrderLimit + 1} {
		_, err = svc.GetOrders(ctx, OrderQuery{Symbol: "BTCUSDT", Limit: limit})
		assert.True(t, domain.IsKind(err, domain.KindInvalidParameter), "limit=%d", limit)
	}

	start := time.UnixMilli(1700000000000)
	end := start.Add(-time.Hour)
	_, err = svc.GetOrders(ctx, OrderQuery{Symbol: "BTCUSDT", StartTime: &start, EndTime: &end})
	assert.True(t, domain.IsKind(err, domain.KindInvalidParameter))
	assert.Len(t, f.allOrdersQ, 1)
}

func TestOrderLookups(t *testing.T) {
	svc := NewOrderService(&fakeExchange{})
	ctx := context.Background()

	open, err := svc.GetOpenOrders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	o, err := svc.GetOrder(ctx, "BTCUSDT", 42)
	require.NoError(t, err)
	assert.EqualValues(t, 42, o.OrderID)

	o, err = svc.CancelOrder(ctx, "BTCUSDT", 42)
	require.NoError(t, err)
	assert.Equal(t, "CANCELED", o.Status)

	_, err = svc.CancelOrder(ctx, "", 42)
	assert.True(t, domain.IsKind(err, domain.KindInvalidParameter))
}
